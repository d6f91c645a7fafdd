package csvio

// Row types mirror the header of each file in a data directory.

type courseRow struct {
	ID      int64  `csv:"ID"`
	Code    string `csv:"Code"`
	Title   string `csv:"Title"`
	Hours   int    `csv:"Hours"`
	MaxSize int    `csv:"MaxSize"`
}

type qualificationRow struct {
	CourseID     int64  `csv:"CourseID"`
	InstructorID string `csv:"InstructorID"`
	Deleted      bool   `csv:"Deleted"`
}

type courseResourceRow struct {
	CourseID   int64 `csv:"CourseID"`
	ResourceID int64 `csv:"ResourceID"`
	Amount     int   `csv:"Amount"`
}

type roomRow struct {
	ID      int64  `csv:"ID"`
	Station string `csv:"Station"`
	Number  string `csv:"Number"`
	Active  string `csv:"Active"`
}

type roomResourceRow struct {
	RoomID     int64 `csv:"RoomID"`
	ResourceID int64 `csv:"ResourceID"`
	Amount     int   `csv:"Amount"`
}

type instructorRow struct {
	Username  string `csv:"Username"`
	FirstName string `csv:"FirstName"`
	LastName  string `csv:"LastName"`
	PointID   int64  `csv:"PointID"`
	RoleID    int    `csv:"RoleID"`
}

type locationRow struct {
	ID          int64   `csv:"ID"`
	Code        string  `csv:"Code"`
	Name        string  `csv:"Name"`
	Latitude    float64 `csv:"Latitude"`
	Longitude   float64 `csv:"Longitude"`
	ReleaseRate string  `csv:"ReleaseRate"`
}

type inputRow struct {
	ID            int64  `csv:"ID"`
	CourseCode    string `csv:"CourseCode"`
	LocationCode  string `csv:"LocationCode"`
	NumTimesToRun int    `csv:"NumTimesToRun"`
	StartTime     string `csv:"StartTime"`
	Selected      string `csv:"Selected"`
	Succeeded     bool   `csv:"Succeeded"`
}

type classRow struct {
	ID         int64  `csv:"ID"`
	CourseID   int64  `csv:"CourseID"`
	LocationID int64  `csv:"LocationID"`
	RoomID     int64  `csv:"RoomID"`
	StartDate  string `csv:"StartDate"`
	EndDate    string `csv:"EndDate"`
	Cancelled  bool   `csv:"Cancelled"`
}

type assignmentRow struct {
	ID        int64  `csv:"ID"`
	UserID    string `csv:"UserID"`
	ClassID   int64  `csv:"ClassID"`
	StartDate string `csv:"StartDate"`
	EndDate   string `csv:"EndDate"`
	Cancelled bool   `csv:"Cancelled"`
}

type absenceRow struct {
	ID        int64  `csv:"ID"`
	UserID    string `csv:"UserID"`
	StartDate string `csv:"StartDate"`
	EndDate   string `csv:"EndDate"`
	Status    int    `csv:"Status"`
	Cancelled bool   `csv:"Cancelled"`
}

type historyRow struct {
	CourseID   int64  `csv:"CourseID"`
	UserID     string `csv:"UserID"`
	LastTaught string `csv:"LastTaught"`
}
