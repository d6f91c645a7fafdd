package models

// OptimizerInput is a pending request to offer a course at a location one or more times.
type OptimizerInput struct {
	ID            int64     `db:"id" json:"id"`
	CourseCode    string    `db:"course_code" json:"course_code"`
	LocationCode  string    `db:"location_code" json:"location_code"`
	NumTimesToRun int       `db:"num_times_to_run" json:"num_times_to_run"`
	StartTime     TimeOfDay `db:"start_time" json:"start_time"`
	Selected      bool      `db:"selected" json:"selected"`
	Succeeded     bool      `db:"succeeded" json:"succeeded"`
	Reason        string    `db:"reason" json:"reason,omitempty"`

	// Joined from the catalog by the data provider.
	CourseID   int64 `db:"course_id" json:"course_id"`
	LocationID int64 `db:"location_id" json:"location_id"`
	Hours      int   `db:"hours" json:"hours"`

	LengthDays            int  `db:"-" json:"length_days"`
	RemainingRuns         int  `db:"-" json:"remaining_runs"`
	MaxPossibleIterations int  `db:"-" json:"max_possible_iterations"`
	WillAlwaysFail        bool `db:"-" json:"will_always_fail"`
}

// Prepare resets the per-run derived fields from the persisted ones.
func (in *OptimizerInput) Prepare() {
	in.LengthDays = Course{Hours: in.Hours}.LengthDays()
	in.RemainingRuns = in.NumTimesToRun
	in.MaxPossibleIterations = 0
	in.WillAlwaysFail = false
	in.Succeeded = false
	in.Reason = ""
}
