package models

import "time"

// ApprovedBookingStatus marks an absence booking that blocks the instructor.
const ApprovedBookingStatus = 1

// ScheduledClass is an already published offering occupying a room.
type ScheduledClass struct {
	ID         int64     `db:"id" json:"id"`
	CourseID   int64     `db:"course_id" json:"course_id"`
	LocationID int64     `db:"location_id" json:"location_id"`
	RoomID     int64     `db:"room_id" json:"room_id"`
	StartDate  time.Time `db:"start_date" json:"start_date"`
	EndDate    time.Time `db:"end_date" json:"end_date"`
	Cancelled  bool      `db:"cancelled" json:"cancelled"`
}

// InstructorAssignment records an instructor teaching a scheduled class.
type InstructorAssignment struct {
	ID              int64     `db:"id" json:"id"`
	InstructorID    string    `db:"instructor_id" json:"instructor_id"`
	ClassID         int64     `db:"class_id" json:"class_id"`
	LocationID      int64     `db:"location_id" json:"location_id"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	EndDate         time.Time `db:"end_date" json:"end_date"`
	Cancelled       bool      `db:"cancelled" json:"cancelled"`
	LocalAssignment bool      `db:"-" json:"local_assignment"`
}

// Absence is an approved booking that makes an instructor unavailable.
type Absence struct {
	ID           int64     `db:"id" json:"id"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
	Status       int       `db:"status" json:"status"`
	Cancelled    bool      `db:"cancelled" json:"cancelled"`
}

// TeachingHistory is the most recent end date an instructor taught a course.
type TeachingHistory struct {
	CourseID     int64     `db:"course_id" json:"course_id"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	LastTaught   time.Time `db:"last_taught" json:"last_taught"`
}
