package models

import "time"

// OptimizerRequester tags results produced by the optimizer rather than by a person.
const OptimizerRequester = "Optimizer"

// OptimizerResult is one scheduled occurrence proposed by an optimizer run.
type OptimizerResult struct {
	ID                   string    `db:"id" json:"id"`
	RunID                string    `db:"run_id" json:"run_id"`
	InputID              int64     `db:"input_id" json:"input_id"`
	CourseID             int64     `db:"course_id" json:"course_id"`
	CourseCode           string    `db:"course_code" json:"course_code"`
	LocationID           int64     `db:"location_id" json:"location_id"`
	RoomID               int64     `db:"room_id" json:"room_id"`
	InstructorID         string    `db:"instructor_id" json:"instructor_id"`
	StartDate            time.Time `db:"start_date" json:"start_date"`
	EndDate              time.Time `db:"end_date" json:"end_date"`
	StartTime            TimeOfDay `db:"start_time" json:"start_time"`
	EndTime              TimeOfDay `db:"end_time" json:"end_time"`
	Cancelled            bool      `db:"cancelled" json:"cancelled"`
	UsingLocalInstructor bool      `db:"using_local_instructor" json:"using_local_instructor"`
	Hidden               bool      `db:"hidden" json:"hidden"`
	RequestType          string    `db:"request_type" json:"request_type"`
	Requester            string    `db:"requester" json:"requester"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}
