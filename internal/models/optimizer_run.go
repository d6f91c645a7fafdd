package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// OptimizerPriority selects the objective of a run.
type OptimizerPriority string

const (
	PriorityFirstAvailable                   OptimizerPriority = "FIRST_AVAILABLE"
	PriorityDefault                          OptimizerPriority = "DEFAULT"
	PriorityMaximizeSpecializedInstructors   OptimizerPriority = "MAXIMIZE_SPECIALIZED_INSTRUCTORS"
	PriorityMinimizeForeignInstructorCount   OptimizerPriority = "MINIMIZE_FOREIGN_INSTRUCTOR_COUNT"
	PriorityMinimizeInstructorTravelDistance OptimizerPriority = "MINIMIZE_INSTRUCTOR_TRAVEL_DISTANCE"
	PriorityMaximizeInstructorLongestToTeach OptimizerPriority = "MAXIMIZE_INSTRUCTOR_LONGEST_TO_TEACH"
)

// Priorities lists every supported priority in display order.
var Priorities = []OptimizerPriority{
	PriorityFirstAvailable,
	PriorityDefault,
	PriorityMaximizeSpecializedInstructors,
	PriorityMinimizeForeignInstructorCount,
	PriorityMinimizeInstructorTravelDistance,
	PriorityMaximizeInstructorLongestToTeach,
}

// Valid reports whether p is a known priority.
func (p OptimizerPriority) Valid() bool {
	for _, candidate := range Priorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// OptimizerRunStatus captures the lifecycle of a run.
type OptimizerRunStatus string

const (
	OptimizerRunQueued    OptimizerRunStatus = "QUEUED"
	OptimizerRunRunning   OptimizerRunStatus = "RUNNING"
	OptimizerRunCompleted OptimizerRunStatus = "COMPLETED"
	OptimizerRunFailed    OptimizerRunStatus = "FAILED"
)

// OptimizerRun is the persisted record of one optimization.
type OptimizerRun struct {
	ID             string             `db:"id" json:"id"`
	Priority       OptimizerPriority  `db:"priority" json:"priority"`
	WindowStart    time.Time          `db:"window_start" json:"window_start"`
	WindowEnd      time.Time          `db:"window_end" json:"window_end"`
	Source         string             `db:"source" json:"source"`
	Options        types.JSONText     `db:"options" json:"options"`
	Status         OptimizerRunStatus `db:"status" json:"status"`
	Score          float64            `db:"score" json:"score"`
	ScheduledCount int                `db:"scheduled_count" json:"scheduled_count"`
	RequestCount   int                `db:"request_count" json:"request_count"`
	FailedCount    int                `db:"failed_count" json:"failed_count"`
	StatusLine     string             `db:"status_line" json:"status_line"`
	Failures       types.JSONText     `db:"failures" json:"failures"`
	ErrorMessage   *string            `db:"error_message" json:"error_message,omitempty"`
	CreatedBy      string             `db:"created_by" json:"created_by"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	StartedAt      *time.Time         `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
}

// OptimizerFailure records why a request did not receive every occurrence it asked for.
type OptimizerFailure struct {
	InputID        int64  `json:"input_id"`
	CourseCode     string `json:"course_code"`
	LocationCode   string `json:"location_code"`
	Requested      int    `json:"requested"`
	Scheduled      int    `json:"scheduled"`
	WillAlwaysFail bool   `json:"will_always_fail"`
	Reason         string `json:"reason"`
}

// OptimizerRunFilter narrows run listings.
type OptimizerRunFilter struct {
	Status   *OptimizerRunStatus
	Priority *OptimizerPriority
	Page     int
	PageSize int
}

// OptimizerProgress is a point-in-time view of a running search.
type OptimizerProgress struct {
	RunID         string             `json:"run_id"`
	Status        OptimizerRunStatus `json:"status"`
	Line          string             `json:"line"`
	ElapsedMs     int64              `json:"elapsed_ms"`
	Leaves        int64              `json:"leaves"`
	Evaluations   int64              `json:"evaluations"`
	BestScore     float64            `json:"best_score"`
	BestCount     int                `json:"best_count"`
	BestPossible  float64            `json:"best_possible"`
	NodesPerDepth []int64            `json:"nodes_per_depth"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
