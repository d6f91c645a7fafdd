package dto

import (
	"time"

	"github.com/noah-isme/course-optimizer/internal/models"
)

// StartOptimizerRunRequest captures POST /optimizer/runs payload.
type StartOptimizerRunRequest struct {
	Priority    models.OptimizerPriority `json:"priority" validate:"required,priority"`
	WindowStart string                   `json:"windowStart" validate:"required,datetime=2006-01-02"`
	WindowEnd   string                   `json:"windowEnd" validate:"required,datetime=2006-01-02"`
	Source      string                   `json:"source" validate:"omitempty,oneof=db csv"`
	Options     map[string]interface{}   `json:"options,omitempty"`
}

// OptimizerRunListRequest describes filters for listing runs.
type OptimizerRunListRequest struct {
	Status   string `form:"status"`
	Priority string `form:"priority"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// OptimizerRunResponse is the API view of a run.
type OptimizerRunResponse struct {
	ID             string                    `json:"id"`
	Priority       models.OptimizerPriority  `json:"priority"`
	WindowStart    string                    `json:"windowStart"`
	WindowEnd      string                    `json:"windowEnd"`
	Source         string                    `json:"source"`
	Status         models.OptimizerRunStatus `json:"status"`
	Score          float64                   `json:"score"`
	ScheduledCount int                       `json:"scheduledCount"`
	RequestCount   int                       `json:"requestCount"`
	FailedCount    int                       `json:"failedCount"`
	StatusLine     string                    `json:"statusLine,omitempty"`
	Error          *string                   `json:"error,omitempty"`
	CreatedBy      string                    `json:"createdBy"`
	CreatedAt      time.Time                 `json:"createdAt"`
	StartedAt      *time.Time                `json:"startedAt,omitempty"`
	CompletedAt    *time.Time                `json:"completedAt,omitempty"`
}

// OptimizerRunStatusResponse exposes live progress of a run.
type OptimizerRunStatusResponse struct {
	ID       string                    `json:"id"`
	Status   models.OptimizerRunStatus `json:"status"`
	Line     string                    `json:"line,omitempty"`
	Progress *models.OptimizerProgress `json:"progress,omitempty"`
}

// OptimizerResultsResponse lists the assignments and the inputs that failed.
type OptimizerResultsResponse struct {
	RunID       string                    `json:"runId"`
	Score       float64                   `json:"score"`
	Assignments []models.OptimizerResult  `json:"assignments"`
	Failures    []models.OptimizerFailure `json:"failures"`
}

// OptimizerExportRequest selects the report format.
type OptimizerExportRequest struct {
	Format models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// OptimizerExportResponse carries the signed download link.
type OptimizerExportResponse struct {
	URL       string              `json:"url"`
	Format    models.ReportFormat `json:"format"`
	ExpiresAt time.Time           `json:"expiresAt"`
}
