package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/course-optimizer/internal/models"
)

const runColumns = `id, priority, window_start, window_end, source, options, status, score, scheduled_count, request_count,
       failed_count, status_line, failures, error_message, created_by, created_at, started_at, completed_at`

// OptimizerRunRepository persists optimizer run metadata.
type OptimizerRunRepository struct {
	db *sqlx.DB
}

// NewOptimizerRunRepository constructs the repository.
func NewOptimizerRunRepository(db *sqlx.DB) *OptimizerRunRepository {
	return &OptimizerRunRepository{db: db}
}

// Create inserts a new run row with generated defaults.
func (r *OptimizerRunRepository) Create(ctx context.Context, run *models.OptimizerRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.OptimizerRunQueued
	}
	if len(run.Options) == 0 {
		run.Options = types.JSONText("{}")
	}
	if len(run.Failures) == 0 {
		run.Failures = types.JSONText("[]")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO optimizer_runs (` + runColumns + `)
VALUES (:id, :priority, :window_start, :window_end, :source, :options, :status, :score, :scheduled_count, :request_count,
        :failed_count, :status_line, :failures, :error_message, :created_by, :created_at, :started_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create optimizer run: %w", err)
	}
	return nil
}

// GetByID returns a run by its identifier.
func (r *OptimizerRunRepository) GetByID(ctx context.Context, id string) (*models.OptimizerRun, error) {
	const query = `SELECT ` + runColumns + ` FROM optimizer_runs WHERE id = $1`
	var run models.OptimizerRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get optimizer run: %w", err)
	}
	return &run, nil
}

// List returns a page of runs, newest first, plus the total matching the filter.
func (r *OptimizerRunRepository) List(ctx context.Context, filter models.OptimizerRunFilter) ([]models.OptimizerRun, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM optimizer_runs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count optimizer runs: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	query := fmt.Sprintf("SELECT %s FROM optimizer_runs%s ORDER BY created_at DESC LIMIT %d OFFSET %d", runColumns, where, size, (page-1)*size)

	var runs []models.OptimizerRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list optimizer runs: %w", err)
	}
	return runs, total, nil
}

// UpdateOptimizerRunParams defines the mutable fields.
type UpdateOptimizerRunParams struct {
	Status         *models.OptimizerRunStatus
	Score          *float64
	ScheduledCount *int
	RequestCount   *int
	FailedCount    *int
	StatusLine     *string
	Failures       *types.JSONText
	ErrorMessage   *string
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Update persists the provided changes for a run row.
func (r *OptimizerRunRepository) Update(ctx context.Context, id string, params UpdateOptimizerRunParams) error {
	set := make([]string, 0, 9)
	args := make([]interface{}, 0, 10)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Score != nil {
		add("score", *params.Score)
	}
	if params.ScheduledCount != nil {
		add("scheduled_count", *params.ScheduledCount)
	}
	if params.RequestCount != nil {
		add("request_count", *params.RequestCount)
	}
	if params.FailedCount != nil {
		add("failed_count", *params.FailedCount)
	}
	if params.StatusLine != nil {
		add("status_line", *params.StatusLine)
	}
	if params.Failures != nil {
		add("failures", *params.Failures)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.StartedAt != nil {
		add("started_at", *params.StartedAt)
	}
	if params.CompletedAt != nil {
		add("completed_at", *params.CompletedAt)
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE optimizer_runs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)+1)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update optimizer run: %w", err)
	}
	return nil
}

// ListQueued fetches queued runs (used for cold start recovery).
func (r *OptimizerRunRepository) ListQueued(ctx context.Context, limit int) ([]models.OptimizerRun, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + runColumns + ` FROM optimizer_runs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var runs []models.OptimizerRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued optimizer runs: %w", err)
	}
	return runs, nil
}
