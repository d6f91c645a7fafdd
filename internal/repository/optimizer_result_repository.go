package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-optimizer/internal/models"
)

const resultColumns = `id, run_id, input_id, course_id, course_code, location_id, room_id, instructor_id, start_date, end_date,
       start_time, end_time, cancelled, using_local_instructor, hidden, request_type, requester, created_at`

// OptimizerResultRepository stores the assignments proposed by runs.
type OptimizerResultRepository struct {
	db *sqlx.DB
}

// NewOptimizerResultRepository constructs the repository.
func NewOptimizerResultRepository(db *sqlx.DB) *OptimizerResultRepository {
	return &OptimizerResultRepository{db: db}
}

// SaveOutcome replaces the results of a run and records the outcome of every input in one transaction.
func (r *OptimizerResultRepository) SaveOutcome(ctx context.Context, runID string, results []models.OptimizerResult, inputs []*models.OptimizerInput) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save optimizer outcome: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM optimizer_results WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clear optimizer results: %w", err)
	}

	const insert = `INSERT INTO optimizer_results (` + resultColumns + `)
VALUES (:id, :run_id, :input_id, :course_id, :course_code, :location_id, :room_id, :instructor_id, :start_date, :end_date,
        :start_time, :end_time, :cancelled, :using_local_instructor, :hidden, :request_type, :requester, :created_at)`
	now := time.Now().UTC()
	for i := range results {
		payload := results[i]
		payload.RunID = runID
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, insert, &payload); err != nil {
			return fmt.Errorf("insert optimizer result: %w", err)
		}
		results[i] = payload
	}

	for _, in := range inputs {
		if _, err = tx.ExecContext(ctx, `UPDATE optimizer_inputs SET succeeded = $1, reason = $2 WHERE id = $3`, in.Succeeded, in.Reason, in.ID); err != nil {
			return fmt.Errorf("update optimizer input %d: %w", in.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save optimizer outcome: %w", err)
	}
	return nil
}

// ListByRun returns the results of a run ordered by start date.
func (r *OptimizerResultRepository) ListByRun(ctx context.Context, runID string) ([]models.OptimizerResult, error) {
	const query = `SELECT ` + resultColumns + ` FROM optimizer_results WHERE run_id = $1 ORDER BY start_date, course_code, id`
	var results []models.OptimizerResult
	if err := r.db.SelectContext(ctx, &results, query, runID); err != nil {
		return nil, fmt.Errorf("list optimizer results: %w", err)
	}
	return results, nil
}
