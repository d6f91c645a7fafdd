package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-optimizer/internal/models"
)

// OptimizerInputRepository reads the course offering requests awaiting a schedule.
type OptimizerInputRepository struct {
	db *sqlx.DB
}

// NewOptimizerInputRepository constructs the repository.
func NewOptimizerInputRepository(db *sqlx.DB) *OptimizerInputRepository {
	return &OptimizerInputRepository{db: db}
}

// ListPending returns selected requests that have not succeeded yet, longest courses first.
// Requests naming an unknown course or location are kept with zero catalog ids.
func (r *OptimizerInputRepository) ListPending(ctx context.Context) ([]models.OptimizerInput, error) {
	const query = `SELECT i.id, i.course_code, i.location_code, i.num_times_to_run, i.start_time, i.selected, i.succeeded,
       COALESCE(i.reason, '') AS reason, COALESCE(c.id, 0) AS course_id, COALESCE(l.id, 0) AS location_id,
       COALESCE(c.hours, 0) AS hours
FROM optimizer_inputs i
LEFT JOIN courses c ON c.code = i.course_code
LEFT JOIN locations l ON l.code = i.location_code
WHERE i.succeeded = FALSE AND i.selected = TRUE
ORDER BY COALESCE(c.hours, 0) DESC, i.id ASC`
	var inputs []models.OptimizerInput
	if err := r.db.SelectContext(ctx, &inputs, query); err != nil {
		return nil, fmt.Errorf("list pending optimizer inputs: %w", err)
	}
	return inputs, nil
}

// CountPending returns how many requests ListPending would return.
func (r *OptimizerInputRepository) CountPending(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM optimizer_inputs WHERE succeeded = FALSE AND selected = TRUE`
	var count int
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("count pending optimizer inputs: %w", err)
	}
	return count, nil
}
