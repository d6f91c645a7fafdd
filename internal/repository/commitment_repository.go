package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-optimizer/internal/models"
)

// CommitmentRepository reads existing classes, instructor assignments and absences
// that overlap an optimization window.
type CommitmentRepository struct {
	db *sqlx.DB
}

// NewCommitmentRepository constructs the repository.
func NewCommitmentRepository(db *sqlx.DB) *CommitmentRepository {
	return &CommitmentRepository{db: db}
}

// ListScheduledClasses returns non-cancelled classes overlapping [start, end].
func (r *CommitmentRepository) ListScheduledClasses(ctx context.Context, start, end time.Time) ([]models.ScheduledClass, error) {
	const query = `SELECT id, course_id, location_id, room_id, start_date, end_date, cancelled
FROM scheduled_classes
WHERE cancelled = FALSE AND start_date <= $2 AND end_date >= $1
ORDER BY start_date, id`
	var classes []models.ScheduledClass
	if err := r.db.SelectContext(ctx, &classes, query, start, end); err != nil {
		return nil, fmt.Errorf("list scheduled classes: %w", err)
	}
	return classes, nil
}

// ListInstructorAssignments returns non-cancelled assignments overlapping [start, end]
// whose class is in the catalog, with the class location attached.
func (r *CommitmentRepository) ListInstructorAssignments(ctx context.Context, start, end time.Time) ([]models.InstructorAssignment, error) {
	const query = `SELECT i.id, i.user_id AS instructor_id, i.class_id, c.location_id, i.start_date, i.end_date, i.cancelled
FROM instructor_of_class i
JOIN scheduled_classes c ON c.id = i.class_id
JOIN courses co ON co.id = c.course_id
WHERE i.cancelled = FALSE AND i.start_date <= $2 AND i.end_date >= $1
ORDER BY i.start_date, i.id`
	var assignments []models.InstructorAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, start, end); err != nil {
		return nil, fmt.Errorf("list instructor assignments: %w", err)
	}
	return assignments, nil
}

// ListAbsences returns approved, non-cancelled bookings overlapping [start, end].
func (r *CommitmentRepository) ListAbsences(ctx context.Context, start, end time.Time) ([]models.Absence, error) {
	const query = `SELECT id, user_id AS instructor_id, start_date, end_date, status, cancelled
FROM bookings
WHERE status = $3 AND cancelled = FALSE AND start_date <= $2 AND end_date >= $1
ORDER BY start_date, id`
	var absences []models.Absence
	if err := r.db.SelectContext(ctx, &absences, query, start, end, models.ApprovedBookingStatus); err != nil {
		return nil, fmt.Errorf("list absences: %w", err)
	}
	return absences, nil
}
