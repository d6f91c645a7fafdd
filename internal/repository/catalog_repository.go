package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-optimizer/internal/models"
)

// CatalogRepository reads the reference data an optimizer run is built from.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListCourses returns the full course catalog.
func (r *CatalogRepository) ListCourses(ctx context.Context) ([]models.Course, error) {
	const query = `SELECT id, code, title, hours, max_size FROM courses ORDER BY id`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListQualifications returns active qualifications of users holding the given role.
func (r *CatalogRepository) ListQualifications(ctx context.Context, roleID int) ([]models.CourseQualification, error) {
	const query = `SELECT s.course_id, s.instructor_id
FROM instructor_status s
JOIN users u ON u.username = s.instructor_id
WHERE s.deleted = FALSE AND s.qualification = 1 AND u.role_id = $1
ORDER BY s.course_id, s.instructor_id`
	var rows []models.CourseQualification
	if err := r.db.SelectContext(ctx, &rows, query, roleID); err != nil {
		return nil, fmt.Errorf("list qualifications: %w", err)
	}
	return rows, nil
}

// ListCourseResources returns the room resources each course requires.
func (r *CatalogRepository) ListCourseResources(ctx context.Context) ([]models.ResourceQuantity, error) {
	const query = `SELECT course_id AS owner_id, resource_id, amount AS quantity FROM course_required_resources`
	var rows []models.ResourceQuantity
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list course resources: %w", err)
	}
	return rows, nil
}

// ListRooms returns every room.
func (r *CatalogRepository) ListRooms(ctx context.Context) ([]models.Room, error) {
	const query = `SELECT id, station, number, active FROM rooms ORDER BY id`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// ListRoomResources returns the resource inventory of every room.
func (r *CatalogRepository) ListRoomResources(ctx context.Context) ([]models.ResourceQuantity, error) {
	const query = `SELECT room_id AS owner_id, resource_id, amount AS quantity FROM room_has_resources`
	var rows []models.ResourceQuantity
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list room resources: %w", err)
	}
	return rows, nil
}

// ListInstructors returns users holding the instructor role.
func (r *CatalogRepository) ListInstructors(ctx context.Context, roleID int) ([]models.Instructor, error) {
	const query = `SELECT username AS id, first_name, last_name, point_id, role_id
FROM users WHERE role_id = $1 ORDER BY username`
	var instructors []models.Instructor
	if err := r.db.SelectContext(ctx, &instructors, query, roleID); err != nil {
		return nil, fmt.Errorf("list instructors: %w", err)
	}
	return instructors, nil
}

// ListLocations returns every location with its release rate.
func (r *CatalogRepository) ListLocations(ctx context.Context) ([]models.Location, error) {
	const query = `SELECT id, code, name, latitude, longitude, release_rate FROM locations ORDER BY id`
	var locations []models.Location
	if err := r.db.SelectContext(ctx, &locations, query); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locations, nil
}

// ListLastTaught returns, per course and instructor, the latest end date of a
// non-cancelled assignment finishing before the cutoff.
func (r *CatalogRepository) ListLastTaught(ctx context.Context, before time.Time) ([]models.TeachingHistory, error) {
	const query = `SELECT c.course_id, i.user_id AS instructor_id, MAX(i.end_date) AS last_taught
FROM instructor_of_class i
JOIN scheduled_classes c ON c.id = i.class_id
WHERE i.cancelled = FALSE AND c.cancelled = FALSE AND i.end_date < $1
GROUP BY c.course_id, i.user_id`
	var rows []models.TeachingHistory
	if err := r.db.SelectContext(ctx, &rows, query, before); err != nil {
		return nil, fmt.Errorf("list last taught: %w", err)
	}
	return rows, nil
}
