package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/internal/optimizer"
)

// LoadParams describe the slice of data loaded for one run.
type LoadParams = optimizer.LoadParams

// DataProvider loads the dataset an optimizer run works on.
type DataProvider interface {
	Load(ctx context.Context, params LoadParams) (*optimizer.Dataset, error)
}

type catalogReader interface {
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListQualifications(ctx context.Context, roleID int) ([]models.CourseQualification, error)
	ListCourseResources(ctx context.Context) ([]models.ResourceQuantity, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListRoomResources(ctx context.Context) ([]models.ResourceQuantity, error)
	ListInstructors(ctx context.Context, roleID int) ([]models.Instructor, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
	ListLastTaught(ctx context.Context, before time.Time) ([]models.TeachingHistory, error)
}

type commitmentReader interface {
	ListScheduledClasses(ctx context.Context, start, end time.Time) ([]models.ScheduledClass, error)
	ListInstructorAssignments(ctx context.Context, start, end time.Time) ([]models.InstructorAssignment, error)
	ListAbsences(ctx context.Context, start, end time.Time) ([]models.Absence, error)
}

type pendingInputReader interface {
	ListPending(ctx context.Context) ([]models.OptimizerInput, error)
}

// SQLDataProvider reads the catalog, commitments and pending inputs from Postgres.
type SQLDataProvider struct {
	catalog     catalogReader
	commitments commitmentReader
	inputs      pendingInputReader
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewSQLDataProvider constructs the provider.
func NewSQLDataProvider(catalog catalogReader, commitments commitmentReader, inputs pendingInputReader, metrics *MetricsService, logger *zap.Logger) *SQLDataProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLDataProvider{catalog: catalog, commitments: commitments, inputs: inputs, metrics: metrics, logger: logger}
}

// Load reads every table and joins them into a dataset.
func (p *SQLDataProvider) Load(ctx context.Context, params LoadParams) (*optimizer.Dataset, error) {
	tables, err := p.ReadTables(ctx, params)
	if err != nil {
		return nil, err
	}
	ds := tables.Dataset(params)
	p.logger.Info("sql dataset loaded",
		zap.Int("inputs", len(ds.Inputs)),
		zap.Int("courses", len(ds.Courses)),
		zap.Int("rooms", len(ds.Rooms)),
		zap.Int("instructors", len(ds.Instructors)),
		zap.Int("locations", len(ds.Locations)),
		zap.Int("scheduled_classes", len(ds.ScheduledClasses)),
	)
	return &ds, nil
}

// ReadTables runs the individual queries. Commitments are read for the run window only.
func (p *SQLDataProvider) ReadTables(ctx context.Context, params LoadParams) (*optimizer.Tables, error) {
	var (
		t   optimizer.Tables
		err error
	)
	start, end := params.WindowStart, params.WindowEnd

	steps := []struct {
		label string
		run   func() error
	}{
		{"courses", func() error { t.Courses, err = p.catalog.ListCourses(ctx); return err }},
		{"qualifications", func() error { t.Qualifications, err = p.catalog.ListQualifications(ctx, params.InstructorRole); return err }},
		{"course_resources", func() error { t.CourseResources, err = p.catalog.ListCourseResources(ctx); return err }},
		{"rooms", func() error { t.Rooms, err = p.catalog.ListRooms(ctx); return err }},
		{"room_resources", func() error { t.RoomResources, err = p.catalog.ListRoomResources(ctx); return err }},
		{"instructors", func() error { t.Instructors, err = p.catalog.ListInstructors(ctx, params.InstructorRole); return err }},
		{"locations", func() error { t.Locations, err = p.catalog.ListLocations(ctx); return err }},
		{"last_taught", func() error { t.LastTaught, err = p.catalog.ListLastTaught(ctx, start); return err }},
		{"pending_inputs", func() error { t.Inputs, err = p.inputs.ListPending(ctx); return err }},
		{"scheduled_classes", func() error { t.ScheduledClasses, err = p.commitments.ListScheduledClasses(ctx, start, end); return err }},
		{"instructor_assignments", func() error {
			t.InstructorAssignments, err = p.commitments.ListInstructorAssignments(ctx, start, end)
			return err
		}},
		{"absences", func() error { t.Absences, err = p.commitments.ListAbsences(ctx, start, end); return err }},
	}

	for _, step := range steps {
		began := time.Now()
		if err := step.run(); err != nil {
			return nil, fmt.Errorf("load %s: %w", step.label, err)
		}
		p.metrics.ObserveDBQuery("optimizer_"+step.label, time.Since(began))
	}
	return &t, nil
}
