package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-optimizer/internal/models"
)

// monday is the first day of every test window.
var monday = time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)

func day(offset int) time.Time { return monday.AddDate(0, 0, offset) }

func rate(n int) *int { return &n }

type datasetBuilder struct {
	ds Dataset
}

func newDataset(start, end time.Time, priority models.OptimizerPriority) *datasetBuilder {
	return &datasetBuilder{ds: Dataset{WindowStart: start, WindowEnd: end, Priority: priority}}
}

func (b *datasetBuilder) location(id int64, code string, releaseRate *int, lat, lon float64) *datasetBuilder {
	b.ds.Locations = append(b.ds.Locations, &models.Location{ID: id, Code: code, ReleaseRate: releaseRate, Latitude: lat, Longitude: lon})
	return b
}

func (b *datasetBuilder) room(id int64, station string, resources map[int64]int) *datasetBuilder {
	b.ds.Rooms = append(b.ds.Rooms, &models.Room{ID: id, Station: station, Active: true, Resources: resources})
	return b
}

func (b *datasetBuilder) instructor(id string, home int64) *datasetBuilder {
	b.ds.Instructors = append(b.ds.Instructors, &models.Instructor{ID: id, PointID: home, RoleID: 3})
	return b
}

func (b *datasetBuilder) course(id int64, code string, hours, size int, qualified map[string]time.Time, required map[int64]int) *datasetBuilder {
	b.ds.Courses = append(b.ds.Courses, &models.Course{
		ID: id, Code: code, Hours: hours, MaxSize: size,
		QualifiedInstructors: qualified, RequiredResources: required,
	})
	return b
}

func (b *datasetBuilder) input(id int64, course, location string, times int) *datasetBuilder {
	b.ds.Inputs = append(b.ds.Inputs, &models.OptimizerInput{
		ID: id, CourseCode: course, LocationCode: location, NumTimesToRun: times, Selected: true,
		StartTime: models.TimeOfDay(8 * time.Hour),
	})
	return b
}

func (b *datasetBuilder) build() Dataset { return b.ds }

func mustProblem(t *testing.T, ds Dataset) *Problem {
	t.Helper()
	p, err := NewProblem(ds)
	require.NoError(t, err)
	return p
}

func never() time.Time { return time.Time{} }
