// Package csvio loads an optimizer dataset from a directory of CSV files.
package csvio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"

	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/internal/optimizer"
)

// File names read from a data directory. Files marked optional may be absent.
const (
	CoursesFile         = "courses.csv"
	QualificationsFile  = "qualifications.csv"
	CourseResourcesFile = "course_resources.csv" // optional
	RoomsFile           = "rooms.csv"
	RoomResourcesFile   = "room_resources.csv" // optional
	InstructorsFile     = "instructors.csv"
	LocationsFile       = "locations.csv"
	InputsFile          = "inputs.csv"
	ClassesFile         = "classes.csv"     // optional
	AssignmentsFile     = "assignments.csv" // optional
	AbsencesFile        = "absences.csv"    // optional
	HistoryFile         = "history.csv"     // optional
)

const dateLayout = "2006-01-02"

// Provider reads every table from CSV files in one directory.
type Provider struct {
	dir    string
	comma  rune
	logger *zap.Logger
}

// NewProvider builds a provider for dir. A zero comma means ','.
func NewProvider(dir string, comma rune, logger *zap.Logger) *Provider {
	if comma == 0 {
		comma = ','
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{dir: dir, comma: comma, logger: logger}
}

// Load reads the directory and joins it into the dataset for one run.
func (p *Provider) Load(ctx context.Context, params optimizer.LoadParams) (*optimizer.Dataset, error) {
	tables, err := p.ReadTables(ctx)
	if err != nil {
		return nil, err
	}
	ds := tables.Dataset(params)
	p.logger.Info("csv dataset loaded",
		zap.String("dir", p.dir),
		zap.Int("inputs", len(ds.Inputs)),
		zap.Int("courses", len(ds.Courses)),
		zap.Int("instructors", len(ds.Instructors)),
		zap.Int("rooms", len(ds.Rooms)),
		zap.Int("locations", len(ds.Locations)),
	)
	return &ds, nil
}

// ReadTables parses every file without joining them.
func (p *Provider) ReadTables(ctx context.Context) (*optimizer.Tables, error) {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.Comma = p.comma
		r.TrimLeadingSpace = true
		return r
	})

	t := &optimizer.Tables{}
	steps := []func() error{
		func() error { return p.readCourses(t) },
		func() error { return p.readQualifications(t) },
		func() error { return p.readRooms(t) },
		func() error { return p.readInstructors(t) },
		func() error { return p.readLocations(t) },
		func() error { return p.readInputs(t) },
		func() error { return p.readCommitments(t) },
		func() error { return p.readHistory(t) },
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func readRows[T any](dir, name string, required bool) ([]*T, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var rows []*T
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return rows, nil
}

func (p *Provider) readCourses(t *optimizer.Tables) error {
	rows, err := readRows[courseRow](p.dir, CoursesFile, true)
	if err != nil {
		return err
	}
	for _, r := range rows {
		t.Courses = append(t.Courses, models.Course{ID: r.ID, Code: r.Code, Title: r.Title, Hours: r.Hours, MaxSize: r.MaxSize})
	}

	required, err := readRows[courseResourceRow](p.dir, CourseResourcesFile, false)
	if err != nil {
		return err
	}
	for _, r := range required {
		t.CourseResources = append(t.CourseResources, models.ResourceQuantity{OwnerID: r.CourseID, ResourceID: r.ResourceID, Quantity: r.Amount})
	}
	return nil
}

func (p *Provider) readQualifications(t *optimizer.Tables) error {
	rows, err := readRows[qualificationRow](p.dir, QualificationsFile, true)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.Deleted {
			continue
		}
		t.Qualifications = append(t.Qualifications, models.CourseQualification{CourseID: r.CourseID, InstructorID: r.InstructorID})
	}
	return nil
}

func (p *Provider) readRooms(t *optimizer.Tables) error {
	rows, err := readRows[roomRow](p.dir, RoomsFile, true)
	if err != nil {
		return err
	}
	for _, r := range rows {
		active, err := parseFlag(r.Active, true)
		if err != nil {
			return fmt.Errorf("%s: room %d: %w", RoomsFile, r.ID, err)
		}
		t.Rooms = append(t.Rooms, models.Room{ID: r.ID, Station: r.Station, Number: r.Number, Active: active})
	}

	inventory, err := readRows[roomResourceRow](p.dir, RoomResourcesFile, false)
	if err != nil {
		return err
	}
	for _, r := range inventory {
		t.RoomResources = append(t.RoomResources, models.ResourceQuantity{OwnerID: r.RoomID, ResourceID: r.ResourceID, Quantity: r.Amount})
	}
	return nil
}

func (p *Provider) readInstructors(t *optimizer.Tables) error {
	rows, err := readRows[instructorRow](p.dir, InstructorsFile, true)
	if err != nil {
		return err
	}
	for _, r := range rows {
		t.Instructors = append(t.Instructors, models.Instructor{
			ID: r.Username, FirstName: r.FirstName, LastName: r.LastName, PointID: r.PointID, RoleID: r.RoleID,
		})
	}
	return nil
}

func (p *Provider) readLocations(t *optimizer.Tables) error {
	rows, err := readRows[locationRow](p.dir, LocationsFile, true)
	if err != nil {
		return err
	}
	for _, r := range rows {
		loc := models.Location{ID: r.ID, Code: r.Code, Name: r.Name, Latitude: r.Latitude, Longitude: r.Longitude}
		if raw := strings.TrimSpace(r.ReleaseRate); raw != "" {
			rate, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%s: location %s: release rate %q: %w", LocationsFile, r.Code, raw, err)
			}
			loc.ReleaseRate = &rate
		}
		t.Locations = append(t.Locations, loc)
	}
	return nil
}

func (p *Provider) readInputs(t *optimizer.Tables) error {
	rows, err := readRows[inputRow](p.dir, InputsFile, true)
	if err != nil {
		return err
	}
	for _, r := range rows {
		start, err := models.ParseTimeOfDay(r.StartTime)
		if err != nil {
			return fmt.Errorf("%s: input %d: %w", InputsFile, r.ID, err)
		}
		selected, err := parseFlag(r.Selected, true)
		if err != nil {
			return fmt.Errorf("%s: input %d: %w", InputsFile, r.ID, err)
		}
		t.Inputs = append(t.Inputs, models.OptimizerInput{
			ID:            r.ID,
			CourseCode:    r.CourseCode,
			LocationCode:  r.LocationCode,
			NumTimesToRun: r.NumTimesToRun,
			StartTime:     start,
			Selected:      selected,
			Succeeded:     r.Succeeded,
		})
	}
	return nil
}

func (p *Provider) readCommitments(t *optimizer.Tables) error {
	classes, err := readRows[classRow](p.dir, ClassesFile, false)
	if err != nil {
		return err
	}
	for _, r := range classes {
		start, end, err := parseRange(r.StartDate, r.EndDate)
		if err != nil {
			return fmt.Errorf("%s: class %d: %w", ClassesFile, r.ID, err)
		}
		t.ScheduledClasses = append(t.ScheduledClasses, models.ScheduledClass{
			ID: r.ID, CourseID: r.CourseID, LocationID: r.LocationID, RoomID: r.RoomID,
			StartDate: start, EndDate: end, Cancelled: r.Cancelled,
		})
	}

	assignments, err := readRows[assignmentRow](p.dir, AssignmentsFile, false)
	if err != nil {
		return err
	}
	for _, r := range assignments {
		start, end, err := parseRange(r.StartDate, r.EndDate)
		if err != nil {
			return fmt.Errorf("%s: assignment %d: %w", AssignmentsFile, r.ID, err)
		}
		t.InstructorAssignments = append(t.InstructorAssignments, models.InstructorAssignment{
			ID: r.ID, InstructorID: r.UserID, ClassID: r.ClassID, StartDate: start, EndDate: end, Cancelled: r.Cancelled,
		})
	}

	absences, err := readRows[absenceRow](p.dir, AbsencesFile, false)
	if err != nil {
		return err
	}
	for _, r := range absences {
		start, end, err := parseRange(r.StartDate, r.EndDate)
		if err != nil {
			return fmt.Errorf("%s: absence %d: %w", AbsencesFile, r.ID, err)
		}
		t.Absences = append(t.Absences, models.Absence{
			ID: r.ID, InstructorID: r.UserID, StartDate: start, EndDate: end, Status: r.Status, Cancelled: r.Cancelled,
		})
	}
	return nil
}

func (p *Provider) readHistory(t *optimizer.Tables) error {
	rows, err := readRows[historyRow](p.dir, HistoryFile, false)
	if err != nil {
		return err
	}
	for _, r := range rows {
		taught, err := time.Parse(dateLayout, strings.TrimSpace(r.LastTaught))
		if err != nil {
			return fmt.Errorf("%s: course %d: %w", HistoryFile, r.CourseID, err)
		}
		t.LastTaught = append(t.LastTaught, models.TeachingHistory{CourseID: r.CourseID, InstructorID: r.UserID, LastTaught: taught})
	}
	return nil
}

func parseRange(rawStart, rawEnd string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, strings.TrimSpace(rawStart))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start date: %w", err)
	}
	end, err := time.Parse(dateLayout, strings.TrimSpace(rawEnd))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end date: %w", err)
	}
	return start, end, nil
}

// parseFlag reads yes/no style booleans; empty means fallback.
func parseFlag(raw string, fallback bool) (bool, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return fallback, nil
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	default:
		return strconv.ParseBool(raw)
	}
}
