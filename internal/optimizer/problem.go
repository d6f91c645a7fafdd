package optimizer

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/noah-isme/course-optimizer/internal/models"
)

// ErrReleaseRateMissing is returned when a request targets a location without a release rate.
var ErrReleaseRateMissing = errors.New("location has no release rate configured")

// Dataset is what a data provider hands to the engine for a single run.
type Dataset struct {
	WindowStart           time.Time
	WindowEnd             time.Time
	Priority              models.OptimizerPriority
	Inputs                []*models.OptimizerInput
	Courses               []*models.Course
	Rooms                 []*models.Room
	Instructors           []*models.Instructor
	Locations             []*models.Location
	ScheduledClasses      []models.ScheduledClass
	InstructorAssignments []models.InstructorAssignment
	Absences              []models.Absence
}

// request is an input resolved against the catalog.
type request struct {
	pos         int
	input       *models.OptimizerInput
	course      int
	location    int
	length      int
	size        int
	instructors []int
	rooms       []int
}

// Problem is an indexed, immutable view of a Dataset plus the seeded initial state.
type Problem struct {
	window   *Window
	priority models.OptimizerPriority

	courses     []*models.Course
	rooms       []*models.Room
	instructors []*models.Instructor
	locations   []*models.Location

	courseIndex     map[int64]int
	roomIndex       map[int64]int
	instructorIndex map[string]int
	locationIndex   map[int64]int

	inputs   []*models.OptimizerInput
	requests []*request
	// unresolved holds inputs that reference unknown catalog entries, keyed by input position.
	unresolved map[int]string

	initial *State
}

// NewProblem indexes the dataset and seeds availability from existing commitments.
// Inputs are copied; the dataset is never modified.
func NewProblem(ds Dataset) (*Problem, error) {
	window, err := NewWindow(ds.WindowStart, ds.WindowEnd)
	if err != nil {
		return nil, err
	}
	p := &Problem{
		window:      window,
		priority:    ds.Priority,
		courses:     ds.Courses,
		rooms:       ds.Rooms,
		instructors: lo.Map(ds.Instructors, func(in *models.Instructor, _ int) *models.Instructor {
			cp := *in
			return &cp
		}),
		locations:   ds.Locations,
		unresolved:  make(map[int]string),
	}
	p.courseIndex = indexBy(ds.Courses, func(c *models.Course) int64 { return c.ID })
	p.roomIndex = indexBy(ds.Rooms, func(r *models.Room) int64 { return r.ID })
	p.instructorIndex = indexBy(p.instructors, func(i *models.Instructor) string { return i.ID })
	p.locationIndex = indexBy(ds.Locations, func(l *models.Location) int64 { return l.ID })

	p.countQualifications()

	courseByCode := lo.KeyBy(ds.Courses, func(c *models.Course) string { return c.Code })
	locationByCode := lo.KeyBy(ds.Locations, func(l *models.Location) string { return l.Code })
	for pos, in := range ds.Inputs {
		cp := *in
		cp.Prepare()
		p.inputs = append(p.inputs, &cp)

		course, ok := courseByCode[cp.CourseCode]
		if !ok {
			p.unresolved[pos] = fmt.Sprintf("Course %s is not in the catalog.", cp.CourseCode)
			continue
		}
		location, ok := locationByCode[cp.LocationCode]
		if !ok {
			p.unresolved[pos] = fmt.Sprintf("Location %s is unknown.", cp.LocationCode)
			continue
		}
		if cp.NumTimesToRun < 1 {
			p.unresolved[pos] = "Number of occurrences must be at least one."
			continue
		}
		cp.CourseID, cp.LocationID = course.ID, location.ID
		if cp.Hours == 0 {
			cp.Hours = course.Hours
			cp.LengthDays = course.LengthDays()
		}
		p.requests = append(p.requests, p.resolve(pos, &cp, course, location))
	}

	p.initial = newState(window.Len(), len(p.instructors), len(p.rooms), len(p.locations))
	p.seed(ds)
	return p, nil
}

func indexBy[T any, K comparable](items []T, key func(T) K) map[K]int {
	index := make(map[K]int, len(items))
	for i, item := range items {
		index[key(item)] = i
	}
	return index
}

// countQualifications derives each instructor's qualification count from the catalog.
func (p *Problem) countQualifications() {
	counts := make(map[string]int, len(p.instructors))
	for _, c := range p.courses {
		for id := range c.QualifiedInstructors {
			counts[id]++
		}
	}
	for _, in := range p.instructors {
		in.QualificationCount = counts[in.ID]
	}
}

func (p *Problem) resolve(pos int, in *models.OptimizerInput, course *models.Course, location *models.Location) *request {
	r := &request{
		pos:      pos,
		input:    in,
		course:   p.courseIndex[course.ID],
		location: p.locationIndex[location.ID],
		length:   in.LengthDays,
		size:     course.MaxSize,
	}

	ids := lo.Filter(lo.Keys(course.QualifiedInstructors), func(id string, _ int) bool {
		_, known := p.instructorIndex[id]
		return known
	})
	sort.Strings(ids)
	r.instructors = lo.Map(ids, func(id string, _ int) int { return p.instructorIndex[id] })

	local := location.LocalRooms
	if local == nil {
		for _, room := range p.rooms {
			if room.Station == location.Code {
				local = append(local, room.ID)
			}
		}
	}
	for _, id := range local {
		idx, ok := p.roomIndex[id]
		if !ok {
			continue
		}
		if room := p.rooms[idx]; room.Active && room.Satisfies(course) {
			r.rooms = append(r.rooms, idx)
		}
	}
	return r
}

// seed applies existing classes, assignments and approved absences to the initial state.
func (p *Problem) seed(ds Dataset) {
	st := p.initial
	for _, class := range ds.ScheduledClasses {
		if class.Cancelled {
			continue
		}
		first, last, ok := p.window.clamp(class.StartDate, class.EndDate)
		if !ok {
			continue
		}
		room, hasRoom := p.roomIndex[class.RoomID]
		loc, hasLoc := p.locationIndex[class.LocationID]
		course, hasCourse := p.courseIndex[class.CourseID]
		for d := first; d <= last; d++ {
			if hasRoom {
				st.blockRoom(room, d)
			}
			if hasLoc && hasCourse {
				st.release(loc, d, p.courses[course].MaxSize)
				st.offer(loc, d, course)
			}
		}
	}

	for _, a := range ds.InstructorAssignments {
		instr, known := p.instructorIndex[a.InstructorID]
		if a.Cancelled || !known {
			continue
		}
		first, last, ok := p.window.clamp(a.StartDate, a.EndDate)
		if !ok {
			continue
		}
		for d := first; d <= last; d++ {
			st.blockInstructor(instr, d)
		}
		if !a.LocalAssignment {
			p.blockTravel(st, instr, first, last)
		}
	}

	for _, absence := range ds.Absences {
		instr, known := p.instructorIndex[absence.InstructorID]
		if absence.Cancelled || absence.Status != models.ApprovedBookingStatus || !known {
			continue
		}
		first, last, ok := p.window.clamp(absence.StartDate, absence.EndDate)
		if !ok {
			continue
		}
		for d := first; d <= last; d++ {
			st.blockInstructor(instr, d)
		}
	}
}

// InitialState returns a copy of the seeded state.
func (p *Problem) InitialState() *State { return p.initial.Clone() }

// Window returns the business-day window of the run.
func (p *Problem) Window() *Window { return p.window }

// Priority is the objective selected for the run.
func (p *Problem) Priority() models.OptimizerPriority { return p.priority }

func (p *Problem) isLocal(instr, loc int) bool {
	return p.instructors[instr].PointID == p.locations[loc].ID
}

func (p *Problem) homeOf(instr int) (*models.Location, bool) {
	idx, ok := p.locationIndex[p.instructors[instr].PointID]
	if !ok {
		return nil, false
	}
	return p.locations[idx], true
}
