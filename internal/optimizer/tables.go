package optimizer

import (
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/noah-isme/course-optimizer/internal/models"
)

// LoadParams describe the slice of data a provider loads for one run.
type LoadParams struct {
	WindowStart    time.Time
	WindowEnd      time.Time
	Priority       models.OptimizerPriority
	InstructorRole int
}

// Tables are the raw rows a data provider reads, before they are joined into a Dataset.
type Tables struct {
	Courses               []models.Course
	Qualifications        []models.CourseQualification
	CourseResources       []models.ResourceQuantity
	Rooms                 []models.Room
	RoomResources         []models.ResourceQuantity
	Instructors           []models.Instructor
	Locations             []models.Location
	LastTaught            []models.TeachingHistory
	Inputs                []models.OptimizerInput
	ScheduledClasses      []models.ScheduledClass
	InstructorAssignments []models.InstructorAssignment
	Absences              []models.Absence
}

// Dataset joins the tables for a run. Instructors outside the role are dropped along
// with their qualifications, only selected and unfinished inputs are kept (longest
// course first), and commitments are narrowed to the window.
func (t Tables) Dataset(params LoadParams) Dataset {
	start, end := Day(params.WindowStart), Day(params.WindowEnd)
	ds := Dataset{WindowStart: start, WindowEnd: end, Priority: params.Priority}

	for _, in := range t.Instructors {
		if params.InstructorRole != 0 && in.RoleID != params.InstructorRole {
			continue
		}
		cp := in
		ds.Instructors = append(ds.Instructors, &cp)
	}
	instructors := lo.KeyBy(ds.Instructors, func(in *models.Instructor) string { return in.ID })

	taught := make(map[int64]map[string]time.Time)
	for _, h := range t.LastTaught {
		if taught[h.CourseID] == nil {
			taught[h.CourseID] = make(map[string]time.Time)
		}
		if h.LastTaught.After(taught[h.CourseID][h.InstructorID]) {
			taught[h.CourseID][h.InstructorID] = h.LastTaught
		}
	}

	for _, c := range t.Courses {
		cp := c
		cp.QualifiedInstructors = make(map[string]time.Time)
		cp.RequiredResources = make(map[int64]int)
		ds.Courses = append(ds.Courses, &cp)
	}
	courses := lo.KeyBy(ds.Courses, func(c *models.Course) int64 { return c.ID })
	for _, q := range t.Qualifications {
		course, ok := courses[q.CourseID]
		if _, known := instructors[q.InstructorID]; !ok || !known {
			continue
		}
		course.QualifiedInstructors[q.InstructorID] = taught[q.CourseID][q.InstructorID]
	}
	for _, req := range t.CourseResources {
		if course, ok := courses[req.OwnerID]; ok {
			course.RequiredResources[req.ResourceID] = req.Quantity
		}
	}

	for _, r := range t.Rooms {
		cp := r
		cp.Resources = make(map[int64]int)
		ds.Rooms = append(ds.Rooms, &cp)
	}
	rooms := lo.KeyBy(ds.Rooms, func(r *models.Room) int64 { return r.ID })
	for _, inv := range t.RoomResources {
		if room, ok := rooms[inv.OwnerID]; ok {
			room.Resources[inv.ResourceID] = inv.Quantity
		}
	}

	for _, l := range t.Locations {
		cp := l
		cp.LocalRooms = lo.FilterMap(ds.Rooms, func(r *models.Room, _ int) (int64, bool) { return r.ID, r.Station == l.Code })
		cp.LocalInstructors = lo.FilterMap(ds.Instructors, func(in *models.Instructor, _ int) (string, bool) { return in.ID, in.PointID == l.ID })
		ds.Locations = append(ds.Locations, &cp)
	}

	courseByCode := lo.KeyBy(ds.Courses, func(c *models.Course) string { return c.Code })
	for _, in := range t.Inputs {
		if !in.Selected || in.Succeeded {
			continue
		}
		cp := in
		if course, ok := courseByCode[cp.CourseCode]; ok && cp.Hours == 0 {
			cp.Hours = course.Hours
		}
		ds.Inputs = append(ds.Inputs, &cp)
	}
	sort.SliceStable(ds.Inputs, func(i, j int) bool { return ds.Inputs[i].Hours > ds.Inputs[j].Hours })

	overlaps := func(from, through time.Time) bool {
		return !Day(from).After(end) && !Day(through).Before(start)
	}
	classes := make(map[int64]models.ScheduledClass)
	for _, c := range t.ScheduledClasses {
		if c.Cancelled || !overlaps(c.StartDate, c.EndDate) {
			continue
		}
		ds.ScheduledClasses = append(ds.ScheduledClasses, c)
		classes[c.ID] = c
	}
	for _, a := range t.InstructorAssignments {
		instructor, known := instructors[a.InstructorID]
		class, scheduled := classes[a.ClassID]
		if a.Cancelled || !known || !scheduled || !overlaps(a.StartDate, a.EndDate) {
			continue
		}
		if _, ok := courses[class.CourseID]; !ok {
			continue
		}
		a.LocationID = class.LocationID
		a.LocalAssignment = instructor.PointID == class.LocationID
		ds.InstructorAssignments = append(ds.InstructorAssignments, a)
	}
	for _, b := range t.Absences {
		if b.Cancelled || b.Status != models.ApprovedBookingStatus || !overlaps(b.StartDate, b.EndDate) {
			continue
		}
		ds.Absences = append(ds.Absences, b)
	}
	return ds
}

// Issues lists referential problems that would make requests fail or the run abort:
// requests naming unknown courses or locations, locations used by requests without a
// release rate, and qualifications or rooms pointing at unknown rows.
func (t Tables) Issues() []string {
	var issues []string
	courses := lo.KeyBy(t.Courses, func(c models.Course) string { return c.Code })
	courseIDs := lo.KeyBy(t.Courses, func(c models.Course) int64 { return c.ID })
	locations := lo.KeyBy(t.Locations, func(l models.Location) string { return l.Code })
	instructors := lo.KeyBy(t.Instructors, func(in models.Instructor) string { return in.ID })

	missingRate := make(map[string]bool)
	for _, in := range t.Inputs {
		if !in.Selected || in.Succeeded {
			continue
		}
		if _, ok := courses[in.CourseCode]; !ok {
			issues = append(issues, fmt.Sprintf("input %d: course %s is not in the catalog", in.ID, in.CourseCode))
		}
		loc, ok := locations[in.LocationCode]
		if !ok {
			issues = append(issues, fmt.Sprintf("input %d: location %s is unknown", in.ID, in.LocationCode))
			continue
		}
		if loc.ReleaseRate == nil && !missingRate[loc.Code] {
			missingRate[loc.Code] = true
			issues = append(issues, fmt.Sprintf("location %s has no release rate", loc.Code))
		}
	}
	for _, q := range t.Qualifications {
		if _, ok := courseIDs[q.CourseID]; !ok {
			issues = append(issues, fmt.Sprintf("qualification of %s references unknown course %d", q.InstructorID, q.CourseID))
		}
		if _, ok := instructors[q.InstructorID]; !ok {
			issues = append(issues, fmt.Sprintf("qualification for course %d references unknown instructor %s", q.CourseID, q.InstructorID))
		}
	}
	for _, r := range t.Rooms {
		if _, ok := locations[r.Station]; !ok {
			issues = append(issues, fmt.Sprintf("room %d is housed at unknown location %s", r.ID, r.Station))
		}
	}
	return issues
}
