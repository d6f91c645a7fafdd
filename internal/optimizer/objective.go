package optimizer

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/noah-isme/course-optimizer/internal/models"
)

const scoreEpsilon = 1e-9

// objective scores outcomes for one priority. Outcomes are first compared by assignment
// count; the objective only decides between outcomes with equal counts.
type objective interface {
	// order returns the qualified instructors of r in the order they should be tried.
	order(p *Problem, r *request, taught *taughtLog) []int
	// contribution is the score a single placement adds to an outcome.
	contribution(p *Problem, r *request, pl placement, taught *taughtLog) float64
	// better reports whether score a beats score b.
	better(a, b float64) bool
	// exhausted reports that no completion of a partial score can beat best.
	exhausted(partial, best float64) bool
	// bestPossible is the most favourable score a full-count outcome could reach,
	// and false when no such bound is known.
	bestPossible(p *Problem, active []*request, bounds []int) (float64, bool)
}

func objectiveFor(priority models.OptimizerPriority) (objective, error) {
	switch priority {
	case models.PriorityFirstAvailable, models.PriorityDefault, "":
		return countObjective{}, nil
	case models.PriorityMaximizeSpecializedInstructors:
		return specializedObjective{}, nil
	case models.PriorityMinimizeForeignInstructorCount:
		return foreignObjective{}, nil
	case models.PriorityMinimizeInstructorTravelDistance:
		return travelObjective{}, nil
	case models.PriorityMaximizeInstructorLongestToTeach:
		return longestToTeachObjective{}, nil
	default:
		return nil, fmt.Errorf("unsupported priority %q", priority)
	}
}

// score replays placements in commit order and sums their contributions.
func score(obj objective, p *Problem, placements []placement) float64 {
	var (
		total  float64
		taught *taughtLog
	)
	for _, pl := range placements {
		r := p.requests[pl.req]
		total += obj.contribution(p, r, pl, taught)
		taught = taught.with(r.course, pl.instructor, p.window.Date(pl.start))
	}
	return total
}

// taughtLog records last-taught dates hypothesised along one search path. Nodes are never
// modified, so sibling branches extending the same parent see independent histories.
type taughtLog struct {
	course     int
	instructor int
	date       time.Time
	prev       *taughtLog
}

func (t *taughtLog) with(course, instructor int, date time.Time) *taughtLog {
	return &taughtLog{course: course, instructor: instructor, date: date, prev: t}
}

func (p *Problem) lastTaught(t *taughtLog, course, instructor int) time.Time {
	for n := t; n != nil; n = n.prev {
		if n.course == course && n.instructor == instructor {
			return n.date
		}
	}
	return p.courses[course].QualifiedInstructors[p.instructors[instructor].ID]
}

func distance(a, b *models.Location) float64 {
	return math.Hypot(a.Latitude-b.Latitude, a.Longitude-b.Longitude)
}

func (p *Problem) travelDistance(instructor, loc int) float64 {
	home, ok := p.homeOf(instructor)
	if !ok {
		return 0
	}
	return distance(home, p.locations[loc])
}

func sortedBy(instructors []int, key func(int) float64) []int {
	out := slices.Clone(instructors)
	slices.SortStableFunc(out, func(a, b int) int {
		ka, kb := key(a), key(b)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		default:
			return 0
		}
	})
	return out
}

func lower(a, b float64) bool  { return a < b-scoreEpsilon }
func higher(a, b float64) bool { return a > b+scoreEpsilon }

// countObjective scores an outcome by the number of assignments alone.
type countObjective struct{}

func (countObjective) order(_ *Problem, r *request, _ *taughtLog) []int { return r.instructors }

func (countObjective) contribution(*Problem, *request, placement, *taughtLog) float64 { return 1 }

func (countObjective) better(a, b float64) bool { return higher(a, b) }

func (countObjective) exhausted(float64, float64) bool { return true }

func (countObjective) bestPossible(_ *Problem, _ []*request, bounds []int) (float64, bool) {
	return float64(lo.Sum(bounds)), true
}

// specializedObjective prefers instructors qualified for few courses.
type specializedObjective struct{}

func (specializedObjective) order(p *Problem, r *request, _ *taughtLog) []int {
	return sortedBy(r.instructors, func(i int) float64 { return float64(p.instructors[i].QualificationCount) })
}

func (specializedObjective) contribution(p *Problem, _ *request, pl placement, _ *taughtLog) float64 {
	return float64(p.instructors[pl.instructor].QualificationCount)
}

func (specializedObjective) better(a, b float64) bool { return lower(a, b) }

func (specializedObjective) exhausted(partial, best float64) bool { return !lower(partial, best) }

func (specializedObjective) bestPossible(p *Problem, active []*request, bounds []int) (float64, bool) {
	var total float64
	for i, r := range active {
		if len(r.instructors) == 0 {
			continue
		}
		fewest := lo.Min(lo.Map(r.instructors, func(instr int, _ int) int { return p.instructors[instr].QualificationCount }))
		total += float64(bounds[i] * fewest)
	}
	return total, true
}

// foreignObjective prefers instructors based at the request's location.
type foreignObjective struct{}

func (foreignObjective) order(p *Problem, r *request, _ *taughtLog) []int {
	return sortedBy(r.instructors, func(i int) float64 {
		if p.isLocal(i, r.location) {
			return 0
		}
		return 1
	})
}

func (foreignObjective) contribution(_ *Problem, _ *request, pl placement, _ *taughtLog) float64 {
	if pl.local {
		return 0
	}
	return 1
}

func (foreignObjective) better(a, b float64) bool { return lower(a, b) }

func (foreignObjective) exhausted(partial, best float64) bool { return !lower(partial, best) }

func (foreignObjective) bestPossible(p *Problem, active []*request, bounds []int) (float64, bool) {
	var total float64
	for i, r := range active {
		hasLocal := lo.SomeBy(r.instructors, func(instr int) bool { return p.isLocal(instr, r.location) })
		if !hasLocal {
			total += float64(bounds[i])
		}
	}
	return total, true
}

// travelObjective prefers instructors whose home location is closest.
type travelObjective struct{}

func (travelObjective) order(p *Problem, r *request, _ *taughtLog) []int {
	return sortedBy(r.instructors, func(i int) float64 { return p.travelDistance(i, r.location) })
}

func (travelObjective) contribution(p *Problem, r *request, pl placement, _ *taughtLog) float64 {
	return p.travelDistance(pl.instructor, r.location)
}

func (travelObjective) better(a, b float64) bool { return lower(a, b) }

func (travelObjective) exhausted(partial, best float64) bool { return !lower(partial, best) }

func (travelObjective) bestPossible(p *Problem, active []*request, bounds []int) (float64, bool) {
	var total float64
	for i, r := range active {
		if len(r.instructors) == 0 {
			continue
		}
		nearest := lo.Min(lo.Map(r.instructors, func(instr int, _ int) float64 { return p.travelDistance(instr, r.location) }))
		total += float64(bounds[i]) * nearest
	}
	return total, true
}

// longestToTeachObjective prefers instructors who have not taught the course for the longest time.
type longestToTeachObjective struct{}

func (longestToTeachObjective) order(p *Problem, r *request, taught *taughtLog) []int {
	return sortedBy(r.instructors, func(i int) float64 {
		return float64(p.lastTaught(taught, r.course, i).Unix())
	})
}

func (longestToTeachObjective) contribution(p *Problem, r *request, pl placement, taught *taughtLog) float64 {
	return float64(daysBetween(p.lastTaught(taught, r.course, pl.instructor), p.window.Date(pl.start)))
}

func (longestToTeachObjective) better(a, b float64) bool { return higher(a, b) }

func (longestToTeachObjective) exhausted(float64, float64) bool { return false }

func (longestToTeachObjective) bestPossible(*Problem, []*request, []int) (float64, bool) {
	return math.Inf(1), false
}

// daysBetween counts whole days from a to b. It works on Unix seconds because
// time.Time.Sub saturates for spans longer than about 290 years.
func daysBetween(a, b time.Time) int64 {
	return (Day(b).Unix() - Day(a).Unix()) / 86400
}
