package optimizer

import (
	"fmt"
	"slices"
)

// Failure reasons shared by the prefilter and both schedulers.
const (
	ReasonNoInstructor = "No instructor is available."
	ReasonNoRoom       = "No local room is available."
)

// PartialReason describes a request that received fewer occurrences than it asked for.
func PartialReason(scheduled, requested int) string {
	return fmt.Sprintf("Only %d of %d occurrences could be scheduled.", scheduled, requested)
}

// PreFilterResult is the outcome of screening every request against the initial state.
type PreFilterResult struct {
	// Active lists request indices that may be scheduled, ordered by Bounds descending.
	Active []int
	// Bounds holds, per request index, the most non-overlapping occurrences that fit.
	Bounds []int
	// Reasons holds the failure reason of each request that can never be scheduled.
	Reasons map[int]string
	// Levels is the total number of occurrence slots the search has to fill.
	Levels int
}

// Infeasible reports whether request i can never be scheduled.
func (r *PreFilterResult) Infeasible(i int) bool {
	_, ok := r.Reasons[i]
	return ok
}

// PreFilter finds requests that can never be scheduled and bounds the rest, using state as
// seeded by existing commitments. It does not modify state.
func (p *Problem) PreFilter(state *State) (*PreFilterResult, error) {
	res := &PreFilterResult{
		Bounds:  make([]int, len(p.requests)),
		Reasons: make(map[int]string),
	}
	for i, r := range p.requests {
		starts, rejection, err := p.validStarts(r.location, r.length, r.size, r.course, state)
		if err != nil {
			return nil, err
		}
		if len(starts) == 0 {
			res.Reasons[i] = rejection.Reason()
			continue
		}

		var (
			feasible      []int
			sawInstructor bool
		)
		for _, s := range starts {
			e := s + r.length - 1
			if firstFreeInstructor(r.instructors, s, e, state) < 0 {
				continue
			}
			sawInstructor = true
			if firstFreeRoom(r.rooms, s, e, state) < 0 {
				continue
			}
			feasible = append(feasible, s)
		}
		if len(feasible) == 0 {
			if sawInstructor {
				res.Reasons[i] = ReasonNoRoom
			} else {
				res.Reasons[i] = ReasonNoInstructor
			}
			continue
		}

		res.Bounds[i] = maxDisjoint(feasible, r.length, r.input.NumTimesToRun)
		res.Active = append(res.Active, i)
	}

	slices.SortStableFunc(res.Active, func(a, b int) int { return res.Bounds[b] - res.Bounds[a] })
	for _, i := range res.Active {
		res.Levels += res.Bounds[i]
	}
	return res, nil
}

// maxDisjoint counts the largest set of non-overlapping ranges of the given length that start
// on the sorted days, capped at limit. Taking the earliest start first is optimal for equal lengths.
func maxDisjoint(starts []int, length, limit int) int {
	count, free := 0, 0
	for _, s := range starts {
		if count == limit {
			break
		}
		if s < free {
			continue
		}
		count++
		free = s + length
	}
	return count
}
