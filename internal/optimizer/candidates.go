package optimizer

import (
	"fmt"
	"time"
)

// Rejection explains why a location yielded no start dates for a course.
type Rejection int

const (
	RejectNone Rejection = iota
	RejectWindowTooShort
	RejectReleaseRate
	RejectDuplicateCourse
)

// Reason is the message stored on a failed input.
func (r Rejection) Reason() string {
	switch r {
	case RejectWindowTooShort:
		return "Course is longer than the optimization window."
	case RejectReleaseRate:
		return "Release rate would be exceeded."
	case RejectDuplicateCourse:
		return "Course is already offered at the location on every date."
	default:
		return ""
	}
}

func (r Rejection) String() string {
	switch r {
	case RejectWindowTooShort:
		return "window-too-short"
	case RejectReleaseRate:
		return "release-rate"
	case RejectDuplicateCourse:
		return "duplicate-course"
	default:
		return "none"
	}
}

// FindValidStartDates lists the dates a course of lengthDays could start at a location
// without breaking the release rate or overlapping the same course there.
// Instructor and room availability are not considered.
func (p *Problem) FindValidStartDates(locationID int64, lengthDays, classSize int, courseID int64, state *State) ([]time.Time, Rejection, error) {
	loc, ok := p.locationIndex[locationID]
	if !ok {
		return nil, RejectNone, fmt.Errorf("unknown location %d", locationID)
	}
	course, ok := p.courseIndex[courseID]
	if !ok {
		return nil, RejectNone, fmt.Errorf("unknown course %d", courseID)
	}
	starts, rejection, err := p.validStarts(loc, lengthDays, classSize, course, state)
	if err != nil {
		return nil, rejection, err
	}
	dates := make([]time.Time, len(starts))
	for i, s := range starts {
		dates[i] = p.window.Date(s)
	}
	return dates, rejection, nil
}

func (p *Problem) validStarts(loc, length, size, course int, state *State) ([]int, Rejection, error) {
	location := p.locations[loc]
	if location.ReleaseRate == nil {
		return nil, RejectNone, fmt.Errorf("%w: %s", ErrReleaseRateMissing, location.Code)
	}
	rate := *location.ReleaseRate
	if length < 1 {
		length = 1
	}

	last := p.window.Len() - length
	if last < 0 {
		return nil, RejectWindowTooShort, nil
	}

	var (
		starts                   []int
		sawRelease, sawDuplicate bool
	)
	for first := 0; first <= last; {
		offending := p.firstConflict(loc, first, first+length-1, size, course, state)
		if offending < 0 {
			starts = append(starts, first)
			first++
			continue
		}
		if state.Released(loc, offending)+size > rate {
			sawRelease = true
		} else {
			sawDuplicate = true
		}
		// Every candidate starting at or before the offending day covers it.
		first = offending + 1
	}

	if len(starts) > 0 {
		return starts, RejectNone, nil
	}
	switch {
	case sawRelease:
		return nil, RejectReleaseRate, nil
	case sawDuplicate:
		return nil, RejectDuplicateCourse, nil
	default:
		return nil, RejectWindowTooShort, nil
	}
}

// firstConflict returns the first day in [start, end] that breaks the release rate or already
// hosts the course at the location, or -1.
func (p *Problem) firstConflict(loc, start, end, size, course int, state *State) int {
	rate := *p.locations[loc].ReleaseRate
	for d := start; d <= end; d++ {
		if state.Released(loc, d)+size > rate || state.Offered(loc, d, course) {
			return d
		}
	}
	return -1
}

func (p *Problem) mustValidStarts(r *request, state *State) ([]int, Rejection) {
	starts, rejection, err := p.validStarts(r.location, r.length, r.size, r.course, state)
	if err != nil {
		panic(fmt.Sprintf("optimizer: %v", err))
	}
	return starts, rejection
}
