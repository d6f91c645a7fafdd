package optimizer

import (
	"fmt"
	"slices"
)

// State is the mutable availability picture of one search branch.
//
// Every structure is a flat slice indexed by resource*days+day. Clone copies the flat
// slices and shares the per location-day course lists; Offer never appends in place,
// so a list reachable from a clone is never modified afterwards.
type State struct {
	days           int
	instructorBusy []bool
	roomBusy       []bool
	released       []int
	offered        [][]int
}

func newState(days, instructors, rooms, locations int) *State {
	return &State{
		days:           days,
		instructorBusy: make([]bool, instructors*days),
		roomBusy:       make([]bool, rooms*days),
		released:       make([]int, locations*days),
		offered:        make([][]int, locations*days),
	}
}

// Clone returns an independent copy for a child branch.
func (s *State) Clone() *State {
	return &State{
		days:           s.days,
		instructorBusy: slices.Clone(s.instructorBusy),
		roomBusy:       slices.Clone(s.roomBusy),
		released:       slices.Clone(s.released),
		offered:        slices.Clone(s.offered),
	}
}

func (s *State) cell(resource, day int) int {
	if day < 0 || day >= s.days {
		panic(fmt.Sprintf("optimizer: day index %d outside window of %d days", day, s.days))
	}
	return resource*s.days + day
}

// InstructorBusy reports whether instructor i is unavailable on day d.
func (s *State) InstructorBusy(i, d int) bool { return s.instructorBusy[s.cell(i, d)] }

// RoomBusy reports whether room r is unavailable on day d.
func (s *State) RoomBusy(r, d int) bool { return s.roomBusy[s.cell(r, d)] }

// Released is the enrollment already released at location l on day d.
func (s *State) Released(l, d int) int { return s.released[s.cell(l, d)] }

// Offered reports whether course c is already running at location l on day d.
func (s *State) Offered(l, d, c int) bool {
	return slices.Contains(s.offered[s.cell(l, d)], c)
}

func (s *State) blockInstructor(i, d int) { s.instructorBusy[s.cell(i, d)] = true }

func (s *State) blockRoom(r, d int) { s.roomBusy[s.cell(r, d)] = true }

func (s *State) release(l, d, seats int) { s.released[s.cell(l, d)] += seats }

func (s *State) offer(l, d, c int) {
	idx := s.cell(l, d)
	if slices.Contains(s.offered[idx], c) {
		return
	}
	s.offered[idx] = append(slices.Clip(s.offered[idx]), c)
}
