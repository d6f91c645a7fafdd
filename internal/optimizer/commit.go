package optimizer

import "time"

// placement is one committed occurrence of a request, in window day indices.
type placement struct {
	req        int
	start, end int
	instructor int
	room       int
	local      bool
}

// Commit books the instructor, room and seats for [start, end] into state.
func (p *Problem) Commit(start, end time.Time, locationID int64, classSize int, instructorID string, roomID int64, courseID int64, isLocalInstructor bool, state *State) {
	p.commit(
		p.window.mustIndex(start), p.window.mustIndex(end),
		mustLookup(p.locationIndex, locationID), classSize,
		mustLookup(p.instructorIndex, instructorID), mustLookup(p.roomIndex, roomID),
		mustLookup(p.courseIndex, courseID), isLocalInstructor, state,
	)
}

func mustLookup[K comparable](index map[K]int, key K) int {
	idx, ok := index[key]
	if !ok {
		panic("optimizer: commit references an unknown resource")
	}
	return idx
}

func (p *Problem) commit(start, end, loc, size, instr, room, course int, local bool, state *State) {
	for d := start; d <= end; d++ {
		state.release(loc, d, size)
		state.blockInstructor(instr, d)
		state.blockRoom(room, d)
		state.offer(loc, d, course)
	}
	if !local {
		p.blockTravel(state, instr, start, end)
	}
}

// blockTravel takes the calendar days adjacent to [start, end] away from a traveling instructor.
// Adjacent days that are weekends or fall outside the window are left alone.
func (p *Problem) blockTravel(state *State, instr, start, end int) {
	if before, ok := p.window.IndexOf(p.window.Date(start).AddDate(0, 0, -1)); ok {
		state.blockInstructor(instr, before)
	}
	if after, ok := p.window.IndexOf(p.window.Date(end).AddDate(0, 0, 1)); ok {
		state.blockInstructor(instr, after)
	}
}

func (p *Problem) place(r *request, pl placement, state *State) {
	p.commit(pl.start, pl.end, r.location, r.size, pl.instructor, pl.room, r.course, pl.local, state)
}
