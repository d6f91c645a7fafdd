package optimizer

import "time"

// InstructorAvailable reports whether the instructor is free on every business day of [start, end].
func (p *Problem) InstructorAvailable(id string, start, end time.Time, state *State) bool {
	instr, ok := p.instructorIndex[id]
	if !ok {
		return false
	}
	return instructorFree(instr, p.window.mustIndex(start), p.window.mustIndex(end), state)
}

// RoomAvailable reports whether the room is free on every business day of [start, end].
func (p *Problem) RoomAvailable(id int64, start, end time.Time, state *State) bool {
	room, ok := p.roomIndex[id]
	if !ok {
		return false
	}
	return roomFree(room, p.window.mustIndex(start), p.window.mustIndex(end), state)
}

func instructorFree(instr, start, end int, state *State) bool {
	for d := start; d <= end; d++ {
		if state.InstructorBusy(instr, d) {
			return false
		}
	}
	return true
}

func roomFree(room, start, end int, state *State) bool {
	for d := start; d <= end; d++ {
		if state.RoomBusy(room, d) {
			return false
		}
	}
	return true
}

// firstFreeInstructor returns the first instructor in order free for the range, or -1.
func firstFreeInstructor(order []int, start, end int, state *State) int {
	for _, instr := range order {
		if instructorFree(instr, start, end, state) {
			return instr
		}
	}
	return -1
}

func firstFreeRoom(rooms []int, start, end int, state *State) int {
	for _, room := range rooms {
		if roomFree(room, start, end, state) {
			return room
		}
	}
	return -1
}
