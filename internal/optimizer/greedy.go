package optimizer

// schedule is a set of placements together with the state they produced.
type schedule struct {
	placements []placement
	counts     []int
	reasons    map[int]string
	state      *State
}

// greedy walks the requests in order and commits the first instructor and room that fit
// on each candidate date. It writes into state.
func (p *Problem) greedy(order []int, obj objective, state *State) *schedule {
	res := &schedule{
		counts:  make([]int, len(p.requests)),
		reasons: make(map[int]string),
		state:   state,
	}
	var taught *taughtLog
	for _, i := range order {
		r := p.requests[i]
		wanted := r.input.NumTimesToRun
		starts, rejection := p.mustValidStarts(r, state)
		if len(starts) == 0 {
			res.reasons[i] = rejection.Reason()
			continue
		}

		var sawInstructor, sawRoom bool
		for _, s := range starts {
			if res.counts[i] == wanted {
				break
			}
			e := s + r.length - 1
			// Earlier occurrences of this request may have closed the range.
			if p.firstConflict(r.location, s, e, r.size, r.course, state) >= 0 {
				continue
			}
			instr := firstFreeInstructor(obj.order(p, r, taught), s, e, state)
			if instr < 0 {
				sawInstructor = true
				continue
			}
			room := firstFreeRoom(r.rooms, s, e, state)
			if room < 0 {
				sawRoom = true
				continue
			}
			pl := placement{req: i, start: s, end: e, instructor: instr, room: room, local: p.isLocal(instr, r.location)}
			p.place(r, pl, state)
			res.placements = append(res.placements, pl)
			res.counts[i]++
			taught = taught.with(r.course, instr, p.window.Date(s))
		}

		if n := res.counts[i]; n < wanted {
			switch {
			case sawInstructor:
				res.reasons[i] = ReasonNoInstructor
			case sawRoom:
				res.reasons[i] = ReasonNoRoom
			default:
				res.reasons[i] = PartialReason(n, wanted)
			}
		}
	}
	return res
}

// diagnose explains why request i holds fewer occurrences than requested in the final state.
func (p *Problem) diagnose(i, scheduled int, state *State) string {
	r := p.requests[i]
	starts, rejection := p.mustValidStarts(r, state)
	if len(starts) == 0 {
		if scheduled == 0 {
			return rejection.Reason()
		}
		return PartialReason(scheduled, r.input.NumTimesToRun)
	}
	sawInstructor := false
	for _, s := range starts {
		e := s + r.length - 1
		if firstFreeInstructor(r.instructors, s, e, state) < 0 {
			continue
		}
		sawInstructor = true
		if firstFreeRoom(r.rooms, s, e, state) >= 0 {
			return PartialReason(scheduled, r.input.NumTimesToRun)
		}
	}
	if !sawInstructor {
		return ReasonNoInstructor
	}
	return ReasonNoRoom
}
