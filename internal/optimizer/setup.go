package optimizer

import (
	"go.uber.org/zap"
)

// logSetup dumps the seeded state. Summary counts go to info, per-resource detail to debug.
func (p *Problem) logSetup(logger *zap.Logger) {
	logger.Info("optimizer setup",
		zap.Time("window_start", p.window.Start),
		zap.Time("window_end", p.window.End),
		zap.Int("business_days", p.window.Len()),
		zap.Int("inputs", len(p.inputs)),
		zap.Int("courses", len(p.courses)),
		zap.Int("rooms", len(p.rooms)),
		zap.Int("instructors", len(p.instructors)),
		zap.Int("locations", len(p.locations)),
	)
	if !logger.Core().Enabled(zap.DebugLevel) {
		return
	}

	st := p.initial
	for l, loc := range p.locations {
		released := make(map[DateKey]int)
		for d := 0; d < p.window.Len(); d++ {
			if n := st.Released(l, d); n > 0 {
				released[KeyOf(p.window.Date(d))] = n
			}
		}
		logger.Debug("location setup",
			zap.String("location", loc.Code),
			zap.Any("release_rate", loc.ReleaseRate),
			zap.Int("local_rooms", len(loc.LocalRooms)),
			zap.Int("local_instructors", len(loc.LocalInstructors)),
			zap.Any("released", released),
		)
	}
	for r, room := range p.rooms {
		logger.Debug("room setup",
			zap.Int64("room_id", room.ID),
			zap.String("station", room.Station),
			zap.Strings("busy", p.busyDays(func(d int) bool { return st.RoomBusy(r, d) })),
		)
	}
	for i, instr := range p.instructors {
		logger.Debug("instructor setup",
			zap.String("instructor", instr.ID),
			zap.Int64("point_id", instr.PointID),
			zap.Int("qualifications", instr.QualificationCount),
			zap.Strings("busy", p.busyDays(func(d int) bool { return st.InstructorBusy(i, d) })),
		)
	}
	for _, in := range p.inputs {
		logger.Debug("input setup",
			zap.Int64("input_id", in.ID),
			zap.String("course", in.CourseCode),
			zap.String("location", in.LocationCode),
			zap.Int("occurrences", in.NumTimesToRun),
			zap.Int("length_days", in.LengthDays),
		)
	}
}

func (p *Problem) busyDays(busy func(int) bool) []string {
	var out []string
	for d := 0; d < p.window.Len(); d++ {
		if busy(d) {
			out = append(out, string(KeyOf(p.window.Date(d))))
		}
	}
	return out
}
