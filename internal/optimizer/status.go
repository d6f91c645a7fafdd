package optimizer

import (
	"fmt"
	"time"
)

// Snapshot is a read-only view of search progress.
type Snapshot struct {
	Elapsed       time.Duration
	Leaves        int64
	Evaluations   int64
	BestScore     float64
	BestCount     int
	BestPossible  float64
	NodesPerDepth []int64
	Optimal       bool
}

func (s Snapshot) String() string {
	return fmt.Sprintf("elapsed=%s leaves=%d evaluations=%d best score=%g best count=%d best possible=%g nodes per depth=%v",
		s.Elapsed.Round(time.Millisecond), s.Leaves, s.Evaluations, s.BestScore, s.BestCount, s.BestPossible, s.NodesPerDepth)
}

// Snapshot returns the current progress of the exhaustive search. It is safe to call from
// another goroutine while Run is executing and is zero before the search starts.
func (e *Engine) Snapshot() Snapshot {
	sc := e.search.Load()
	if sc == nil {
		return Snapshot{}
	}
	return sc.snapshot()
}

// Status formats the snapshot as a single progress line.
func (e *Engine) Status(label string) string {
	return fmt.Sprintf("[%s] %s", label, e.Snapshot())
}
