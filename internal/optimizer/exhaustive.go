package optimizer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// candidate is a complete outcome competing for the best answer.
type candidate struct {
	placements []placement
	count      int
	score      float64
	state      *State
}

// trail is the persistent list of placements made along one search path.
type trail struct {
	pl   placement
	prev *trail
}

func (t *trail) list(n int) []placement {
	out := make([]placement, n)
	for i, c := n-1, t; c != nil; i, c = i-1, c.prev {
		out[i] = c.pl
	}
	return out
}

type bestSummary struct {
	count int
	score float64
}

// searchContext owns the branch-and-bound search and its best-answer tracker.
// Only the search goroutine writes to it; snapshot may be called from any goroutine.
type searchContext struct {
	p            *Problem
	obj          objective
	ctx          context.Context
	active       []int
	bounds       []int
	prefix       []int
	levels       int
	bestPossible float64
	provable     bool
	started      time.Time

	best        *candidate
	steps       int
	interrupted bool

	optimal       atomic.Bool
	leaves        atomic.Int64
	evaluations   atomic.Int64
	nodesPerDepth []atomic.Int64

	mu      sync.RWMutex
	summary bestSummary
}

func newSearch(ctx context.Context, p *Problem, obj objective, pre *PreFilterResult) *searchContext {
	sc := &searchContext{
		p:             p,
		obj:           obj,
		ctx:           ctx,
		active:        pre.Active,
		bounds:        make([]int, len(pre.Active)),
		prefix:        make([]int, len(pre.Active)+1),
		levels:        pre.Levels,
		started:       time.Now(),
		nodesPerDepth: make([]atomic.Int64, pre.Levels),
	}
	for k, i := range pre.Active {
		sc.bounds[k] = pre.Bounds[i]
		sc.prefix[k+1] = sc.prefix[k] + pre.Bounds[i]
	}
	active, bounds := p.activeRequests(pre)
	sc.bestPossible, sc.provable = obj.bestPossible(p, active, bounds)
	return sc
}

// run searches from the initial state. A non-nil seed is adopted as the first best answer.
func (sc *searchContext) run(initial *State, seed *candidate) {
	if seed != nil {
		sc.adopt(seed)
	}
	if sc.ctx.Err() != nil {
		sc.interrupted = true
		return
	}
	sc.explore(0, 0, 0, initial, nil, 0, 0, nil)
}

// explore visits the node for occurrence done of the k-th active request. Occurrences of
// one request are placed in increasing start order, so after is the first start day allowed.
// st is never written here; every placement is committed into a fresh clone.
func (sc *searchContext) explore(k, done, after int, st *State, path *trail, count int, score float64, taught *taughtLog) {
	if sc.stopped() {
		return
	}
	if depth := sc.prefix[k] + done; depth < sc.levels {
		sc.nodesPerDepth[depth].Add(1)
	}
	if k == len(sc.active) {
		sc.leaves.Add(1)
		sc.offer(path, count, score, st)
		return
	}
	reachable := count + sc.bounds[k] - done + sc.levels - sc.prefix[k+1]
	if sc.prune(reachable, score) {
		return
	}
	sc.evaluations.Add(1)

	i := sc.active[k]
	r := sc.p.requests[i]
	starts, _ := sc.p.mustValidStarts(r, st)
	for _, s := range starts {
		if s < after {
			continue
		}
		e := s + r.length - 1
		for _, instr := range sc.obj.order(sc.p, r, taught) {
			if !instructorFree(instr, s, e, st) {
				continue
			}
			for _, room := range r.rooms {
				if !roomFree(room, s, e, st) {
					continue
				}
				pl := placement{req: i, start: s, end: e, instructor: instr, room: room, local: sc.p.isLocal(instr, r.location)}
				child := st.Clone()
				sc.p.place(r, pl, child)
				gain := sc.obj.contribution(sc.p, r, pl, taught)
				next := taught.with(r.course, instr, sc.p.window.Date(s))
				if done+1 < sc.bounds[k] {
					sc.explore(k, done+1, s+1, child, &trail{pl: pl, prev: path}, count+1, score+gain, next)
				} else {
					sc.explore(k+1, 0, 0, child, &trail{pl: pl, prev: path}, count+1, score+gain, next)
				}
				if sc.stopped() {
					return
				}
			}
		}
	}

	// Leave the remaining occurrences of this request unscheduled.
	sc.explore(k+1, 0, 0, st, path, count, score, taught)
}

func (sc *searchContext) stopped() bool {
	if sc.interrupted || sc.optimal.Load() {
		return true
	}
	sc.steps++
	if sc.steps&1023 == 0 && sc.ctx.Err() != nil {
		sc.interrupted = true
	}
	return sc.interrupted
}

func (sc *searchContext) prune(reachable int, score float64) bool {
	if sc.best == nil {
		return false
	}
	if reachable < sc.best.count {
		return true
	}
	return reachable == sc.best.count && sc.obj.exhausted(score, sc.best.score)
}

func (sc *searchContext) offer(path *trail, count int, score float64, st *State) {
	if sc.best != nil {
		if count < sc.best.count {
			return
		}
		if count == sc.best.count && !sc.obj.better(score, sc.best.score) {
			return
		}
	}
	sc.adopt(&candidate{placements: path.list(count), count: count, score: score, state: st})
}

func (sc *searchContext) adopt(c *candidate) {
	sc.best = c
	sc.mu.Lock()
	sc.summary = bestSummary{count: c.count, score: c.score}
	sc.mu.Unlock()
	if sc.provable && c.count == sc.levels && !sc.obj.better(sc.bestPossible, c.score) {
		sc.optimal.Store(true)
	}
}

func (sc *searchContext) snapshot() Snapshot {
	nodes := make([]int64, len(sc.nodesPerDepth))
	for i := range sc.nodesPerDepth {
		nodes[i] = sc.nodesPerDepth[i].Load()
	}
	sc.mu.RLock()
	best := sc.summary
	sc.mu.RUnlock()
	return Snapshot{
		Elapsed:       time.Since(sc.started),
		Leaves:        sc.leaves.Load(),
		Evaluations:   sc.evaluations.Load(),
		BestScore:     best.score,
		BestCount:     best.count,
		BestPossible:  sc.bestPossible,
		NodesPerDepth: nodes,
		Optimal:       sc.optimal.Load(),
	}
}
