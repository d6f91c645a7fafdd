package optimizer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/course-optimizer/internal/models"
)

// Options tune a single engine run.
type Options struct {
	// SeedWithGreedy starts the exhaustive search with the greedy answer as the best known.
	SeedWithGreedy bool `mapstructure:"seed_with_greedy" json:"seed_with_greedy"`
	// Timeout stops the search and keeps the best answer found so far. Zero means no limit.
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
	ShowSetup bool          `mapstructure:"show_setup" json:"show_setup"`
}

// DefaultOptions returns the options used when a caller supplies none.
func DefaultOptions() Options {
	return Options{SeedWithGreedy: true}
}

// DecodeOptions overlays free-form options, such as a JSON object from an API request, onto base.
func DecodeOptions(raw map[string]interface{}, base Options) (Options, error) {
	out := base
	if len(raw) == 0 {
		return out, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &out,
	})
	if err != nil {
		return base, err
	}
	if err := decoder.Decode(raw); err != nil {
		return base, fmt.Errorf("decode optimizer options: %w", err)
	}
	return out, nil
}

// Outcome is the final answer of a run: every input, scheduled or labelled, plus the assignments.
type Outcome struct {
	Priority     models.OptimizerPriority
	Assignments  []models.OptimizerResult
	Inputs       []*models.OptimizerInput
	Score        float64
	Count        int
	Levels       int
	BestPossible float64
	Optimal      bool
	Interrupted  bool
	Leaves       int64
	Evaluations  int64
	Elapsed      time.Duration
}

// Failed returns the inputs that did not receive every requested occurrence.
func (o *Outcome) Failed() []*models.OptimizerInput {
	return lo.Filter(o.Inputs, func(in *models.OptimizerInput, _ int) bool { return !in.Succeeded })
}

// Engine runs one priority over one problem.
type Engine struct {
	problem *Problem
	obj     objective
	opts    Options
	logger  *zap.Logger
	search  atomic.Pointer[searchContext]
}

// NewEngine selects the objective for the problem's priority.
func NewEngine(problem *Problem, opts Options, logger *zap.Logger) (*Engine, error) {
	obj, err := objectiveFor(problem.priority)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{problem: problem, obj: obj, opts: opts, logger: logger}, nil
}

// Run prefilters the requests and schedules them greedily for FIRST_AVAILABLE or by
// exhaustive search for every other priority. The only error is a configuration error
// found while prefiltering; a timeout yields the best outcome found so far.
func (e *Engine) Run(ctx context.Context) (*Outcome, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	started := time.Now()
	p := e.problem
	if e.opts.ShowSetup {
		p.logSetup(e.logger)
	}

	initial := p.InitialState()
	pre, err := p.PreFilter(initial)
	if err != nil {
		return nil, err
	}
	e.logger.Info("optimizer prefilter complete",
		zap.String("priority", string(p.priority)),
		zap.Int("inputs", len(p.inputs)),
		zap.Int("active", len(pre.Active)),
		zap.Int("infeasible", len(pre.Reasons)+len(p.unresolved)),
		zap.Int("levels", pre.Levels),
	)

	var outcome *Outcome
	if p.priority == models.PriorityFirstAvailable {
		res := p.greedy(pre.Active, e.obj, initial.Clone())
		outcome = p.buildOutcome(pre, res.placements, res.reasons)
		outcome.Score = score(e.obj, p, res.placements)
		active, bounds := p.activeRequests(pre)
		outcome.BestPossible, _ = e.obj.bestPossible(p, active, bounds)
		outcome.Optimal = outcome.Count == pre.Levels
	} else {
		outcome = e.exhaustive(ctx, pre, initial)
	}
	outcome.Priority = p.priority
	outcome.Levels = pre.Levels
	outcome.Elapsed = time.Since(started)

	e.logger.Info("optimizer run complete",
		zap.String("priority", string(p.priority)),
		zap.Int("scheduled", outcome.Count),
		zap.Int("failed_inputs", len(outcome.Failed())),
		zap.Float64("score", outcome.Score),
		zap.Bool("optimal", outcome.Optimal),
		zap.Bool("interrupted", outcome.Interrupted),
		zap.Duration("elapsed", outcome.Elapsed),
	)
	return outcome, nil
}

func (e *Engine) exhaustive(ctx context.Context, pre *PreFilterResult, initial *State) *Outcome {
	p := e.problem
	sc := newSearch(ctx, p, e.obj, pre)
	e.search.Store(sc)

	var seed *candidate
	if e.opts.SeedWithGreedy {
		res := p.greedy(sc.active, e.obj, initial.Clone())
		seed = &candidate{
			placements: res.placements,
			count:      len(res.placements),
			score:      score(e.obj, p, res.placements),
			state:      res.state,
		}
	}
	sc.run(initial, seed)

	best := sc.best
	if best == nil {
		best = &candidate{state: initial}
	}
	counts := make([]int, len(p.requests))
	for _, pl := range best.placements {
		counts[pl.req]++
	}
	reasons := make(map[int]string)
	for _, i := range sc.active {
		if counts[i] < p.requests[i].input.NumTimesToRun {
			reasons[i] = p.diagnose(i, counts[i], best.state)
		}
	}

	outcome := p.buildOutcome(pre, best.placements, reasons)
	snap := sc.snapshot()
	outcome.Score = best.score
	outcome.BestPossible = sc.bestPossible
	outcome.Optimal = snap.Optimal
	outcome.Interrupted = sc.interrupted
	outcome.Leaves = snap.Leaves
	outcome.Evaluations = snap.Evaluations
	return outcome
}

func (p *Problem) activeRequests(pre *PreFilterResult) ([]*request, []int) {
	active := lo.Map(pre.Active, func(i int, _ int) *request { return p.requests[i] })
	bounds := lo.Map(pre.Active, func(i int, _ int) int { return pre.Bounds[i] })
	return active, bounds
}

// buildOutcome copies every input and labels it with its result.
func (p *Problem) buildOutcome(pre *PreFilterResult, placements []placement, reasons map[int]string) *Outcome {
	counts := make([]int, len(p.requests))
	for _, pl := range placements {
		counts[pl.req]++
	}

	inputs := make([]*models.OptimizerInput, len(p.inputs))
	for pos, in := range p.inputs {
		cp := *in
		if reason, ok := p.unresolved[pos]; ok {
			cp.WillAlwaysFail = true
			cp.Reason = reason
		}
		inputs[pos] = &cp
	}
	for i, r := range p.requests {
		in := inputs[r.pos]
		in.MaxPossibleIterations = pre.Bounds[i]
		in.RemainingRuns = in.NumTimesToRun - counts[i]
		in.Succeeded = counts[i] == in.NumTimesToRun
		if reason, ok := pre.Reasons[i]; ok {
			in.WillAlwaysFail = true
			in.Reason = reason
			continue
		}
		if !in.Succeeded {
			in.Reason = reasons[i]
		}
	}

	outcome := &Outcome{Inputs: inputs, Count: len(placements)}
	for _, pl := range placements {
		outcome.Assignments = append(outcome.Assignments, p.result(pl))
	}
	return outcome
}

func (p *Problem) result(pl placement) models.OptimizerResult {
	r := p.requests[pl.req]
	course := p.courses[r.course]
	hoursPerDay := min(course.Hours, 8)
	return models.OptimizerResult{
		InputID:              r.input.ID,
		CourseID:             course.ID,
		CourseCode:           course.Code,
		LocationID:           p.locations[r.location].ID,
		RoomID:               p.rooms[pl.room].ID,
		InstructorID:         p.instructors[pl.instructor].ID,
		StartDate:            p.window.Date(pl.start),
		EndDate:              p.window.Date(pl.end),
		StartTime:            r.input.StartTime,
		EndTime:              r.input.StartTime.Add(time.Duration(hoursPerDay) * time.Hour),
		UsingLocalInstructor: pl.local,
		Hidden:               true,
		RequestType:          models.OptimizerRequester,
		Requester:            models.OptimizerRequester,
	}
}
