package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/internal/optimizer"
)

const statusKeyPrefix = "optimizer:status:"

// StatusKey is the cache key holding the latest progress of a run.
func StatusKey(runID string) string {
	return statusKeyPrefix + runID
}

type statusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RunnerConfig tunes progress reporting.
type RunnerConfig struct {
	StatusInterval time.Duration
	StatusTTL      time.Duration
}

// Runner loads a dataset, runs the engine over it and reports progress while the search runs.
type Runner struct {
	metrics *MetricsService
	cache   statusCache
	logger  *zap.Logger
	cfg     RunnerConfig
}

// NewRunner constructs a runner. cache may be nil when progress is only logged.
func NewRunner(metrics *MetricsService, cache statusCache, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StatusInterval < 0 {
		cfg.StatusInterval = 0
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = time.Hour
	}
	return &Runner{metrics: metrics, cache: cache, logger: logger, cfg: cfg}
}

// Run executes one run. Progress is polled at the configured interval for every priority
// except FIRST_AVAILABLE, whose single greedy pass has nothing to report.
func (r *Runner) Run(ctx context.Context, provider DataProvider, runID string, params LoadParams, opts optimizer.Options) (*optimizer.Outcome, error) {
	ds, err := provider.Load(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	problem, err := optimizer.NewProblem(*ds)
	if err != nil {
		return nil, err
	}
	engine, err := optimizer.NewEngine(problem, opts, r.logger.With(zap.String("run_id", runID)))
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	pollCtx, stop := context.WithCancel(ctx)
	if params.Priority != models.PriorityFirstAvailable && r.cfg.StatusInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.poll(pollCtx, engine, runID, params.Priority)
		}()
	}
	outcome, err := engine.Run(ctx)
	stop()
	wg.Wait()
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (r *Runner) poll(ctx context.Context, engine *optimizer.Engine, runID string, priority models.OptimizerPriority) {
	ticker := time.NewTicker(r.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, engine, runID, priority)
		}
	}
}

func (r *Runner) tick(ctx context.Context, engine *optimizer.Engine, runID string, priority models.OptimizerPriority) {
	snap := engine.Snapshot()
	line := engine.Status(runID)
	r.logger.Info("optimizer status", zap.String("run_id", runID), zap.String("status", line))
	r.metrics.ObserveSearch(priority, snap)
	r.Publish(ctx, ProgressOf(runID, models.OptimizerRunRunning, line, snap))
}

// Publish stores progress under StatusKey. Failures are logged and otherwise ignored.
func (r *Runner) Publish(ctx context.Context, progress models.OptimizerProgress) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, StatusKey(progress.RunID), progress, r.cfg.StatusTTL); err != nil {
		r.logger.Warn("failed to cache optimizer status", zap.String("run_id", progress.RunID), zap.Error(err))
	}
}

// ProgressOf converts an engine snapshot into the cached progress record.
func ProgressOf(runID string, status models.OptimizerRunStatus, line string, snap optimizer.Snapshot) models.OptimizerProgress {
	return models.OptimizerProgress{
		RunID:         runID,
		Status:        status,
		Line:          line,
		ElapsedMs:     snap.Elapsed.Milliseconds(),
		Leaves:        snap.Leaves,
		Evaluations:   snap.Evaluations,
		BestScore:     snap.BestScore,
		BestCount:     snap.BestCount,
		BestPossible:  snap.BestPossible,
		NodesPerDepth: snap.NodesPerDepth,
		UpdatedAt:     time.Now().UTC(),
	}
}

// SummaryLine describes a finished outcome in one line.
func SummaryLine(outcome *optimizer.Outcome) string {
	if outcome == nil {
		return ""
	}
	return fmt.Sprintf("scheduled=%d of %d, failed inputs=%d, score=%g, best possible=%g, optimal=%t, interrupted=%t, elapsed=%s",
		outcome.Count, outcome.Levels, len(outcome.Failed()), outcome.Score, outcome.BestPossible,
		outcome.Optimal, outcome.Interrupted, outcome.Elapsed.Round(time.Millisecond))
}
