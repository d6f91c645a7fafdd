package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/internal/optimizer"
)

// ResultSink persists the outcome of a run.
type ResultSink interface {
	Save(ctx context.Context, runID string, outcome *optimizer.Outcome) error
}

type outcomeWriter interface {
	SaveOutcome(ctx context.Context, runID string, results []models.OptimizerResult, inputs []*models.OptimizerInput) error
}

// SQLResultSink writes results and input outcomes in a single transaction.
type SQLResultSink struct {
	writer  outcomeWriter
	metrics *MetricsService
}

// NewSQLResultSink constructs the sink.
func NewSQLResultSink(writer outcomeWriter, metrics *MetricsService) *SQLResultSink {
	return &SQLResultSink{writer: writer, metrics: metrics}
}

// Save stores the assignments and marks every input scheduled or failed with its reason.
func (s *SQLResultSink) Save(ctx context.Context, runID string, outcome *optimizer.Outcome) error {
	if outcome == nil {
		return fmt.Errorf("save optimizer outcome: outcome is nil")
	}
	began := time.Now()
	if err := s.writer.SaveOutcome(ctx, runID, outcome.Assignments, outcome.Inputs); err != nil {
		return err
	}
	s.metrics.ObserveDBQuery("optimizer_save_outcome", time.Since(began))
	return nil
}

// FailuresOf summarises the inputs of an outcome that did not fully succeed.
func FailuresOf(outcome *optimizer.Outcome) []models.OptimizerFailure {
	if outcome == nil {
		return nil
	}
	scheduled := make(map[int64]int)
	for _, a := range outcome.Assignments {
		scheduled[a.InputID]++
	}
	failures := make([]models.OptimizerFailure, 0)
	for _, in := range outcome.Failed() {
		failures = append(failures, models.OptimizerFailure{
			InputID:        in.ID,
			CourseCode:     in.CourseCode,
			LocationCode:   in.LocationCode,
			Requested:      in.NumTimesToRun,
			Scheduled:      scheduled[in.ID],
			WillAlwaysFail: in.WillAlwaysFail,
			Reason:         in.Reason,
		})
	}
	return failures
}
