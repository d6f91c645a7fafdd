package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/course-optimizer/internal/dto"
	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/internal/optimizer"
	"github.com/noah-isme/course-optimizer/internal/repository"
	appErrors "github.com/noah-isme/course-optimizer/pkg/errors"
	"github.com/noah-isme/course-optimizer/pkg/jobs"
	"github.com/noah-isme/course-optimizer/pkg/logger"
	"github.com/noah-isme/course-optimizer/pkg/storage"
)

// OptimizerJobType tags optimizer runs on the job queue.
const OptimizerJobType = "optimizer_run"

// SourceDB and SourceCSV name the data providers a run can read from.
const (
	SourceDB  = "db"
	SourceCSV = "csv"
)

type optimizerRunStore interface {
	Create(ctx context.Context, run *models.OptimizerRun) error
	GetByID(ctx context.Context, id string) (*models.OptimizerRun, error)
	List(ctx context.Context, filter models.OptimizerRunFilter) ([]models.OptimizerRun, int, error)
	Update(ctx context.Context, id string, params repository.UpdateOptimizerRunParams) error
	ListQueued(ctx context.Context, limit int) ([]models.OptimizerRun, error)
}

type optimizerResultReader interface {
	ListByRun(ctx context.Context, runID string) ([]models.OptimizerResult, error)
}

type locationLister interface {
	ListLocations(ctx context.Context) ([]models.Location, error)
}

type runDispatcher interface {
	Enqueue(job jobs.Job) error
}

// OptimizerServiceConfig governs run defaults, retries and export cleanup.
type OptimizerServiceConfig struct {
	Defaults        optimizer.Options
	InstructorRole  int
	MaxRetries      int
	CleanupInterval time.Duration
	ExportTTL       time.Duration
}

// OptimizerService orchestrates the optimizer run lifecycle: queueing, execution, persistence and reports.
type OptimizerService struct {
	runs      optimizerRunStore
	results   optimizerResultReader
	locations locationLister
	providers map[string]DataProvider
	sink      ResultSink
	runner    *Runner
	queue     runDispatcher
	exporter  *ExportService
	cache     statusCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       OptimizerServiceConfig
}

// OptimizerServiceDeps groups the collaborators of OptimizerService.
type OptimizerServiceDeps struct {
	Runs      optimizerRunStore
	Results   optimizerResultReader
	Locations locationLister
	Providers map[string]DataProvider
	Sink      ResultSink
	Runner    *Runner
	Queue     runDispatcher
	Exporter  *ExportService
	Cache     statusCache
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// RunDownload aggregates resolved download data.
type RunDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// NewOptimizerService constructs the service.
func NewOptimizerService(deps OptimizerServiceDeps, cfg OptimizerServiceConfig) *OptimizerService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Runner == nil {
		deps.Runner = NewRunner(deps.Metrics, deps.Cache, RunnerConfig{}, deps.Logger)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ExportTTL <= 0 {
		cfg.ExportTTL = 24 * time.Hour
	}
	svc := &OptimizerService{
		runs:      deps.Runs,
		results:   deps.Results,
		locations: deps.Locations,
		providers: deps.Providers,
		sink:      deps.Sink,
		runner:    deps.Runner,
		queue:     deps.Queue,
		exporter:  deps.Exporter,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
		cfg:       cfg,
	}
	svc.validator.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		return models.OptimizerPriority(fl.Field().String()).Valid()
	})
	return svc
}

// Start validates the request, persists a queued run and hands it to the worker queue.
func (s *OptimizerService) Start(ctx context.Context, req dto.StartOptimizerRunRequest, actorID string) (*dto.OptimizerRunResponse, error) {
	run, err := s.newRun(req, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create optimizer run")
	}
	if s.queue == nil {
		return nil, appErrors.Wrap(fmt.Errorf("queue missing"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "optimizer queue unavailable")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: OptimizerJobType}); err != nil {
		s.markFailed(ctx, run.ID, "failed to enqueue run")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue optimizer run")
	}
	logger.WithContext(ctx, s.logger).Info("optimizer run queued",
		zap.String("run_id", run.ID),
		zap.String("priority", string(run.Priority)),
		zap.String("source", run.Source),
		zap.String("created_by", actorID),
	)
	resp := toRunResponse(run)
	return &resp, nil
}

// RunSync persists a run and executes it inline, returning the final row and outcome.
func (s *OptimizerService) RunSync(ctx context.Context, req dto.StartOptimizerRunRequest, actorID string) (*models.OptimizerRun, *optimizer.Outcome, error) {
	run, err := s.newRun(req, actorID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create optimizer run")
	}
	outcome, err := s.execute(ctx, run)
	if err != nil {
		s.fail(ctx, run, err)
		return nil, nil, s.classify(err)
	}
	final, err := s.runs.GetByID(ctx, run.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load optimizer run")
	}
	return final, outcome, nil
}

// Handle processes a queued run. Configuration errors fail the run immediately; other errors
// put it back in the queue until the retry budget is spent.
func (s *OptimizerService) Handle(ctx context.Context, job jobs.Job) error {
	run, err := s.runs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if run.Status != models.OptimizerRunQueued {
		s.logger.Debug("skipping optimizer run that is not queued", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
		return nil
	}

	_, err = s.execute(ctx, run)
	if err == nil {
		return nil
	}
	if isPermanent(err) || job.Attempt >= s.cfg.MaxRetries {
		s.fail(ctx, run, err)
		if isPermanent(err) {
			return nil
		}
		return err
	}

	queued := models.OptimizerRunQueued
	s.finished(run, queued)
	msg := err.Error()
	if updateErr := s.runs.Update(ctx, run.ID, repository.UpdateOptimizerRunParams{
		Status:       &queued,
		ErrorMessage: &msg,
	}); updateErr != nil {
		s.logger.Sugar().Warnw("failed to mark optimizer run queued", "run_id", run.ID, "error", updateErr)
	}
	return err
}

func (s *OptimizerService) execute(ctx context.Context, run *models.OptimizerRun) (*optimizer.Outcome, error) {
	run.StartedAt = nil
	opts, err := s.optionsFor(run)
	if err != nil {
		return nil, err
	}
	provider, ok := s.providers[run.Source]
	if !ok {
		return nil, permanent(fmt.Errorf("source %s is not configured", run.Source))
	}

	started := time.Now().UTC()
	running := models.OptimizerRunRunning
	if err := s.runs.Update(ctx, run.ID, repository.UpdateOptimizerRunParams{Status: &running, StartedAt: &started}); err != nil {
		return nil, err
	}
	run.Status, run.StartedAt = running, &started
	s.metrics.RunStarted()

	params := LoadParams{
		WindowStart:    run.WindowStart,
		WindowEnd:      run.WindowEnd,
		Priority:       run.Priority,
		InstructorRole: s.cfg.InstructorRole,
	}
	outcome, err := s.runner.Run(ctx, provider, run.ID, params, opts)
	if err == nil {
		err = s.sink.Save(ctx, run.ID, outcome)
	}
	if err != nil {
		return nil, err
	}

	failures := FailuresOf(outcome)
	payload, err := json.Marshal(failures)
	if err != nil {
		return nil, err
	}
	completed := models.OptimizerRunCompleted
	now := time.Now().UTC()
	line := SummaryLine(outcome)
	requests := len(outcome.Inputs)
	failed := len(failures)
	failuresJSON := types.JSONText(payload)
	noError := ""
	if err := s.runs.Update(ctx, run.ID, repository.UpdateOptimizerRunParams{
		Status:         &completed,
		Score:          &outcome.Score,
		ScheduledCount: &outcome.Count,
		RequestCount:   &requests,
		FailedCount:    &failed,
		StatusLine:     &line,
		Failures:       &failuresJSON,
		ErrorMessage:   &noError,
		CompletedAt:    &now,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to mark optimizer run completed", "run_id", run.ID, "error", err)
		return nil, err
	}
	s.finished(run, completed)
	s.runner.Publish(ctx, models.OptimizerProgress{
		RunID:     run.ID,
		Status:    completed,
		Line:      line,
		ElapsedMs: outcome.Elapsed.Milliseconds(),
		Leaves:    outcome.Leaves,
		BestScore: outcome.Score,
		BestCount: outcome.Count,
		UpdatedAt: now,
	})
	return outcome, nil
}

func (s *OptimizerService) fail(ctx context.Context, run *models.OptimizerRun, cause error) {
	s.logger.Error("optimizer run failed", zap.String("run_id", run.ID), zap.Error(cause))
	s.finished(run, models.OptimizerRunFailed)
	s.markFailed(ctx, run.ID, cause.Error())
	s.runner.Publish(ctx, models.OptimizerProgress{
		RunID:     run.ID,
		Status:    models.OptimizerRunFailed,
		Line:      cause.Error(),
		UpdatedAt: time.Now().UTC(),
	})
}

// finished closes the metrics of a run that got as far as RUNNING.
func (s *OptimizerService) finished(run *models.OptimizerRun, status models.OptimizerRunStatus) {
	if run.StartedAt == nil {
		return
	}
	s.metrics.RunFinished(run.Priority, status, time.Since(*run.StartedAt))
}

func (s *OptimizerService) markFailed(ctx context.Context, id, msg string) {
	failed := models.OptimizerRunFailed
	now := time.Now().UTC()
	if err := s.runs.Update(ctx, id, repository.UpdateOptimizerRunParams{
		Status:       &failed,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to mark optimizer run failed", "run_id", id, "error", err)
	}
}

// Get returns a single run.
func (s *OptimizerService) Get(ctx context.Context, id string) (*dto.OptimizerRunResponse, error) {
	run, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toRunResponse(run)
	return &resp, nil
}

// List returns runs, newest first.
func (s *OptimizerService) List(ctx context.Context, req dto.OptimizerRunListRequest) ([]dto.OptimizerRunResponse, *models.Pagination, error) {
	filter := models.OptimizerRunFilter{Page: req.Page, PageSize: req.PageSize}
	if req.Status != "" {
		status := models.OptimizerRunStatus(req.Status)
		switch status {
		case models.OptimizerRunQueued, models.OptimizerRunRunning, models.OptimizerRunCompleted, models.OptimizerRunFailed:
		default:
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unsupported run status")
		}
		filter.Status = &status
	}
	if req.Priority != "" {
		priority := models.OptimizerPriority(req.Priority)
		if !priority.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unsupported priority")
		}
		filter.Priority = &priority
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	runs, total, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list optimizer runs")
	}
	items := lo.Map(runs, func(run models.OptimizerRun, _ int) dto.OptimizerRunResponse { return toRunResponse(&run) })
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Status reports the lifecycle state of a run plus the latest cached search progress.
func (s *OptimizerService) Status(ctx context.Context, id string) (*dto.OptimizerRunStatusResponse, error) {
	run, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.OptimizerRunStatusResponse{ID: run.ID, Status: run.Status, Line: run.StatusLine}
	if run.Status == models.OptimizerRunFailed && run.ErrorMessage != nil {
		resp.Line = *run.ErrorMessage
	}
	if s.cache == nil {
		return resp, nil
	}

	began := time.Now()
	var progress models.OptimizerProgress
	err = s.cache.Get(ctx, StatusKey(id), &progress)
	s.metrics.RecordCacheOperation(err == nil, time.Since(began))
	switch {
	case err == nil:
		resp.Progress = &progress
		if run.Status == models.OptimizerRunRunning {
			resp.Line = progress.Line
		}
	case !errors.Is(err, appErrors.ErrCacheMiss):
		s.logger.Warn("failed to read optimizer status", zap.String("run_id", id), zap.Error(err))
	}
	return resp, nil
}

// Results returns the assignments and failures of a completed run.
func (s *OptimizerService) Results(ctx context.Context, id string) (*dto.OptimizerResultsResponse, error) {
	report, err := s.report(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.OptimizerResultsResponse{
		RunID:       report.Run.ID,
		Score:       report.Run.Score,
		Assignments: report.Assignments,
		Failures:    report.Failures,
	}, nil
}

// Export renders a completed run as CSV or PDF and returns a signed download link.
func (s *OptimizerService) Export(ctx context.Context, id string, req dto.OptimizerExportRequest) (*dto.OptimizerExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	if s.exporter == nil {
		return nil, appErrors.Wrap(fmt.Errorf("exporter missing"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "exports unavailable")
	}
	report, err := s.report(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.locations != nil {
		locations, err := s.locations.ListLocations(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load locations")
		}
		report.Locations = lo.SliceToMap(locations, func(l models.Location) (int64, string) { return l.ID, l.Code })
	}
	result, err := s.exporter.Generate(ctx, *report, req.Format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export optimizer run")
	}
	return &dto.OptimizerExportResponse{URL: result.URL, Format: result.Format, ExpiresAt: result.ExpiresAt}, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *OptimizerService) ResolveDownload(ctx context.Context, token string) (*RunDownload, error) {
	if s.exporter == nil {
		return nil, appErrors.ErrNotFound
	}
	grant, err := s.exporter.VerifyToken(token)
	switch {
	case errors.Is(err, storage.ErrTokenExpired):
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download token has expired")
	case err != nil:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	if _, err := s.load(ctx, grant.RunID); err != nil {
		return nil, err
	}
	file, err := s.exporter.Open(grant.Path)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrOutsideRoot):
			return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
		case errors.Is(err, os.ErrNotExist):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file has expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &RunDownload{File: file, Filename: path.Base(grant.Path), ExpiresAt: grant.ExpiresAt}, nil
}

// RecoverPendingJobs replays queued runs (e.g. after process restart).
func (s *OptimizerService) RecoverPendingJobs(ctx context.Context) {
	if s.queue == nil {
		return
	}
	pending, err := s.runs.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued optimizer runs", "error", err)
		return
	}
	for _, run := range pending {
		err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: OptimizerJobType})
		switch {
		case errors.Is(err, jobs.ErrDuplicate):
			s.logger.Debug("optimizer run already queued", zap.String("run_id", run.ID))
		case err != nil:
			s.logger.Sugar().Warnw("failed to requeue optimizer run", "run_id", run.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *OptimizerService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 || s.exporter == nil {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.exporter.Cleanup(s.cfg.ExportTTL)
				if err != nil {
					s.logger.Sugar().Warnw("export cleanup failed", "error", err)
					continue
				}
				if len(removed) > 0 {
					s.logger.Sugar().Infow("expired exports removed", "count", len(removed))
				}
			}
		}
	}()
}

func (s *OptimizerService) newRun(req dto.StartOptimizerRunRequest, actorID string) (*models.OptimizerRun, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	start, err := time.Parse("2006-01-02", req.WindowStart)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "windowStart must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", req.WindowEnd)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "windowEnd must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "windowEnd must not be before windowStart")
	}
	source := req.Source
	if source == "" {
		source = SourceDB
	}
	if _, ok := s.providers[source]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("source %s is not configured", source))
	}
	if _, err := optimizer.DecodeOptions(req.Options, s.cfg.Defaults); err != nil {
		return nil, appErrors.Validation(err, "invalid options")
	}

	run := &models.OptimizerRun{
		Priority:    req.Priority,
		WindowStart: start,
		WindowEnd:   end,
		Source:      source,
		Status:      models.OptimizerRunQueued,
		CreatedBy:   actorID,
	}
	if len(req.Options) > 0 {
		raw, err := json.Marshal(req.Options)
		if err != nil {
			return nil, appErrors.Validation(err, "invalid options")
		}
		run.Options = types.JSONText(raw)
	}
	return run, nil
}

func (s *OptimizerService) optionsFor(run *models.OptimizerRun) (optimizer.Options, error) {
	raw := make(map[string]interface{})
	if len(run.Options) > 0 {
		if err := run.Options.Unmarshal(&raw); err != nil {
			return s.cfg.Defaults, permanent(fmt.Errorf("decode run options: %w", err))
		}
	}
	opts, err := optimizer.DecodeOptions(raw, s.cfg.Defaults)
	if err != nil {
		return s.cfg.Defaults, permanent(err)
	}
	return opts, nil
}

func (s *OptimizerService) load(ctx context.Context, id string) (*models.OptimizerRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "optimizer run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load optimizer run")
	}
	return run, nil
}

func (s *OptimizerService) report(ctx context.Context, id string) (*RunReport, error) {
	run, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != models.OptimizerRunCompleted {
		return nil, appErrors.ErrRunNotFinished
	}
	results, err := s.results.ListByRun(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load optimizer results")
	}
	failures := make([]models.OptimizerFailure, 0)
	if len(run.Failures) > 0 {
		if err := run.Failures.Unmarshal(&failures); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode run failures")
		}
	}
	if results == nil {
		results = []models.OptimizerResult{}
	}
	return &RunReport{Run: *run, Assignments: results, Failures: failures}, nil
}

func (s *OptimizerService) classify(err error) error {
	if errors.Is(err, optimizer.ErrReleaseRateMissing) {
		return appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, "a requested location has no release rate")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "optimizer run failed")
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// isPermanent reports errors a retry cannot fix.
func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, optimizer.ErrReleaseRateMissing)
}

func toRunResponse(run *models.OptimizerRun) dto.OptimizerRunResponse {
	return dto.OptimizerRunResponse{
		ID:             run.ID,
		Priority:       run.Priority,
		WindowStart:    run.WindowStart.Format("2006-01-02"),
		WindowEnd:      run.WindowEnd.Format("2006-01-02"),
		Source:         run.Source,
		Status:         run.Status,
		Score:          run.Score,
		ScheduledCount: run.ScheduledCount,
		RequestCount:   run.RequestCount,
		FailedCount:    run.FailedCount,
		StatusLine:     run.StatusLine,
		Error:          run.ErrorMessage,
		CreatedBy:      run.CreatedBy,
		CreatedAt:      run.CreatedAt,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
	}
}
