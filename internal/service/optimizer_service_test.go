package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-optimizer/internal/dto"
	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/internal/optimizer"
	"github.com/noah-isme/course-optimizer/internal/repository"
	appErrors "github.com/noah-isme/course-optimizer/pkg/errors"
	"github.com/noah-isme/course-optimizer/pkg/jobs"
)

type runStoreStub struct {
	runs      map[string]*models.OptimizerRun
	createErr error
	listed    models.OptimizerRunFilter
}

func newRunStoreStub() *runStoreStub {
	return &runStoreStub{runs: map[string]*models.OptimizerRun{}}
}

func (r *runStoreStub) Create(ctx context.Context, run *models.OptimizerRun) error {
	if r.createErr != nil {
		return r.createErr
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.CreatedAt = time.Now().UTC()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *runStoreStub) GetByID(ctx context.Context, id string) (*models.OptimizerRun, error) {
	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("get optimizer run: %w", sql.ErrNoRows)
	}
	cp := *run
	return &cp, nil
}

func (r *runStoreStub) List(ctx context.Context, filter models.OptimizerRunFilter) ([]models.OptimizerRun, int, error) {
	r.listed = filter
	var out []models.OptimizerRun
	for _, run := range r.runs {
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		out = append(out, *run)
	}
	return out, len(out), nil
}

func (r *runStoreStub) Update(ctx context.Context, id string, params repository.UpdateOptimizerRunParams) error {
	run, ok := r.runs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		run.Status = *params.Status
	}
	if params.Score != nil {
		run.Score = *params.Score
	}
	if params.ScheduledCount != nil {
		run.ScheduledCount = *params.ScheduledCount
	}
	if params.RequestCount != nil {
		run.RequestCount = *params.RequestCount
	}
	if params.FailedCount != nil {
		run.FailedCount = *params.FailedCount
	}
	if params.StatusLine != nil {
		run.StatusLine = *params.StatusLine
	}
	if params.Failures != nil {
		run.Failures = *params.Failures
	}
	if params.ErrorMessage != nil {
		run.ErrorMessage = params.ErrorMessage
	}
	if params.StartedAt != nil {
		run.StartedAt = params.StartedAt
	}
	if params.CompletedAt != nil {
		run.CompletedAt = params.CompletedAt
	}
	return nil
}

func (r *runStoreStub) ListQueued(ctx context.Context, limit int) ([]models.OptimizerRun, error) {
	var queued []models.OptimizerRun
	for _, run := range r.runs {
		if run.Status == models.OptimizerRunQueued {
			queued = append(queued, *run)
		}
	}
	return queued, nil
}

type sinkStub struct {
	saved map[string]*optimizer.Outcome
	err   error
}

func (s *sinkStub) Save(ctx context.Context, runID string, outcome *optimizer.Outcome) error {
	if s.err != nil {
		return s.err
	}
	if s.saved == nil {
		s.saved = map[string]*optimizer.Outcome{}
	}
	s.saved[runID] = outcome
	return nil
}

type resultReaderStub struct {
	results map[string][]models.OptimizerResult
}

func (r resultReaderStub) ListByRun(ctx context.Context, runID string) ([]models.OptimizerResult, error) {
	return r.results[runID], nil
}

type locationsStub []models.Location

func (l locationsStub) ListLocations(ctx context.Context) ([]models.Location, error) {
	return l, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type optimizerFixture struct {
	svc      *OptimizerService
	runs     *runStoreStub
	provider *providerStub
	sink     *sinkStub
	queue    *queueStub
	cache    *cacheStub
	metrics  *MetricsService
	results  resultReaderStub
}

func newOptimizerFixture(t *testing.T) *optimizerFixture {
	t.Helper()
	f := &optimizerFixture{
		runs:     newRunStoreStub(),
		provider: &providerStub{tables: sampleTables(intPtr(100))},
		sink:     &sinkStub{},
		queue:    &queueStub{},
		cache:    newCacheStub(),
		metrics:  NewMetricsService(),
		results:  resultReaderStub{results: map[string][]models.OptimizerResult{}},
	}
	exporter, _ := newExportServiceForTest(t)
	runner := NewRunner(f.metrics, f.cache, RunnerConfig{StatusInterval: time.Millisecond, StatusTTL: time.Minute}, zap.NewNop())
	f.svc = NewOptimizerService(OptimizerServiceDeps{
		Runs:      f.runs,
		Results:   f.results,
		Locations: locationsStub{{ID: 1, Code: "HQ"}},
		Providers: map[string]DataProvider{SourceDB: f.provider},
		Sink:      f.sink,
		Runner:    runner,
		Queue:     f.queue,
		Exporter:  exporter,
		Cache:     f.cache,
		Metrics:   f.metrics,
		Logger:    zap.NewNop(),
	}, OptimizerServiceConfig{Defaults: optimizer.DefaultOptions(), InstructorRole: 3, MaxRetries: 2})
	return f
}

func validStartRequest() dto.StartOptimizerRunRequest {
	return dto.StartOptimizerRunRequest{
		Priority:    models.PriorityDefault,
		WindowStart: "2024-01-08",
		WindowEnd:   "2024-01-19",
		Options:     map[string]interface{}{"timeout": "30s"},
	}
}

func requireAppError(t *testing.T, err error, want *appErrors.Error) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, want.Code, appErr.Code)
	return appErr
}

func (f *optimizerFixture) queuedRun(t *testing.T, priority models.OptimizerPriority) *models.OptimizerRun {
	t.Helper()
	run := &models.OptimizerRun{
		Priority:    priority,
		WindowStart: testMonday,
		WindowEnd:   testMonday.AddDate(0, 0, 11),
		Source:      SourceDB,
		Status:      models.OptimizerRunQueued,
		CreatedBy:   "planner-1",
	}
	require.NoError(t, f.runs.Create(context.Background(), run))
	return run
}

func TestOptimizerServiceStartQueuesRun(t *testing.T) {
	f := newOptimizerFixture(t)

	resp, err := f.svc.Start(context.Background(), validStartRequest(), "planner-1")
	require.NoError(t, err)
	assert.Equal(t, models.OptimizerRunQueued, resp.Status)
	assert.Equal(t, SourceDB, resp.Source)
	assert.Equal(t, "2024-01-08", resp.WindowStart)

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, resp.ID, f.queue.jobs[0].ID)
	assert.Equal(t, OptimizerJobType, f.queue.jobs[0].Type)

	stored := f.runs.runs[resp.ID]
	require.NotNil(t, stored)
	assert.JSONEq(t, `{"timeout":"30s"}`, string(stored.Options))
	assert.Equal(t, "planner-1", stored.CreatedBy)
}

func TestOptimizerServiceStartValidation(t *testing.T) {
	cases := map[string]func(*dto.StartOptimizerRunRequest){
		"unknown priority":   func(r *dto.StartOptimizerRunRequest) { r.Priority = "FASTEST" },
		"missing start":      func(r *dto.StartOptimizerRunRequest) { r.WindowStart = "" },
		"malformed end":      func(r *dto.StartOptimizerRunRequest) { r.WindowEnd = "19/01/2024" },
		"end before start":   func(r *dto.StartOptimizerRunRequest) { r.WindowEnd = "2024-01-01" },
		"unconfigured csv":   func(r *dto.StartOptimizerRunRequest) { r.Source = SourceCSV },
		"unsupported source": func(r *dto.StartOptimizerRunRequest) { r.Source = "ftp" },
		"unknown option":     func(r *dto.StartOptimizerRunRequest) { r.Options = map[string]interface{}{"workers": 4} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newOptimizerFixture(t)
			req := validStartRequest()
			mutate(&req)

			_, err := f.svc.Start(context.Background(), req, "planner-1")
			requireAppError(t, err, appErrors.ErrValidation)
			assert.Empty(t, f.runs.runs)
			assert.Empty(t, f.queue.jobs)
		})
	}
}

func TestOptimizerServiceStartEnqueueFailureMarksRunFailed(t *testing.T) {
	f := newOptimizerFixture(t)
	f.queue.err = errors.New("queue stopped")

	_, err := f.svc.Start(context.Background(), validStartRequest(), "planner-1")
	requireAppError(t, err, appErrors.ErrInternal)

	require.Len(t, f.runs.runs, 1)
	for _, run := range f.runs.runs {
		assert.Equal(t, models.OptimizerRunFailed, run.Status)
		require.NotNil(t, run.ErrorMessage)
		assert.Equal(t, "failed to enqueue run", *run.ErrorMessage)
	}
}

func TestOptimizerServiceHandleCompletesRun(t *testing.T) {
	f := newOptimizerFixture(t)
	run := f.queuedRun(t, models.PriorityDefault)

	require.NoError(t, f.svc.Handle(context.Background(), jobs.Job{ID: run.ID}))

	stored := f.runs.runs[run.ID]
	assert.Equal(t, models.OptimizerRunCompleted, stored.Status)
	assert.Equal(t, 2, stored.ScheduledCount)
	assert.Equal(t, 1, stored.RequestCount)
	assert.Zero(t, stored.FailedCount)
	assert.Equal(t, 2.0, stored.Score)
	assert.JSONEq(t, `[]`, string(stored.Failures))
	assert.Contains(t, stored.StatusLine, "scheduled=2 of 2")
	require.NotNil(t, stored.StartedAt)
	require.NotNil(t, stored.CompletedAt)

	assert.Equal(t, 3, f.provider.params.InstructorRole)
	require.Contains(t, f.sink.saved, run.ID)
	assert.Len(t, f.sink.saved[run.ID].Assignments, 2)

	progress := f.cache.progress(t, run.ID)
	assert.Equal(t, models.OptimizerRunCompleted, progress.Status)
	assert.Equal(t, 2, progress.BestCount)

	snapshot := f.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.RunsStarted)
	assert.Equal(t, uint64(1), snapshot.RunsCompleted)
}

func TestOptimizerServiceHandleRecordsFailures(t *testing.T) {
	f := newOptimizerFixture(t)
	f.provider.tables.Inputs[0].NumTimesToRun = 12
	run := f.queuedRun(t, models.PriorityFirstAvailable)

	require.NoError(t, f.svc.Handle(context.Background(), jobs.Job{ID: run.ID}))

	stored := f.runs.runs[run.ID]
	assert.Equal(t, models.OptimizerRunCompleted, stored.Status)
	assert.Equal(t, 1, stored.FailedCount)

	results, err := f.svc.Results(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, results.Failures, 1)
	assert.Equal(t, int64(1), results.Failures[0].InputID)
	assert.Equal(t, 12, results.Failures[0].Requested)
	assert.Equal(t, 10, results.Failures[0].Scheduled)
	assert.NotEmpty(t, results.Failures[0].Reason)
}

func TestOptimizerServiceHandleMissingReleaseRateFailsWithoutRetry(t *testing.T) {
	f := newOptimizerFixture(t)
	f.provider.tables = sampleTables(nil)
	run := f.queuedRun(t, models.PriorityDefault)

	require.NoError(t, f.svc.Handle(context.Background(), jobs.Job{ID: run.ID}))

	stored := f.runs.runs[run.ID]
	assert.Equal(t, models.OptimizerRunFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "release rate")
	assert.Empty(t, f.sink.saved)

	assert.Equal(t, models.OptimizerRunFailed, f.cache.progress(t, run.ID).Status)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().RunsFailed)
}

func TestOptimizerServiceHandleRetriesTransientErrors(t *testing.T) {
	f := newOptimizerFixture(t)
	f.provider.err = errors.New("connection reset")
	run := f.queuedRun(t, models.PriorityDefault)

	err := f.svc.Handle(context.Background(), jobs.Job{ID: run.ID, Attempt: 0})
	require.Error(t, err)
	stored := f.runs.runs[run.ID]
	assert.Equal(t, models.OptimizerRunQueued, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "connection reset")

	err = f.svc.Handle(context.Background(), jobs.Job{ID: run.ID, Attempt: 2})
	require.Error(t, err)
	assert.Equal(t, models.OptimizerRunFailed, f.runs.runs[run.ID].Status)

	snapshot := f.metrics.Snapshot()
	assert.Equal(t, uint64(2), snapshot.RunsStarted)
	assert.Equal(t, uint64(1), snapshot.RunsFailed)
}

func TestOptimizerServiceHandleSkipsRunsThatAreNotQueued(t *testing.T) {
	f := newOptimizerFixture(t)
	run := f.queuedRun(t, models.PriorityDefault)
	f.runs.runs[run.ID].Status = models.OptimizerRunCompleted

	require.NoError(t, f.svc.Handle(context.Background(), jobs.Job{ID: run.ID}))
	assert.Zero(t, f.provider.calls)
}

func TestOptimizerServiceRunSync(t *testing.T) {
	f := newOptimizerFixture(t)

	run, outcome, err := f.svc.RunSync(context.Background(), validStartRequest(), "cli")
	require.NoError(t, err)
	assert.Equal(t, models.OptimizerRunCompleted, run.Status)
	assert.Equal(t, 2, outcome.Count)
	assert.Empty(t, f.queue.jobs)

	f.provider.tables = sampleTables(nil)
	_, _, err = f.svc.RunSync(context.Background(), validStartRequest(), "cli")
	requireAppError(t, err, appErrors.ErrPreconditionFailed)
}

func TestOptimizerServiceGetAndList(t *testing.T) {
	f := newOptimizerFixture(t)
	run := f.queuedRun(t, models.PriorityDefault)

	resp, err := f.svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, resp.ID)

	_, err = f.svc.Get(context.Background(), "missing")
	requireAppError(t, err, appErrors.ErrNotFound)

	items, pagination, err := f.svc.List(context.Background(), dto.OptimizerRunListRequest{Status: "QUEUED", PageSize: 500})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, pagination)
	require.NotNil(t, f.runs.listed.Status)

	_, _, err = f.svc.List(context.Background(), dto.OptimizerRunListRequest{Status: "DONE"})
	requireAppError(t, err, appErrors.ErrValidation)
	_, _, err = f.svc.List(context.Background(), dto.OptimizerRunListRequest{Priority: "FASTEST"})
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestOptimizerServiceStatus(t *testing.T) {
	f := newOptimizerFixture(t)
	run := f.queuedRun(t, models.PriorityDefault)

	resp, err := f.svc.Status(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OptimizerRunQueued, resp.Status)
	assert.Nil(t, resp.Progress)

	f.runs.runs[run.ID].Status = models.OptimizerRunRunning
	f.runs.runs[run.ID].StatusLine = "stale"
	require.NoError(t, f.cache.Set(context.Background(), StatusKey(run.ID), models.OptimizerProgress{
		RunID: run.ID, Status: models.OptimizerRunRunning, Line: "[run] leaves=12", Leaves: 12,
	}, time.Minute))

	resp, err = f.svc.Status(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "[run] leaves=12", resp.Line)
	require.NotNil(t, resp.Progress)
	assert.Equal(t, int64(12), resp.Progress.Leaves)

	f.cache.getErr = errors.New("redis down")
	resp, err = f.svc.Status(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "stale", resp.Line)

	snapshot := f.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(2), snapshot.CacheMisses)
}

func TestOptimizerServiceResultsRequireCompletedRun(t *testing.T) {
	f := newOptimizerFixture(t)
	run := f.queuedRun(t, models.PriorityDefault)

	_, err := f.svc.Results(context.Background(), run.ID)
	requireAppError(t, err, appErrors.ErrRunNotFinished)

	_, err = f.svc.Export(context.Background(), run.ID, dto.OptimizerExportRequest{Format: models.ReportFormatCSV})
	requireAppError(t, err, appErrors.ErrRunNotFinished)
}

func TestOptimizerServiceExportAndDownload(t *testing.T) {
	f := newOptimizerFixture(t)
	run := f.queuedRun(t, models.PriorityDefault)
	stored := f.runs.runs[run.ID]
	stored.Status = models.OptimizerRunCompleted
	stored.Failures = types.JSONText(`[{"input_id":2,"course_code":"C200","location_code":"HQ","requested":1,"scheduled":0,"will_always_fail":true,"reason":"No local room is available."}]`)
	f.results.results[run.ID] = []models.OptimizerResult{{
		ID: "res-1", RunID: run.ID, InputID: 1, CourseCode: "C100", LocationID: 1, RoomID: 10, InstructorID: "alice",
		StartDate: testMonday, EndDate: testMonday,
	}}

	resp, err := f.svc.Export(context.Background(), run.ID, dto.OptimizerExportRequest{Format: models.ReportFormatCSV})
	require.NoError(t, err)
	assert.Equal(t, models.ReportFormatCSV, resp.Format)
	require.Contains(t, resp.URL, "/api/v1/optimizer/exports/")

	token := resp.URL[strings.LastIndex(resp.URL, "/")+1:]
	download, err := f.svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.True(t, strings.HasSuffix(download.Filename, ".csv"))

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "SCHEDULED,1,C100,HQ,10,alice,2024-01-08")
	assert.Contains(t, string(body), "FAILED,2,C200,HQ")
	assert.Contains(t, string(body), "No local room is available.")

	_, err = f.svc.ResolveDownload(context.Background(), "garbage")
	requireAppError(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Export(context.Background(), run.ID, dto.OptimizerExportRequest{Format: "xlsx"})
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestOptimizerServiceRecoverPendingJobs(t *testing.T) {
	f := newOptimizerFixture(t)
	queued := f.queuedRun(t, models.PriorityDefault)
	done := f.queuedRun(t, models.PriorityDefault)
	f.runs.runs[done.ID].Status = models.OptimizerRunCompleted

	f.svc.RecoverPendingJobs(context.Background())

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, queued.ID, f.queue.jobs[0].ID)
}
