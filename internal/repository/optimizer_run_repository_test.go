package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-optimizer/internal/models"
)

var runColumnNames = []string{"id", "priority", "window_start", "window_end", "source", "options", "status", "score", "scheduled_count", "request_count",
	"failed_count", "status_line", "failures", "error_message", "created_by", "created_at", "started_at", "completed_at"}

func runRow(rows *sqlmock.Rows, id string, status models.OptimizerRunStatus) *sqlmock.Rows {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	return rows.AddRow(id, "DEFAULT", start, start.AddDate(0, 0, 11), "db", `{"timeout":"30s"}`, string(status), 3.0, 3, 4, 1, "", `[]`, nil, "planner-1", start, nil, nil)
}

func TestOptimizerRunRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newOptimizerRepoMock(t)
	defer cleanup()
	repo := NewOptimizerRunRepository(db)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO optimizer_runs")).
		WithArgs(sqlmock.AnyArg(), "DEFAULT", start, start.AddDate(0, 0, 11), "db", sqlmock.AnyArg(), "QUEUED",
			0.0, 0, 0, 0, "", sqlmock.AnyArg(), nil, "planner-1", sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.OptimizerRun{
		Priority:    models.PriorityDefault,
		WindowStart: start,
		WindowEnd:   start.AddDate(0, 0, 11),
		Source:      "db",
		CreatedBy:   "planner-1",
	}
	require.NoError(t, repo.Create(context.Background(), run))
	require.NotEmpty(t, run.ID)
	assert.Equal(t, "{}", string(run.Options))
	assert.Equal(t, "[]", string(run.Failures))

	mock.ExpectQuery(regexp.QuoteMeta("FROM optimizer_runs WHERE id = $1")).
		WithArgs(run.ID).
		WillReturnRows(runRow(sqlmock.NewRows(runColumnNames), run.ID, models.OptimizerRunQueued))

	fetched, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)
	assert.Equal(t, models.OptimizerRunQueued, fetched.Status)
	assert.JSONEq(t, `{"timeout":"30s"}`, string(fetched.Options))
	assert.Nil(t, fetched.ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOptimizerRunRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newOptimizerRepoMock(t)
	defer cleanup()
	repo := NewOptimizerRunRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM optimizer_runs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestOptimizerRunRepositoryList(t *testing.T) {
	db, mock, cleanup := newOptimizerRepoMock(t)
	defer cleanup()
	repo := NewOptimizerRunRepository(db)

	status := models.OptimizerRunCompleted
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM optimizer_runs WHERE status = $1")).
		WithArgs("COMPLETED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("FROM optimizer_runs WHERE status = $1 ORDER BY created_at DESC LIMIT 2 OFFSET 2")).
		WithArgs("COMPLETED").
		WillReturnRows(runRow(sqlmock.NewRows(runColumnNames), "run-3", status))

	runs, total, err := repo.List(context.Background(), models.OptimizerRunFilter{Status: &status, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-3", runs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOptimizerRunRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newOptimizerRepoMock(t)
	defer cleanup()
	repo := NewOptimizerRunRepository(db)

	now := time.Now()
	status := models.OptimizerRunCompleted
	score := 2.5
	scheduled := 4
	mock.ExpectExec(regexp.QuoteMeta("UPDATE optimizer_runs SET status = $1, score = $2, scheduled_count = $3, completed_at = $4 WHERE id = $5")).
		WithArgs("COMPLETED", score, scheduled, now, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "run-1", UpdateOptimizerRunParams{
		Status:         &status,
		Score:          &score,
		ScheduledCount: &scheduled,
		CompletedAt:    &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOptimizerRunRepositoryUpdateWithoutChangesIsNoop(t *testing.T) {
	db, mock, cleanup := newOptimizerRepoMock(t)
	defer cleanup()
	repo := NewOptimizerRunRepository(db)

	require.NoError(t, repo.Update(context.Background(), "run-1", UpdateOptimizerRunParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOptimizerRunRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newOptimizerRepoMock(t)
	defer cleanup()
	repo := NewOptimizerRunRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM optimizer_runs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(runRow(sqlmock.NewRows(runColumnNames), "run-1", models.OptimizerRunQueued))

	runs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
