package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/pkg/storage"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.ReportStore) {
	t.Helper()
	store, err := storage.NewReportStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewDownloadSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	return NewExportService(store, signer, cfg, zap.NewNop(), nil, nil), store
}

func sampleReport() RunReport {
	return RunReport{
		Run: models.OptimizerRun{
			ID:             "run-1",
			Priority:       models.PriorityMinimizeForeignInstructorCount,
			WindowStart:    testMonday,
			WindowEnd:      testMonday.AddDate(0, 0, 11),
			Status:         models.OptimizerRunCompleted,
			Score:          1,
			ScheduledCount: 1,
			RequestCount:   2,
			FailedCount:    1,
			StatusLine:     "scheduled=1 of 3",
		},
		Assignments: []models.OptimizerResult{{
			InputID: 1, CourseCode: "C100", LocationID: 1, RoomID: 10, InstructorID: "alice",
			StartDate: testMonday, EndDate: testMonday.AddDate(0, 0, 1),
			StartTime: models.TimeOfDay(8 * time.Hour), EndTime: models.TimeOfDay(16 * time.Hour),
			UsingLocalInstructor: true,
		}},
		Failures: []models.OptimizerFailure{
			{InputID: 1, CourseCode: "C100", LocationCode: "HQ", Requested: 2, Scheduled: 1, Reason: "Only scheduled 1 of 2 occurrences."},
			{InputID: 2, CourseCode: "C200", LocationCode: "FAR", Requested: 1, WillAlwaysFail: true, Reason: "No instructor is available."},
		},
		Locations: map[int64]string{1: "HQ"},
	}
}

func TestExportServiceRenderCSV(t *testing.T) {
	svc := NewExportService(nil, nil, ExportConfig{}, nil, nil, nil)

	payload, err := svc.Render(sampleReport(), models.ReportFormatCSV)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Status,Input,Course,Location,Room,Instructor,Start Date,End Date,Start Time,End Time,Local Instructor,Reason", lines[0])
	assert.Equal(t, "SCHEDULED,1,C100,HQ,10,alice,2024-01-08,2024-01-09,08:00,16:00,yes,", lines[1])
	assert.Contains(t, lines[2], "FAILED,1,C100,HQ")
	assert.Contains(t, lines[2], "(1 of 2 scheduled)")
	assert.True(t, strings.HasSuffix(lines[3], "No instructor is available."))
}

func TestExportServiceRenderRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(nil, nil, ExportConfig{}, nil, nil, nil)
	_, err := svc.Render(sampleReport(), "xlsx")
	require.Error(t, err)
}

func TestExportServiceGeneratePDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	result, err := svc.Generate(context.Background(), sampleReport(), models.ReportFormatPDF)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.RelativePath, "run-1/optimizer_minimize_foreign_instructor_count_run-1_"))
	assert.True(t, strings.HasSuffix(result.RelativePath, ".pdf"))
	assert.Equal(t, "/api/v1/optimizer/exports/"+result.Token, result.URL)

	info, err := os.Stat(locate(t, store, result.RelativePath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	grant, err := svc.VerifyToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "run-1", grant.RunID)
	assert.Equal(t, result.RelativePath, grant.Path)

	file, err := svc.Open(grant.Path)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}

func TestExportServiceGenerateRequiresStorage(t *testing.T) {
	svc := NewExportService(nil, nil, ExportConfig{}, nil, nil, nil)

	_, err := svc.Generate(context.Background(), sampleReport(), models.ReportFormatCSV)
	require.Error(t, err)

	_, err = svc.VerifyToken("token")
	require.Error(t, err)

	_, err = svc.Open("run-1/report.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)

	removed, err := svc.Cleanup(time.Minute)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestExportServiceCleanup(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	result, err := svc.Generate(context.Background(), sampleReport(), models.ReportFormatCSV)
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(locate(t, store, result.RelativePath), old, old))

	removed, err := svc.Cleanup(0)
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	_, err = os.Stat(locate(t, store, result.RelativePath))
	assert.True(t, os.IsNotExist(err))
}

func locate(t *testing.T, store *storage.ReportStore, rel string) string {
	t.Helper()
	full, err := store.Locate(rel)
	require.NoError(t, err)
	return full
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "na", sanitizeFilename(""))
	assert.Equal(t, "a-b_c-d", sanitizeFilename("a/b c:d"))
	assert.Len(t, sanitizeFilename(strings.Repeat("x", 150)), 100)
}

func TestReportDocumentHighlightsFailedRows(t *testing.T) {
	doc := reportDocument(models.OptimizerRun{ID: "run-1", Priority: models.OptimizerPriority("DEFAULT")})
	require.NotNil(t, doc.Highlight)
	assert.True(t, doc.Highlight([]string{statusFailed, "2"}))
	assert.False(t, doc.Highlight([]string{statusScheduled, "1"}))
	assert.False(t, doc.Highlight(nil))
	assert.Equal(t, "Optimizer Report DEFAULT", doc.Title)
}
