package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/pkg/export"
	"github.com/noah-isme/course-optimizer/pkg/storage"
)

type reportStore interface {
	Save(runID, name string, data []byte) (string, error)
	Open(rel string) (*os.File, error)
	Prune(maxAge time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// RunReport is everything printed in a run report.
type RunReport struct {
	Run         models.OptimizerRun
	Assignments []models.OptimizerResult
	Failures    []models.OptimizerFailure
	// Locations maps location IDs to codes. Unknown IDs are printed as numbers.
	Locations map[int64]string
}

// ExportService renders run reports and persists them for signed download.
type ExportService struct {
	store  reportStore
	csv    csvRenderer
	pdf    pdfRenderer
	signer *storage.DownloadSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, doc export.Document) ([]byte, error)
}

// NewExportService constructs an ExportService. store and signer may be nil when reports are
// only rendered, as the CLI does.
func NewExportService(store reportStore, signer *storage.DownloadSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter(',')
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		store:  store,
		csv:    csv,
		pdf:    pdf,
		signer: signer,
		logger: logger,
		cfg:    cfg,
	}
}

// Render produces the report bytes in the requested format.
func (s *ExportService) Render(report RunReport, format models.ReportFormat) ([]byte, error) {
	dataset := reportDataset(report)
	switch format {
	case models.ReportFormatCSV:
		return s.csv.Render(dataset)
	case models.ReportFormatPDF:
		return s.pdf.Render(dataset, reportDocument(report.Run))
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
}

// Generate renders the report, stores it and signs a download link.
func (s *ExportService) Generate(ctx context.Context, report RunReport, format models.ReportFormat) (*ExportResult, error) {
	if s.store == nil || s.signer == nil {
		return nil, fmt.Errorf("export storage is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := s.Render(report, format)
	if err != nil {
		return nil, err
	}

	relPath, err := s.store.Save(sanitizeFilename(report.Run.ID), s.buildFilename(report.Run, format), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Sign(sanitizeFilename(report.Run.ID), relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("optimizer report exported",
		zap.String("run_id", report.Run.ID),
		zap.String("format", string(format)),
		zap.String("path", relPath),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/optimizer/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// VerifyToken checks a download token and returns the report it grants.
func (s *ExportService) VerifyToken(token string) (storage.DownloadGrant, error) {
	if s.signer == nil {
		return storage.DownloadGrant{}, fmt.Errorf("export signer is not configured")
	}
	return s.signer.Verify(token)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	if s.store == nil {
		return nil, os.ErrNotExist
	}
	return s.store.Open(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if s.store == nil {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.store.Prune(ttl)
}

func (s *ExportService) buildFilename(run models.OptimizerRun, format models.ReportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("optimizer_%s_%s_%s.%s", strings.ToLower(string(run.Priority)), sanitizeFilename(run.ID), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

const (
	statusScheduled = "SCHEDULED"
	statusFailed    = "FAILED"
)

var reportHeaders = []string{
	"Status", "Input", "Course", "Location", "Room", "Instructor",
	"Start Date", "End Date", "Start Time", "End Time", "Local Instructor", "Reason",
}

func reportDataset(report RunReport) export.Dataset {
	dataset := export.Dataset{Headers: reportHeaders}
	location := func(id int64) string {
		if code, ok := report.Locations[id]; ok {
			return code
		}
		return fmt.Sprintf("%d", id)
	}
	for _, a := range report.Assignments {
		dataset.Append(
			statusScheduled,
			fmt.Sprintf("%d", a.InputID),
			a.CourseCode,
			location(a.LocationID),
			fmt.Sprintf("%d", a.RoomID),
			a.InstructorID,
			a.StartDate.Format("2006-01-02"),
			a.EndDate.Format("2006-01-02"),
			a.StartTime.String(),
			a.EndTime.String(),
			yesNo(a.UsingLocalInstructor),
			"",
		)
	}
	for _, f := range report.Failures {
		reason := f.Reason
		if f.Scheduled > 0 {
			reason = fmt.Sprintf("%s (%d of %d scheduled)", reason, f.Scheduled, f.Requested)
		}
		dataset.Append(
			statusFailed,
			fmt.Sprintf("%d", f.InputID),
			f.CourseCode,
			f.LocationCode,
			"", "", "", "", "", "", "",
			reason,
		)
	}
	return dataset
}

func reportDocument(run models.OptimizerRun) export.Document {
	summary := []string{
		fmt.Sprintf("Run: %s", run.ID),
		fmt.Sprintf("Window: %s to %s", run.WindowStart.Format("2006-01-02"), run.WindowEnd.Format("2006-01-02")),
		fmt.Sprintf("Scheduled: %d   Requests: %d   Failed: %d   Score: %g", run.ScheduledCount, run.RequestCount, run.FailedCount, run.Score),
	}
	if run.StatusLine != "" {
		summary = append(summary, run.StatusLine)
	}
	return export.Document{
		Title:     fmt.Sprintf("Optimizer Report %s", strings.ReplaceAll(string(run.Priority), "_", " ")),
		Summary:   summary,
		Highlight: failedRow,
	}
}

func failedRow(row []string) bool {
	return len(row) > 0 && row[0] == statusFailed
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
