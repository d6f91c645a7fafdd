package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/noah-isme/course-optimizer/internal/csvio"
	"github.com/noah-isme/course-optimizer/internal/dto"
	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/internal/optimizer"
	"github.com/noah-isme/course-optimizer/internal/repository"
	"github.com/noah-isme/course-optimizer/internal/service"
	"github.com/noah-isme/course-optimizer/pkg/database"
)

type runOptions struct {
	start      string
	end        string
	priority   string
	source     string
	dataDir    string
	timeout    time.Duration
	showSetup  bool
	seedGreedy bool
	report     string
	out        string
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "optimize the pending course requests for a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.applyDefaults(cmd, a)
			return o.execute(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.start, "start", "", "first day of the window, YYYY-MM-DD (default OPTIMIZER_WINDOW_START)")
	cmd.Flags().StringVar(&o.end, "end", "", "last day of the window, YYYY-MM-DD (default OPTIMIZER_WINDOW_END)")
	cmd.Flags().StringVarP(&o.priority, "priority", "p", "", "objective, e.g. FIRST_AVAILABLE or DEFAULT (default OPTIMIZER_PRIORITY)")
	cmd.Flags().StringVar(&o.source, "source", service.SourceCSV, "where to read the data from: csv or db")
	cmd.Flags().StringVar(&o.dataDir, "data-dir", "", "directory of CSV files (default OPTIMIZER_DATA_DIR)")
	cmd.Flags().DurationVarP(&o.timeout, "timeout", "t", 0, "stop searching after this long and keep the best answer (default OPTIMIZER_TIMEOUT)")
	cmd.Flags().BoolVar(&o.showSetup, "show-setup", false, "log the loaded problem before searching")
	cmd.Flags().BoolVar(&o.seedGreedy, "seed-greedy", true, "seed the exhaustive search with the greedy answer")
	cmd.Flags().StringVar(&o.report, "report", "", "also write a report: csv or pdf")
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "report file (default optimizer_report.<format>)")
	return cmd
}

func (o *runOptions) applyDefaults(cmd *cobra.Command, a *app) {
	defaults := a.cfg.Optimizer
	if o.start == "" {
		o.start = defaults.WindowStart
	}
	if o.end == "" {
		o.end = defaults.WindowEnd
	}
	if o.priority == "" {
		o.priority = defaults.Priority
	}
	if o.dataDir == "" {
		o.dataDir = defaults.DataDir
	}
	flags := cmd.Flags()
	if !flags.Changed("timeout") {
		o.timeout = defaults.Timeout
	}
	if !flags.Changed("show-setup") {
		o.showSetup = defaults.ShowSetup
	}
	if !flags.Changed("seed-greedy") {
		o.seedGreedy = defaults.SeedWithGreedy
	}
	if o.report != "" && o.out == "" {
		o.out = "optimizer_report." + o.report
	}
}

func (o *runOptions) params(instructorRole int) (service.LoadParams, error) {
	priority := models.OptimizerPriority(o.priority)
	if !priority.Valid() {
		return service.LoadParams{}, fmt.Errorf("unknown priority %q", o.priority)
	}
	start, err := time.Parse("2006-01-02", o.start)
	if err != nil {
		return service.LoadParams{}, fmt.Errorf("--start must be YYYY-MM-DD: %w", err)
	}
	end, err := time.Parse("2006-01-02", o.end)
	if err != nil {
		return service.LoadParams{}, fmt.Errorf("--end must be YYYY-MM-DD: %w", err)
	}
	if end.Before(start) {
		return service.LoadParams{}, fmt.Errorf("--end %s is before --start %s", o.end, o.start)
	}
	return service.LoadParams{WindowStart: start, WindowEnd: end, Priority: priority, InstructorRole: instructorRole}, nil
}

func (o *runOptions) execute(ctx context.Context, a *app, w io.Writer) error {
	if o.report != "" && !models.ReportFormat(o.report).Valid() {
		return fmt.Errorf("--report must be csv or pdf")
	}
	params, err := o.params(a.cfg.Optimizer.InstructorRole)
	if err != nil {
		return err
	}

	var (
		run     *models.OptimizerRun
		outcome *optimizer.Outcome
	)
	switch o.source {
	case service.SourceCSV:
		run, outcome, err = o.runCSV(ctx, a, params)
	case service.SourceDB:
		run, outcome, err = o.runDB(ctx, a)
	default:
		return fmt.Errorf("--source must be csv or db")
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(w, service.SummaryLine(outcome))
	failures := service.FailuresOf(outcome)
	for _, f := range failures {
		fmt.Fprintf(w, "  input %d %s at %s: %s\n", f.InputID, f.CourseCode, f.LocationCode, f.Reason)
	}

	if o.report == "" {
		return nil
	}
	exporter := service.NewExportService(nil, nil, service.ExportConfig{}, a.logger, nil, nil)
	payload, err := exporter.Render(service.RunReport{
		Run:         *run,
		Assignments: outcome.Assignments,
		Failures:    failures,
		Locations:   locationCodes(outcome),
	}, models.ReportFormat(o.report))
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := os.WriteFile(o.out, payload, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(w, "report written to %s\n", o.out)
	return nil
}

func (o *runOptions) options() optimizer.Options {
	return optimizer.Options{SeedWithGreedy: o.seedGreedy, Timeout: o.timeout, ShowSetup: o.showSetup}
}

func (o *runOptions) runCSV(ctx context.Context, a *app, params service.LoadParams) (*models.OptimizerRun, *optimizer.Outcome, error) {
	provider := csvio.NewProvider(o.dataDir, ',', a.logger)
	runner := service.NewRunner(nil, nil, service.RunnerConfig{StatusInterval: a.cfg.Optimizer.StatusInterval}, a.logger)

	runID := uuid.NewString()
	outcome, err := runner.Run(ctx, provider, runID, params, o.options())
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	run := &models.OptimizerRun{
		ID:             runID,
		Priority:       params.Priority,
		WindowStart:    params.WindowStart,
		WindowEnd:      params.WindowEnd,
		Source:         service.SourceCSV,
		Status:         models.OptimizerRunCompleted,
		Score:          outcome.Score,
		ScheduledCount: outcome.Count,
		RequestCount:   len(outcome.Inputs),
		FailedCount:    len(outcome.Failed()),
		StatusLine:     service.SummaryLine(outcome),
		CreatedBy:      "cli",
		CreatedAt:      now,
		CompletedAt:    &now,
	}
	return run, outcome, nil
}

// runDB records the run in Postgres like the API does, but executes it inline.
func (o *runOptions) runDB(ctx context.Context, a *app) (*models.OptimizerRun, *optimizer.Outcome, error) {
	db, err := database.NewPostgres(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close() //nolint:errcheck

	catalog := repository.NewCatalogRepository(db)
	results := repository.NewOptimizerResultRepository(db)
	svc := service.NewOptimizerService(service.OptimizerServiceDeps{
		Runs:      repository.NewOptimizerRunRepository(db),
		Results:   results,
		Locations: catalog,
		Providers: map[string]service.DataProvider{
			service.SourceDB: service.NewSQLDataProvider(catalog, repository.NewCommitmentRepository(db), repository.NewOptimizerInputRepository(db), nil, a.logger),
		},
		Sink:   service.NewSQLResultSink(results, nil),
		Runner: service.NewRunner(nil, nil, service.RunnerConfig{StatusInterval: a.cfg.Optimizer.StatusInterval}, a.logger),
		Logger: a.logger,
	}, service.OptimizerServiceConfig{
		Defaults:       o.options(),
		InstructorRole: a.cfg.Optimizer.InstructorRole,
	})

	return svc.RunSync(ctx, dto.StartOptimizerRunRequest{
		Priority:    models.OptimizerPriority(o.priority),
		WindowStart: o.start,
		WindowEnd:   o.end,
		Source:      service.SourceDB,
	}, "cli")
}

func locationCodes(outcome *optimizer.Outcome) map[int64]string {
	codes := make(map[int64]string, len(outcome.Inputs))
	for _, in := range outcome.Inputs {
		if in.LocationID == 0 {
			continue
		}
		codes[in.LocationID] = in.LocationCode
	}
	return codes
}
