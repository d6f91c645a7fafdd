package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/course-optimizer/internal/csvio"
	"github.com/noah-isme/course-optimizer/internal/optimizer"
	"github.com/noah-isme/course-optimizer/internal/repository"
	"github.com/noah-isme/course-optimizer/internal/service"
	"github.com/noah-isme/course-optimizer/pkg/database"
)

type validateOptions struct {
	source  string
	dataDir string
}

func newValidateCmd(a *app) *cobra.Command {
	o := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "check the input data for references a run cannot resolve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.dataDir == "" {
				o.dataDir = a.cfg.Optimizer.DataDir
			}
			return o.execute(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.source, "source", service.SourceCSV, "where to read the data from: csv or db")
	cmd.Flags().StringVar(&o.dataDir, "data-dir", "", "directory of CSV files (default OPTIMIZER_DATA_DIR)")
	return cmd
}

func (o *validateOptions) execute(ctx context.Context, a *app, w io.Writer) error {
	var (
		tables *optimizer.Tables
		err    error
	)
	switch o.source {
	case service.SourceCSV:
		tables, err = csvio.NewProvider(o.dataDir, ',', a.logger).ReadTables(ctx)
	case service.SourceDB:
		tables, err = o.readDB(ctx, a, w)
	default:
		return fmt.Errorf("--source must be csv or db")
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%d courses, %d instructors, %d rooms, %d locations, %d requests\n",
		len(tables.Courses), len(tables.Instructors), len(tables.Rooms), len(tables.Locations), len(tables.Inputs))
	issues := tables.Issues()
	for _, issue := range issues {
		fmt.Fprintln(w, "  "+issue)
	}
	if len(issues) > 0 {
		return fmt.Errorf("%d issues found", len(issues))
	}
	fmt.Fprintln(w, "no issues found")
	return nil
}

func (o *validateOptions) readDB(ctx context.Context, a *app, w io.Writer) (*optimizer.Tables, error) {
	db, err := database.NewPostgres(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	defer db.Close() //nolint:errcheck

	inputs := repository.NewOptimizerInputRepository(db)
	pending, err := inputs.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "%d pending requests in the database\n", pending)

	provider := service.NewSQLDataProvider(repository.NewCatalogRepository(db), repository.NewCommitmentRepository(db), inputs, nil, a.logger)
	today := optimizer.Day(time.Now())
	return provider.ReadTables(ctx, service.LoadParams{
		WindowStart:    today,
		WindowEnd:      today,
		InstructorRole: a.cfg.Optimizer.InstructorRole,
	})
}
