package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/observability"
	"github.com/xkilldash9x/uiprobe-cli/internal/reporting"
	"github.com/xkilldash9x/uiprobe-cli/internal/results"
	"github.com/xkilldash9x/uiprobe-cli/internal/store"
)

// recordSource reads the outcomes of a persisted run.
type recordSource interface {
	GetRecordsByRunID(ctx context.Context, runID string) ([]schemas.ElementOutcomeRecord, error)
}

// storeProvider creates the database backed record source. This abstraction
// lets tests inject a fake instead of a live connection.
type storeProvider interface {
	// Create returns the source, a cleanup function releasing its resources,
	// and an error if the connection fails.
	Create(ctx context.Context, cfg config.Interface) (recordSource, func(), error)
}

type defaultStoreProvider struct{}

// Create connects to PostgreSQL using the configured URL.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (recordSource, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (UIPROBE_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	st, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed")
	}
	return st, cleanup, nil
}

func newReportCmd(provider storeProvider) *cobra.Command {
	var runID string

	reportCmd := &cobra.Command{
		Use:   "report [element_results.json]",
		Short: "Summarize the outcomes of a finished run",
		Long: `Reads a run's element results, either from the JSON file the run wrote or,
with --run-id, from the database, and prints the summary report.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{bindConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			switch {
			case len(args) == 1 && runID != "":
				return fmt.Errorf("give either a results file or --run-id, not both")
			case len(args) == 0 && runID == "":
				return fmt.Errorf("a results file or --run-id is required")
			}

			var batch schemas.RunBatch
			if runID != "" {
				batch, err = batchFromStore(ctx, cfg, provider, runID)
			} else {
				batch, err = results.Load(args[0])
			}
			if err != nil {
				return err
			}
			return writeReport(cmd, cfg.Output(), batch)
		},
	}

	reportCmd.Flags().StringVar(&runID, "run-id", "", "Read the run from the database instead of a file")
	reportCmd.Flags().StringP("format", "f", "text", "Report format (text, json, html)")
	reportCmd.Flags().StringP("output", "o", "stdout", "Report destination")
	return reportCmd
}

func batchFromStore(ctx context.Context, cfg config.Interface, provider storeProvider, runID string) (schemas.RunBatch, error) {
	src, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return schemas.RunBatch{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	records, err := src.GetRecordsByRunID(ctx, runID)
	if err != nil {
		return schemas.RunBatch{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if len(records) == 0 {
		return schemas.RunBatch{}, fmt.Errorf("run %s has no recorded elements", runID)
	}
	return schemas.RunBatch{
		RunID:     runID,
		Timestamp: time.Now().Format(schemas.TimestampLayout),
		Elements:  records,
	}, nil
}

// writeReport renders batch to the configured destination. Stdout goes
// through the command's writer so it can be captured.
func writeReport(cmd *cobra.Command, out config.OutputConfig, batch schemas.RunBatch) error {
	var (
		reporter reporting.Reporter
		err      error
	)
	if out.ReportPath == "" || out.ReportPath == "stdout" {
		reporter, err = reporting.NewWithWriter(out.Format, reporting.NopCloser(cmd.OutOrStdout()))
	} else {
		reporter, err = reporting.New(out.Format, out.ReportPath)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			observability.GetLogger().Warn("Failed to close reporter cleanly", zap.Error(err))
		}
	}()

	if err := reporter.Write(batch); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
