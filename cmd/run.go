package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/internal/browser"
	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/discovery"
	"github.com/xkilldash9x/uiprobe-cli/internal/observability"
	"github.com/xkilldash9x/uiprobe-cli/internal/orchestrator"
	"github.com/xkilldash9x/uiprobe-cli/internal/reporting"
	"github.com/xkilldash9x/uiprobe-cli/internal/session"
	"github.com/xkilldash9x/uiprobe-cli/internal/store"
)

const shutdownTimeout = 15 * time.Second

// runComponents holds the initialized services of a run.
type runComponents struct {
	Deps    orchestrator.Dependencies
	closers []func(context.Context)
	once    sync.Once
}

// Shutdown releases the components in reverse creation order. It is safe to
// call on a nil or partially built value.
func (rc *runComponents) Shutdown() {
	if rc == nil {
		return
	}
	rc.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for i := len(rc.closers) - 1; i >= 0; i-- {
			rc.closers[i](ctx)
		}
	})
}

func (rc *runComponents) onShutdown(fn func(context.Context)) {
	rc.closers = append(rc.closers, fn)
}

// runFactory wires the components of a run. Tests swap it for fakes.
type runFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error)

func newRunCmd(factory runFactory) *cobra.Command {
	runCmd := &cobra.Command{
		Use:         "run <url>",
		Short:       "Crawl a site, test every interactive element and report the outcomes",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{bindConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			target := normalizeTarget(args[0])
			logger.Info("Starting run",
				zap.String("url", target),
				zap.Int("max_depth", cfg.Crawler().MaxDepth),
				zap.Bool("single_page", cfg.Crawler().SinglePage),
				zap.Bool("execute", cfg.Executor().Enabled))

			components, err := factory(ctx, cfg, logger)
			if err != nil {
				components.Shutdown()
				return fmt.Errorf("failed to initialize run components: %w", err)
			}
			defer components.Shutdown()

			if cfg.Executor().Visual && cfg.Executor().Enabled {
				skips, release := interrupts.claim()
				defer release()
				components.Deps.Interrupts = skips
				fmt.Fprintln(cmd.ErrOrStderr(), "Visual mode: press Ctrl+C to skip the current page, twice quickly to stop the run.")
			}

			orch, err := orchestrator.New(cfg, logger, components.Deps)
			if err != nil {
				return fmt.Errorf("failed to create orchestrator: %w", err)
			}

			res, err := orch.Run(ctx, target)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted, partial results kept", zap.String("results", res.ResultsPath))
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nRun complete. Run ID: %s\n", res.RunID)
			if res.ResultsPath != "" {
				fmt.Fprintf(out, "Results: %s\n", res.ResultsPath)
			}
			if len(res.Scripts) > 0 {
				fmt.Fprintf(out, "Scripts: %d written to %s\n", len(res.Scripts), cfg.Output().ScriptsDir)
			}
			return nil
		},
	}

	runCmd.Flags().IntP("depth", "d", 3, "Maximum crawl depth (overrides config/env)")
	runCmd.Flags().Bool("single-page", false, "Only test the given page, do not follow links")
	runCmd.Flags().Bool("include-subdomains", false, "Follow links into subdomains of the target's registrable domain")
	runCmd.Flags().Int("max-pages", 200, "Stop crawling after this many pages")
	runCmd.Flags().Bool("no-exec", false, "Analyze pages without executing the interactions")
	runCmd.Flags().Bool("headed", false, "Show the browsers while they work")
	runCmd.Flags().Bool("visual", false, "Watch a headed run step by step; Ctrl+C skips the current page")
	runCmd.Flags().Bool("render-scripts", false, "Also write a standalone Playwright script per page")
	runCmd.Flags().StringP("format", "f", "text", "Summary report format (text, json, html)")
	runCmd.Flags().StringP("output", "o", "stdout", "Summary report destination")
	runCmd.Flags().String("session-file", "session_state.json", "Saved browser session to inject")
	return runCmd
}

// normalizeTarget adds a scheme to bare hosts.
func normalizeTarget(target string) string {
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return "https://" + target
	}
	return target
}

// managerOpener hands out playwright pages carrying the saved session.
type managerOpener struct {
	manager *browser.Manager
	store   *session.Store
}

func (o *managerOpener) NewPage(ctx context.Context, url string) (orchestrator.PageHandle, error) {
	p, err := o.manager.NewPage(ctx, o.store, url)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// defaultRunFactory connects the real browsers, database and reporter.
func defaultRunFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	rc := &runComponents{}
	sessions := session.NewStore(cfg.Session().File, cfg.Session().LockTimeout, logger)

	fetcher, err := discovery.NewChromeFetcher(ctx, cfg.Browser(), cfg.Crawler(), sessions, logger)
	if err != nil {
		return rc, err
	}
	rc.onShutdown(func(context.Context) { fetcher.Close() })

	out := cfg.Output()
	rc.Deps.Crawler = discovery.NewCrawler(cfg.Crawler(),
		discovery.Directories{Screenshots: out.ScreenshotsDir, HTML: out.HTMLDir},
		fetcher, logger)

	if cfg.Executor().Enabled {
		manager := browser.NewManager(cfg.Browser(), logger)
		rc.onShutdown(func(ctx context.Context) {
			if err := manager.Shutdown(ctx); err != nil {
				logger.Warn("Error during browser manager shutdown", zap.Error(err))
			}
		})
		rc.Deps.Opener = &managerOpener{manager: manager, store: sessions}
	}

	if url := cfg.Database().URL; url != "" {
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return rc, fmt.Errorf("failed to connect to database: %w", err)
		}
		rc.onShutdown(func(context.Context) { pool.Close() })
		st, err := store.New(ctx, pool, logger)
		if err != nil {
			return rc, fmt.Errorf("failed to initialize database store: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			return rc, err
		}
		rc.Deps.Persister = st
	}

	reporter, err := reporting.New(out.Format, out.ReportPath)
	if err != nil {
		return rc, fmt.Errorf("failed to initialize reporter: %w", err)
	}
	rc.onShutdown(func(context.Context) {
		if err := reporter.Close(); err != nil {
			logger.Error("Failed to close reporter", zap.Error(err))
		}
	})
	rc.Deps.Reporter = reporter
	return rc, nil
}
