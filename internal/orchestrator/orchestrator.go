// Package orchestrator drives one exploratory run: crawl the site, find the
// interactive elements of every captured page, optionally render standalone
// scripts, exercise the plans against a live browser and report the outcomes.
// It is injected with its components through small interfaces so each stage
// can be replaced in tests.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/discovery"
	"github.com/xkilldash9x/uiprobe-cli/internal/executor"
	"github.com/xkilldash9x/uiprobe-cli/internal/fileio"
	"github.com/xkilldash9x/uiprobe-cli/internal/reporting"
	"github.com/xkilldash9x/uiprobe-cli/internal/results"
	"github.com/xkilldash9x/uiprobe-cli/internal/script"
)

// Crawler discovers the pages of a site.
type Crawler interface {
	Crawl(ctx context.Context, baseURL string) ([]discovery.PageSnapshot, error)
}

// PageHandle is a live page owned by the caller until Close.
type PageHandle interface {
	executor.Page
	Close() error
}

// PageOpener hands out live pages for execution.
type PageOpener interface {
	NewPage(ctx context.Context, url string) (PageHandle, error)
}

// Persister stores a finished batch.
type Persister interface {
	PersistBatch(ctx context.Context, batch schemas.RunBatch) error
}

// Dependencies are the components of a run. Crawler is required; the others
// are optional and their stage is skipped when nil.
type Dependencies struct {
	Crawler   Crawler
	Opener    PageOpener
	Persister Persister
	Reporter  reporting.Reporter
	// Tracker collects outcomes. A fresh one is created when nil.
	Tracker *results.Tracker
	// Interrupts, when set, stops the page being exercised on every receive
	// and moves on to the next one.
	Interrupts <-chan struct{}
}

// Result describes a finished run.
type Result struct {
	RunID       string
	Pages       []discovery.PageSnapshot
	Analyses    []Analysis
	Scripts     []string
	ResultsPath string
	Summary     schemas.RunSummary
}

// Orchestrator manages the lifecycle of a run.
type Orchestrator struct {
	cfg    config.Interface
	logger *zap.Logger
	deps   Dependencies
	exec   *executor.Executor
}

// New creates an orchestrator from its configuration and components.
func New(cfg config.Interface, logger *zap.Logger, deps Dependencies) (*Orchestrator, error) {
	if cfg == nil || logger == nil || deps.Crawler == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if deps.Tracker == nil {
		deps.Tracker = results.NewTracker(logger)
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: logger.Named("orchestrator"),
		deps:   deps,
		exec:   executor.New(executor.OptionsFromConfig(cfg), logger),
	}, nil
}

// WithExecutor replaces the executor, mainly to inject a screenshot comparer.
func (o *Orchestrator) WithExecutor(e *executor.Executor) *Orchestrator {
	o.exec = e
	return o
}

// Run executes the whole workflow for baseURL. Failures of individual pages
// are logged and the run continues; the run fails only when nothing could be
// crawled or the context ends.
func (o *Orchestrator) Run(ctx context.Context, baseURL string) (Result, error) {
	tracker := o.deps.Tracker
	res := Result{RunID: tracker.RunID()}
	log := o.logger.With(zap.String("run_id", res.RunID), zap.String("base_url", baseURL))
	log.Info("Orchestrator starting run")

	pages, err := o.deps.Crawler.Crawl(ctx, baseURL)
	if len(pages) == 0 {
		if err == nil {
			err = discovery.ErrNoSnapshot
		}
		return res, fmt.Errorf("crawl failed: %w", err)
	}
	if err != nil {
		log.Warn("Crawl ended early, continuing with captured pages",
			zap.Int("pages", len(pages)), zap.Error(err))
	}
	res.Pages = pages

	analyses, err := o.analyze(ctx, pages)
	if err != nil {
		return res, err
	}
	res.Analyses = analyses

	if o.cfg.Output().RenderScripts {
		res.Scripts = o.renderScripts(analyses)
	}

	execErr := o.execute(ctx, analyses)

	// Whatever was recorded is kept even when the run was interrupted.
	saveCtx := context.WithoutCancel(ctx)
	if dir := o.cfg.Output().ResultsDir; dir != "" {
		path, err := tracker.Save(saveCtx, dir)
		if err != nil {
			log.Error("Failed to save element results", zap.Error(err))
		}
		res.ResultsPath = path
	}

	batch := tracker.Batch()
	res.Summary = batch.Summarize()

	if o.deps.Persister != nil && len(batch.Elements) > 0 {
		if err := o.deps.Persister.PersistBatch(saveCtx, batch); err != nil {
			log.Error("Failed to persist run", zap.Error(err))
		}
	}
	if o.deps.Reporter != nil {
		if err := o.deps.Reporter.Write(batch); err != nil {
			log.Error("Failed to write report", zap.Error(err))
		}
	}

	log.Info("Run finished",
		zap.Int("pages", len(pages)),
		zap.Int("records", res.Summary.Total),
		zap.Int("successful", res.Summary.Successful))
	return res, execErr
}

// analyze runs element discovery over the snapshots with bounded
// parallelism. Results keep the crawl order.
func (o *Orchestrator) analyze(ctx context.Context, pages []discovery.PageSnapshot) ([]Analysis, error) {
	acfg := o.cfg.Analysis()
	out := make([]Analysis, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	if acfg.Concurrency > 0 {
		g.SetLimit(acfg.Concurrency)
	}
	for i, p := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = AnalyzePage(p.URL, p.HTML, acfg.FallbackThreshold, o.logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// renderScripts writes one script per page. Pages that fail to render are
// logged and skipped.
func (o *Orchestrator) renderScripts(analyses []Analysis) []string {
	dir := o.cfg.Output().ScriptsDir
	opts := ScriptOptions(o.cfg)
	var paths []string
	for _, a := range analyses {
		src, err := script.RenderWith(a.Plan, opts)
		if err != nil {
			o.logger.Error("Failed to render script", zap.String("url", a.URL), zap.Error(err))
			continue
		}
		path := filepath.Join(dir, ScriptName(a.URL))
		if err := fileio.WriteAtomic(path, []byte(src), fileio.DefaultFileMode); err != nil {
			o.logger.Error("Failed to write script", zap.String("path", path), zap.Error(err))
			continue
		}
		paths = append(paths, path)
	}
	o.logger.Info("Rendered test scripts", zap.Int("scripts", len(paths)), zap.String("dir", dir))
	return paths
}

// execute runs the plans one page at a time against fresh live pages.
func (o *Orchestrator) execute(ctx context.Context, analyses []Analysis) error {
	if !o.cfg.Executor().Enabled || o.deps.Opener == nil {
		return ctx.Err()
	}
	for _, a := range analyses {
		if err := ctx.Err(); err != nil {
			o.logger.Info("Execution interrupted", zap.Error(err))
			return err
		}
		if len(a.Plan.Actionable()) == 0 {
			o.logger.Debug("No interactive elements, skipping page", zap.String("url", a.URL))
			continue
		}
		pageCtx, cancel := context.WithCancel(ctx)
		o.watchInterrupts(pageCtx, cancel)
		err := o.executePage(pageCtx, a.Plan)
		cancel()
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, context.Canceled) {
			o.logger.Warn("Page stopped by user, moving to the next page", zap.String("url", a.URL))
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		o.logger.Error("Page execution failed", zap.String("url", a.URL), zap.Error(err))
	}
	return nil
}

// watchInterrupts cancels the page context on the next interrupt. The watcher
// ends with the page.
func (o *Orchestrator) watchInterrupts(pageCtx context.Context, cancel context.CancelFunc) {
	if o.deps.Interrupts == nil {
		return
	}
	go func() {
		select {
		case <-o.deps.Interrupts:
			cancel()
		case <-pageCtx.Done():
		}
	}()
}

func (o *Orchestrator) executePage(ctx context.Context, plan schemas.PagePlan) error {
	page, err := o.deps.Opener.NewPage(ctx, plan.URL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			o.logger.Warn("Failed to close page", zap.String("url", plan.URL), zap.Error(cerr))
		}
	}()

	stats, err := o.exec.RunPlan(ctx, page, plan, o.deps.Tracker)
	o.logger.Info("Page exercised",
		zap.String("url", plan.URL),
		zap.Int("attempted", stats.Attempted),
		zap.Int("succeeded", stats.Succeeded))
	return err
}

// ScriptName is the file name of the rendered script for a page.
func ScriptName(pageURL string) string {
	return "test_" + fileio.SafeName(pageURL) + ".py"
}

// ScriptOptions derives the rendering options from the configuration, so
// rendered scripts launch the browser the way the executor does.
func ScriptOptions(cfg config.Interface) script.Options {
	opts := script.DefaultOptions()
	b := cfg.Browser()
	opts.Headless = b.Headless
	if len(b.Args) > 0 {
		opts.Args = b.Args
	}
	if b.ViewportWidth > 0 && b.ViewportHeight > 0 {
		opts.ViewportWidth = b.ViewportWidth
		opts.ViewportHeight = b.ViewportHeight
	}
	e := cfg.Executor()
	if e.VisualDiffThreshold > 0 {
		opts.Threshold = e.VisualDiffThreshold
	}
	if e.ActionTimeout > 0 {
		opts.ActionTimeout = int(e.ActionTimeout.Milliseconds())
	}
	return opts
}
