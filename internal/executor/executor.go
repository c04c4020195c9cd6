// Package executor runs interaction plans against a live page, one step at a
// time, and records an outcome per element.
package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/fileio"
	"github.com/xkilldash9x/uiprobe-cli/internal/visualdiff"
)

// Page is the page automation handle the executor drives. Every blocking
// call carries its own timeout.
type Page interface {
	Goto(ctx context.Context, url string, timeout time.Duration) error
	WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error
	URL() string
	Title(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, path string) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	Check(ctx context.Context, selector string, timeout time.Duration) error
	SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error
	IsVisible(ctx context.Context, selector string) (bool, error)
	Submit(ctx context.Context, selector string, timeout time.Duration) error
	Wait(ctx context.Context, d time.Duration) error
}

// Recorder receives raw outcomes. results.Tracker implements it.
type Recorder interface {
	Record(rec schemas.ElementOutcomeRecord) schemas.ElementOutcomeRecord
}

// Options bound every wait the executor performs.
type Options struct {
	NavigationTimeout   time.Duration
	ActionTimeout       time.Duration
	IdleTimeout         time.Duration
	ResetTimeout        time.Duration
	SettleDelay         time.Duration
	VisualDiffThreshold float64
	ScreenshotsDir      string
	// StepDelay pauses after every step so an operator can follow a headed run.
	StepDelay time.Duration
}

// DefaultOptions matches the configuration defaults.
func DefaultOptions() Options {
	return Options{
		NavigationTimeout:   30 * time.Second,
		ActionTimeout:       3 * time.Second,
		IdleTimeout:         5 * time.Second,
		ResetTimeout:        5 * time.Second,
		SettleDelay:         500 * time.Millisecond,
		VisualDiffThreshold: visualdiff.DefaultThreshold,
		ScreenshotsDir:      "screenshots",
	}
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg config.Interface) Options {
	exec := cfg.Executor()
	opts := Options{
		NavigationTimeout:   cfg.Browser().NavigationTimeout,
		ActionTimeout:       exec.ActionTimeout,
		IdleTimeout:         exec.IdleTimeout,
		ResetTimeout:        exec.ResetTimeout,
		SettleDelay:         exec.SettleDelay,
		VisualDiffThreshold: exec.VisualDiffThreshold,
		ScreenshotsDir:      cfg.Output().ScreenshotsDir,
	}
	if exec.Visual {
		opts.StepDelay = cfg.Browser().VisualDelay
	}
	return opts
}

// Stats counts what happened on one page.
type Stats struct {
	Attempted int
	Succeeded int
}

// CompareFunc decides whether two screenshots differ.
type CompareFunc func(before, after string, threshold float64) schemas.TriState

// Executor runs plans. It holds no per-page state, so one Executor can serve
// pages sequentially.
type Executor struct {
	opts    Options
	compare CompareFunc
	logger  *zap.Logger
}

// New creates an executor.
func New(opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{opts: opts, compare: visualdiff.Compare, logger: logger.Named("executor")}
}

// WithCompare replaces the screenshot comparison.
func (e *Executor) WithCompare(fn CompareFunc) *Executor {
	e.compare = fn
	return e
}

// RunPlan navigates to the plan's page and exercises each step in order.
// Step failures become failed records and never stop the page; only context
// cancellation ends it early, and that is the only error returned.
func (e *Executor) RunPlan(ctx context.Context, page Page, plan schemas.PagePlan, rec Recorder) (Stats, error) {
	var stats Stats
	logger := e.logger.With(zap.String("url", plan.URL))
	prefix := fileio.SafeName(plan.URL)

	if err := page.Goto(ctx, plan.URL, e.opts.NavigationTimeout); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, ctxErr
		}
		logger.Warn("Initial navigation failed", zap.Error(err))
		rec.Record(pageFailure(plan.URL, "Initial page navigation", err))
		return stats, nil
	}
	e.settle(ctx, page, e.opts.NavigationTimeout)

	if err := page.Screenshot(ctx, e.shot(prefix, "initial_page")); err != nil {
		logger.Debug("Initial screenshot failed", zap.Error(err))
	}
	if title, err := page.Title(ctx); err != nil || title == "" {
		if err == nil {
			err = errors.New("Page title should not be empty")
		}
		rec.Record(pageFailure(plan.URL, "Page title verification", err))
	}

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			logger.Info("Execution interrupted", zap.Int("remaining_steps", len(plan.Steps)-i))
			return stats, err
		}
		if step.Kind == schemas.StepMarker {
			logger.Debug("Testing form", zap.String("selector", step.Selector))
			continue
		}

		stats.Attempted++
		out, err := e.runStep(ctx, page, plan.URL, prefix, i+1, step)
		if err != nil {
			return stats, err
		}
		if out.Success {
			stats.Succeeded++
		}
		stored := rec.Record(out)
		logger.Debug("Step finished",
			zap.Int("step", i+1),
			zap.String("role", string(step.Role)),
			zap.String("selector", step.Selector),
			zap.Bool("success", stored.Success),
			zap.Bool("is_working", stored.IsWorking))

		if e.opts.StepDelay > 0 {
			if err := page.Wait(ctx, e.opts.StepDelay); err != nil && ctx.Err() != nil {
				return stats, ctx.Err()
			}
		}
	}

	logger.Info("Page execution complete",
		zap.Int("attempted", stats.Attempted),
		zap.Int("succeeded", stats.Succeeded))
	return stats, nil
}

// runStep performs one step. The returned error is non-nil only when ctx ended.
func (e *Executor) runStep(ctx context.Context, page Page, original, prefix string, index int, step schemas.InteractionStep) (schemas.ElementOutcomeRecord, error) {
	out := schemas.ElementOutcomeRecord{
		PageURL:     original,
		ElementType: step.Role,
		Selector:    step.Selector,
		Description: step.Description,
	}
	fail := func(err error) (schemas.ElementOutcomeRecord, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		msg := err.Error()
		out.ErrorMessage = &msg
		return out, nil
	}

	name := fmt.Sprintf("%s_%d", step.Role, index)
	before := e.shot(prefix, name+"_before")
	haveBefore := e.capture(ctx, page, before)
	if err := ctx.Err(); err != nil {
		return out, err
	}

	var (
		beforeURL, beforeTitle string
		navigates              = step.Navigates()
	)
	if navigates {
		beforeURL = page.URL()
		beforeTitle, _ = page.Title(ctx)
	}

	if err := e.perform(ctx, page, step); err != nil {
		return fail(err)
	}

	if navigates {
		e.settle(ctx, page, e.opts.IdleTimeout)
	}
	if err := page.Wait(ctx, e.opts.SettleDelay); err != nil {
		return fail(err)
	}

	after := e.shot(prefix, name+"_after")
	if navigates {
		afterURL := page.URL()
		afterTitle, _ := page.Title(ctx)
		out.PageChangeDetected = afterURL != beforeURL || afterTitle != beforeTitle
	}
	haveAfter := e.capture(ctx, page, after)
	if err := ctx.Err(); err != nil {
		return out, err
	}

	if navigates {
		if err := page.Goto(ctx, original, e.opts.ResetTimeout); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			e.logger.Warn("Could not navigate back to the page", zap.String("url", original), zap.Error(err))
		}
		e.settle(ctx, page, e.opts.IdleTimeout)
	}

	out.Success = true
	if haveBefore {
		out.ScreenshotBefore = &before
	}
	if haveAfter {
		out.ScreenshotAfter = &after
	}
	// Without both images the visual signal stays undetermined.
	if haveBefore && haveAfter {
		out.VisualChangeDetected = e.compare(before, after, e.opts.VisualDiffThreshold)
	}
	return out, nil
}

// capture takes a screenshot and reports whether it was written. A failed
// screenshot never fails the step.
func (e *Executor) capture(ctx context.Context, page Page, path string) bool {
	if err := page.Screenshot(ctx, path); err != nil {
		if ctx.Err() == nil {
			e.logger.Debug("Screenshot failed", zap.String("path", path), zap.Error(err))
		}
		return false
	}
	return true
}

func (e *Executor) perform(ctx context.Context, page Page, step schemas.InteractionStep) error {
	timeout := e.opts.ActionTimeout
	switch step.Kind {
	case schemas.StepFill, schemas.StepSlide:
		return page.Fill(ctx, step.Selector, step.Value, timeout)
	case schemas.StepCheck:
		return page.Check(ctx, step.Selector, timeout)
	case schemas.StepSelectOption:
		return page.SelectOption(ctx, step.Selector, step.Value, timeout)
	case schemas.StepDetect:
		visible, err := page.IsVisible(ctx, step.Selector)
		if err != nil {
			return err
		}
		e.logger.Debug("Detected element", zap.String("selector", step.Selector), zap.Bool("visible", visible))
		return nil
	case schemas.StepSubmit:
		return page.Submit(ctx, step.Selector, timeout)
	default:
		return page.Click(ctx, step.Selector, timeout)
	}
}

// settle waits for network quiescence. A timeout is expected on busy pages
// and only logged.
func (e *Executor) settle(ctx context.Context, page Page, timeout time.Duration) {
	if err := page.WaitForNetworkIdle(ctx, timeout); err != nil && ctx.Err() == nil {
		e.logger.Debug("Network idle wait error", zap.Error(err))
	}
}

func (e *Executor) shot(prefix, name string) string {
	return filepath.Join(e.opts.ScreenshotsDir, prefix+"_"+name+".png")
}

func pageFailure(url, description string, err error) schemas.ElementOutcomeRecord {
	msg := err.Error()
	return schemas.ElementOutcomeRecord{
		PageURL:      url,
		ElementType:  schemas.RolePage,
		Selector:     "N/A",
		Description:  description,
		ErrorMessage: &msg,
	}
}
