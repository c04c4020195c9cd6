package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/internal/browser/parser"
	"github.com/xkilldash9x/uiprobe-cli/internal/executor"
	"github.com/xkilldash9x/uiprobe-cli/internal/session"
)

// Page adapts a Playwright page to executor.Page. Playwright calls do not
// take a context, so each call checks ctx first and relies on its own timeout.
type Page struct {
	page    playwright.Page
	context playwright.BrowserContext
	storage session.State
	logger  *zap.Logger

	onClose   func()
	closeOnce sync.Once
	closeErr  error
}

var _ executor.Page = (*Page)(nil)

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

// locator resolves a selector, turning a trailing :nth-match(N) into an
// index on the base locator.
func (p *Page) locator(selector string) playwright.Locator {
	base, n := parser.SplitNthMatch(selector)
	if n > 0 {
		return p.page.Locator(base).Nth(n - 1)
	}
	return p.page.Locator(selector)
}

// Goto navigates and waits for the network to go idle. Saved storage is
// written into the new document afterwards.
func (p *Page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   ms(timeout),
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	p.applyStorage()
	return nil
}

func (p *Page) applyStorage() {
	for storage, items := range map[string]map[string]string{
		"localStorage":   p.storage.LocalStorage,
		"sessionStorage": p.storage.SessionStorage,
	} {
		script := session.StorageScript(storage, items)
		if script == "" {
			continue
		}
		if _, err := p.page.Evaluate(script); err != nil {
			p.logger.Debug("Could not apply saved storage", zap.String("storage", storage), zap.Error(err))
		}
	}
}

func (p *Page) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: ms(timeout),
	})
}

func (p *Page) URL() string { return p.page.URL() }

func (p *Page) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Title()
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{Path: playwright.String(path)})
	return err
}

func (p *Page) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.locator(selector).Click(playwright.LocatorClickOptions{Timeout: ms(timeout)})
}

func (p *Page) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.locator(selector).Fill(value, playwright.LocatorFillOptions{Timeout: ms(timeout)})
}

func (p *Page) Check(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.locator(selector).Check(playwright.LocatorCheckOptions{Timeout: ms(timeout)})
}

// SelectOption picks an option by index. Option values are site specific,
// an index is not.
func (p *Page) SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	index := optionIndex(value)
	_, err := p.locator(selector).SelectOption(
		playwright.SelectOptionValues{Indexes: &[]int{index}},
		playwright.LocatorSelectOptionOptions{Timeout: ms(timeout)},
	)
	return err
}

func (p *Page) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.locator(selector).IsVisible()
}

// Submit submits the form directly, bypassing buttons that may be hidden.
func (p *Page) Submit(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.locator(selector).Evaluate(
		`form => form.requestSubmit ? form.requestSubmit() : form.submit()`,
		nil,
		playwright.LocatorEvaluateOptions{Timeout: ms(timeout)},
	)
	return err
}

// Wait sleeps for d or until ctx is done.
func (p *Page) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CaptureSession reads cookies and both storages from the live page.
func (p *Page) CaptureSession(ctx context.Context) (session.State, error) {
	state := session.Empty()
	if err := ctx.Err(); err != nil {
		return state, err
	}
	cookies, err := p.context.Cookies()
	if err != nil {
		return state, fmt.Errorf("failed to read cookies: %w", err)
	}
	state.Cookies = fromPlaywrightCookies(cookies)
	state.Domain = session.Host(p.page.URL())

	for storage, dst := range map[string]map[string]string{
		"localStorage":   state.LocalStorage,
		"sessionStorage": state.SessionStorage,
	} {
		raw, err := p.page.Evaluate(session.CaptureScript(storage))
		if err != nil {
			p.logger.Warn("Could not capture storage", zap.String("storage", storage), zap.Error(err))
			continue
		}
		items, _ := raw.(map[string]interface{})
		for k, v := range items {
			if s, ok := v.(string); ok {
				dst[k] = s
			}
		}
	}
	return state, nil
}

// Close releases the page and its browser context. It is safe to call twice.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		if err := p.context.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			p.closeErr = fmt.Errorf("failed to close browser context: %w", err)
		}
		if p.onClose != nil {
			p.onClose()
		}
	})
	return p.closeErr
}

// optionIndex parses a planned select value. Anything unusable selects the
// second option, the first being a placeholder on most sites.
func optionIndex(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 1
	}
	return n
}
