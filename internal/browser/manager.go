// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/session"
)

// ErrManagerClosed is returned when a page is requested after Shutdown.
var ErrManagerClosed = errors.New("browser manager is shut down")

// Manager handles the browser process lifecycle and page creation using Playwright.
type Manager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
	cfg     config.BrowserConfig

	pages  map[*Page]struct{}
	mu     sync.Mutex
	wg     sync.WaitGroup // tracks open pages so Shutdown can drain them
	closed bool

	// Initialization state management
	initOnce sync.Once
	initErr  error
}

const shutdownGracePeriod = 15 * time.Second

// defaultLaunchArgs keep Chromium stable inside containers.
var defaultLaunchArgs = []string{
	"--disable-gpu",
	"--no-sandbox",
	"--disable-dev-shm-usage",
}

// NewManager creates a new browser manager. Initialization is deferred until the first page is requested.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
		pages:  make(map[*Page]struct{}),
	}
	m.logger.Debug("Browser manager created (initialization deferred)")
	return m
}

// initialize starts the Playwright driver and launches the browser instance.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Initializing Playwright and launching browser")

		if err := m.ensureInstallation(ctx); err != nil {
			m.initErr = err
			return
		}

		pw, err := playwright.Run()
		if err != nil {
			m.initErr = fmt.Errorf("failed to start playwright driver: %w", err)
			return
		}
		m.pw = pw

		browser, err := pw.Chromium.Launch(m.prepareLaunchOptions())
		if err != nil {
			pw.Stop()
			m.initErr = fmt.Errorf("failed to launch browser instance: %w", err)
			return
		}
		m.browser = browser

		m.logger.Info("Browser manager initialized",
			zap.String("browser_version", browser.Version()),
			zap.Bool("headless", m.cfg.Headless))
	})
	return m.initErr
}

func (m *Manager) ensureInstallation(ctx context.Context) error {
	timeout := m.cfg.InstallTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	m.logger.Debug("Verifying Playwright browser installation")
	installCtx, installCancel := context.WithTimeout(ctx, timeout)
	defer installCancel()

	// Install blocks without a context, so it runs aside and we race it.
	installErrChan := make(chan error, 1)
	go func() {
		options := &playwright.RunOptions{Browsers: []string{"chromium"}}
		if err := playwright.Install(options); err != nil {
			installErrChan <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		installErrChan <- nil
	}()

	select {
	case err := <-installErrChan:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

func (m *Manager) prepareLaunchOptions() playwright.BrowserTypeLaunchOptions {
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.cfg.Headless),
		Args:     mergeArgs(defaultLaunchArgs, m.cfg.Args),
		Timeout:  playwright.Float(60000),
	}
}

// mergeArgs appends configured args to the defaults, dropping exact duplicates.
func mergeArgs(defaults, extra []string) []string {
	seen := make(map[string]bool, len(defaults)+len(extra))
	out := make([]string, 0, len(defaults)+len(extra))
	for _, list := range [][]string{defaults, extra} {
		for _, a := range list {
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

func (m *Manager) viewport() *playwright.Size {
	w, h := m.cfg.ViewportWidth, m.cfg.ViewportHeight
	if w <= 0 {
		w = 1280
	}
	if h <= 0 {
		h = 720
	}
	return &playwright.Size{Width: w, Height: h}
}

// NewPage opens a fresh browser context and page for targetURL. When store
// holds a usable session its cookies are injected into the context and its
// storage is applied after each navigation.
func (m *Manager) NewPage(ctx context.Context, store *session.Store, targetURL string) (*Page, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	p, err := m.openPage(ctx, store, targetURL)
	if err != nil {
		m.wg.Done()
		return nil, err
	}

	m.mu.Lock()
	m.pages[p] = struct{}{}
	m.mu.Unlock()
	p.onClose = func() {
		m.mu.Lock()
		delete(m.pages, p)
		m.mu.Unlock()
		m.wg.Done()
	}
	return p, nil
}

func (m *Manager) openPage(ctx context.Context, store *session.Store, targetURL string) (*Page, error) {
	bctx, err := m.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:          m.viewport(),
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	var state session.State
	if store != nil {
		if s, ok := store.ForURL(ctx, targetURL); ok {
			state = s
			if cookies := toPlaywrightCookies(s.Cookies, targetURL); len(cookies) > 0 {
				if err := bctx.AddCookies(cookies); err != nil {
					m.logger.Warn("Failed to inject session cookies", zap.Error(err))
				} else {
					m.logger.Info("Injected session cookies", zap.Int("count", len(cookies)))
				}
			}
		}
	}

	pg, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	// Alerts and confirms would otherwise block every later action.
	pg.OnDialog(func(d playwright.Dialog) {
		if err := d.Dismiss(); err != nil {
			m.logger.Debug("Failed to dismiss dialog", zap.Error(err))
		}
	})

	return &Page{
		page:    pg,
		context: bctx,
		storage: state,
		logger:  m.logger.Named("page"),
	}, nil
}

// Shutdown closes every open page, then the browser and the driver.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	open := make([]*Page, 0, len(m.pages))
	for p := range m.pages {
		open = append(open, p)
	}
	m.mu.Unlock()

	if m.pw == nil {
		m.logger.Debug("Manager not initialized, nothing to shut down")
		return nil
	}
	m.logger.Info("Shutting down browser manager")

	for _, p := range open {
		if err := p.Close(); err != nil {
			m.logger.Warn("Error during page close in shutdown", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	graceCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()
	select {
	case <-done:
	case <-graceCtx.Done():
		m.logger.Warn("Timeout waiting for pages to close, proceeding with forceful shutdown", zap.Error(graceCtx.Err()))
	}

	var shutdownErr error
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Error("Failed to close browser instance", zap.Error(err))
			shutdownErr = fmt.Errorf("failed to close browser: %w", err)
		}
	}
	if err := m.pw.Stop(); err != nil {
		m.logger.Error("Failed to stop Playwright driver", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = fmt.Errorf("failed to stop playwright driver: %w", err)
		}
	}

	m.logger.Info("Browser manager shutdown complete")
	return shutdownErr
}

// toPlaywrightCookies converts saved cookies for injection. Cookies without a
// domain are bound to targetURL.
func toPlaywrightCookies(cookies []session.Cookie, targetURL string) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		oc := playwright.OptionalCookie{Name: c.Name, Value: c.Value}
		if c.Domain != "" {
			oc.Domain = playwright.String(c.Domain)
			path := c.Path
			if path == "" {
				path = "/"
			}
			oc.Path = playwright.String(path)
		} else {
			if targetURL == "" {
				continue
			}
			oc.URL = playwright.String(targetURL)
		}
		if c.Expires > 0 {
			oc.Expires = playwright.Float(c.Expires)
		}
		if c.HTTPOnly {
			oc.HttpOnly = playwright.Bool(true)
		}
		if c.Secure {
			oc.Secure = playwright.Bool(true)
		}
		if ss := sameSite(c.SameSite); ss != nil {
			oc.SameSite = ss
		}
		out = append(out, oc)
	}
	return out
}

func fromPlaywrightCookies(cookies []playwright.Cookie) []session.Cookie {
	out := make([]session.Cookie, 0, len(cookies))
	for _, c := range cookies {
		sc := session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			sc.Expires = c.Expires
		}
		if c.SameSite != nil {
			sc.SameSite = string(*c.SameSite)
		}
		out = append(out, sc)
	}
	return out
}

func sameSite(v string) *playwright.SameSiteAttribute {
	switch v {
	case "Strict", "strict":
		return playwright.SameSiteAttributeStrict
	case "Lax", "lax":
		return playwright.SameSiteAttributeLax
	case "None", "none":
		return playwright.SameSiteAttributeNone
	}
	return nil
}
