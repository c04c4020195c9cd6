package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/session"
)

// defaultPostLoadWait approximates network idle, which CDP has no single event for.
const defaultPostLoadWait = 2 * time.Second

// linkScript returns every anchor target plus the targets of inline
// location.href handlers on buttons and other elements.
const linkScript = `(() => {
    const links = [];
    document.querySelectorAll('a[href]').forEach(a => { if (a.href) links.push(a.href); });
    document.querySelectorAll('[onclick*="location.href"]').forEach(el => {
        const m = (el.getAttribute('onclick') || '').match(/location\.href\s*=\s*["']([^"']*)["']/);
        if (m) links.push(m[1]);
    });
    return links;
})()`

// ChromeFetcher loads pages in a Chrome instance driven over CDP. One
// browser is shared and every page gets its own tab.
type ChromeFetcher struct {
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc

	navTimeout   time.Duration
	postLoadWait time.Duration
	visualDelay  time.Duration
	store        *session.Store
	logger       *zap.Logger
}

var _ Fetcher = (*ChromeFetcher)(nil)

// AllocatorOptions builds the Chrome launch flags from the browser settings.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.NoSandbox,
	)
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight))
	}
	for _, arg := range cfg.Args {
		if name, value, ok := splitFlag(arg); ok {
			opts = append(opts, chromedp.Flag(name, value))
		}
	}
	return opts
}

// splitFlag turns "--name=value" or "--name" into a chromedp flag.
func splitFlag(arg string) (string, interface{}, bool) {
	for len(arg) > 0 && arg[0] == '-' {
		arg = arg[1:]
	}
	if arg == "" {
		return "", nil, false
	}
	for i := 0; i < len(arg); i++ {
		if arg[i] == '=' {
			return arg[:i], arg[i+1:], true
		}
	}
	return arg, true, true
}

// NewChromeFetcher starts the browser. store may be nil; when it holds a
// session its cookies and storage are applied to every tab.
func NewChromeFetcher(ctx context.Context, bcfg config.BrowserConfig, ccfg config.CrawlerConfig, store *session.Store, logger *zap.Logger) (*ChromeFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), AllocatorOptions(bcfg)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start crawl browser: %w", err)
	}

	f := &ChromeFetcher{
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		navTimeout:    bcfg.NavigationTimeout,
		postLoadWait:  ccfg.PostLoadWait,
		store:         store,
		logger:        logger.Named("chrome_fetcher"),
	}
	if f.navTimeout <= 0 {
		f.navTimeout = 60 * time.Second
	}
	if f.postLoadWait <= 0 {
		f.postLoadWait = defaultPostLoadWait
	}
	if !bcfg.Headless {
		f.visualDelay = bcfg.VisualDelay
	}
	return f, nil
}

// Fetch opens pageURL in a fresh tab and captures it.
func (f *ChromeFetcher) Fetch(ctx context.Context, pageURL string) (Capture, error) {
	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var (
		capture Capture
		state   session.State
		loaded  bool
	)
	if f.store != nil {
		state, loaded = f.store.ForURL(ctx, pageURL)
	}

	tasks := chromedp.Tasks{network.Enable()}
	if loaded {
		if params := cookieParams(state.Cookies, pageURL); len(params) > 0 {
			tasks = append(tasks, network.SetCookies(params))
		}
	}
	tasks = append(tasks, chromedp.ActionFunc(func(c context.Context) error {
		navCtx, cancel := context.WithTimeout(c, f.navTimeout)
		defer cancel()
		return chromedp.Navigate(pageURL).Do(navCtx)
	}))
	if loaded {
		for storage, items := range map[string]map[string]string{
			"localStorage":   state.LocalStorage,
			"sessionStorage": state.SessionStorage,
		} {
			if script := session.StorageScript(storage, items); script != "" {
				tasks = append(tasks, chromedp.Evaluate(script, nil))
			}
		}
	}
	tasks = append(tasks, chromedp.Sleep(f.postLoadWait))
	if f.visualDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(f.visualDelay))
	}
	tasks = append(tasks,
		chromedp.Location(&capture.FinalURL),
		chromedp.OuterHTML("html", &capture.HTML, chromedp.ByQuery),
		chromedp.FullScreenshot(&capture.Screenshot, 100),
		chromedp.Evaluate(linkScript, &capture.Links),
	)

	if err := chromedp.Run(tabCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return Capture{}, ctx.Err()
		}
		return Capture{}, fmt.Errorf("failed to capture %s: %w", pageURL, err)
	}
	f.logger.Debug("Fetched page",
		zap.String("url", pageURL),
		zap.String("final_url", capture.FinalURL),
		zap.Int("links", len(capture.Links)))
	return capture, nil
}

// Close shuts the browser down.
func (f *ChromeFetcher) Close() {
	f.cancelBrowser()
	f.cancelAlloc()
}

// cookieParams converts saved cookies for CDP. Cookies without a domain are
// bound to pageURL.
func cookieParams(cookies []session.Cookie, pageURL string) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Domain != "" {
			p.Domain = c.Domain
			p.Path = c.Path
			if p.Path == "" {
				p.Path = "/"
			}
		} else {
			p.URL = pageURL
		}
		switch c.SameSite {
		case "Strict", "strict":
			p.SameSite = network.CookieSameSiteStrict
		case "Lax", "lax":
			p.SameSite = network.CookieSameSiteLax
		case "None", "none":
			p.SameSite = network.CookieSameSiteNone
		}
		if c.Expires > 0 {
			sec := int64(c.Expires)
			expires := cdp.TimeSinceEpoch(time.Unix(sec, int64((c.Expires-float64(sec))*1e9)))
			p.Expires = &expires
		}
		out = append(out, p)
	}
	return out
}
