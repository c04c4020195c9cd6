// Package discovery walks a site breadth first and captures a snapshot of
// every in-scope page it reaches.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/fileio"
)

// ErrNoSnapshot is returned when the crawl could not capture a single page.
var ErrNoSnapshot = errors.New("no page snapshot could be captured")

// Capture is what a fetcher returns for one page load.
type Capture struct {
	FinalURL   string
	HTML       string
	Screenshot []byte
	// Links are raw link targets found on the page, possibly relative.
	Links []string
}

// Fetcher loads a page in a browser.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Capture, error)
}

// PageSnapshot is one captured page.
type PageSnapshot struct {
	URL            string `json:"url"`
	HTML           string `json:"-"`
	ScreenshotPath string `json:"screenshot"`
	HTMLPath       string `json:"html_file"`
	Depth          int    `json:"depth"`
}

// Directories says where snapshot artifacts go.
type Directories struct {
	Screenshots string
	HTML        string
}

// Package level definition for ignored extensions
var ignoredExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
	".woff": {}, ".woff2": {}, ".ico": {}, ".svg": {}, ".ttf": {}, ".eot": {},
	".pdf": {}, ".zip": {}, ".mp4": {}, ".mp3": {},
}

type crawlTask struct {
	URL   string
	Depth int
}

// Crawler runs the breadth-first crawl. It is single use per Crawl call but
// holds no state between calls.
type Crawler struct {
	cfg        config.CrawlerConfig
	dirs       Directories
	fetcher    Fetcher
	logger     *zap.Logger
	newLimiter func() *rate.Limiter
	newBackOff func() backoff.BackOff
}

// NewCrawler creates a crawler using fetcher to load pages.
func NewCrawler(cfg config.CrawlerConfig, dirs Directories, fetcher Fetcher, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Crawler{
		cfg:     cfg,
		dirs:    dirs,
		fetcher: fetcher,
		logger:  logger.Named("crawler"),
	}
	c.newLimiter = func() *rate.Limiter {
		if cfg.Throttle <= 0 {
			return rate.NewLimiter(rate.Inf, 1)
		}
		return rate.NewLimiter(rate.Every(cfg.Throttle), 1)
	}
	c.newBackOff = func() backoff.BackOff {
		attempts := cfg.MaxAttempts
		if attempts <= 0 {
			attempts = 1
		}
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.RetryInterval), uint64(attempts-1))
	}
	return c
}

// Crawl visits baseURL and, unless single page mode is on, every in-scope
// page reachable from it within the configured depth. Pages that fail every
// attempt are logged and skipped. ErrNoSnapshot is returned when nothing was
// captured at all.
func (c *Crawler) Crawl(ctx context.Context, baseURL string) ([]PageSnapshot, error) {
	start, err := NormalizeURL(baseURL, "")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	scope, err := NewScope(start, c.cfg.IncludeSubdomains)
	if err != nil {
		return nil, err
	}

	log := c.logger.With(zap.String("base_url", start))
	log.Info("Starting crawl",
		zap.Int("max_depth", c.cfg.MaxDepth),
		zap.Bool("single_page", c.cfg.SinglePage))

	limiter := c.newLimiter()
	visited := map[string]bool{}
	queue := []crawlTask{{URL: start}}
	var (
		pages   []PageSnapshot
		lastErr error
	)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		if c.cfg.MaxPages > 0 && len(pages) >= c.cfg.MaxPages {
			log.Info("Page limit reached", zap.Int("max_pages", c.cfg.MaxPages))
			break
		}

		task := queue[0]
		queue = queue[1:]
		if visited[task.URL] || task.Depth > c.cfg.MaxDepth {
			continue
		}
		visited[task.URL] = true

		if err := limiter.Wait(ctx); err != nil {
			return pages, err
		}

		capture, err := c.fetch(ctx, task.URL)
		if err != nil {
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			lastErr = err
			log.Error("Giving up on page", zap.String("url", task.URL), zap.Error(err))
			continue
		}

		pageURL := task.URL
		if final, err := NormalizeURL(capture.FinalURL, ""); err == nil && final != pageURL {
			if visited[final] {
				log.Debug("Redirected to a visited page", zap.String("url", pageURL), zap.String("final_url", final))
				continue
			}
			visited[final] = true
			pageURL = final
		}

		snap, err := c.save(pageURL, task.Depth, capture)
		if err != nil {
			log.Warn("Failed to save page artifacts", zap.String("url", pageURL), zap.Error(err))
		}
		pages = append(pages, snap)
		log.Info("Captured page", zap.String("url", pageURL), zap.Int("depth", task.Depth))

		if c.cfg.SinglePage {
			continue
		}
		for _, next := range c.links(scope, pageURL, capture.Links) {
			if !visited[next] {
				queue = append(queue, crawlTask{URL: next, Depth: task.Depth + 1})
			}
		}
	}

	if len(pages) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoSnapshot, lastErr)
		}
		return nil, ErrNoSnapshot
	}
	log.Info("Crawl finished", zap.Int("pages", len(pages)))
	return pages, nil
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) (Capture, error) {
	var (
		capture Capture
		attempt int
	)
	operation := func() error {
		attempt++
		res, err := c.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("Failed to process page",
				zap.String("url", pageURL),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.cfg.MaxAttempts),
				zap.Error(err))
			return err
		}
		capture = res
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return Capture{}, err
	}
	return capture, nil
}

// save writes the screenshot and HTML of a page next to each other under
// the configured directories, named after the page URL.
func (c *Crawler) save(pageURL string, depth int, capture Capture) (PageSnapshot, error) {
	snap := PageSnapshot{URL: pageURL, HTML: capture.HTML, Depth: depth}
	name := fileio.SafeName(pageURL)

	var errs []error
	if c.dirs.Screenshots != "" && len(capture.Screenshot) > 0 {
		path := filepath.Join(c.dirs.Screenshots, name+".png")
		if err := fileio.WriteAtomic(path, capture.Screenshot, fileio.DefaultFileMode); err != nil {
			errs = append(errs, err)
		} else {
			snap.ScreenshotPath = path
		}
	}
	if c.dirs.HTML != "" {
		path := filepath.Join(c.dirs.HTML, name+".html")
		if err := fileio.WriteAtomic(path, []byte(capture.HTML), fileio.DefaultFileMode); err != nil {
			errs = append(errs, err)
		} else {
			snap.HTMLPath = path
		}
	}
	return snap, errors.Join(errs...)
}

// links resolves, normalizes and scope-filters raw link targets, keeping
// first-seen order and dropping duplicates.
func (c *Crawler) links(scope *Scope, pageURL string, raw []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, link := range raw {
		next, err := NormalizeURL(link, pageURL)
		if err != nil || seen[next] {
			continue
		}
		u, err := url.Parse(next)
		if err != nil || !scope.IsInScope(u) {
			continue
		}
		seen[next] = true
		out = append(out, next)
	}
	return out
}

// NormalizeURL resolves rawURL against base (when relative), drops the query
// and fragment and trims trailing slashes. Only http and https URLs pointing
// at documents are accepted.
func NormalizeURL(rawURL, base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if !u.IsAbs() {
		if base == "" {
			return "", fmt.Errorf("relative URL without base: %s", rawURL)
		}
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("invalid base URL provided: %w", err)
		}
		u = b.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL has no host: %s", rawURL)
	}
	if _, ignore := ignoredExtensions[strings.ToLower(filepath.Ext(u.Path))]; ignore {
		return "", fmt.Errorf("static asset ignored: %s", rawURL)
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""
	u.ForceQuery = false
	return strings.TrimRight(u.String(), "/"), nil
}
