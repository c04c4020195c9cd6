package discovery

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/session"
)

// fakeSite serves canned captures keyed by URL. failures counts down the
// number of failing attempts left for a URL.
type fakeSite struct {
	mu       sync.Mutex
	pages    map[string]Capture
	failures map[string]int
	fetched  []string
}

func (s *fakeSite) Fetch(ctx context.Context, u string) (Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, u)
	if n := s.failures[u]; n > 0 {
		s.failures[u] = n - 1
		return Capture{}, errors.New("net::ERR_CONNECTION_RESET")
	}
	c, ok := s.pages[u]
	if !ok {
		return Capture{}, errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	if c.FinalURL == "" {
		c.FinalURL = u
	}
	if c.HTML == "" {
		c.HTML = "<html><head><title>" + u + "</title></head><body></body></html>"
	}
	return c, nil
}

func newTestCrawler(t *testing.T, cfg config.CrawlerConfig, site Fetcher) (*Crawler, Directories) {
	t.Helper()
	root := t.TempDir()
	dirs := Directories{Screenshots: filepath.Join(root, "shots"), HTML: filepath.Join(root, "html")}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	c := NewCrawler(cfg, dirs, site, zaptest.NewLogger(t))
	c.newLimiter = func() *rate.Limiter { return rate.NewLimiter(rate.Inf, 1) }
	c.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(cfg.MaxAttempts-1))
	}
	return c, dirs
}

func urlsOf(pages []PageSnapshot) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.URL
	}
	return out
}

func TestCrawlBreadthFirst(t *testing.T) {
	site := &fakeSite{pages: map[string]Capture{
		"https://app.test": {Links: []string{
			"https://app.test/b",
			"/a#section",
			"https://elsewhere.test/x",
			"mailto:team@app.test",
			"https://app.test/logo.png",
		}},
		"https://app.test/a":      {Links: []string{"https://app.test/a/deep", "https://app.test/"}},
		"https://app.test/b":      {Screenshot: []byte("png")},
		"https://app.test/a/deep": {},
	}}
	c, dirs := newTestCrawler(t, config.CrawlerConfig{MaxDepth: 3}, site)

	pages, err := c.Crawl(context.Background(), "https://app.test/?utm=1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://app.test",
		"https://app.test/b",
		"https://app.test/a",
		"https://app.test/a/deep",
	}, urlsOf(pages))
	assert.Equal(t, 2, pages[3].Depth)

	assert.Equal(t, filepath.Join(dirs.Screenshots, "app.test_b.png"), pages[1].ScreenshotPath)
	assert.Empty(t, pages[0].ScreenshotPath, "no screenshot bytes, no file")
	data, err := os.ReadFile(pages[0].HTMLPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<title>https://app.test</title>")
	assert.NotContains(t, site.fetched, "https://elsewhere.test/x")
}

func TestCrawlDepthLimit(t *testing.T) {
	site := &fakeSite{pages: map[string]Capture{
		"https://app.test":     {Links: []string{"https://app.test/1"}},
		"https://app.test/1":   {Links: []string{"https://app.test/1/2"}},
		"https://app.test/1/2": {},
	}}
	c, _ := newTestCrawler(t, config.CrawlerConfig{MaxDepth: 1}, site)

	pages, err := c.Crawl(context.Background(), "https://app.test")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.test", "https://app.test/1"}, urlsOf(pages))
}

func TestCrawlSinglePage(t *testing.T) {
	site := &fakeSite{pages: map[string]Capture{
		"https://app.test": {Links: []string{"https://app.test/1"}},
	}}
	c, _ := newTestCrawler(t, config.CrawlerConfig{MaxDepth: 3, SinglePage: true}, site)

	pages, err := c.Crawl(context.Background(), "https://app.test")
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.Equal(t, []string{"https://app.test"}, site.fetched)
}

func TestCrawlRetriesThenSucceeds(t *testing.T) {
	site := &fakeSite{
		pages:    map[string]Capture{"https://app.test": {}},
		failures: map[string]int{"https://app.test": 2},
	}
	c, _ := newTestCrawler(t, config.CrawlerConfig{MaxAttempts: 3}, site)

	pages, err := c.Crawl(context.Background(), "https://app.test")
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.Len(t, site.fetched, 3)
}

func TestCrawlNoSnapshot(t *testing.T) {
	site := &fakeSite{pages: map[string]Capture{}}
	c, _ := newTestCrawler(t, config.CrawlerConfig{MaxAttempts: 2}, site)

	_, err := c.Crawl(context.Background(), "https://down.test")
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.Len(t, site.fetched, 2)
}

func TestCrawlRedirectToVisited(t *testing.T) {
	site := &fakeSite{pages: map[string]Capture{
		"https://app.test":       {Links: []string{"https://app.test/login"}},
		"https://app.test/login": {FinalURL: "https://app.test/"},
	}}
	c, _ := newTestCrawler(t, config.CrawlerConfig{MaxDepth: 2}, site)

	pages, err := c.Crawl(context.Background(), "https://app.test")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.test"}, urlsOf(pages))
}

func TestCrawlMaxPages(t *testing.T) {
	site := &fakeSite{pages: map[string]Capture{
		"https://app.test":   {Links: []string{"https://app.test/1", "https://app.test/2"}},
		"https://app.test/1": {},
		"https://app.test/2": {},
	}}
	c, _ := newTestCrawler(t, config.CrawlerConfig{MaxDepth: 2, MaxPages: 2}, site)

	pages, err := c.Crawl(context.Background(), "https://app.test")
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestCrawlCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _ := newTestCrawler(t, config.CrawlerConfig{}, &fakeSite{})
	_, err := c.Crawl(ctx, "https://app.test")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		raw, base, want string
		wantErr         bool
	}{
		{raw: "https://app.test/a/?q=1#top", want: "https://app.test/a"},
		{raw: "https://app.test/", want: "https://app.test"},
		{raw: "b/c", base: "https://app.test/a/", want: "https://app.test/a/b/c"},
		{raw: "/x", base: "https://app.test/a", want: "https://app.test/x"},
		{raw: "/x", wantErr: true},
		{raw: "javascript:void(0)", base: "https://app.test", wantErr: true},
		{raw: "https://app.test/site.CSS", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.raw, tt.base)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestScope(t *testing.T) {
	strict, err := NewScope("https://www.example.co.uk:8443/app", false)
	require.NoError(t, err)
	sub, err := NewScope("https://www.example.co.uk/app", true)
	require.NoError(t, err)
	assert.Equal(t, "example.co.uk", sub.RootDomain())

	parse := func(s string) *url.URL {
		u, err := url.Parse(s)
		require.NoError(t, err)
		return u
	}
	assert.True(t, strict.IsInScope(parse("https://WWW.example.co.uk:8443/x")))
	assert.False(t, strict.IsInScope(parse("https://www.example.co.uk/x")), "port is part of the host")
	assert.False(t, strict.IsInScope(parse("https://api.example.co.uk:8443/x")))

	assert.True(t, sub.IsInScope(parse("https://api.example.co.uk/x")))
	assert.True(t, sub.IsInScope(parse("https://example.co.uk/")))
	assert.False(t, sub.IsInScope(parse("https://notexample.co.uk/")))

	local, err := NewScope("http://localhost:3000", true)
	require.NoError(t, err)
	assert.True(t, local.IsInScope(parse("http://localhost:3000/a")))

	_, err = NewScope("/relative", false)
	assert.Error(t, err)
}

func TestCookieParams(t *testing.T) {
	params := cookieParams([]session.Cookie{
		{Name: "sid", Value: "1", Domain: "app.test", SameSite: "Lax", Expires: 1700000000.5},
		{Name: "pref", Value: "x"},
		{Name: ""},
	}, "https://app.test")
	require.Len(t, params, 2)

	assert.Equal(t, "app.test", params[0].Domain)
	assert.Equal(t, "/", params[0].Path)
	assert.Equal(t, network.CookieSameSiteLax, params[0].SameSite)
	require.NotNil(t, params[0].Expires)
	assert.Equal(t, int64(1700000000), params[0].Expires.Time().Unix())

	assert.Equal(t, "https://app.test", params[1].URL)
	assert.Empty(t, params[1].Domain)
}

func TestSplitFlag(t *testing.T) {
	name, value, ok := splitFlag("--lang=en-US")
	assert.True(t, ok)
	assert.Equal(t, "lang", name)
	assert.Equal(t, "en-US", value)

	name, value, ok = splitFlag("--mute-audio")
	assert.True(t, ok)
	assert.Equal(t, "mute-audio", name)
	assert.Equal(t, true, value)

	_, _, ok = splitFlag("--")
	assert.False(t, ok)
}

func TestAllocatorOptions(t *testing.T) {
	base := len(AllocatorOptions(config.BrowserConfig{}))
	withArgs := AllocatorOptions(config.BrowserConfig{
		ViewportWidth:  1280,
		ViewportHeight: 720,
		Args:           []string{"--lang=en-US"},
	})
	assert.Len(t, withArgs, base+2)
}
