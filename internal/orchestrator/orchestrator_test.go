package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/discovery"
	"github.com/xkilldash9x/uiprobe-cli/internal/executor"
	"github.com/xkilldash9x/uiprobe-cli/internal/reporting"
	"github.com/xkilldash9x/uiprobe-cli/internal/results"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	interactiveHTML = `<html><head><title>Home</title></head><body>
<button id="save">Save</button>
<input type="text" name="q" placeholder="Search">
</body></html>`
	staticHTML = `<html><head><title>Docs</title><script>var x = 1;</script></head><body></body></html>`
)

type fakeCrawler struct {
	pages []discovery.PageSnapshot
	err   error
}

func (c *fakeCrawler) Crawl(ctx context.Context, baseURL string) ([]discovery.PageSnapshot, error) {
	return c.pages, c.err
}

// fakePage accepts every action and never leaves its URL.
type fakePage struct {
	url      string
	onAction func(ctx context.Context)
	closed   bool
}

func (p *fakePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	p.url = url
	return ctx.Err()
}
func (p *fakePage) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error { return nil }
func (p *fakePage) URL() string                                                         { return p.url }
func (p *fakePage) Title(ctx context.Context) (string, error)                           { return "Home", nil }
func (p *fakePage) Screenshot(ctx context.Context, path string) error                   { return nil }
func (p *fakePage) act(ctx context.Context) error {
	if p.onAction != nil {
		p.onAction(ctx)
	}
	return ctx.Err()
}
func (p *fakePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return p.act(ctx)
}
func (p *fakePage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	return p.act(ctx)
}
func (p *fakePage) Check(ctx context.Context, selector string, timeout time.Duration) error {
	return p.act(ctx)
}
func (p *fakePage) SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error {
	return p.act(ctx)
}
func (p *fakePage) IsVisible(ctx context.Context, selector string) (bool, error) {
	return true, p.act(ctx)
}
func (p *fakePage) Submit(ctx context.Context, selector string, timeout time.Duration) error {
	return p.act(ctx)
}
func (p *fakePage) Wait(ctx context.Context, d time.Duration) error { return ctx.Err() }
func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeOpener struct {
	mu       sync.Mutex
	opened   []string
	failFor  map[string]error
	onAction func(ctx context.Context)
	pages    []*fakePage
}

func (o *fakeOpener) NewPage(ctx context.Context, url string) (PageHandle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, url)
	if err := o.failFor[url]; err != nil {
		return nil, err
	}
	p := &fakePage{onAction: o.onAction}
	o.pages = append(o.pages, p)
	return p, nil
}

type fakePersister struct {
	batches []schemas.RunBatch
	err     error
}

func (p *fakePersister) PersistBatch(ctx context.Context, batch schemas.RunBatch) error {
	p.batches = append(p.batches, batch)
	return p.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.OutputCfg.ResultsDir = filepath.Join(root, "results")
	cfg.OutputCfg.ScriptsDir = filepath.Join(root, "scripts")
	cfg.OutputCfg.ScreenshotsDir = filepath.Join(root, "screenshots")
	cfg.OutputCfg.RenderScripts = true
	cfg.ExecutorCfg.Enabled = true
	cfg.AnalysisCfg.Concurrency = 2
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, deps Dependencies) *Orchestrator {
	t.Helper()
	logger := zaptest.NewLogger(t)
	o, err := New(cfg, logger, deps)
	require.NoError(t, err)
	exec := executor.New(executor.OptionsFromConfig(cfg), logger).
		WithCompare(func(before, after string, threshold float64) schemas.TriState {
			return schemas.False
		})
	return o.WithExecutor(exec)
}

func twoPages() *fakeCrawler {
	return &fakeCrawler{pages: []discovery.PageSnapshot{
		{URL: "https://app.test", HTML: interactiveHTML},
		{URL: "https://app.test/docs", HTML: staticHTML, Depth: 1},
	}}
}

func TestNewRejectsNilDependencies(t *testing.T) {
	_, err := New(config.NewDefaultConfig(), zaptest.NewLogger(t), Dependencies{})
	assert.Error(t, err)
	_, err = New(nil, zaptest.NewLogger(t), Dependencies{Crawler: &fakeCrawler{}})
	assert.Error(t, err)
}

func TestRunFullPipeline(t *testing.T) {
	cfg := testConfig(t)
	opener := &fakeOpener{}
	persister := &fakePersister{}
	var report bytes.Buffer
	reporter, err := reporting.NewWithWriter("json", reporting.NopCloser(&report))
	require.NoError(t, err)
	tracker := results.NewTracker(zaptest.NewLogger(t), results.WithRunID("run-1"))

	o := newTestOrchestrator(t, cfg, Dependencies{
		Crawler:   twoPages(),
		Opener:    opener,
		Persister: persister,
		Reporter:  reporter,
		Tracker:   tracker,
	})
	res, err := o.Run(context.Background(), "https://app.test")
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	require.Len(t, res.Analyses, 2)
	assert.Equal(t, "https://app.test", res.Analyses[0].URL, "analysis keeps crawl order")
	assert.NotEmpty(t, res.Analyses[0].Plan.Actionable())
	assert.Empty(t, res.Analyses[1].Plan.Actionable())

	assert.Equal(t, []string{"https://app.test"}, opener.opened, "pages without elements are not opened")
	require.Len(t, opener.pages, 1)
	assert.True(t, opener.pages[0].closed)

	require.NotEmpty(t, tracker.Batch().Elements)
	for _, rec := range tracker.Batch().Elements {
		assert.Equal(t, "https://app.test", rec.PageURL)
	}
	assert.Equal(t, tracker.Len(), res.Summary.Total)

	assert.Equal(t, filepath.Join(cfg.OutputCfg.ResultsDir, results.FileName("run-1")), res.ResultsPath)
	saved, err := results.Load(res.ResultsPath)
	require.NoError(t, err)
	assert.Len(t, saved.Elements, tracker.Len())

	require.Len(t, res.Scripts, 2)
	assert.Equal(t, filepath.Join(cfg.OutputCfg.ScriptsDir, ScriptName("https://app.test")), res.Scripts[0])
	_, err = os.Stat(res.Scripts[1])
	assert.NoError(t, err)

	require.Len(t, persister.batches, 1)
	assert.Equal(t, "run-1", persister.batches[0].RunID)
	assert.Contains(t, report.String(), `"test_id": "run-1"`)
}

func TestRunCrawlFailure(t *testing.T) {
	crawler := &fakeCrawler{err: discovery.ErrNoSnapshot}
	o := newTestOrchestrator(t, testConfig(t), Dependencies{Crawler: crawler, Opener: &fakeOpener{}})

	_, err := o.Run(context.Background(), "https://down.test")
	assert.ErrorIs(t, err, discovery.ErrNoSnapshot)
}

func TestRunKeepsPartialCrawl(t *testing.T) {
	crawler := twoPages()
	crawler.err = errors.New("browser crashed")
	o := newTestOrchestrator(t, testConfig(t), Dependencies{Crawler: crawler})

	res, err := o.Run(context.Background(), "https://app.test")
	require.NoError(t, err)
	assert.Len(t, res.Analyses, 2)
}

func TestRunExecutionDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExecutorCfg.Enabled = false
	cfg.OutputCfg.RenderScripts = false
	opener := &fakeOpener{}
	persister := &fakePersister{}
	o := newTestOrchestrator(t, cfg, Dependencies{Crawler: twoPages(), Opener: opener, Persister: persister})

	res, err := o.Run(context.Background(), "https://app.test")
	require.NoError(t, err)
	assert.Empty(t, opener.opened)
	assert.Empty(t, res.Scripts)
	assert.Zero(t, res.Summary.Total)
	assert.Empty(t, persister.batches, "an empty run is not persisted")
}

func TestRunOpenFailureContinues(t *testing.T) {
	crawler := &fakeCrawler{pages: []discovery.PageSnapshot{
		{URL: "https://app.test/a", HTML: interactiveHTML},
		{URL: "https://app.test/b", HTML: interactiveHTML},
	}}
	opener := &fakeOpener{failFor: map[string]error{"https://app.test/a": errors.New("browser gone")}}
	persister := &fakePersister{err: errors.New("db down")}
	o := newTestOrchestrator(t, testConfig(t), Dependencies{Crawler: crawler, Opener: opener, Persister: persister})

	res, err := o.Run(context.Background(), "https://app.test")
	require.NoError(t, err, "page and persistence failures are logged, not returned")
	assert.Equal(t, []string{"https://app.test/a", "https://app.test/b"}, opener.opened)
	assert.NotZero(t, res.Summary.Total)
}

func TestRunCancelledDuringExecution(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	crawler := &fakeCrawler{pages: []discovery.PageSnapshot{
		{URL: "https://app.test/a", HTML: interactiveHTML},
		{URL: "https://app.test/b", HTML: interactiveHTML},
	}}
	opener := &fakeOpener{onAction: func(context.Context) { cancel() }}
	o := newTestOrchestrator(t, testConfig(t), Dependencies{Crawler: crawler, Opener: opener})

	res, err := o.Run(ctx, "https://app.test")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"https://app.test/a"}, opener.opened)
	_, statErr := os.Stat(res.ResultsPath)
	assert.NoError(t, statErr, "results are saved after an interruption")
}

func TestRunInterruptSkipsPage(t *testing.T) {
	crawler := &fakeCrawler{pages: []discovery.PageSnapshot{
		{URL: "https://app.test/a", HTML: interactiveHTML},
		{URL: "https://app.test/b", HTML: interactiveHTML},
	}}
	interrupts := make(chan struct{})
	interrupted := false
	opener := &fakeOpener{onAction: func(ctx context.Context) {
		if interrupted {
			return
		}
		interrupted = true
		interrupts <- struct{}{}
		<-ctx.Done()
	}}
	tracker := results.NewTracker(zaptest.NewLogger(t))
	o := newTestOrchestrator(t, testConfig(t), Dependencies{
		Crawler:    crawler,
		Opener:     opener,
		Tracker:    tracker,
		Interrupts: interrupts,
	})

	res, err := o.Run(context.Background(), "https://app.test")
	require.NoError(t, err, "an interrupt ends only the current page")
	assert.Equal(t, []string{"https://app.test/a", "https://app.test/b"}, opener.opened)
	require.NotZero(t, res.Summary.Total)
	for _, rec := range tracker.Batch().Elements {
		assert.Equal(t, "https://app.test/b", rec.PageURL)
	}
}

func TestScriptOptions(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.BrowserCfg.Headless = false
	cfg.BrowserCfg.ViewportWidth = 800
	cfg.BrowserCfg.ViewportHeight = 600
	cfg.ExecutorCfg.ActionTimeout = 1500 * time.Millisecond
	cfg.ExecutorCfg.VisualDiffThreshold = 0.1

	opts := ScriptOptions(cfg)
	assert.False(t, opts.Headless)
	assert.Equal(t, 800, opts.ViewportWidth)
	assert.Equal(t, 1500, opts.ActionTimeout)
	assert.Equal(t, 0.1, opts.Threshold)
	assert.Equal(t, "test_app.test_login.py", ScriptName("https://app.test/login"))
}
