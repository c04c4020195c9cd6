// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Crawler() CrawlerConfig
	Analysis() AnalysisConfig
	Executor() ExecutorConfig
	Output() OutputConfig
	Session() SessionConfig

	SetCrawlerMaxDepth(int)
	SetCrawlerSinglePage(bool)
	SetBrowserHeadless(bool)
	SetExecutorEnabled(bool)
	SetOutputFormat(string)
	SetOutputReportPath(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	CrawlerCfg  CrawlerConfig  `mapstructure:"crawler" yaml:"crawler"`
	AnalysisCfg AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	ExecutorCfg ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	OutputCfg   OutputConfig   `mapstructure:"output" yaml:"output"`
	SessionCfg  SessionConfig  `mapstructure:"session" yaml:"session"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Crawler() CrawlerConfig   { return c.CrawlerCfg }
func (c *Config) Analysis() AnalysisConfig { return c.AnalysisCfg }
func (c *Config) Executor() ExecutorConfig { return c.ExecutorCfg }
func (c *Config) Output() OutputConfig     { return c.OutputCfg }
func (c *Config) Session() SessionConfig   { return c.SessionCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetCrawlerMaxDepth(d int)     { c.CrawlerCfg.MaxDepth = d }
func (c *Config) SetCrawlerSinglePage(b bool)  { c.CrawlerCfg.SinglePage = b }
func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetExecutorEnabled(b bool)    { c.ExecutorCfg.Enabled = b }
func (c *Config) SetOutputFormat(f string)     { c.OutputCfg.Format = f }
func (c *Config) SetOutputReportPath(p string) { c.OutputCfg.ReportPath = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. An empty URL disables
// the Postgres sink.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings shared by the crawling and execution browsers.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	InstallTimeout    time.Duration `mapstructure:"install_timeout" yaml:"install_timeout"`
	// VisualDelay slows the headed crawl down so an operator can follow it.
	VisualDelay time.Duration `mapstructure:"visual_delay" yaml:"visual_delay"`
}

// CrawlerConfig configures the breadth-first page discovery.
type CrawlerConfig struct {
	MaxDepth          int           `mapstructure:"max_depth" yaml:"max_depth"`
	SinglePage        bool          `mapstructure:"single_page" yaml:"single_page"`
	IncludeSubdomains bool          `mapstructure:"include_subdomains" yaml:"include_subdomains"`
	MaxPages          int           `mapstructure:"max_pages" yaml:"max_pages"`
	Throttle          time.Duration `mapstructure:"throttle" yaml:"throttle"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryInterval     time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// AnalysisConfig tunes element discovery over captured snapshots.
type AnalysisConfig struct {
	Concurrency       int `mapstructure:"concurrency" yaml:"concurrency"`
	FallbackThreshold int `mapstructure:"fallback_threshold" yaml:"fallback_threshold"`
}

// ExecutorConfig controls how interaction plans are run against the live page.
type ExecutorConfig struct {
	Enabled             bool          `mapstructure:"enabled" yaml:"enabled"`
	ActionTimeout       time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	IdleTimeout         time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ResetTimeout        time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`
	SettleDelay         time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	VisualDiffThreshold float64       `mapstructure:"visual_diff_threshold" yaml:"visual_diff_threshold"`
	// Visual runs headed, pauses browser.visual_delay after every step and
	// lets an interrupt skip the current page instead of ending the run.
	Visual bool `mapstructure:"visual" yaml:"visual"`
}

// OutputConfig lists where artifacts of a run are written.
type OutputConfig struct {
	ResultsDir     string `mapstructure:"results_dir" yaml:"results_dir"`
	ScreenshotsDir string `mapstructure:"screenshots_dir" yaml:"screenshots_dir"`
	HTMLDir        string `mapstructure:"html_dir" yaml:"html_dir"`
	ScriptsDir     string `mapstructure:"scripts_dir" yaml:"scripts_dir"`
	RenderScripts  bool   `mapstructure:"render_scripts" yaml:"render_scripts"`
	Format         string `mapstructure:"format" yaml:"format"`
	ReportPath     string `mapstructure:"report_path" yaml:"report_path"`
}

// SessionConfig points at the persisted browser session.
type SessionConfig struct {
	File        string        `mapstructure:"file" yaml:"file"`
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "uiprobe")
	v.SetDefault("logger.log_file", "uiprobe.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage"})
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.install_timeout", "5m")
	v.SetDefault("browser.visual_delay", "1s")

	// -- Crawler --
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.single_page", false)
	v.SetDefault("crawler.include_subdomains", false)
	v.SetDefault("crawler.max_pages", 200)
	v.SetDefault("crawler.throttle", "1s")
	v.SetDefault("crawler.max_attempts", 3)
	v.SetDefault("crawler.retry_interval", "2s")
	v.SetDefault("crawler.post_load_wait", "2s")

	// -- Analysis --
	v.SetDefault("analysis.concurrency", 4)
	v.SetDefault("analysis.fallback_threshold", 3)

	// -- Executor --
	v.SetDefault("executor.enabled", true)
	v.SetDefault("executor.action_timeout", "3s")
	v.SetDefault("executor.idle_timeout", "5s")
	v.SetDefault("executor.reset_timeout", "5s")
	v.SetDefault("executor.settle_delay", "500ms")
	v.SetDefault("executor.visual_diff_threshold", 0.05)
	v.SetDefault("executor.visual", false)

	// -- Output --
	v.SetDefault("output.results_dir", "test_results")
	v.SetDefault("output.screenshots_dir", "screenshots")
	v.SetDefault("output.html_dir", "html_files")
	v.SetDefault("output.scripts_dir", "test_scripts")
	v.SetDefault("output.render_scripts", false)
	v.SetDefault("output.format", "text")
	v.SetDefault("output.report_path", "stdout")

	// -- Session --
	v.SetDefault("session.file", "session_state.json")
	v.SetDefault("session.lock_timeout", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The connection string usually carries a password, keep it out of files.
	v.BindEnv("database.url", "UIPROBE_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.DatabaseCfg.URL == "" {
		cfg.DatabaseCfg.URL = os.Getenv("UIPROBE_DATABASE_URL")
	}
	// A visual run is pointless without a window to watch.
	if cfg.ExecutorCfg.Visual {
		cfg.BrowserCfg.Headless = false
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves a leading "~" in every configured filesystem path.
func (c *Config) ExpandPaths() error {
	paths := []*string{
		&c.LoggerCfg.LogFile,
		&c.OutputCfg.ResultsDir,
		&c.OutputCfg.ScreenshotsDir,
		&c.OutputCfg.HTMLDir,
		&c.OutputCfg.ScriptsDir,
		&c.SessionCfg.File,
	}
	if c.OutputCfg.ReportPath != "stdout" {
		paths = append(paths, &c.OutputCfg.ReportPath)
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.CrawlerCfg.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must not be negative")
	}
	if c.CrawlerCfg.MaxAttempts <= 0 {
		return fmt.Errorf("crawler.max_attempts must be a positive integer")
	}
	if c.AnalysisCfg.Concurrency <= 0 {
		return fmt.Errorf("analysis.concurrency must be a positive integer")
	}
	if c.AnalysisCfg.FallbackThreshold < 0 {
		return fmt.Errorf("analysis.fallback_threshold must not be negative")
	}
	if err := c.ExecutorCfg.Validate(); err != nil {
		return fmt.Errorf("executor configuration invalid: %w", err)
	}
	switch c.OutputCfg.Format {
	case "json", "text", "html":
	default:
		return fmt.Errorf("output.format must be one of json, text, html (got %q)", c.OutputCfg.Format)
	}
	if c.OutputCfg.ResultsDir == "" {
		return fmt.Errorf("output.results_dir is a required configuration field")
	}
	return nil
}

// Validate checks the executor timing and threshold settings.
func (e *ExecutorConfig) Validate() error {
	if !e.Enabled {
		return nil
	}
	if e.ActionTimeout <= 0 {
		return fmt.Errorf("action_timeout must be a positive duration")
	}
	if e.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be a positive duration")
	}
	if e.VisualDiffThreshold < 0.0 || e.VisualDiffThreshold > 1.0 {
		return fmt.Errorf("visual_diff_threshold must be between 0.0 and 1.0")
	}
	return nil
}
