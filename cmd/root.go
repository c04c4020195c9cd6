package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

var cfgFile string

// commandDeps are the outside-world constructors the commands use.
type commandDeps struct {
	run     runFactory
	capture sessionCapturer
	stores  storeProvider
}

// NewRootCommand builds a fresh command tree. Every call returns independent
// flag state, which keeps interactive sessions and tests isolated.
func NewRootCommand() *cobra.Command {
	return newRootCommand(commandDeps{
		run:     defaultRunFactory,
		capture: defaultCapturer,
		stores:  &defaultStoreProvider{},
	})
}

func newRootCommand(deps commandDeps) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "uiprobe",
		Short:   "uiprobe explores a web UI and tests every interactive element it finds.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "uiprobe"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "uiprobe"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting uiprobe", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newRunCmd(deps.run))
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newReportCmd(deps.stores))
	rootCmd.AddCommand(newSessionCmd(deps.capture))
	return rootCmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Interrupted")
		return err
	}
	observability.GetLogger().Error("Command execution failed", zap.Error(err))
	fmt.Fprintln(os.Stderr, "Error:", err)
	return err
}

// initializeConfig points viper at the config file and the environment. A
// missing default config file is not an error.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("UIPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return bindFlags(cmd, v)
}

// bindConfigAnnotation marks commands whose flags override configuration.
const bindConfigAnnotation = "bind_config"

// flagKeys maps command flags onto configuration keys.
var flagKeys = map[string]string{
	"depth":              "crawler.max_depth",
	"single-page":        "crawler.single_page",
	"include-subdomains": "crawler.include_subdomains",
	"max-pages":          "crawler.max_pages",
	"format":             "output.format",
	"output":             "output.report_path",
	"render-scripts":     "output.render_scripts",
	"session-file":       "session.file",
}

// bindFlags lets explicitly set flags override file and environment values.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	if cmd.Annotations[bindConfigAnnotation] != "true" {
		return nil
	}
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	// Negative switches have no config key of their own.
	if f := cmd.Flags().Lookup("no-exec"); f != nil && f.Changed {
		noExec, _ := cmd.Flags().GetBool("no-exec")
		v.Set("executor.enabled", !noExec)
	}
	if f := cmd.Flags().Lookup("headed"); f != nil && f.Changed {
		headed, _ := cmd.Flags().GetBool("headed")
		v.Set("browser.headless", !headed)
	}
	if f := cmd.Flags().Lookup("visual"); f != nil && f.Changed {
		visual, _ := cmd.Flags().GetBool("visual")
		v.Set("executor.visual", visual)
	}
	return nil
}

func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in context")
	}
	return cfg, nil
}
