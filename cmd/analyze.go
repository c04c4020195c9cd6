package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/fileio"
	"github.com/xkilldash9x/uiprobe-cli/internal/observability"
	"github.com/xkilldash9x/uiprobe-cli/internal/orchestrator"
	"github.com/xkilldash9x/uiprobe-cli/internal/script"
)

// analysisOutput is what `analyze` prints.
type analysisOutput struct {
	URL    string                                      `json:"url"`
	Total  int                                         `json:"total"`
	Counts map[schemas.Role]int                        `json:"counts"`
	Roles  map[schemas.Role][]schemas.ElementCandidate `json:"roles"`
	Steps  []schemas.InteractionStep                   `json:"steps"`
}

func newAnalyzeCmd() *cobra.Command {
	var pageURL string
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.html>",
		Short: "Find the interactive elements of a saved page and print them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read page: %w", err)
			}
			if pageURL == "" {
				pageURL = "file://" + args[0]
			}

			a := orchestrator.AnalyzePage(pageURL, string(raw), cfg.Analysis().FallbackThreshold, observability.GetLogger())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(analysisOutput{
				URL:    a.URL,
				Total:  a.Roles.Total(),
				Counts: a.Roles.Counts(),
				Roles:  a.Roles,
				Steps:  a.Plan.Steps,
			})
		},
	}
	analyzeCmd.Flags().StringVar(&pageURL, "url", "", "URL the page was captured from")
	return analyzeCmd
}

func newGenerateCmd() *cobra.Command {
	var (
		pageURL    string
		outputPath string
	)
	generateCmd := &cobra.Command{
		Use:   "generate <file.html>",
		Short: "Render a standalone Playwright test script for a saved page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read page: %w", err)
			}

			a := orchestrator.AnalyzePage(pageURL, string(raw), cfg.Analysis().FallbackThreshold, logger)
			src, err := script.RenderWith(a.Plan, orchestrator.ScriptOptions(cfg))
			if err != nil {
				return fmt.Errorf("failed to render script: %w", err)
			}

			if outputPath == "" || outputPath == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), src)
				return err
			}
			if err := fileio.WriteAtomic(outputPath, []byte(src), fileio.DefaultFileMode); err != nil {
				return err
			}
			logger.Info("Script written", zap.String("path", outputPath), zap.Int("steps", len(a.Plan.Actionable())))
			return nil
		},
	}
	generateCmd.Flags().StringVar(&pageURL, "url", "", "URL the script navigates to (required)")
	_ = generateCmd.MarkFlagRequired("url")
	generateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Script destination, stdout when empty")
	return generateCmd
}
