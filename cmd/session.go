package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/internal/browser"
	"github.com/xkilldash9x/uiprobe-cli/internal/config"
	"github.com/xkilldash9x/uiprobe-cli/internal/observability"
	"github.com/xkilldash9x/uiprobe-cli/internal/session"
)

// sessionCapturer opens a browser on loginURL and saves the session once
// ready returns.
type sessionCapturer func(ctx context.Context, cfg *config.Config, store *session.Store, loginURL string, ready browser.ReadyFunc) (session.State, error)

// defaultCapturer always runs headed: the operator has to see the page.
func defaultCapturer(ctx context.Context, cfg *config.Config, store *session.Store, loginURL string, ready browser.ReadyFunc) (session.State, error) {
	bcfg := cfg.Browser()
	bcfg.Headless = false
	logger := observability.GetLogger()
	manager := browser.NewManager(bcfg, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}()
	return manager.CaptureSession(ctx, store, loginURL, ready)
}

func newSessionCmd(capture sessionCapturer) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the saved browser session used for authenticated runs",
	}

	storeFrom := func(cmd *cobra.Command) (*config.Config, *session.Store, error) {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return nil, nil, err
		}
		s := cfg.Session()
		return cfg, session.NewStore(s.File, s.LockTimeout, observability.GetLogger()), nil
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print what the saved session holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			state, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), store.Path(), state)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session cleared.")
			return nil
		},
	}

	captureCmd := &cobra.Command{
		Use:   "capture <login-url>",
		Short: "Log in manually in a browser window and save the resulting session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			loginURL := normalizeTarget(args[0])
			ready := func(ctx context.Context) error {
				fmt.Fprintln(out, "Log in in the browser window, then press Enter here to save the session.")
				return waitForEnter(ctx, cmd.InOrStdin())
			}

			state, err := capture(cmd.Context(), cfg, store, loginURL, ready)
			if err != nil {
				return err
			}
			printSession(out, store.Path(), state)
			return nil
		},
	}

	sessionCmd.AddCommand(showCmd, clearCmd, captureCmd)
	return sessionCmd
}

// waitForEnter returns once a line is read from in or ctx ends. A closed
// input counts as confirmation.
func waitForEnter(ctx context.Context, in io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(in).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printSession(w io.Writer, path string, state session.State) {
	if !state.HasSession() && state.Domain == "" {
		fmt.Fprintf(w, "No saved session in %s\n", path)
		return
	}
	fmt.Fprintf(w, "Session file:    %s\n", path)
	fmt.Fprintf(w, "Domain:          %s\n", state.Domain)
	if t, err := time.Parse(time.RFC3339, state.LastUpdated); err == nil {
		fmt.Fprintf(w, "Last updated:    %s\n", t.Local().Format(time.DateTime))
	}
	fmt.Fprintf(w, "Cookies:         %d\n", len(state.Cookies))
	fmt.Fprintf(w, "Local storage:   %d\n", len(state.LocalStorage))
	fmt.Fprintf(w, "Session storage: %d\n", len(state.SessionStorage))
	fmt.Fprintf(w, "Authenticated:   %t\n", state.HasSession())
}
