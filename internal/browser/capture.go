package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/internal/session"
)

// ReadyFunc blocks until the operator has finished logging in.
type ReadyFunc func(ctx context.Context) error

// CaptureSession opens loginURL, waits for ready, then saves the browser's
// cookies and storage into store. The manager should be headed for this.
func (m *Manager) CaptureSession(ctx context.Context, store *session.Store, loginURL string, ready ReadyFunc) (session.State, error) {
	page, err := m.NewPage(ctx, nil, loginURL)
	if err != nil {
		return session.State{}, err
	}
	defer page.Close()

	if err := page.Goto(ctx, loginURL, m.cfg.NavigationTimeout); err != nil {
		return session.State{}, err
	}
	m.logger.Info("Waiting for login to complete", zap.String("url", loginURL))
	if err := ready(ctx); err != nil {
		return session.State{}, fmt.Errorf("session capture aborted: %w", err)
	}

	state, err := page.CaptureSession(ctx)
	if err != nil {
		return session.State{}, err
	}
	if state.Domain == "" {
		state.Domain = session.Host(loginURL)
	}
	if !state.HasSession() {
		m.logger.Warn("No cookies or access token found, saving anyway", zap.String("domain", state.Domain))
	}
	if err := store.Save(ctx, state); err != nil {
		return session.State{}, err
	}
	return state, nil
}
