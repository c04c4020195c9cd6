// Package session persists an authenticated browser session between runs so
// crawls and executions can start logged in.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/internal/fileio"
)

// TokenKey is the local storage entry that counts as a session on its own.
const TokenKey = "access_token"

// Cookie is a browser cookie as captured from a browsing context.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// State is the persisted session.
type State struct {
	Cookies        []Cookie          `json:"cookies"`
	LocalStorage   map[string]string `json:"localStorage"`
	SessionStorage map[string]string `json:"sessionStorage"`
	Domain         string            `json:"domain"`
	LastUpdated    string            `json:"last_updated"`
}

// Empty returns a State with no data.
func Empty() State {
	return State{
		Cookies:        []Cookie{},
		LocalStorage:   map[string]string{},
		SessionStorage: map[string]string{},
	}
}

// HasSession reports whether the state can authenticate a browser: it holds
// cookies or an access token in local storage.
func (s State) HasSession() bool {
	if len(s.Cookies) > 0 {
		return true
	}
	_, ok := s.LocalStorage[TokenKey]
	return ok
}

// Host extracts the host:port part of rawURL, the form domains are stored in.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Store reads and writes the session file. Access from several processes is
// serialized through a lock file next to it.
type Store struct {
	path        string
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewStore returns a store backed by path.
func NewStore(path string, lockTimeout time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	return &Store{
		path:        path,
		lockTimeout: lockTimeout,
		logger:      logger.Named("session"),
		now:         time.Now,
	}
}

// Path is the session file location.
func (s *Store) Path() string { return s.path }

func (s *Store) lockPath() string {
	return filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+".lock")
}

// Load reads the session. A missing file is an empty session, not an error.
func (s *Store) Load(ctx context.Context) (State, error) {
	state := Empty()
	err := fileio.WithLock(ctx, s.lockPath(), s.lockTimeout, func() error {
		data, err := os.ReadFile(s.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read session file: %w", err)
		}
		if err := json.Unmarshal(data, &state); err != nil {
			return fmt.Errorf("failed to parse session file %s: %w", s.path, err)
		}
		return nil
	})
	if err != nil {
		return Empty(), err
	}
	normalize(&state)
	return state, nil
}

// Save replaces the session, stamping its update time.
func (s *Store) Save(ctx context.Context, state State) error {
	normalize(&state)
	state.LastUpdated = s.now().Format(time.RFC3339)
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	err = fileio.WithLock(ctx, s.lockPath(), s.lockTimeout, func() error {
		return fileio.WriteAtomic(s.path, data, fileio.PrivateFileMode)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Saved authenticated session",
		zap.String("domain", state.Domain),
		zap.Int("cookies", len(state.Cookies)))
	return nil
}

// Clear removes the session file.
func (s *Store) Clear(ctx context.Context) error {
	return fileio.WithLock(ctx, s.lockPath(), s.lockTimeout, func() error {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		s.logger.Info("Session data cleared")
		return nil
	})
}

// ForURL loads the session to inject into a browser about to open rawURL.
// It returns false when there is nothing usable. A domain mismatch is logged
// but the session is still returned, since some cookies may apply.
func (s *Store) ForURL(ctx context.Context, rawURL string) (State, bool) {
	state, err := s.Load(ctx)
	if err != nil {
		s.logger.Warn("Could not load saved session", zap.Error(err))
		return state, false
	}
	if !state.HasSession() {
		return state, false
	}
	if host := Host(rawURL); host != "" && state.Domain != "" && host != state.Domain {
		s.logger.Warn("Domain mismatch, using session anyway",
			zap.String("session_domain", state.Domain),
			zap.String("target_domain", host))
	}
	return state, true
}

func normalize(state *State) {
	if state.Cookies == nil {
		state.Cookies = []Cookie{}
	}
	if state.LocalStorage == nil {
		state.LocalStorage = map[string]string{}
	}
	if state.SessionStorage == nil {
		state.SessionStorage = map[string]string{}
	}
}

// StorageScript is a JavaScript statement list that writes items into the
// named storage ("localStorage" or "sessionStorage"). Keys are written in
// sorted order and every string is JSON quoted.
func StorageScript(storage string, items map[string]string) string {
	if len(items) == 0 {
		return ""
	}
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("(() => { try {\n")
	for _, k := range keys {
		key, _ := json.Marshal(k)
		val, _ := json.Marshal(items[k])
		fmt.Fprintf(&b, "  window.%s.setItem(%s, %s);\n", storage, key, val)
	}
	b.WriteString("} catch (e) {} })()")
	return b.String()
}

// CaptureScript evaluates to an object holding every item of the named storage.
func CaptureScript(storage string) string {
	return fmt.Sprintf(`(() => {
    const items = {};
    try {
        const s = window.%s;
        if (s) {
            for (let i = 0; i < s.length; i++) {
                const k = s.key(i);
                if (k) { items[k] = s.getItem(k); }
            }
        }
    } catch (e) {}
    return items;
})()`, storage)
}
