// Package fileio holds the locked, atomic file writes shared by the session
// store and the results writer.
package fileio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	// DefaultDirMode is used for every directory created for artifacts.
	DefaultDirMode os.FileMode = 0o755
	// DefaultFileMode is used for written artifacts.
	DefaultFileMode os.FileMode = 0o644
	// PrivateFileMode is used for files holding credentials.
	PrivateFileMode os.FileMode = 0o600

	lockRetryDelay = 50 * time.Millisecond
)

// WithLock runs fn while holding an exclusive lock on lockPath. It gives up
// when the lock is not acquired within timeout or ctx is done.
func WithLock(ctx context.Context, lockPath string, timeout time.Duration, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), DefaultDirMode); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock %s within %v", lockPath, timeout)
	}
	defer fileLock.Unlock()

	return fn()
}

// WriteAtomic replaces path with data through a temp file and a rename, so a
// reader never sees a partial file.
func WriteAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DefaultDirMode); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// maxNameLen keeps generated names well under common file name limits.
const maxNameLen = 120

// SafeName turns arbitrary text, typically a URL, into a file name component.
// Runs of characters outside [A-Za-z0-9.-] collapse to one underscore.
func SafeName(s string) string {
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		ok := r == '.' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if ok {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	name := strings.Trim(b.String(), "_.")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	if name == "" {
		return "page"
	}
	return name
}
