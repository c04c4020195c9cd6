// File: internal/results/tracker.go
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/effectiveness"
	"github.com/xkilldash9x/uiprobe-cli/internal/fileio"
)

const defaultLockTimeout = 10 * time.Second

// Tracker accumulates the outcome records of one run. It is safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	runID   string
	records []schemas.ElementOutcomeRecord

	now         func() time.Time
	lockTimeout time.Duration
	logger      *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithRunID fixes the run identifier instead of deriving it from the clock.
func WithRunID(id string) Option {
	return func(t *Tracker) { t.runID = id }
}

// WithLockTimeout bounds how long Save waits for the results directory lock.
func WithLockTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.lockTimeout = d
		}
	}
}

// NewTracker starts a run.
func NewTracker(logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		now:         time.Now,
		lockTimeout: defaultLockTimeout,
		logger:      logger.Named("tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.runID == "" {
		t.runID = t.now().Format(schemas.RunIDLayout)
	}
	return t
}

// RunID identifies the run; it is also part of the saved file name.
func (t *Tracker) RunID() string { return t.runID }

// Record stores a raw outcome. It assigns the id and timestamp and computes
// is_working exactly once, then returns the stored record.
func (t *Tracker) Record(rec schemas.ElementOutcomeRecord) schemas.ElementOutcomeRecord {
	rec.ID = uuid.New()
	rec.Timestamp = t.now().Format(schemas.TimestampLayout)
	rec.IsWorking = effectiveness.Classify(rec)

	t.mu.Lock()
	t.records = append(t.records, rec)
	t.mu.Unlock()

	t.logger.Debug("Recorded element outcome",
		zap.String("role", string(rec.ElementType)),
		zap.String("selector", rec.Selector),
		zap.Bool("success", rec.Success),
		zap.Bool("is_working", rec.IsWorking))
	return rec
}

// Len is the number of records so far.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Batch snapshots the run.
func (t *Tracker) Batch() schemas.RunBatch {
	t.mu.Lock()
	elements := make([]schemas.ElementOutcomeRecord, len(t.records))
	copy(elements, t.records)
	t.mu.Unlock()

	return schemas.RunBatch{
		RunID:     t.runID,
		Timestamp: t.now().Format(schemas.TimestampLayout),
		Elements:  elements,
	}
}

// Summary aggregates the records so far.
func (t *Tracker) Summary() schemas.RunSummary {
	return t.Batch().Summarize()
}

// FileName is the batch file name for a run.
func FileName(runID string) string {
	return fmt.Sprintf("element_results_%s.json", runID)
}

// Save writes the batch into dir and returns the file path. Writers in other
// processes are serialized through a lock file in the same directory.
func (t *Tracker) Save(ctx context.Context, dir string) (string, error) {
	batch := t.Batch()
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run batch: %w", err)
	}

	path := filepath.Join(dir, FileName(batch.RunID))
	err = fileio.WithLock(ctx, filepath.Join(dir, ".results.lock"), t.lockTimeout, func() error {
		return fileio.WriteAtomic(path, data, fileio.DefaultFileMode)
	})
	if err != nil {
		return "", fmt.Errorf("failed to save run batch: %w", err)
	}

	t.logger.Info("Saved element results",
		zap.String("path", path),
		zap.Int("records", len(batch.Elements)))
	return path, nil
}

// Load reads a batch written by Save or by a rendered script. Rendered
// scripts store the raw interaction result as is_working, so every record is
// judged again on load.
func Load(path string) (schemas.RunBatch, error) {
	var batch schemas.RunBatch
	data, err := os.ReadFile(path)
	if err != nil {
		return batch, fmt.Errorf("failed to read run batch: %w", err)
	}
	if err := json.Unmarshal(data, &batch); err != nil {
		return batch, fmt.Errorf("failed to parse run batch %s: %w", path, err)
	}
	if batch.Elements == nil {
		batch.Elements = []schemas.ElementOutcomeRecord{}
	}
	for i := range batch.Elements {
		batch.Elements[i].IsWorking = effectiveness.Classify(batch.Elements[i])
	}
	return batch, nil
}
