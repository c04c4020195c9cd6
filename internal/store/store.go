package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// outcomeColumns is the column order used by CopyFrom.
var outcomeColumns = []string{
	"id", "run_id", "page_url", "element_type", "selector", "description",
	"success", "is_working", "error_message", "screenshot_before", "screenshot_after",
	"page_change_detected", "visual_change_detected", "recorded_at",
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS test_runs (
    id TEXT PRIMARY KEY,
    recorded_at TEXT NOT NULL,
    total INTEGER NOT NULL,
    successful INTEGER NOT NULL,
    working INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS element_outcomes (
    id UUID PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES test_runs(id) ON DELETE CASCADE,
    page_url TEXT NOT NULL,
    element_type TEXT NOT NULL,
    selector TEXT NOT NULL,
    description TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    is_working BOOLEAN NOT NULL,
    error_message TEXT,
    screenshot_before TEXT,
    screenshot_after TEXT,
    page_change_detected BOOLEAN NOT NULL,
    visual_change_detected BOOLEAN,
    recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS element_outcomes_run_id_idx ON element_outcomes (run_id);
`

const sqlUpsertRun = `
    INSERT INTO test_runs (id, recorded_at, total, successful, working)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (id) DO UPDATE SET
        recorded_at = EXCLUDED.recorded_at,
        total = EXCLUDED.total,
        successful = EXCLUDED.successful,
        working = EXCLUDED.working;
`

const sqlDeleteOutcomes = `DELETE FROM element_outcomes WHERE run_id = $1;`

const sqlSelectOutcomes = `
    SELECT id, page_url, element_type, selector, description, success, is_working, error_message,
           screenshot_before, screenshot_after, page_change_detected, visual_change_detected, recorded_at
    FROM element_outcomes
    WHERE run_id = $1
    ORDER BY recorded_at ASC;
`

// Store persists run batches to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// PersistBatch writes a run and its records in one transaction. Saving the
// same run again replaces its records.
func (s *Store) PersistBatch(ctx context.Context, batch schemas.RunBatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed, which is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	summary := batch.Summarize()
	if _, err := tx.Exec(ctx, sqlUpsertRun, batch.RunID, batch.Timestamp, summary.Total, summary.Successful, summary.Working); err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", batch.RunID, err)
	}
	if _, err := tx.Exec(ctx, sqlDeleteOutcomes, batch.RunID); err != nil {
		return fmt.Errorf("failed to clear previous outcomes of run %s: %w", batch.RunID, err)
	}

	if len(batch.Elements) > 0 {
		if err := s.persistOutcomes(ctx, tx, batch.RunID, batch.Elements); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Persisted run batch", zap.String("run_id", batch.RunID), zap.Int("records", len(batch.Elements)))
	return nil
}

func (s *Store) persistOutcomes(ctx context.Context, tx pgx.Tx, runID string, records []schemas.ElementOutcomeRecord) error {
	rows := make([][]interface{}, len(records))
	for i, r := range records {
		id := r.ID
		if id == uuid.Nil {
			// Batches read back from disk carry no ids.
			id = uuid.New()
		}
		rows[i] = []interface{}{
			id, runID, r.PageURL, string(r.ElementType), r.Selector, r.Description,
			r.Success, r.IsWorking, r.ErrorMessage, r.ScreenshotBefore, r.ScreenshotAfter,
			r.PageChangeDetected, nullableBool(r.VisualChangeDetected), r.Timestamp,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"element_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy element outcomes: %w", err)
	}
	if int(copyCount) != len(records) {
		return fmt.Errorf("mismatch in copied outcomes count: expected %d, got %d", len(records), copyCount)
	}
	return nil
}

// GetRecordsByRunID loads the records of a run in recording order.
func (s *Store) GetRecordsByRunID(ctx context.Context, runID string) ([]schemas.ElementOutcomeRecord, error) {
	rows, err := s.pool.Query(ctx, sqlSelectOutcomes, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query element outcomes: %w", err)
	}
	defer rows.Close()

	var records []schemas.ElementOutcomeRecord
	for rows.Next() {
		var (
			r      schemas.ElementOutcomeRecord
			role   string
			visual *bool
		)
		err := rows.Scan(
			&r.ID, &r.PageURL, &role, &r.Selector, &r.Description,
			&r.Success, &r.IsWorking, &r.ErrorMessage,
			&r.ScreenshotBefore, &r.ScreenshotAfter,
			&r.PageChangeDetected, &visual, &r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		r.ElementType = schemas.Role(role)
		if visual != nil {
			r.VisualChangeDetected = schemas.TriStateOf(*visual)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

func nullableBool(t schemas.TriState) *bool {
	if t == schemas.Undetermined {
		return nil
	}
	v := t.IsTrue()
	return &v
}
