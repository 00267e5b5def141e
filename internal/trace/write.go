package trace

import (
	"context"
	"fmt"
	"time"
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// BeginRun inserts a run record in the running state.
// Uses ON CONFLICT(id) DO NOTHING for idempotency; duplicate IDs are
// silently ignored.
func (s *Store) BeginRun(ctx context.Context, id, scenario string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, started_at, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id,
		scenario,
		startedAt.UTC().Format(time.RFC3339Nano),
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun records a run's outcome. The failure message is empty for a
// passed run.
func (s *Store) FinishRun(ctx context.Context, id string, finishedAt time.Time, status Status, failure string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, failure = ?
		WHERE id = ?
	`,
		finishedAt.UTC().Format(time.RFC3339Nano),
		status,
		failure,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// WriteEvent appends one transcript event. The detail must already be
// canonical JSON. Uses ON CONFLICT DO NOTHING for idempotency; a re-write
// of the same (run, seq) is silently ignored.
//
// Note: the run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, runID string, seq int, kind string, detail []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, kind, detail)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		runID,
		seq,
		kind,
		string(detail),
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
