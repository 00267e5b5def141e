package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Run is one recorded scenario execution.
type Run struct {
	ID         string
	Scenario   string
	StartedAt  string
	FinishedAt string
	Status     Status
	Failure    string
}

// Event is one transcript entry of a run.
type Event struct {
	Seq    int
	Kind   string
	Detail string
}

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// ListRuns returns the most recent runs, newest first. A limit of 0 means
// no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, scenario, started_at, COALESCE(finished_at, ''), status, failure
		FROM runs
		ORDER BY started_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Scenario, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Failure); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, started_at, COALESCE(finished_at, ''), status, failure
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Scenario, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Failure)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// Events returns a run's transcript in sequence order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, detail FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Detail); err != nil {
			return nil, fmt.Errorf("read events: scan: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}
