package trace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a store backed by a temp-dir database.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestBeginRun_DuplicateIDIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	started := time.Now()

	if err := s.BeginRun(ctx, "run-1", "basic-publish", started); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	if err := s.BeginRun(ctx, "run-1", "different-name", started); err != nil {
		t.Fatalf("duplicate BeginRun() failed: %v", err)
	}

	run, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if run.Scenario != "basic-publish" {
		t.Errorf("scenario = %q, want first write to win", run.Scenario)
	}
	if run.Status != StatusRunning {
		t.Errorf("status = %q, want %q", run.Status, StatusRunning)
	}
}

func TestFinishRun_RecordsOutcome(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, "run-1", "basic-publish", time.Now()); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	if err := s.FinishRun(ctx, "run-1", time.Now(), StatusFailed, "publication count: want 2, got 1"); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}

	run, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if run.Status != StatusFailed {
		t.Errorf("status = %q, want %q", run.Status, StatusFailed)
	}
	if run.Failure == "" {
		t.Error("failure message was not recorded")
	}
	if run.FinishedAt == "" {
		t.Error("finished_at was not recorded")
	}
}

func TestWriteEvent_AppendsInOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, "run-1", "basic-publish", time.Now()); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	for i, kind := range []string{"publish", "await-ack", "sleep"} {
		if err := s.WriteEvent(ctx, "run-1", i, kind, []byte(fmt.Sprintf(`{"seq":%d}`, i))); err != nil {
			t.Fatalf("WriteEvent(%d) failed: %v", i, err)
		}
	}

	events, err := s.Events(ctx, "run-1")
	if err != nil {
		t.Fatalf("Events() failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	for i, want := range []string{"publish", "await-ack", "sleep"} {
		if events[i].Kind != want {
			t.Errorf("events[%d].Kind = %q, want %q", i, events[i].Kind, want)
		}
		if events[i].Seq != i {
			t.Errorf("events[%d].Seq = %d, want %d", i, events[i].Seq, i)
		}
	}
}

func TestWriteEvent_DuplicateSeqIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, "run-1", "basic-publish", time.Now()); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	if err := s.WriteEvent(ctx, "run-1", 0, "publish", []byte(`{}`)); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}
	if err := s.WriteEvent(ctx, "run-1", 0, "overwrite", []byte(`{}`)); err != nil {
		t.Fatalf("duplicate WriteEvent() failed: %v", err)
	}

	events, err := s.Events(ctx, "run-1")
	if err != nil {
		t.Fatalf("Events() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Kind != "publish" {
		t.Errorf("events[0].Kind = %q, want first write to win", events[0].Kind)
	}
}

func TestListRuns_NewestFirstWithLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		if err := s.BeginRun(ctx, id, "scenario", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("BeginRun(%s) failed: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("runs = [%s, %s], want newest first", runs[0].ID, runs[1].ID)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestWriteEvent_RequiresRun(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteEvent(context.Background(), "missing", 0, "publish", []byte(`{}`))
	if err == nil {
		t.Error("expected foreign key violation for unknown run")
	}
}
