package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fermata/internal/trace"
)

// seedTraceStore writes one finished run with two transcript events and
// returns the database path.
func seedTraceStore(t *testing.T, runID, name string, started time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	seedRun(t, path, runID, name, started)
	return path
}

func seedRun(t *testing.T, path, runID, name string, started time.Time) {
	t.Helper()
	store, err := trace.Open(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.BeginRun(ctx, runID, name, started))
	require.NoError(t, store.WriteEvent(ctx, runID, 0, "start", []byte(`{"scenario":"`+name+`"}`)))
	require.NoError(t, store.WriteEvent(ctx, runID, 1, "verdict", []byte(`{"failures":[],"pass":true}`)))
	require.NoError(t, store.FinishRun(ctx, runID, started.Add(time.Second), trace.StatusPassed, ""))
}

func executeTrace(t *testing.T, rootOpts *RootOptions, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf, err
}

func TestTraceCommand_ListRuns(t *testing.T) {
	path := seedTraceStore(t, "run-1", "round-trip", time.Now())

	buf, err := executeTrace(t, &RootOptions{Format: "text"}, path)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "RUN")
	assert.Contains(t, output, "run-1")
	assert.Contains(t, output, "round-trip")
	assert.Contains(t, output, "passed")
}

func TestTraceCommand_ListLimit(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "runs.db")
	seedRun(t, path, "run-old", "alpha", base)
	seedRun(t, path, "run-new", "beta", base.Add(time.Minute))

	buf, err := executeTrace(t, &RootOptions{Format: "text"}, path, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "run-new")
	assert.NotContains(t, buf.String(), "run-old")
}

func TestTraceCommand_DumpRun(t *testing.T) {
	path := seedTraceStore(t, "run-1", "round-trip", time.Now())

	buf, err := executeTrace(t, &RootOptions{Format: "text"}, path, "--run", "run-1")
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Run: run-1")
	assert.Contains(t, output, "Status: passed")
	assert.Contains(t, output, "=== Transcript ===")
	assert.Contains(t, output, `[0] start {"scenario":"round-trip"}`)
	assert.Contains(t, output, `[1] verdict {"failures":[],"pass":true}`)
}

func TestTraceCommand_DumpRunJSON(t *testing.T) {
	path := seedTraceStore(t, "run-1", "round-trip", time.Now())

	buf, err := executeTrace(t, &RootOptions{Format: "json"}, path, "--run", "run-1")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var transcript RunTranscript
	require.NoError(t, json.Unmarshal(raw, &transcript))
	assert.Equal(t, "run-1", transcript.Run.ID)
	require.Len(t, transcript.Events, 2)
	assert.Equal(t, "verdict", transcript.Events[1].Kind)
	assert.JSONEq(t, `{"failures":[],"pass":true}`, string(transcript.Events[1].Detail))
}

func TestTraceCommand_RunNotFound(t *testing.T) {
	path := seedTraceStore(t, "run-1", "round-trip", time.Now())

	_, err := executeTrace(t, &RootOptions{Format: "text"}, path, "--run", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found")
}

func TestTraceCommand_MissingDatabase(t *testing.T) {
	buf, err := executeTrace(t, &RootOptions{Format: "text"}, filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "[E004]")
}
