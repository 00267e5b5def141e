package scenario

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	sc, err := Load(filepath.Join("testdata", "scenarios", name))
	require.NoError(t, err)
	return sc
}

func runScenario(t *testing.T, name string) *Report {
	t.Helper()
	runner := NewRunner(RunnerConfig{Log: testLogger()})
	report, err := runner.Run(context.Background(), loadTestScenario(t, name))
	require.NoError(t, err)
	return report
}

func TestRunner_Run_RoundTrip(t *testing.T) {
	report := runScenario(t, "round_trip.yaml")

	assert.True(t, report.Pass, "failures: %v", report.Failures)
	assert.Empty(t, report.Failures)
	AssertTranscriptGolden(t, "round-trip", report)
}

func TestRunner_Run_SubscribeRejectRecordsAttempt(t *testing.T) {
	report := runScenario(t, "subscribe_reject.yaml")

	assert.True(t, report.Pass, "failures: %v", report.Failures)
}

func TestRunner_Run_FreezeFlow(t *testing.T) {
	report := runScenario(t, "freeze_flow.yaml")

	assert.True(t, report.Pass, "failures: %v", report.Failures)
}

func TestRunner_Run_SyncBarrier(t *testing.T) {
	report := runScenario(t, "sync_barrier.yaml")

	assert.True(t, report.Pass, "failures: %v", report.Failures)
}

func TestRunner_Run_PublishDropFailsDelivery(t *testing.T) {
	report := runScenario(t, "publish_drop.yaml")

	assert.False(t, report.Pass)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "dropped, no acknowledgement")
}

func TestRunner_Run_UnfreezeWithoutFreezeFails(t *testing.T) {
	sc, err := Parse([]byte(`
name: stray-unfreeze
actions:
  - action: unfreeze time
`))
	require.NoError(t, err)

	runner := NewRunner(RunnerConfig{Log: testLogger()})
	report, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)

	assert.False(t, report.Pass)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "unfreeze with no outstanding freeze")
}

func TestRunner_Run_EpilogueMismatchReported(t *testing.T) {
	sc, err := Parse([]byte(`
name: wrong-count
epilogue:
  publication-count: 3
`))
	require.NoError(t, err)

	runner := NewRunner(RunnerConfig{Log: testLogger()})
	report, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)

	assert.False(t, report.Pass)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "publication count 0, want 3")
}

func TestRunner_Run_AwaitAckCeilingTimeout(t *testing.T) {
	sc, err := Parse([]byte(`
name: nothing-to-ack
prologue:
  ceiling:
    milliseconds: 150
actions:
  - action: await acknowledgement
`))
	require.NoError(t, err)

	runner := NewRunner(RunnerConfig{Log: testLogger()})
	start := time.Now()
	report, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)

	assert.False(t, report.Pass)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "awaiting acknowledgement")
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestRunner_Run_SleepHeldByFreezeHitsCeiling(t *testing.T) {
	sc, err := Parse([]byte(`
name: frozen-sleep
prologue:
  ceiling:
    milliseconds: 200
actions:
  - action: freeze time
  - action: sleep
    duration:
      milliseconds: 20
`))
	require.NoError(t, err)

	runner := NewRunner(RunnerConfig{Log: testLogger()})
	report, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)

	// With time frozen and nothing to unfreeze it, the sleep cannot
	// elapse; the real-time ceiling converts the hang into a failure.
	assert.False(t, report.Pass)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "sleep")
	assert.Contains(t, report.Failures[0], "timeout")
}

type memRecorder struct {
	events []Event
	fail   bool
}

func (m *memRecorder) RecordEvent(_ context.Context, seq int, kind string, detail []byte) error {
	if m.fail {
		return errors.New("sink closed")
	}
	m.events = append(m.events, Event{Seq: seq, Kind: kind, Detail: detail})
	return nil
}

func TestRunner_Run_RecorderReceivesEveryEvent(t *testing.T) {
	rec := &memRecorder{}
	runner := NewRunner(RunnerConfig{Log: testLogger(), Recorder: rec})
	report, err := runner.Run(context.Background(), loadTestScenario(t, "round_trip.yaml"))
	require.NoError(t, err)

	require.Len(t, rec.events, len(report.Events))
	for i, ev := range rec.events {
		assert.Equal(t, i, ev.Seq)
		assert.Equal(t, report.Events[i].Kind, ev.Kind)
		assert.Equal(t, report.Events[i].Detail, ev.Detail)
	}
}

func TestRunner_Run_RecorderErrorAborts(t *testing.T) {
	rec := &memRecorder{fail: true}
	runner := NewRunner(RunnerConfig{Log: testLogger(), Recorder: rec})
	_, err := runner.Run(context.Background(), loadTestScenario(t, "round_trip.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink closed")
}

func TestRunner_CeilingFor_Precedence(t *testing.T) {
	defaults := Defaults{Ceiling: Duration{Seconds: 4}}

	runner := NewRunner(RunnerConfig{Log: testLogger(), Defaults: defaults})
	assert.Equal(t, 4*time.Second, runner.ceilingFor(&Scenario{}))

	runner = NewRunner(RunnerConfig{Log: testLogger(), Defaults: defaults, Ceiling: 2 * time.Second})
	assert.Equal(t, 2*time.Second, runner.ceilingFor(&Scenario{}))

	withPrologue := &Scenario{Prologue: Prologue{Ceiling: &Duration{Milliseconds: 500}}}
	assert.Equal(t, 500*time.Millisecond, runner.ceilingFor(withPrologue))

	runner = NewRunner(RunnerConfig{Log: testLogger()})
	assert.Equal(t, defaultCeiling, runner.ceilingFor(&Scenario{}))
}

func TestRunner_Run_PacketIndexReusesID(t *testing.T) {
	sc, err := Parse([]byte(`
name: redelivery
actions:
  - action: receive telemetry
    topic: fermata/feed/alpha
    packet-index: 0
  - action: receive telemetry
    topic: fermata/feed/alpha
    packet-index: 0
  - action: receive telemetry
    topic: fermata/feed/alpha
epilogue:
  acknowledgement-count: 3
`))
	require.NoError(t, err)

	runner := NewRunner(RunnerConfig{Log: testLogger()})
	report, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, report.Pass, "failures: %v", report.Failures)

	// The two deliveries sharing packet-index 0 carry the same packet id;
	// the third gets a fresh one.
	var ids []string
	for _, ev := range report.Events {
		if ev.Kind == "receive telemetry" {
			ids = append(ids, string(ev.Detail))
		}
	}
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[1])
	assert.NotEqual(t, ids[0], ids[2])
}
