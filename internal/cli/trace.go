package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fermata/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	RunID string
	Limit int
}

// RunInfo is the JSON shape of one recorded run.
type RunInfo struct {
	ID         string `json:"id"`
	Scenario   string `json:"scenario"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Status     string `json:"status"`
	Failure    string `json:"failure,omitempty"`
}

// TranscriptEvent is one transcript entry. Detail is the canonical JSON
// recorded by the runner, passed through untouched.
type TranscriptEvent struct {
	Seq    int             `json:"seq"`
	Kind   string          `json:"kind"`
	Detail json.RawMessage `json:"detail"`
}

// RunTranscript pairs a run with its full transcript.
type RunTranscript struct {
	Run    RunInfo           `json:"run"`
	Events []TranscriptEvent `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <db>",
		Short: "Inspect recorded scenario runs",
		Long: `Inspect the transcript store written by "fermata run --trace-db".

Without --run, lists the most recent runs. With --run, dumps one run's
full transcript: the ordered events the runner recorded, each with its
canonical JSON detail.

Examples:
  fermata trace ./runs.db
  fermata trace ./runs.db --limit 5
  fermata trace ./runs.db --run 0192cf3e-2f9b-7c1d-b1e2-53f1a2c4d889`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraceQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "dump one run's transcript")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 = no limit)")

	return cmd
}

func runTraceQuery(opts *TraceOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Opening would create an empty store at a typo'd path, so require
	// the file to exist up front.
	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error(ErrCodeTrace, fmt.Sprintf("trace database not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "trace database not found", err)
	}

	store, err := trace.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace store", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.RunID != "" {
		return traceOneRun(ctx, store, opts, cmd)
	}
	return traceListRuns(ctx, store, opts, cmd)
}

func traceListRuns(ctx context.Context, store *trace.Store, opts *TraceOptions, cmd *cobra.Command) error {
	runs, err := store.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	infos := make([]RunInfo, 0, len(runs))
	for _, r := range runs {
		infos = append(infos, runInfo(r))
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, infos)
	}

	w := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(w, "(no recorded runs)")
		return nil
	}
	fmt.Fprintf(w, "%-36s  %-7s  %-24s  %s\n", "RUN", "STATUS", "SCENARIO", "STARTED")
	for _, r := range infos {
		fmt.Fprintf(w, "%-36s  %-7s  %-24s  %s\n", r.ID, r.Status, r.Scenario, r.StartedAt)
	}
	return nil
}

func traceOneRun(ctx context.Context, store *trace.Store, opts *TraceOptions, cmd *cobra.Command) error {
	run, err := store.GetRun(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to get run", err)
	}
	events, err := store.Events(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transcript", err)
	}

	transcript := RunTranscript{
		Run:    runInfo(run),
		Events: make([]TranscriptEvent, 0, len(events)),
	}
	for _, ev := range events {
		transcript.Events = append(transcript.Events, TranscriptEvent{
			Seq:    ev.Seq,
			Kind:   ev.Kind,
			Detail: json.RawMessage(ev.Detail),
		})
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, transcript)
	}
	return outputTranscriptText(cmd, transcript)
}

func runInfo(r trace.Run) RunInfo {
	return RunInfo{
		ID:         r.ID,
		Scenario:   r.Scenario,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Status:     string(r.Status),
		Failure:    r.Failure,
	}
}

// outputTraceJSON writes data in the CLIResponse envelope, indented for
// human consumption.
func outputTraceJSON(cmd *cobra.Command, data any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: data})
}

func outputTranscriptText(cmd *cobra.Command, transcript RunTranscript) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Run: %s\n", transcript.Run.ID)
	fmt.Fprintf(w, "Scenario: %s\n", transcript.Run.Scenario)
	fmt.Fprintf(w, "Status: %s\n", transcript.Run.Status)
	fmt.Fprintf(w, "Started: %s\n", transcript.Run.StartedAt)
	if transcript.Run.FinishedAt != "" {
		fmt.Fprintf(w, "Finished: %s\n", transcript.Run.FinishedAt)
	}
	if transcript.Run.Failure != "" {
		fmt.Fprintf(w, "Failure: %s\n", transcript.Run.Failure)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Transcript ===")
	if len(transcript.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
		return nil
	}
	for _, ev := range transcript.Events {
		fmt.Fprintf(w, "  [%d] %s %s\n", ev.Seq, ev.Kind, ev.Detail)
	}
	return nil
}
