package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/fermata/internal/trace"
	"github.com/roach88/fermata/scenario"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Filter   string
	Defaults string
	TraceDB  string
	Ceiling  time.Duration
}

// RunResult is the outcome of one scenario file.
type RunResult struct {
	File     string   `json:"file"`
	Scenario string   `json:"scenario,omitempty"`
	Pass     bool     `json:"pass"`
	Failures []string `json:"failures,omitempty"`
	RunID    string   `json:"run_id,omitempty"`
}

// RunSummary aggregates the results of a run invocation.
type RunSummary struct {
	Total   int         `json:"total"`
	Passed  int         `json:"passed"`
	Failed  int         `json:"failed"`
	Results []RunResult `json:"results"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenarios-dir>",
		Short: "Run every scenario in a directory",
		Long: `Run every scenario file (*.yaml) in a directory.

Each scenario gets a fresh virtual clock and broker double. Files are
vetted against the schema before running; a file that fails vetting is
reported as a failed scenario. With --trace-db, every run's transcript
is recorded to a SQLite store for later inspection with "fermata trace".

Examples:
  fermata run ./scenarios
  fermata run ./scenarios --filter 'request_*' --trace-db ./runs.db
  fermata run ./scenarios --defaults ./defaults.toml --ceiling 2s`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "glob applied to scenario file names")
	cmd.Flags().StringVar(&opts.Defaults, "defaults", "", "path to a defaults TOML file (overrides built-ins)")
	cmd.Flags().StringVar(&opts.TraceDB, "trace-db", "", "path to a SQLite transcript store (created if missing)")
	cmd.Flags().DurationVar(&opts.Ceiling, "ceiling", 0, "real-time ceiling for blocking steps (overrides defaults)")

	return cmd
}

func runScenarios(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	files, err := discoverScenarios(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list scenarios", err)
	}

	defaults, err := loadRunDefaults(opts.Defaults)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load defaults", err)
	}
	if opts.Ceiling < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("negative ceiling %v", opts.Ceiling))
	}

	vetter, err := scenario.NewVetter()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build scenario schema", err)
	}

	var store *trace.Store
	if opts.TraceDB != "" {
		store, err = trace.Open(opts.TraceDB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace store", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				log.Error("error closing trace store", "error", closeErr)
			}
		}()
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := scenario.Loader{Defaults: defaults}
	cfg := scenario.RunnerConfig{
		Defaults: defaults,
		Log:      log,
		Ceiling:  opts.Ceiling,
	}

	summary := RunSummary{Results: make([]RunResult, 0, len(files))}
	for _, path := range files {
		result := runOne(ctx, cfg, loader, vetter, store, path, formatter)
		summary.Total++
		if result.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, result)
	}

	if opts.Format == "json" {
		if err := formatter.Success(summary); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode summary", err)
		}
	} else {
		writeRunSummaryText(cmd, summary)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", summary.Failed, summary.Total))
	}
	return nil
}

// runOne vets, parses, and replays a single scenario file. Scenario
// failures land in the result; only transcript-store breakage aborts.
func runOne(ctx context.Context, cfg scenario.RunnerConfig, loader scenario.Loader, vetter *scenario.Vetter, store *trace.Store, path string, formatter *OutputFormatter) RunResult {
	result := RunResult{File: filepath.Base(path)}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Failures = []string{err.Error()}
		return result
	}
	if err := vetter.Vet(path, data); err != nil {
		result.Failures = []string{err.Error()}
		return result
	}
	sc, err := scenario.Parse(data)
	if err != nil {
		result.Failures = []string{err.Error()}
		return result
	}
	loader.Apply(sc)
	result.Scenario = sc.Name

	if store != nil {
		result.RunID = uuid.Must(uuid.NewV7()).String()
		if err := store.BeginRun(ctx, result.RunID, sc.Name, time.Now()); err != nil {
			result.Failures = []string{err.Error()}
			return result
		}
		cfg.Recorder = &trace.RunRecorder{Store: store, RunID: result.RunID}
	}

	formatter.VerboseLog("running %s (%s)", sc.Name, result.File)
	report, err := scenario.NewRunner(cfg).Run(ctx, sc)
	if err != nil {
		result.Failures = []string{err.Error()}
		finishRun(ctx, store, result.RunID, trace.StatusFailed, err.Error())
		return result
	}

	result.Pass = report.Pass
	result.Failures = report.Failures
	status := trace.StatusPassed
	if !report.Pass {
		status = trace.StatusFailed
	}
	finishRun(ctx, store, result.RunID, status, strings.Join(report.Failures, "; "))
	return result
}

func finishRun(ctx context.Context, store *trace.Store, runID string, status trace.Status, failure string) {
	if store == nil || runID == "" {
		return
	}
	if err := store.FinishRun(ctx, runID, time.Now(), status, failure); err != nil {
		// The transcript events are already durable; losing the outcome
		// row only degrades "fermata trace" output.
		return
	}
}

func writeRunSummaryText(cmd *cobra.Command, summary RunSummary) {
	w := cmd.OutOrStdout()
	for _, r := range summary.Results {
		name := r.Scenario
		if name == "" {
			name = r.File
		}
		if r.Pass {
			fmt.Fprintf(w, "PASS %s (%s)\n", name, r.File)
			continue
		}
		fmt.Fprintf(w, "FAIL %s (%s)\n", name, r.File)
		for _, msg := range r.Failures {
			fmt.Fprintf(w, "     %s\n", msg)
		}
	}
	fmt.Fprintf(w, "%d scenarios: %d passed, %d failed\n", summary.Total, summary.Passed, summary.Failed)
}

// errNoScenarios marks an empty (or fully filtered) scenarios directory.
var errNoScenarios = errors.New("no scenario files")

// discoverScenarios lists *.yaml files under dir, sorted by name. The
// filter glob, when set, applies to base names.
func discoverScenarios(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		if filter != "" {
			ok, err := filepath.Match(filter, entry.Name())
			if err != nil {
				return nil, fmt.Errorf("bad filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", errNoScenarios, dir)
	}
	return files, nil
}

func loadRunDefaults(path string) (scenario.Defaults, error) {
	if path == "" {
		return scenario.BuiltinDefaults()
	}
	return scenario.LoadDefaults(path)
}
