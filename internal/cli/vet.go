package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fermata/scenario"
)

// VetOptions holds flags for the vet command.
type VetOptions struct {
	*RootOptions
	Filter string
}

// VetIssue holds the validation errors for one scenario file.
type VetIssue struct {
	File   string   `json:"file"`
	Errors []string `json:"errors"`
}

// VetSummary aggregates the results of a vet invocation.
type VetSummary struct {
	Checked int        `json:"checked"`
	Invalid int        `json:"invalid"`
	Issues  []VetIssue `json:"issues,omitempty"`
}

// NewVetCommand creates the vet command.
func NewVetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "vet <scenarios-dir>",
		Short: "Validate scenario files without running them",
		Long: `Validate every scenario file (*.yaml) in a directory.

Each file is checked against the scenario schema and then strictly
decoded, so unknown fields, malformed actions, and undeclared sync
events are caught without executing anything.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVet(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "glob applied to scenario file names")

	return cmd
}

func runVet(opts *VetOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	files, err := discoverScenarios(dir, opts.Filter)
	if err != nil {
		code := ErrCodeBadPath
		if errors.Is(err, errNoScenarios) {
			code = ErrCodeNoScenarios
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list scenarios", err)
	}

	vetter, err := scenario.NewVetter()
	if err != nil {
		_ = formatter.Error(ErrCodeVet, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build scenario schema", err)
	}

	summary := VetSummary{}
	for _, path := range files {
		issue := vetOne(vetter, path)
		summary.Checked++
		if len(issue.Errors) > 0 {
			summary.Invalid++
			summary.Issues = append(summary.Issues, issue)
		} else {
			formatter.VerboseLog("ok %s", issue.File)
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(summary); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode summary", err)
		}
	} else {
		writeVetSummaryText(cmd, summary)
	}

	if summary.Invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario files failed validation", summary.Invalid, summary.Checked))
	}
	return nil
}

// vetOne checks one file against the schema and the strict decoder.
// Both checks run even if the first fails; they catch different problems.
func vetOne(vetter *scenario.Vetter, path string) VetIssue {
	issue := VetIssue{File: filepath.Base(path)}

	data, err := os.ReadFile(path)
	if err != nil {
		issue.Errors = append(issue.Errors, err.Error())
		return issue
	}
	if err := vetter.Vet(path, data); err != nil {
		issue.Errors = append(issue.Errors, err.Error())
	}
	if _, err := scenario.Parse(data); err != nil {
		issue.Errors = append(issue.Errors, err.Error())
	}
	return issue
}

func writeVetSummaryText(cmd *cobra.Command, summary VetSummary) {
	w := cmd.OutOrStdout()
	for _, issue := range summary.Issues {
		fmt.Fprintf(w, "FAIL %s\n", issue.File)
		for _, msg := range issue.Errors {
			fmt.Fprintf(w, "     %s\n", msg)
		}
	}
	if summary.Invalid == 0 {
		fmt.Fprintf(w, "%d scenario files are valid\n", summary.Checked)
		return
	}
	fmt.Fprintf(w, "%d files checked, %d invalid\n", summary.Checked, summary.Invalid)
}
