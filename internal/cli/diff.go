package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/viewstore/internal/patch"
	"github.com/roach88/viewstore/internal/record"
)

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <a.json> <b.json>",
		Short: "Print the RFC 6902 patch turning one record into another",
		Long: `Compare two JSON objects and print the minimal JSON Patch that turns the
first into the second.

Examples:
  viewstore diff before.json after.json
  viewstore diff before.json after.json --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, rootOpts, args[0], args[1])
		},
	}
	return cmd
}

func runDiff(cmd *cobra.Command, opts *RootOptions, pathA, pathB string) error {
	out := opts.formatter(cmd)

	a, err := readRecord(pathA)
	if err != nil {
		_ = out.Error(ErrCodeLoadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}
	b, err := readRecord(pathB)
	if err != nil {
		_ = out.Error(ErrCodeLoadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}

	p := patch.Diff(a, b)
	out.VerboseLog("%d operation(s)", len(p.Ops))
	if opts.Format == "json" {
		return out.Success(p.ToJSONPatch())
	}
	return out.Success(p.String())
}

func readRecord(path string) (record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := record.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
