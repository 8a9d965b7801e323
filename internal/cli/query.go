package cli

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/viewstore/internal/config"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Config     string
	View       string
	Filter     string
	Sort       string
	Descending bool
	Offset     int
	Limit      int
}

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	Store   string          `json:"store"`
	View    string          `json:"view,omitempty"`
	Version int64           `json:"version"`
	Items   []record.Record `json:"items"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Fetch records from a store definition",
		Long: `Load a CUE store definition and print its records, optionally through
one of its views and an ad-hoc filter, sort and range.

Text output prints one canonical JSON record per line.

Examples:
  viewstore query --config store.cue
  viewstore query --config store.cue --view active
  viewstore query --config store.cue --filter "item.v > 1" --sort /v --desc --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "CUE store definition (required)")
	cmd.Flags().StringVar(&opts.View, "view", "", "view declared by the definition")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "CEL predicate over item")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "JSON pointer to sort by")
	cmd.Flags().BoolVar(&opts.Descending, "desc", false, "sort descending")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "skip this many records")
	cmd.Flags().IntVar(&opts.Limit, "limit", -1, "return at most this many records (-1 for all)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()

	if _, err := os.Stat(opts.Config); err != nil {
		_ = out.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "definition not found", err)
	}
	def, err := config.Load(opts.Config)
	if err != nil {
		var ce *config.CompileError
		details := any(nil)
		if errors.As(err, &ce) {
			details = map[string]any{"field": ce.Field}
		}
		_ = out.Error(ErrCodeLoadFailed, err.Error(), details)
		return WrapExitError(ExitCommandError, "failed to load definition", err)
	}

	if opts.Offset < 0 {
		_ = out.Error(ErrCodeGeneric, "offset must not be negative", nil)
		return NewExitError(ExitCommandError, "invalid query flags")
	}
	adhoc := config.ViewSpec{Name: "query", Filter: opts.Filter}
	if opts.Sort != "" {
		adhoc.Sort = &config.SortSpec{Path: opts.Sort, Descending: opts.Descending}
	}
	if opts.Offset > 0 || opts.Limit >= 0 {
		count := opts.Limit
		if count < 0 {
			count = math.MaxInt
		}
		adhoc.Range = &config.RangeSpec{Offset: opts.Offset, Count: count}
	}
	q, err := adhoc.Query()
	if err != nil {
		_ = out.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid query flags", err)
	}

	root, closeFn, err := def.Open(ctx, store.WithLogger(opts.logger(cmd.ErrOrStderr())))
	if err != nil {
		_ = out.Error(responseCode(err, ErrCodeGeneric), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeFn()

	target := root
	if opts.View != "" {
		view, err := def.OpenView(ctx, root, opts.View)
		if err != nil {
			_ = out.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open view", err)
		}
		target = view
	}
	out.VerboseLog("query %s on %s", q.String(), describe(target))

	items, err := target.Fetch(ctx, q)
	if err != nil {
		_ = out.Error(responseCode(err, ErrCodeGeneric), err.Error(), nil)
		return WrapExitError(ExitFailure, "fetch failed", err)
	}

	if opts.Format == "json" {
		return out.Success(QueryResult{Store: def.Name, View: opts.View, Version: target.Version(), Items: items})
	}
	return out.Success(canonicalLines(items))
}

// canonicalLines renders items as canonical JSON, one per line.
func canonicalLines(items []record.Record) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = record.MustCanonical(item)
	}
	return strings.Join(lines, "\n")
}

// describe is used in verbose logs.
func describe(s *store.Store) string {
	if s.Derived() {
		return fmt.Sprintf("view %s", s.ViewQuery())
	}
	return "root"
}
