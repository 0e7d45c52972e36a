package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"actuarial_valuation/pkg/core/runlog"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	RunLog     string
	Limit      int
	PruneAfter time.Duration
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs, newest first",
		Long: `Lists the run log. With --prune, records of runs started longer ago
than the given duration are deleted first.

Example:
  projector history --limit 5
  projector history --run-log runs.db --prune 2160h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.RunLog, "run-log", "", "run log file, overrides the settings")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of runs to show (0 for all)")
	cmd.Flags().DurationVar(&opts.PruneAfter, "prune", 0, "delete runs older than this before listing")
	return cmd
}

func runHistory(opts *HistoryOptions, out io.Writer) error {
	path := opts.RunLog
	if path == "" {
		s, err := opts.settings()
		if err != nil {
			return err
		}
		path = s.RunLogPath
	}
	if path == "" {
		return fmt.Errorf("no run log configured")
	}

	runs, err := runlog.Open(path)
	if err != nil {
		return err
	}
	defer runs.Close()

	if opts.PruneAfter > 0 {
		n, err := runs.Prune(time.Now().Add(-opts.PruneAfter))
		if err != nil {
			return fmt.Errorf("prune run log: %w", err)
		}
		fmt.Fprintf(out, "pruned %d run(s)\n", n)
	}

	records, err := runs.History(opts.Limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTART\tDURATION\tSTATUS\tUSER\tDETAIL")
	for _, r := range records {
		detail := r.OutputLocation
		if r.Status == runlog.StatusFailed {
			detail = r.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1fs\t%s\t%s\t%s\n",
			r.RunID, r.Start.Local().Format(time.DateTime), r.DurationSeconds, r.Status, r.User, detail)
	}
	return tw.Flush()
}
