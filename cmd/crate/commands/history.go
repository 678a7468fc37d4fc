package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/crate/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		task   string
		status string
		limit  int
		offset int
		prune  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs",
		Long: `Show past runs recorded in the project's history database.

Runs are listed newest first. Use "crate events <run-id>" to see what
happened during a run.`,
		Example: `  # Show the last 20 runs
  crate history

  # Show failed runs of the test task
  crate history --task test --status failed

  # Keep only the 100 most recent runs
  crate history --prune 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, err := historyForCurrentProject(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if cmd.Flags().Changed("prune") {
				removed, err := store.PruneRuns(ctx, prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d runs.\n", removed)
				return nil
			}

			filter := stores.RunFilter{Limit: limit, Offset: offset}
			if task != "" {
				filter.Task = &task
			}
			if status != "" {
				s := stores.RunStatus(status)
				filter.Status = &s
			}

			runs, err := store.ListRuns(ctx, filter)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			return printRuns(out, runs)
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "only show runs of this task")
	cmd.Flags().StringVar(&status, "status", "", "only show runs with this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	cmd.Flags().IntVar(&prune, "prune", 0, "delete all but this many of the most recent runs")

	return cmd
}

func printRuns(out io.Writer, runs []*stores.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tTASK\tSTATUS\tEXIT\tSTARTED\tDURATION")
	for _, r := range runs {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprintf("%d", *r.ExitCode)
		}
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.Duration().Round(10 * time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Task, r.Status, exit,
			r.StartedAt.Local().Format(time.DateTime), duration)
	}
	return w.Flush()
}
