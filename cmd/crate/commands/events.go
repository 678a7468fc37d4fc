package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/crate/pkg/stores"
)

func newEventsCommand() *cobra.Command {
	var (
		container string
		level     string
	)

	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "Show the events of a past run",
		Example: `  # Show everything that happened during a run
  crate events 3f6c1a9e-5b7d-4c1e-9a53-2f0b8d4e7c11

  # Show only the errors
  crate events 3f6c1a9e-5b7d-4c1e-9a53-2f0b8d4e7c11 --level error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			runID := args[0]

			store, err := historyForCurrentProject(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, runID)
			if err != nil {
				return err
			}

			filter := stores.EventFilter{RunID: &runID}
			if container != "" {
				filter.Container = &container
			}
			if level != "" {
				l := stores.EventLevel(level)
				filter.Level = &l
			}

			events, err := store.GetEvents(ctx, filter)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}

			fmt.Fprintf(out, "Run %s of %s: %s\n\n", run.ID, run.Task, run.Status)
			return printEvents(out, events)
		},
	}

	cmd.Flags().StringVar(&container, "container", "", "only show events for this container")
	cmd.Flags().StringVar(&level, "level", "", "only show events of this level (info, warning, error)")

	return cmd
}

func printEvents(out io.Writer, events []*stores.Event) error {
	if len(events) == 0 {
		fmt.Fprintln(out, "No events recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tLEVEL\tCONTAINER\tMESSAGE")
	for _, e := range events {
		container := "-"
		if e.Container != nil {
			container = *e.Container
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			e.Seq, e.Timestamp.Local().Format("15:04:05.000"), e.Level, container, e.Message)
	}
	return w.Flush()
}
