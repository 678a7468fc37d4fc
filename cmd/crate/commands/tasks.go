package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type taskInfo struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Container     string   `json:"container"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

func newTasksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the project's tasks",
		Example: `  # List tasks
  crate tasks

  # List tasks as JSON
  crate tasks --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := loadProject(cmd.Context())
			if err != nil {
				return err
			}

			infos := make([]taskInfo, 0, len(project.Tasks))
			for _, name := range project.TaskNames() {
				t := project.Tasks[name]
				infos = append(infos, taskInfo{
					Name:          name,
					Description:   t.Description,
					Container:     t.Run.Container,
					Prerequisites: t.Prerequisites,
				})
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			if len(infos) == 0 {
				fmt.Fprintln(out, "No tasks defined.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, t := range infos {
				line := t.Name + "\t" + t.Description
				if len(t.Prerequisites) > 0 {
					line += " (runs " + strings.Join(t.Prerequisites, ", ") + " first)"
				}
				fmt.Fprintln(w, strings.TrimRight(line, "\t"))
			}
			return w.Flush()
		},
	}

	return cmd
}
