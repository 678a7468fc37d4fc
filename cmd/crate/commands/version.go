package commands

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/crate/pkg/docker"
)

func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	var dockerHost string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information and the Docker host in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "crate %s (commit: %s, built: %s)\n", version, commit, buildDate)
			fmt.Fprintf(out, "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			rt, err := docker.New(ctx, docker.Options{Host: dockerHost})
			if err != nil {
				fmt.Fprintf(out, "Docker: unavailable (%v)\n", err)
				return nil
			}
			defer rt.Close()

			host := rt.Host()
			fmt.Fprintf(out, "Docker host: %s (%s)\n", host.Name, host.URL)
			if name, ok := rt.HostName(ctx); ok {
				fmt.Fprintf(out, "Host address from containers: %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dockerHost, "docker-host", "", "Docker daemon address (default $DOCKER_HOST)")

	return cmd
}
