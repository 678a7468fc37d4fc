package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/openfroyo/crate/pkg/config"
	"github.com/openfroyo/crate/pkg/policy"
	"github.com/openfroyo/crate/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var (
		watch       bool
		policyPaths []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the project file",
		Long: `Validate the project file without running anything.

This command checks:
  - YAML syntax and the project schema
  - Config variables and the variables script
  - Container and task references, dependency and prerequisite cycles
  - Policy compliance of every task's containers (OPA/rego)

With --watch the project and policy files are re-validated whenever they change.`,
		Example: `  # Validate crate.yml in the current directory
  crate validate

  # Validate another project file with extra policies
  crate validate -c ci/crate.yml --policy ./policies

  # Re-validate on every save
  crate validate --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			logger, err := newLogger(telemetry.DefaultConfig())
			if err != nil {
				return err
			}

			policies, err := policy.NewEngine(*logger.Zerolog())
			if err != nil {
				return err
			}
			if len(policyPaths) > 0 {
				if err := policies.LoadPolicies(ctx, policyPaths); err != nil {
					return err
				}
			}

			if !watch {
				project, err := loadProject(ctx)
				if err != nil {
					return err
				}
				return report(out, project, validateProject(ctx, project, policies))
			}

			return watchProject(ctx, out, policies, policyPaths, logger)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-validate when files change")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional policy files or directories")

	return cmd
}

// validateProject resolves every task and checks it against policies.
func validateProject(ctx context.Context, project *config.Project, policies *policy.Engine) error {
	var errs []error
	for _, name := range project.TaskNames() {
		if _, err := config.ExecutionOrder(project, name); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", name, err))
			continue
		}

		task, err := config.ResolveTask(project, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", name, err))
			continue
		}

		result, err := policies.Evaluate(ctx, policy.NewInput(task))
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", name, err))
			continue
		}
		if err := result.Err(); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func report(out io.Writer, project *config.Project, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Project %s is valid: %d containers, %d tasks.\n",
		project.Name, len(project.Containers), len(project.Tasks))
	return nil
}

// watchProject re-validates on project or policy changes until ctx is done.
func watchProject(ctx context.Context, out io.Writer, policies *policy.Engine, policyPaths []string, logger *telemetry.Logger) error {
	var (
		mu      sync.Mutex
		current *config.Project
	)

	check := func() {
		mu.Lock()
		defer mu.Unlock()
		if current == nil {
			return
		}
		if err := report(out, current, validateProject(ctx, current, policies)); err != nil {
			fmt.Fprintf(out, "%v\n", err)
		}
	}

	if len(policyPaths) > 0 {
		loader := policy.NewLoader(*logger.Zerolog())
		err := loader.Watch(ctx, policyPaths, func(reloaded []policy.Policy) error {
			if err := policies.ReplacePolicies(ctx, reloaded); err != nil {
				return err
			}
			check()
			return nil
		})
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Watching %s for changes. Press Ctrl-C to stop.\n", configPath)

	return config.NewLoader().Watch(ctx, configPath, loadOptions(), *logger.Zerolog(), func(project *config.Project, err error) {
		if err != nil {
			fmt.Fprintf(out, "%v\n", err)
			return
		}
		mu.Lock()
		current = project
		mu.Unlock()
		check()
	})
}
