package observers

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/openfroyo/crate/pkg/config"
	"github.com/openfroyo/crate/pkg/engine"
	"github.com/openfroyo/crate/pkg/telemetry"
)

const durationPrecision = 10 * time.Millisecond

// Console prints a run's progress for a person watching the terminal.
// Diagnostics that aren't meant for the user go to the logger.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	task   *config.ResolvedTask
	logger *telemetry.Logger

	startingDependencies bool
	cleaningUp           bool
	failureShown         bool
}

// NewConsole creates a console listener for task.
func NewConsole(out io.Writer, task *config.ResolvedTask, logger *telemetry.Logger) *Console {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Console{
		out:    out,
		task:   task,
		logger: logger.NewComponentLogger("console"),
	}
}

// OnStepStarting implements engine.Listener.
func (c *Console) OnStepStarting(step engine.Step) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch s := step.(type) {
	case engine.PullImageStep:
		c.printf("Pulling %s...", s.Source.Ref)
	case engine.BuildImageStep:
		c.printf("Building image from %s...", s.Source.Directory)
	case engine.StartContainerStep:
		if !c.startingDependencies {
			c.startingDependencies = true
			c.printf("Starting dependencies...")
		}
		c.printf("Starting %s...", s.Container.Name)
	case engine.WaitForContainerToBecomeHealthyStep:
		c.logger.Debug().Str("container", s.Container.Name).Msg("Waiting for container to become healthy")
	case engine.RunContainerStep:
		c.printf("Running %s...", c.describeTask(s.Container))
	case engine.StopContainerStep, engine.RemoveContainerStep,
		engine.CleanUpContainerStep, engine.DeleteTaskNetworkStep:
		c.startCleanup()
	case engine.DisplayTaskFailureStep:
		if c.failureShown {
			return
		}
		c.failureShown = true
		fmt.Fprintf(c.out, "\n%s\n\n", s.Message)
	}
}

// OnEventPosted implements engine.Listener.
func (c *Console) OnEventPosted(event engine.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := event.(type) {
	case engine.ImagePulledEvent:
		c.printf("Pulled %s.", e.Source.Ref)
	case engine.ImageBuiltEvent:
		c.printf("Built image from %s.", e.Source.Directory)
	case engine.ContainerBecameHealthyEvent:
		c.printf("%s has become healthy.", e.Container.Name)
	case engine.TaskInterruptedEvent:
		if !c.cleaningUp {
			c.cleaningUp = true
			c.printf("Interrupt received, cleaning up...")
		}
	case engine.TaskFailedEvent:
		c.logger.Debug().
			Str("step", string(e.Step)).
			Str("container", containerName(e.Container)).
			Err(e.Err).
			Msg(e.Message)
	}
}

func (c *Console) startCleanup() {
	if c.cleaningUp {
		return
	}
	c.cleaningUp = true
	c.printf("Cleaning up...")
}

// describeTask names what the task container is about to run.
func (c *Console) describeTask(container *config.Container) string {
	command := container.Command
	if c.task != nil && len(c.task.Task.Run.Command) > 0 {
		command = c.task.Task.Run.Command
	}

	name := container.Name
	if c.task != nil {
		name = c.task.Task.Name
	}

	if len(command) == 0 {
		return name
	}
	return fmt.Sprintf("%s (%s in %s)", name, strings.Join(command, " "), container.Name)
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Summary prints how the run ended, including any resources cleanup
// failed to remove.
func (c *Console) Summary(result *engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch result.Status {
	case engine.RunStatusSucceeded, engine.RunStatusExitedNonZero:
		c.printf("%s finished with exit code %d in %s.", result.Task, result.ExitCode, result.Duration().Round(durationPrecision))
	case engine.RunStatusCancelled:
		c.printf("%s was interrupted.", result.Task)
	default:
		if !c.failureShown && result.Failure != "" {
			c.failureShown = true
			fmt.Fprintf(c.out, "\n%s\n\n", result.Failure)
		}
	}

	if len(result.CleanupFailures) > 0 {
		c.printf("Clean up did not complete. You may need to remove the following by hand:")
		for _, f := range result.CleanupFailures {
			c.printf("  - %s", f)
		}
	}
}
