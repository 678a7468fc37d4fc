package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/crate/pkg/config"
)

const (
	// DefaultParallelism is the default number of step workers.
	DefaultParallelism = 8

	// DefaultPullRetries is how many times a retryable pull failure is retried.
	DefaultPullRetries = 2
)

// Options configures an Engine.
type Options struct {
	// Parallelism is the number of steps that may run at once. At least two
	// workers are always used so a waiting step can't starve the run.
	Parallelism int

	// PullRetries is the number of retries for retryable pull failures.
	PullRetries int

	// Backoff computes the delay between pull retries. Defaults to DefaultBackoff.
	Backoff BackoffFunc

	// Logger receives engine diagnostics. Nil disables logging.
	Logger *zerolog.Logger

	// RunID overrides the generated run identifier.
	RunID string
}

// Engine runs tasks against a container runtime.
type Engine struct {
	runtime   Runtime
	opts      Options
	logger    zerolog.Logger
	listeners []Listener
}

// Result is the outcome of one task run.
type Result struct {
	RunID  string
	Task   string
	Status RunStatus

	// ExitCode is the task container's exit code, or -1 if it never ran
	// to completion.
	ExitCode int64

	// Failure is the message shown for a failed or interrupted run.
	Failure string

	// CleanupFailures lists teardown steps that failed. Resources named
	// here may need to be removed by hand.
	CleanupFailures []string

	StartedAt   time.Time
	CompletedAt time.Time

	// Events is the run's complete event log.
	Events []Event
}

// Duration is how long the run took.
func (r *Result) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// New creates an engine.
func New(runtime Runtime, opts Options, listeners ...Listener) *Engine {
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Parallelism < 2 {
		opts.Parallelism = 2
	}
	if opts.PullRetries < 0 {
		opts.PullRetries = 0
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoff
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Engine{
		runtime:   runtime,
		opts:      opts,
		logger:    logger,
		listeners: listeners,
	}
}

// Run executes task and returns once every step has finished and every
// created resource has been released or its release has failed.
//
// Cancelling ctx interrupts the run: no further progress is made, but
// cleanup still runs to completion. The returned error is non-nil only
// for an invariant violation; task failures are reported in the Result.
func (e *Engine) Run(ctx context.Context, task *config.ResolvedTask) (*Result, error) {
	if task == nil || task.TaskContainer == nil {
		return nil, errors.New("engine: resolved task has no task container")
	}

	runID := e.opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	logger := e.logger.With().Str("run_id", runID).Str("task", task.Task.Name).Logger()

	queue := NewStepQueue()
	run := NewContext(runID, task, queue, e.listeners...)
	defer run.Close()

	x := &executor{
		runtime:     e.runtime,
		run:         run,
		pullRetries: e.opts.PullRetries,
		backoff:     e.opts.Backoff,
		logger:      logger,
	}

	result := &Result{
		RunID:     runID,
		Task:      task.Task.Name,
		Status:    RunStatusRunning,
		ExitCode:  -1,
		StartedAt: time.Now(),
	}

	logger.Debug().Int("containers", len(task.Containers)).Msg("Starting task run")

	if err := run.PostEvent(TaskStartedEvent{}); err != nil {
		return nil, err
	}

	// Steps outlive the caller's context so that cleanup can finish.
	stepCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				step, ok := queue.Next()
				if !ok {
					return
				}
				logger.Debug().Str("step", step.String()).Msg("Running step")
				run.notifyStepStarting(step)
				x.execute(stepCtx, step)
				queue.Done()
			}
		}()
	}

	finished := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			if !queue.Hold() {
				return
			}
			defer queue.Done()
			logger.Info().Msg("Task interrupted, cleaning up")
			_ = run.PostEvent(TaskInterruptedEvent{Reason: interruptReason(ctx)})
		case <-finished:
		}
	}()

	wg.Wait()
	close(finished)
	<-watcherDone

	result.CompletedAt = time.Now()
	result.Events = run.Events()
	summarize(result, run)

	logger.Debug().
		Str("status", string(result.Status)).
		Int64("exit_code", result.ExitCode).
		Int("withdrawn_steps", len(run.WithdrawnSteps())).
		Dur("duration", result.Duration()).
		Msg("Task run finished")

	return result, run.Violation()
}

// summarize derives the run's status from its event log and queued steps.
func summarize(result *Result, run *Context) {
	taskContainer := run.TaskContainer().Name
	interrupted := false
	aborted := false

	for _, event := range result.Events {
		switch e := event.(type) {
		case RunningContainerExitedEvent:
			if e.Container.Name == taskContainer {
				result.ExitCode = e.ExitCode
			}
		case TaskInterruptedEvent:
			if !aborted {
				interrupted = true
			}
			aborted = true
		case TaskFailedEvent:
			if e.Step.failureIsFatal() {
				aborted = true
			} else {
				result.CleanupFailures = append(result.CleanupFailures, e.Message)
			}
		}
	}

	for _, step := range run.QueuedSteps() {
		if display, ok := step.(DisplayTaskFailureStep); ok {
			result.Failure = display.Message
			break
		}
	}

	switch {
	case run.Violation() != nil:
		result.Status = RunStatusFailed
		if result.Failure == "" {
			result.Failure = run.Violation().Error()
		}
	case result.Failure != "" && interrupted:
		result.Status = RunStatusCancelled
	case result.Failure != "":
		result.Status = RunStatusFailed
	case result.ExitCode == 0:
		result.Status = RunStatusSucceeded
	default:
		result.Status = RunStatusExitedNonZero
	}
}

func interruptReason(ctx context.Context) string {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return ""
	}
	return cause.Error()
}
