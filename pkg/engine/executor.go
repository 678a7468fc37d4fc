package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/crate/pkg/config"
)

// BackoffFunc returns how long to wait before retry number attempt+1 of an
// operation that failed with err.
type BackoffFunc func(attempt int, err error) time.Duration

// executor performs steps against the runtime and posts exactly one
// event for each, except DisplayTaskFailureStep which posts none.
type executor struct {
	runtime     Runtime
	run         *Context
	pullRetries int
	backoff     BackoffFunc
	logger      zerolog.Logger
}

func (x *executor) execute(ctx context.Context, step Step) {
	event := x.perform(ctx, step)
	if event == nil {
		return
	}

	if err := x.run.PostEvent(event); err != nil {
		x.logger.Error().Err(err).
			Str("step", step.String()).
			Str("event", event.String()).
			Msg("Event rejected")
	}
}

func (x *executor) perform(ctx context.Context, step Step) Event {
	switch s := step.(type) {
	case CreateTaskNetworkStep:
		network, err := x.runtime.CreateNetwork(ctx, x.run.NetworkName())
		if err != nil {
			return x.failed(s, nil, err, "Could not create network for task")
		}
		return TaskNetworkCreatedEvent{Network: network}

	case PullImageStep:
		image, err := x.pull(ctx, s.Source)
		if err != nil {
			return x.failed(s, nil, err, fmt.Sprintf("Could not pull image '%s'", s.Source.Ref))
		}
		return ImagePulledEvent{Source: s.Source, Image: image}

	case BuildImageStep:
		image, err := x.runtime.BuildImage(ctx, s.Source, x.run.ImageTag(s.Source))
		if err != nil {
			return x.failed(s, nil, err, fmt.Sprintf("Could not build image from directory '%s'", s.Source.Directory))
		}
		return ImageBuiltEvent{Source: s.Source, Image: image}

	case CreateContainerStep:
		handle, err := x.runtime.CreateContainer(ctx, ContainerSpec{
			Name:      x.run.ContainerName(s.Container),
			Container: s.Container,
			Command:   s.Command,
			Image:     s.Image,
			Network:   s.Network,
		})
		if err != nil {
			return x.failed(s, s.Container, err, fmt.Sprintf("Could not create container '%s'", s.Container.Name))
		}
		return ContainerCreatedEvent{Container: s.Container, Handle: handle}

	case RunContainerStep:
		code, err := x.runtime.RunContainer(ctx, s.Handle)
		if err != nil {
			return x.failed(s, s.Container, err, fmt.Sprintf("Could not run container '%s'", s.Container.Name))
		}
		return RunningContainerExitedEvent{Container: s.Container, ExitCode: code}

	case StartContainerStep:
		if err := x.runtime.StartContainer(ctx, s.Handle); err != nil {
			return x.failed(s, s.Container, err, fmt.Sprintf("Could not start dependency '%s'", s.Container.Name))
		}
		return ContainerStartedEvent{Container: s.Container}

	case WaitForContainerToBecomeHealthyStep:
		if err := x.runtime.WaitForHealthy(ctx, s.Handle); err != nil {
			return x.failed(s, s.Container, err, fmt.Sprintf("Dependency '%s' did not become healthy", s.Container.Name))
		}
		return ContainerBecameHealthyEvent{Container: s.Container}

	case StopContainerStep:
		if err := x.runtime.StopContainer(ctx, s.Handle); err != nil {
			return x.failed(s, s.Container, err, fmt.Sprintf("Could not stop container '%s'", s.Container.Name))
		}
		return ContainerStoppedEvent{Container: s.Container}

	case RemoveContainerStep:
		if err := x.runtime.RemoveContainer(ctx, s.Handle); err != nil {
			return x.failed(s, s.Container, err, fmt.Sprintf("Could not remove container '%s'", s.Container.Name))
		}
		return ContainerRemovedEvent{Container: s.Container}

	case CleanUpContainerStep:
		if err := x.runtime.CleanUpContainer(ctx, s.Handle); err != nil {
			return x.failed(s, s.Container, err, fmt.Sprintf("Could not clean up container '%s'", s.Container.Name))
		}
		return ContainerRemovedEvent{Container: s.Container}

	case DeleteTaskNetworkStep:
		if err := x.runtime.DeleteNetwork(ctx, s.Network); err != nil {
			return x.failed(s, nil, err, "Could not delete the task network")
		}
		return TaskNetworkDeletedEvent{}

	case DisplayTaskFailureStep:
		// Shown by listeners when the step starts.
		return nil

	default:
		x.logger.Error().Str("step", fmt.Sprintf("%T", step)).Msg("No executor for step")
		return nil
	}
}

// pull retries retryable failures with exponential backoff. Retries stop
// once the run is aborting.
func (x *executor) pull(ctx context.Context, source config.PullImage) (Image, error) {
	var (
		image Image
		err   error
	)

	for attempt := 0; attempt <= x.pullRetries; attempt++ {
		image, err = x.runtime.PullImage(ctx, source.Ref)
		if err == nil || !IsRetryable(err) || attempt == x.pullRetries || x.run.IsAborting() {
			break
		}

		delay := x.backoff(attempt, err)
		x.logger.Warn().Err(err).
			Str("image", source.Ref).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying image pull")

		time.Sleep(delay)
		if x.run.IsAborting() {
			break
		}
	}

	return image, err
}

func (x *executor) failed(step Step, container *config.Container, err error, what string) Event {
	return TaskFailedEvent{
		Step:      step.Kind(),
		Container: container,
		Message:   what + ": " + AsRuntimeError(err).Reason(),
		Err:       err,
	}
}

// DefaultBackoff is exponential backoff plus up to 25% random jitter.
// Throttled and conflict errors start from a longer base delay.
func DefaultBackoff(attempt int, err error) time.Duration {
	baseDelay := 1 * time.Second

	if IsThrottled(err) {
		baseDelay = 5 * time.Second
	} else if IsConflict(err) {
		baseDelay = 2 * time.Second
	}

	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))

	if delay > time.Minute {
		delay = time.Minute
	}

	jitter := int64(delay) / 4
	return delay + time.Duration(rand.Int64N(jitter))
}
