package engine

import (
	"fmt"

	"github.com/openfroyo/crate/pkg/config"
)

// Event is an immutable record of something that has happened during a
// run. The set of events is closed: reactions dispatch on the concrete
// type, and every implementation lives in this file.
type Event interface {
	Kind() EventKind
	String() string
	isEvent()
}

// TaskStartedEvent is the first event of every run.
type TaskStartedEvent struct{}

// TaskNetworkCreatedEvent records the run's network.
type TaskNetworkCreatedEvent struct {
	Network Network
}

// ImagePulledEvent records that a pulled image is available.
type ImagePulledEvent struct {
	Source config.PullImage
	Image  Image
}

// ImageBuiltEvent records that a built image is available.
type ImageBuiltEvent struct {
	Source config.BuildImage
	Image  Image
}

// ContainerCreatedEvent records a created container.
type ContainerCreatedEvent struct {
	Container *config.Container
	Handle    RuntimeContainer
}

// ContainerStartedEvent records that a dependency container is running.
type ContainerStartedEvent struct {
	Container *config.Container
}

// ContainerBecameHealthyEvent records that a dependency passed its health check.
type ContainerBecameHealthyEvent struct {
	Container *config.Container
}

// RunningContainerExitedEvent records that the task container finished.
type RunningContainerExitedEvent struct {
	Container *config.Container
	ExitCode  int64
}

// ContainerStoppedEvent records that a dependency container was stopped.
type ContainerStoppedEvent struct {
	Container *config.Container
}

// ContainerRemovedEvent records that a container was removed.
type ContainerRemovedEvent struct {
	Container *config.Container
}

// TaskNetworkDeletedEvent records that the run's network was removed.
type TaskNetworkDeletedEvent struct{}

// TaskFailedEvent records that a step failed.
type TaskFailedEvent struct {
	// Step is the kind of step that failed.
	Step StepKind

	// Container is the container the step acted on, if any.
	Container *config.Container

	// Message is the user-facing description of the failure.
	Message string

	// Err is the runtime error.
	Err error
}

// TaskInterruptedEvent records that the user asked the run to stop.
type TaskInterruptedEvent struct {
	Reason string
}

func (TaskStartedEvent) Kind() EventKind { return EventTaskStarted }
func (TaskNetworkCreatedEvent) Kind() EventKind { return EventTaskNetworkCreated }
func (ImagePulledEvent) Kind() EventKind { return EventImagePulled }
func (ImageBuiltEvent) Kind() EventKind { return EventImageBuilt }
func (ContainerCreatedEvent) Kind() EventKind { return EventContainerCreated }
func (ContainerStartedEvent) Kind() EventKind { return EventContainerStarted }
func (ContainerBecameHealthyEvent) Kind() EventKind { return EventContainerBecameHealthy }
func (RunningContainerExitedEvent) Kind() EventKind { return EventRunningContainerExited }
func (ContainerStoppedEvent) Kind() EventKind { return EventContainerStopped }
func (ContainerRemovedEvent) Kind() EventKind { return EventContainerRemoved }
func (TaskNetworkDeletedEvent) Kind() EventKind { return EventTaskNetworkDeleted }
func (TaskFailedEvent) Kind() EventKind { return EventTaskFailed }
func (TaskInterruptedEvent) Kind() EventKind { return EventTaskInterrupted }

func (TaskStartedEvent) isEvent() {}
func (TaskNetworkCreatedEvent) isEvent() {}
func (ImagePulledEvent) isEvent() {}
func (ImageBuiltEvent) isEvent() {}
func (ContainerCreatedEvent) isEvent() {}
func (ContainerStartedEvent) isEvent() {}
func (ContainerBecameHealthyEvent) isEvent() {}
func (RunningContainerExitedEvent) isEvent() {}
func (ContainerStoppedEvent) isEvent() {}
func (ContainerRemovedEvent) isEvent() {}
func (TaskNetworkDeletedEvent) isEvent() {}
func (TaskFailedEvent) isEvent() {}
func (TaskInterruptedEvent) isEvent() {}

func (e TaskStartedEvent) String() string { return string(e.Kind()) }
func (e TaskNetworkCreatedEvent) String() string {
	return fmt.Sprintf("%s(%s)", e.Kind(), e.Network.Name)
}
func (e ImagePulledEvent) String() string { return fmt.Sprintf("%s(%s)", e.Kind(), e.Source.Ref) }
func (e ImageBuiltEvent) String() string {
	return fmt.Sprintf("%s(%s)", e.Kind(), e.Source.Directory)
}
func (e ContainerCreatedEvent) String() string {
	return fmt.Sprintf("%s(%s)", e.Kind(), e.Container.Name)
}
func (e ContainerStartedEvent) String() string {
	return fmt.Sprintf("%s(%s)", e.Kind(), e.Container.Name)
}
func (e ContainerBecameHealthyEvent) String() string {
	return fmt.Sprintf("%s(%s)", e.Kind(), e.Container.Name)
}
func (e RunningContainerExitedEvent) String() string {
	return fmt.Sprintf("%s(%s, exit=%d)", e.Kind(), e.Container.Name, e.ExitCode)
}
func (e ContainerStoppedEvent) String() string {
	return fmt.Sprintf("%s(%s)", e.Kind(), e.Container.Name)
}
func (e ContainerRemovedEvent) String() string {
	return fmt.Sprintf("%s(%s)", e.Kind(), e.Container.Name)
}
func (e TaskNetworkDeletedEvent) String() string { return string(e.Kind()) }
func (e TaskFailedEvent) String() string {
	if e.Container != nil {
		return fmt.Sprintf("%s(%s, %s)", e.Kind(), e.Step, e.Container.Name)
	}
	return fmt.Sprintf("%s(%s)", e.Kind(), e.Step)
}
func (e TaskInterruptedEvent) String() string { return string(e.Kind()) }

// EventContainer returns the container an event is about, or nil for
// events that aren't about a single container.
func EventContainer(event Event) *config.Container {
	switch e := event.(type) {
	case ContainerCreatedEvent:
		return e.Container
	case ContainerStartedEvent:
		return e.Container
	case ContainerBecameHealthyEvent:
		return e.Container
	case RunningContainerExitedEvent:
		return e.Container
	case ContainerStoppedEvent:
		return e.Container
	case ContainerRemovedEvent:
		return e.Container
	case TaskFailedEvent:
		return e.Container
	default:
		return nil
	}
}
