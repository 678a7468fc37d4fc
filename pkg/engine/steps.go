package engine

import (
	"fmt"

	"github.com/openfroyo/crate/pkg/config"
)

// Step is a pending operation against the runtime. The set of steps is
// closed: the executor dispatches on the concrete type, and every
// implementation lives in this file.
type Step interface {
	Kind() StepKind
	String() string
	isStep()
}

// CreateTaskNetworkStep creates the run's isolated network.
type CreateTaskNetworkStep struct{}

// PullImageStep pulls an image.
type PullImageStep struct {
	Source config.PullImage
}

// BuildImageStep builds an image from a local build context.
type BuildImageStep struct {
	Source config.BuildImage
}

// CreateContainerStep creates a container once its readiness join is met.
type CreateContainerStep struct {
	Container *config.Container
	Command   []string
	Image     Image
	Network   Network
}

// RunContainerStep runs the task container to completion.
type RunContainerStep struct {
	Container *config.Container
	Handle    RuntimeContainer
}

// StartContainerStep starts a dependency container.
type StartContainerStep struct {
	Container *config.Container
	Handle    RuntimeContainer
}

// WaitForContainerToBecomeHealthyStep waits for a started dependency.
type WaitForContainerToBecomeHealthyStep struct {
	Container *config.Container
	Handle    RuntimeContainer
}

// StopContainerStep stops a dependency after everything using it is down.
type StopContainerStep struct {
	Container *config.Container
	Handle    RuntimeContainer
}

// RemoveContainerStep removes a stopped container.
type RemoveContainerStep struct {
	Container *config.Container
	Handle    RuntimeContainer
}

// CleanUpContainerStep forcibly removes a container after a failure.
type CleanUpContainerStep struct {
	Container *config.Container
	Handle    RuntimeContainer
}

// DeleteTaskNetworkStep removes the run's network once every container is gone.
type DeleteTaskNetworkStep struct {
	Network Network
}

// DisplayTaskFailureStep shows the run's failure to the user. It posts no event.
type DisplayTaskFailureStep struct {
	Message string
}

func (CreateTaskNetworkStep) Kind() StepKind { return StepCreateTaskNetwork }
func (PullImageStep) Kind() StepKind { return StepPullImage }
func (BuildImageStep) Kind() StepKind { return StepBuildImage }
func (CreateContainerStep) Kind() StepKind { return StepCreateContainer }
func (RunContainerStep) Kind() StepKind { return StepRunContainer }
func (StartContainerStep) Kind() StepKind { return StepStartContainer }
func (WaitForContainerToBecomeHealthyStep) Kind() StepKind { return StepWaitForHealthy }
func (StopContainerStep) Kind() StepKind { return StepStopContainer }
func (RemoveContainerStep) Kind() StepKind { return StepRemoveContainer }
func (CleanUpContainerStep) Kind() StepKind { return StepCleanUpContainer }
func (DeleteTaskNetworkStep) Kind() StepKind { return StepDeleteTaskNetwork }
func (DisplayTaskFailureStep) Kind() StepKind { return StepDisplayTaskFailure }

func (CreateTaskNetworkStep) isStep() {}
func (PullImageStep) isStep() {}
func (BuildImageStep) isStep() {}
func (CreateContainerStep) isStep() {}
func (RunContainerStep) isStep() {}
func (StartContainerStep) isStep() {}
func (WaitForContainerToBecomeHealthyStep) isStep() {}
func (StopContainerStep) isStep() {}
func (RemoveContainerStep) isStep() {}
func (CleanUpContainerStep) isStep() {}
func (DeleteTaskNetworkStep) isStep() {}
func (DisplayTaskFailureStep) isStep() {}

func (s CreateTaskNetworkStep) String() string { return string(s.Kind()) }
func (s PullImageStep) String() string { return fmt.Sprintf("%s(%s)", s.Kind(), s.Source.Ref) }
func (s BuildImageStep) String() string { return fmt.Sprintf("%s(%s)", s.Kind(), s.Source.Directory) }
func (s CreateContainerStep) String() string {
	return fmt.Sprintf("%s(%s, image=%s, network=%s)", s.Kind(), s.Container.Name, s.Image.Ref, s.Network.Name)
}
func (s RunContainerStep) String() string { return fmt.Sprintf("%s(%s)", s.Kind(), s.Container.Name) }
func (s StartContainerStep) String() string { return fmt.Sprintf("%s(%s)", s.Kind(), s.Container.Name) }
func (s WaitForContainerToBecomeHealthyStep) String() string {
	return fmt.Sprintf("%s(%s)", s.Kind(), s.Container.Name)
}
func (s StopContainerStep) String() string { return fmt.Sprintf("%s(%s)", s.Kind(), s.Container.Name) }
func (s RemoveContainerStep) String() string { return fmt.Sprintf("%s(%s)", s.Kind(), s.Container.Name) }
func (s CleanUpContainerStep) String() string { return fmt.Sprintf("%s(%s)", s.Kind(), s.Container.Name) }
func (s DeleteTaskNetworkStep) String() string {
	return fmt.Sprintf("%s(%s)", s.Kind(), s.Network.Name)
}
func (s DisplayTaskFailureStep) String() string { return string(s.Kind()) }

// StepContainer returns the container a step acts on, or nil for steps
// that aren't about a single container.
func StepContainer(step Step) *config.Container {
	switch s := step.(type) {
	case CreateContainerStep:
		return s.Container
	case RunContainerStep:
		return s.Container
	case StartContainerStep:
		return s.Container
	case WaitForContainerToBecomeHealthyStep:
		return s.Container
	case StopContainerStep:
		return s.Container
	case RemoveContainerStep:
		return s.Container
	case CleanUpContainerStep:
		return s.Container
	default:
		return nil
	}
}
