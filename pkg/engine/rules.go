package engine

import (
	"fmt"

	"github.com/openfroyo/crate/pkg/config"
)

// apply runs the reaction for event. Reactions only inspect the log and
// the container set and queue steps; every forward-progress reaction is a
// no-op once the run is aborting.
func (c *Context) apply(event Event) error {
	switch e := event.(type) {
	case TaskStartedEvent:
		return c.onTaskStarted()
	case TaskNetworkCreatedEvent:
		return c.onTaskNetworkCreated()
	case ImagePulledEvent:
		return c.onImageReady(e.Source)
	case ImageBuiltEvent:
		return c.onImageReady(e.Source)
	case ContainerCreatedEvent:
		return c.onContainerCreated(e)
	case ContainerStartedEvent:
		return c.onContainerStarted(e)
	case ContainerBecameHealthyEvent:
		return c.onContainerBecameHealthy(e)
	case RunningContainerExitedEvent:
		return c.onContainerDown(e.Container)
	case ContainerStoppedEvent:
		return c.onContainerDown(e.Container)
	case ContainerRemovedEvent:
		return c.queueNetworkDeletionIfReady()
	case TaskNetworkDeletedEvent:
		return nil
	case TaskFailedEvent:
		return c.onTaskFailed(e)
	case TaskInterruptedEvent:
		return c.onTaskInterrupted(e)
	default:
		return &InvariantViolation{Message: fmt.Sprintf("no reaction defined for %T", event)}
	}
}

func (c *Context) onTaskStarted() error {
	if _, err := c.SinglePastEventOfKind(EventTaskStarted); err != nil {
		return err
	}
	if c.IsAborting() {
		return nil
	}

	c.QueueStep(CreateTaskNetworkStep{})

	seen := make(map[string]bool)
	for _, ctr := range c.AllTaskContainers() {
		key := ctr.Image.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		switch src := ctr.Image.(type) {
		case config.PullImage:
			c.QueueStep(PullImageStep{Source: src})
		case config.BuildImage:
			c.QueueStep(BuildImageStep{Source: src})
		default:
			return &InvariantViolation{Message: fmt.Sprintf("container %s has unknown image source %T", ctr.Name, ctr.Image)}
		}
	}

	return nil
}

// onTaskNetworkCreated is the network half of the creation join: every
// container whose image is ready and whose dependencies are healthy can
// now be created.
func (c *Context) onTaskNetworkCreated() error {
	if _, err := c.SinglePastEventOfKind(EventTaskNetworkCreated); err != nil {
		return err
	}

	if c.IsAborting() {
		return c.queueNetworkDeletionIfReady()
	}

	for _, ctr := range c.AllTaskContainers() {
		if err := c.queueCreateIfReady(ctr); err != nil {
			return err
		}
	}

	return nil
}

// onImageReady is the image half of the creation join.
func (c *Context) onImageReady(source config.ImageSource) error {
	if n := len(c.imageEvents(source.Key())); n > 1 {
		return &InvariantViolation{
			Message: fmt.Sprintf("image %s became ready more than once", source),
			Kind:    imageEventKind(source),
			Count:   n,
		}
	}

	if c.IsAborting() {
		return nil
	}

	network, err := c.SinglePastEventOfKind(EventTaskNetworkCreated)
	if err != nil || network == nil {
		// The network-created reaction repeats this scan once it arrives.
		return err
	}

	for _, ctr := range c.AllTaskContainers() {
		if ctr.Image.Key() != source.Key() {
			continue
		}
		if err := c.queueCreateIfReady(ctr); err != nil {
			return err
		}
	}

	return nil
}

func (c *Context) onContainerCreated(e ContainerCreatedEvent) error {
	if n := c.countContainerEvents(EventContainerCreated, e.Container.Name); n > 1 {
		return &InvariantViolation{
			Message: fmt.Sprintf("container %s was created more than once", e.Container.Name),
			Kind:    EventContainerCreated,
			Count:   n,
		}
	}

	if c.IsAborting() {
		c.queueCleanup(e.Container, e.Handle)
		return nil
	}

	if e.Container.Name == c.TaskContainer().Name {
		c.QueueStep(RunContainerStep{Container: e.Container, Handle: e.Handle})
	} else {
		c.QueueStep(StartContainerStep{Container: e.Container, Handle: e.Handle})
	}

	return nil
}

func (c *Context) onContainerStarted(e ContainerStartedEvent) error {
	if c.IsAborting() {
		return nil
	}

	handle, ok := c.handleFor(e.Container.Name)
	if !ok {
		return &InvariantViolation{Message: fmt.Sprintf("container %s started but was never created", e.Container.Name)}
	}

	c.QueueStep(WaitForContainerToBecomeHealthyStep{Container: e.Container, Handle: handle})
	return nil
}

// onContainerBecameHealthy is the dependency half of the creation join.
func (c *Context) onContainerBecameHealthy(e ContainerBecameHealthyEvent) error {
	if n := c.countContainerEvents(EventContainerBecameHealthy, e.Container.Name); n > 1 {
		return &InvariantViolation{
			Message: fmt.Sprintf("container %s became healthy more than once", e.Container.Name),
			Kind:    EventContainerBecameHealthy,
			Count:   n,
		}
	}

	if c.IsAborting() {
		return nil
	}

	for _, ctr := range c.AllTaskContainers() {
		if !ctr.DependsOn(e.Container.Name) {
			continue
		}
		if err := c.queueCreateIfReady(ctr); err != nil {
			return err
		}
	}

	return nil
}

// onContainerDown handles the task container exiting or a dependency
// stopping: the container is removed, and any dependency no longer needed
// by a running container is stopped.
func (c *Context) onContainerDown(ctr *config.Container) error {
	if handle, ok := c.handleFor(ctr.Name); ok {
		c.queueRemoval(RemoveContainerStep{Container: ctr, Handle: handle})
	}
	c.stopUnneededDependencies()
	return nil
}

func (c *Context) onTaskFailed(e TaskFailedEvent) error {
	switch {
	case e.Step == StepStopContainer:
		// Force the container out instead; it no longer holds anything up.
		if handle, ok := c.handleFor(e.Container.Name); ok {
			c.queueCleanup(e.Container, handle)
		}
		c.stopUnneededDependencies()
		return nil

	case !e.Step.failureIsFatal():
		// Removal and network deletion failures are logged by observers;
		// the resource counts as released so cleanup can finish.
		return c.queueNetworkDeletionIfReady()

	case c.IsAborting():
		// The first failure has already been reported.
		return c.queueNetworkDeletionIfReady()
	}

	c.abortRun(e.Message)
	return nil
}

func (c *Context) onTaskInterrupted(e TaskInterruptedEvent) error {
	if c.IsAborting() {
		return nil
	}

	message := "The task was interrupted."
	if e.Reason != "" {
		message = fmt.Sprintf("The task was interrupted: %s.", e.Reason)
	}
	c.abortRun(message)
	return nil
}

// abortRun sets the abort flag, queues the single failure message and
// cleans up every created container, dependents before their dependencies.
func (c *Context) abortRun(message string) {
	c.setAborting()

	if !c.hasQueued(StepDisplayTaskFailure, "") {
		c.QueueStep(DisplayTaskFailureStep{Message: message})
	}

	c.cleanUpCreatedContainers()
	// Nothing may have been created yet.
	_ = c.queueNetworkDeletionIfReady()
}

// abandonRun aborts after an invariant violation. No failure message is
// queued, but created resources are still released.
func (c *Context) abandonRun() {
	c.setAborting()
	c.cleanUpCreatedContainers()
	_ = c.queueNetworkDeletionIfReady()
}

func (c *Context) cleanUpCreatedContainers() {
	containers := c.AllTaskContainers()
	for i := len(containers) - 1; i >= 0; i-- {
		ctr := containers[i]
		if handle, ok := c.handleFor(ctr.Name); ok {
			c.queueCleanup(ctr, handle)
		}
	}
}

// queueCreateIfReady queues the container's creation if its image is
// ready, the network exists and every dependency is healthy, and it
// hasn't been queued already.
func (c *Context) queueCreateIfReady(ctr *config.Container) error {
	if c.IsAborting() || c.hasQueued(StepCreateContainer, ctr.Name) {
		return nil
	}

	networkEvent, err := c.SinglePastEventOfKind(EventTaskNetworkCreated)
	if err != nil || networkEvent == nil {
		return err
	}

	images := c.imageEvents(ctr.Image.Key())
	if len(images) == 0 {
		return nil
	}

	for _, dep := range ctr.Dependencies {
		if c.countContainerEvents(EventContainerBecameHealthy, dep) == 0 {
			return nil
		}
	}

	c.QueueStep(CreateContainerStep{
		Container: ctr,
		Command:   c.CommandForContainer(ctr),
		Image:     imageOf(images[0]),
		Network:   networkEvent.(TaskNetworkCreatedEvent).Network,
	})

	return nil
}

// stopUnneededDependencies stops each created dependency whose dependents
// are all down. It only applies after the task container has exited;
// aborted runs are torn down by cleanup steps instead.
func (c *Context) stopUnneededDependencies() {
	if c.IsAborting() || c.countContainerEvents(EventRunningContainerExited, c.TaskContainer().Name) == 0 {
		return
	}

	containers := c.AllTaskContainers()
	for _, ctr := range containers {
		if ctr.Name == c.TaskContainer().Name {
			continue
		}

		handle, ok := c.handleFor(ctr.Name)
		if !ok || c.hasQueued(StepStopContainer, ctr.Name) || c.hasQueuedRemoval(ctr.Name) {
			continue
		}

		needed := false
		for _, dependent := range containers {
			if !dependent.DependsOn(ctr.Name) {
				continue
			}
			if _, created := c.handleFor(dependent.Name); created && !c.isDown(dependent.Name) {
				needed = true
				break
			}
		}

		if !needed {
			c.QueueStep(StopContainerStep{Container: ctr, Handle: handle})
		}
	}
}

// queueNetworkDeletionIfReady deletes the network once the task is over
// (finished or aborting), every container creation has an outcome or was
// withdrawn and every created container has been removed or its removal
// has failed.
func (c *Context) queueNetworkDeletionIfReady() error {
	if c.hasQueued(StepDeleteTaskNetwork, "") {
		return nil
	}

	networks := c.PastEventsOfKind(EventTaskNetworkCreated)
	if len(networks) == 0 {
		return nil
	}

	if !c.IsAborting() && c.countContainerEvents(EventRunningContainerExited, c.TaskContainer().Name) == 0 {
		return nil
	}

	for _, step := range c.PastStepsOfKind(StepCreateContainer) {
		name := step.(CreateContainerStep).Container.Name

		if _, created := c.handleFor(name); created {
			if !c.isReleased(name) {
				return nil
			}
		} else if !c.hasFailure(name, StepCreateContainer) && !c.wasWithdrawn(StepCreateContainer, name) {
			return nil
		}
	}

	c.QueueStep(DeleteTaskNetworkStep{Network: networks[0].(TaskNetworkCreatedEvent).Network})
	return nil
}

func (c *Context) queueCleanup(ctr *config.Container, handle RuntimeContainer) {
	c.queueRemoval(CleanUpContainerStep{Container: ctr, Handle: handle})
}

// queueRemoval queues a remove or clean-up step unless the container
// already has one; every created container gets exactly one.
func (c *Context) queueRemoval(step Step) {
	ctr := StepContainer(step)
	if c.hasQueuedRemoval(ctr.Name) {
		return
	}
	c.QueueStep(step)
}

func (c *Context) hasQueued(kind StepKind, container string) bool {
	for _, step := range c.PastStepsOfKind(kind) {
		if container == "" {
			return true
		}
		if ctr := StepContainer(step); ctr != nil && ctr.Name == container {
			return true
		}
	}
	return false
}

func (c *Context) wasWithdrawn(kind StepKind, container string) bool {
	for _, step := range c.WithdrawnSteps() {
		if step.Kind() != kind {
			continue
		}
		if ctr := StepContainer(step); ctr != nil && ctr.Name == container {
			return true
		}
	}
	return false
}

func (c *Context) hasQueuedRemoval(container string) bool {
	return c.hasQueued(StepRemoveContainer, container) || c.hasQueued(StepCleanUpContainer, container)
}

func (c *Context) handleFor(container string) (RuntimeContainer, bool) {
	for _, e := range c.PastEventsOfKind(EventContainerCreated) {
		created := e.(ContainerCreatedEvent)
		if created.Container.Name == container {
			return created.Handle, true
		}
	}
	return RuntimeContainer{}, false
}

func (c *Context) countContainerEvents(kind EventKind, container string) int {
	n := 0
	for _, e := range c.PastEventsOfKind(kind) {
		if ctr := EventContainer(e); ctr != nil && ctr.Name == container {
			n++
		}
	}
	return n
}

func (c *Context) hasFailure(container string, kinds ...StepKind) bool {
	for _, e := range c.PastEventsOfKind(EventTaskFailed) {
		failed := e.(TaskFailedEvent)
		if failed.Container == nil || failed.Container.Name != container {
			continue
		}
		for _, k := range kinds {
			if failed.Step == k {
				return true
			}
		}
	}
	return false
}

// isDown reports whether a created container is no longer running.
func (c *Context) isDown(container string) bool {
	return c.countContainerEvents(EventRunningContainerExited, container) > 0 ||
		c.countContainerEvents(EventContainerStopped, container) > 0 ||
		c.hasFailure(container, StepStopContainer) ||
		c.isReleased(container)
}

// isReleased reports whether a container has been removed or its removal
// attempt has failed.
func (c *Context) isReleased(container string) bool {
	return c.countContainerEvents(EventContainerRemoved, container) > 0 ||
		c.hasFailure(container, StepRemoveContainer, StepCleanUpContainer)
}

func (c *Context) imageEvents(key string) []Event {
	var out []Event
	for _, e := range c.PastEventsOfKind(EventImagePulled) {
		if e.(ImagePulledEvent).Source.Key() == key {
			out = append(out, e)
		}
	}
	for _, e := range c.PastEventsOfKind(EventImageBuilt) {
		if e.(ImageBuiltEvent).Source.Key() == key {
			out = append(out, e)
		}
	}
	return out
}

func imageOf(e Event) Image {
	switch ev := e.(type) {
	case ImagePulledEvent:
		return ev.Image
	case ImageBuiltEvent:
		return ev.Image
	default:
		return Image{}
	}
}

func imageEventKind(source config.ImageSource) EventKind {
	if _, ok := source.(config.BuildImage); ok {
		return EventImageBuilt
	}
	return EventImagePulled
}
