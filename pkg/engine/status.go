package engine

import (
	"fmt"
)

// RunStatus represents the overall status of a task run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates the task container ran and exited with
	// status zero and everything was cleaned up.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusExitedNonZero indicates the task container ran but exited
	// with a non-zero status.
	RunStatusExitedNonZero RunStatus = "exited-non-zero"

	// RunStatusFailed indicates a step failed and the run was aborted.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the user interrupted the run.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s != RunStatusRunning
}

// IsSuccess returns true if the task ran to completion with status zero.
func (s RunStatus) IsSuccess() bool {
	return s == RunStatusSucceeded
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusExitedNonZero,
		RunStatusFailed, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// StepKind names a kind of step.
type StepKind string

const (
	StepCreateTaskNetwork  StepKind = "create-task-network"
	StepPullImage          StepKind = "pull-image"
	StepBuildImage         StepKind = "build-image"
	StepCreateContainer    StepKind = "create-container"
	StepRunContainer       StepKind = "run-container"
	StepStartContainer     StepKind = "start-container"
	StepWaitForHealthy     StepKind = "wait-for-container-to-become-healthy"
	StepStopContainer      StepKind = "stop-container"
	StepRemoveContainer    StepKind = "remove-container"
	StepCleanUpContainer   StepKind = "clean-up-container"
	StepDeleteTaskNetwork  StepKind = "delete-task-network"
	StepDisplayTaskFailure StepKind = "display-task-failure"
)

// IsForwardProgress reports whether steps of this kind advance the task
// rather than tear it down. No such step is queued once a run is aborting.
func (k StepKind) IsForwardProgress() bool {
	switch k {
	case StepCreateTaskNetwork, StepPullImage, StepBuildImage, StepCreateContainer,
		StepRunContainer, StepStartContainer, StepWaitForHealthy:
		return true
	default:
		return false
	}
}

// IsCleanup reports whether steps of this kind release a container.
func (k StepKind) IsCleanup() bool {
	return k == StepRemoveContainer || k == StepCleanUpContainer
}

// failureIsFatal reports whether a failed step of this kind aborts the run.
// Teardown failures are logged and cleanup carries on.
func (k StepKind) failureIsFatal() bool {
	return k.IsForwardProgress()
}

// EventKind names a kind of event.
type EventKind string

const (
	EventTaskStarted            EventKind = "task-started"
	EventTaskNetworkCreated     EventKind = "task-network-created"
	EventImagePulled            EventKind = "image-pulled"
	EventImageBuilt             EventKind = "image-built"
	EventContainerCreated       EventKind = "container-created"
	EventContainerStarted       EventKind = "container-started"
	EventContainerBecameHealthy EventKind = "container-became-healthy"
	EventRunningContainerExited EventKind = "running-container-exited"
	EventContainerStopped       EventKind = "container-stopped"
	EventContainerRemoved       EventKind = "container-removed"
	EventTaskNetworkDeleted     EventKind = "task-network-deleted"
	EventTaskFailed             EventKind = "task-failed"
	EventTaskInterrupted        EventKind = "task-interrupted"
)
