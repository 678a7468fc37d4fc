// Package engine runs a task's containers as a set of reactive steps.
//
// # Overview
//
// A run is driven by an append-only event log. Each posted event applies a
// reaction that may queue further steps; workers take steps off the queue,
// perform them against a Runtime and post the resulting event. The run is
// over once the queue is empty and no step is in flight.
//
//	TaskStarted
//	  -> CreateTaskNetwork, PullImage/BuildImage (one per distinct image)
//	TaskNetworkCreated + ImagePulled + dependencies healthy
//	  -> CreateContainer
//	ContainerCreated
//	  -> RunContainer (task container) or StartContainer (dependency)
//	ContainerStarted -> WaitForContainerToBecomeHealthy
//	RunningContainerExited -> RemoveContainer, StopContainer for dependencies
//	ContainerRemoved (all) -> DeleteTaskNetwork
//
// # Concurrency
//
// Steps run in parallel, bounded by Options.Parallelism. Events are applied
// one at a time by the Context's event loop, so reactions never race each
// other. PostEvent returns only after the reaction has run, which lets the
// queue decide idleness without missing steps queued by the last event.
//
// # Failures
//
// A failed step posts a TaskFailedEvent. Failures of forward-progress steps
// abort the run: the failure is displayed once, no more forward-progress
// steps are queued, and every created container is cleaned up before the
// network is deleted. Teardown failures don't abort; the resource is
// reported in Result.CleanupFailures and cleanup carries on.
//
// Runtime errors are classified for retry logic:
//
//   - Transient: temporary failures that may succeed on retry
//   - Throttled: rate limiting that requires backoff
//   - Conflict: resource conflicts
//   - Permanent: non-recoverable errors
//
// Image pulls that fail with a retryable error are retried with
// exponential backoff.
//
// # Example Usage
//
//	task, err := config.ResolveTask(project, "test")
//	if err != nil {
//	    return err
//	}
//
//	eng := engine.New(runtime, engine.Options{Parallelism: 4})
//	result, err := eng.Run(ctx, task)
//	if err != nil {
//	    return err // internal defect
//	}
//	os.Exit(int(result.ExitCode))
package engine
