package observers

import (
	"fmt"

	"github.com/openfroyo/crate/pkg/config"
	"github.com/openfroyo/crate/pkg/engine"
	"github.com/openfroyo/crate/pkg/telemetry"
)

// Describe returns a severity level and a one-line description of an event.
func Describe(event engine.Event) (level, message string) {
	switch e := event.(type) {
	case engine.TaskStartedEvent:
		return telemetry.EventLevelInfo, "Task started"
	case engine.TaskNetworkCreatedEvent:
		return telemetry.EventLevelInfo, fmt.Sprintf("Created network %s", e.Network.Name)
	case engine.ImagePulledEvent:
		return telemetry.EventLevelInfo, fmt.Sprintf("Pulled image %s", e.Source.Ref)
	case engine.ImageBuiltEvent:
		return telemetry.EventLevelInfo, fmt.Sprintf("Built image from %s", e.Source.Directory)
	case engine.ContainerCreatedEvent:
		return telemetry.EventLevelInfo, fmt.Sprintf("Created container %s", e.Container.Name)
	case engine.ContainerStartedEvent:
		return telemetry.EventLevelInfo, fmt.Sprintf("Started %s", e.Container.Name)
	case engine.ContainerBecameHealthyEvent:
		return telemetry.EventLevelInfo, fmt.Sprintf("%s became healthy", e.Container.Name)
	case engine.RunningContainerExitedEvent:
		return telemetry.EventLevelInfo, fmt.Sprintf("%s exited with code %d", e.Container.Name, e.ExitCode)
	case engine.ContainerStoppedEvent:
		return telemetry.EventLevelInfo, fmt.Sprintf("Stopped %s", e.Container.Name)
	case engine.ContainerRemovedEvent:
		return telemetry.EventLevelInfo, fmt.Sprintf("Removed %s", e.Container.Name)
	case engine.TaskNetworkDeletedEvent:
		return telemetry.EventLevelInfo, "Deleted task network"
	case engine.TaskFailedEvent:
		if e.Step.IsForwardProgress() {
			return telemetry.EventLevelError, e.Message
		}
		return telemetry.EventLevelWarning, e.Message
	case engine.TaskInterruptedEvent:
		if e.Reason != "" {
			return telemetry.EventLevelWarning, "Task interrupted: " + e.Reason
		}
		return telemetry.EventLevelWarning, "Task interrupted"
	default:
		return telemetry.EventLevelInfo, event.String()
	}
}

// containerName returns the container's name, or "" for nil.
func containerName(c *config.Container) string {
	if c == nil {
		return ""
	}
	return c.Name
}
