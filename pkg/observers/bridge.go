package observers

import (
	"github.com/openfroyo/crate/pkg/engine"
	"github.com/openfroyo/crate/pkg/telemetry"
)

// EventBridge republishes a run on an EventPublisher so subscribers such
// as AMQPForwarder see it.
type EventBridge struct {
	publisher *telemetry.EventPublisher
	project   string
	runID     string
	task      string
	logger    *telemetry.Logger
}

// NewEventBridge creates a bridge for one run.
func NewEventBridge(publisher *telemetry.EventPublisher, project, runID, task string, logger *telemetry.Logger) *EventBridge {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &EventBridge{
		publisher: publisher,
		project:   project,
		runID:     runID,
		task:      task,
		logger:    logger.NewComponentLogger("event-bridge"),
	}
}

// Start publishes the run-started event.
func (b *EventBridge) Start() {
	b.check(b.publisher.PublishRunStarted(b.project, b.runID, b.task))
}

// OnStepStarting implements engine.Listener.
func (b *EventBridge) OnStepStarting(step engine.Step) {
	if _, ok := step.(engine.DisplayTaskFailureStep); ok {
		return
	}
	b.publish(telemetry.EventTypeStepStarted, telemetry.EventLevelInfo,
		containerName(engine.StepContainer(step)), step.String(),
		map[string]interface{}{"step": string(step.Kind())})
}

// OnEventPosted implements engine.Listener.
func (b *EventBridge) OnEventPosted(event engine.Event) {
	level, message := Describe(event)
	container := containerName(engine.EventContainer(event))
	data := map[string]interface{}{"event": string(event.Kind())}

	eventType := telemetry.EventTypeContainerEvent
	if failed, ok := event.(engine.TaskFailedEvent); ok {
		data["step"] = string(failed.Step)
		eventType = telemetry.EventTypeCleanupFailed
		if failed.Step.IsForwardProgress() {
			eventType = telemetry.EventTypeStepFailed
		}
	}

	b.publish(eventType, level, container, message, data)
}

// Finish publishes the run's outcome.
func (b *EventBridge) Finish(result *engine.Result) {
	switch result.Status {
	case engine.RunStatusSucceeded, engine.RunStatusExitedNonZero:
		b.check(b.publisher.PublishRunCompleted(b.project, b.runID, b.task,
			string(result.Status), result.ExitCode, result.Duration()))
	default:
		b.check(b.publisher.PublishRunFailed(b.project, b.runID, b.task,
			string(result.Status), result.Failure))
	}
}

// PublishViolation reports a policy finding for the run.
func (b *EventBridge) PublishViolation(policy, container, severity, message string) {
	level := telemetry.EventLevelWarning
	if severity == "error" || severity == "critical" {
		level = telemetry.EventLevelError
	}
	b.publish(telemetry.EventTypePolicyViolation, level, container, message,
		map[string]interface{}{"policy": policy, "severity": severity})
}

func (b *EventBridge) publish(eventType, level, container, message string, data map[string]interface{}) {
	b.check(b.publisher.Publish(telemetry.Event{
		Type:      eventType,
		Project:   b.project,
		RunID:     b.runID,
		Task:      b.task,
		Container: container,
		Message:   message,
		Level:     level,
		Data:      data,
	}))
}

func (b *EventBridge) check(err error) {
	if err != nil {
		b.logger.Debug().Err(err).Msg("Failed to publish run event")
	}
}
