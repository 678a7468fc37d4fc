// Package observers contains the engine listeners crate attaches to a run.
//
// Each observer sees the run through engine.Listener and never changes its
// outcome: failures to log, record or publish are reported and ignored.
//
//   - Console prints progress for people at a terminal.
//   - MetricsListener counts steps, events and failures in Prometheus.
//   - RunTracer records the run as an OpenTelemetry span, and TracedRuntime
//     adds a child span for every container runtime call.
//   - Journal writes the run, its steps and its events to the history store.
//   - EventBridge republishes runs on a telemetry.EventPublisher, and
//     AMQPForwarder sends those events to a RabbitMQ exchange.
//
// Observers that need to know how the run ended expose Finish, which the
// caller invokes with the engine's Result.
package observers
