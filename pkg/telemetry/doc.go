// Package telemetry provides observability for crate runs.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and run event publishing.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("docker")
//	logger.WithRunID(runID).WithContainer("db").Info().Msg("Container created")
//
// Log levels: trace, debug, info, warn, error, fatal.
//
// # Tracing
//
// A run is traced as one "task.run" span with a child span per step and a
// grandchild span per container runtime call. Exporters: otlp (gRPC),
// stdout, none.
//
// # Metrics
//
// Metrics are registered on a private registry under the "crate"
// namespace:
//
//   - crate_runs_started_total / crate_runs_completed_total
//   - crate_run_duration_seconds
//   - crate_steps_started_total / crate_step_failures_total
//   - crate_events_posted_total
//   - crate_runtime_calls_total / crate_runtime_call_duration_seconds
//   - crate_errors_by_class_total / crate_errors_by_code_total
//
// When MetricsConfig.ListenAddress is set, StartMetricsServer serves them
// over HTTP for the duration of a run.
//
// # Events
//
// EventPublisher delivers run lifecycle events (run.started,
// run.completed, step.failed, ...) to subscribers in order. Subscribers
// must not block for long; the AMQP forwarder is one.
package telemetry
