package observers

import (
	"github.com/openfroyo/crate/pkg/engine"
	"github.com/openfroyo/crate/pkg/telemetry"
)

// MetricsListener records a run in Prometheus metrics.
type MetricsListener struct {
	metrics *telemetry.Metrics
	task    string
}

// NewMetricsListener creates a listener that records into metrics.
func NewMetricsListener(metrics *telemetry.Metrics, task string) *MetricsListener {
	return &MetricsListener{metrics: metrics, task: task}
}

// Start counts the run as started.
func (m *MetricsListener) Start() {
	m.metrics.RecordRunStarted(m.task)
}

// OnStepStarting implements engine.Listener.
func (m *MetricsListener) OnStepStarting(step engine.Step) {
	m.metrics.RecordStepStarted(string(step.Kind()))
}

// OnEventPosted implements engine.Listener.
func (m *MetricsListener) OnEventPosted(event engine.Event) {
	m.metrics.RecordEventPosted(string(event.Kind()))

	if failed, ok := event.(engine.TaskFailedEvent); ok {
		m.metrics.RecordStepFailed(string(failed.Step))
		if re := engine.AsRuntimeError(failed.Err); re != nil {
			m.metrics.RecordError(string(re.Class), re.Code)
		}
	}
}

// Finish records the run's outcome.
func (m *MetricsListener) Finish(result *engine.Result) {
	m.metrics.RecordRunCompleted(m.task, string(result.Status), result.Duration())
}
