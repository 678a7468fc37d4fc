package observers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/crate/pkg/engine"
	"github.com/openfroyo/crate/pkg/telemetry"
)

func newTestMetrics(t *testing.T) *telemetry.Metrics {
	t.Helper()
	m, err := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m
}

func scrape(t *testing.T, m *telemetry.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape returned %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMetricsListener_SuccessfulRun(t *testing.T) {
	m := newTestMetrics(t)
	listener := NewMetricsListener(m, "test")

	listener.Start()
	successfulRun(listener)

	body := scrape(t, m)
	for _, want := range []string{
		`crate_runs_started_total{task="test"} 1`,
		`crate_active_runs 1`,
		`crate_steps_started_total{kind="pull-image"} 2`,
		`crate_steps_started_total{kind="remove-container"} 2`,
		`crate_events_posted_total{kind="container-removed"} 2`,
		`crate_events_posted_total{kind="running-container-exited"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in scrape", want)
		}
	}

	start := time.Now()
	listener.Finish(&engine.Result{Task: "test", Status: engine.RunStatusSucceeded, StartedAt: start, CompletedAt: start.Add(time.Second)})
	if body := scrape(t, m); !strings.Contains(body, "crate_active_runs 0") {
		t.Error("expected no active runs after Finish")
	}
}

func TestMetricsListener_Failure(t *testing.T) {
	m := newTestMetrics(t)
	listener := NewMetricsListener(m, "test")

	failedRun(listener)

	body := scrape(t, m)
	for _, want := range []string{
		`crate_step_failures_total{kind="pull-image"} 1`,
		`crate_errors_by_code_total{code="NOT_FOUND"} 1`,
		`crate_errors_by_class_total{class="permanent"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in scrape", want)
		}
	}
}

func TestTracedRuntime_Metrics(t *testing.T) {
	m := newTestMetrics(t)
	fake := &fakeRuntime{fail: map[string]bool{"StopContainer": true}}
	rt := NewTracedRuntime(fake, nil, m)

	ctx := t.Context()
	if _, err := rt.PullImage(ctx, "alpine:3.20"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rt.StopContainer(ctx, engine.RuntimeContainer{Name: "crate-1-db"}); err == nil {
		t.Fatal("expected the stop to fail")
	}

	body := scrape(t, m)
	for _, want := range []string{
		`crate_runtime_calls_total{operation="pull_image",outcome="success"} 1`,
		`crate_runtime_calls_total{operation="stop_container",outcome="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in scrape", want)
		}
	}
}
