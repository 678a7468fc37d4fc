package observers

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/crate/pkg/config"
	"github.com/openfroyo/crate/pkg/engine"
	"github.com/openfroyo/crate/pkg/telemetry"
)

// RunTracer records a run as a span with an event per step and engine event.
type RunTracer struct {
	tracer *telemetry.Tracer
	runID  string
	task   string
	span   trace.Span
}

// NewRunTracer creates a tracer for one run.
func NewRunTracer(tracer *telemetry.Tracer, runID, task string) *RunTracer {
	return &RunTracer{tracer: tracer, runID: runID, task: task}
}

// Start opens the run span. Pass the returned context to engine.Run so
// runtime spans nest under it.
func (r *RunTracer) Start(ctx context.Context) context.Context {
	ctx, r.span = r.tracer.StartRunSpan(ctx, r.runID, r.task)
	return ctx
}

// OnStepStarting implements engine.Listener.
func (r *RunTracer) OnStepStarting(step engine.Step) {
	if r.span == nil {
		return
	}
	attrs := []attribute.KeyValue{telemetry.AttrStepKind.String(string(step.Kind()))}
	if c := engine.StepContainer(step); c != nil {
		attrs = append(attrs, telemetry.AttrContainer.String(c.Name))
	}
	r.span.AddEvent("step.starting", trace.WithAttributes(attrs...))
}

// OnEventPosted implements engine.Listener.
func (r *RunTracer) OnEventPosted(event engine.Event) {
	if r.span == nil {
		return
	}
	var attrs []attribute.KeyValue
	if c := engine.EventContainer(event); c != nil {
		attrs = append(attrs, telemetry.AttrContainer.String(c.Name))
	}
	if failed, ok := event.(engine.TaskFailedEvent); ok {
		attrs = append(attrs, telemetry.AttrStepKind.String(string(failed.Step)))
		if re := engine.AsRuntimeError(failed.Err); re != nil {
			attrs = append(attrs, telemetry.AttrErrorClass.String(string(re.Class)))
		}
	}
	r.span.AddEvent(string(event.Kind()), trace.WithAttributes(attrs...))
}

// Finish records the outcome on the run span and ends it.
func (r *RunTracer) Finish(result *engine.Result) {
	if r.span == nil {
		return
	}
	r.span.SetAttributes(
		telemetry.AttrRunStatus.String(string(result.Status)),
		telemetry.AttrExitCode.Int64(result.ExitCode),
	)
	if result.Failure != "" {
		telemetry.RecordError(r.span, errors.New(result.Failure))
	} else {
		telemetry.RecordSuccess(r.span)
	}
	r.span.End()
}

// TracedRuntime wraps a runtime with a span and a metrics sample per call.
type TracedRuntime struct {
	inner   engine.Runtime
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
}

var _ engine.Runtime = (*TracedRuntime)(nil)

// NewTracedRuntime wraps inner. Either tracer or metrics may be nil.
func NewTracedRuntime(inner engine.Runtime, tracer *telemetry.Tracer, metrics *telemetry.Metrics) *TracedRuntime {
	return &TracedRuntime{inner: inner, tracer: tracer, metrics: metrics}
}

func (t *TracedRuntime) observe(ctx context.Context, operation, resource string, call func(context.Context) error) {
	var span trace.Span
	if t.tracer != nil {
		ctx, span = t.tracer.StartRuntimeSpan(ctx, operation, resource)
	}
	start := time.Now()

	err := call(ctx)

	if t.metrics != nil {
		t.metrics.RecordRuntimeCall(operation, time.Since(start), err)
	}
	if span != nil {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}
}

func (t *TracedRuntime) CreateNetwork(ctx context.Context, name string) (network engine.Network, err error) {
	t.observe(ctx, "create_network", name, func(ctx context.Context) error {
		network, err = t.inner.CreateNetwork(ctx, name)
		return err
	})
	return network, err
}

func (t *TracedRuntime) DeleteNetwork(ctx context.Context, network engine.Network) (err error) {
	t.observe(ctx, "delete_network", network.Name, func(ctx context.Context) error {
		err = t.inner.DeleteNetwork(ctx, network)
		return err
	})
	return err
}

func (t *TracedRuntime) PullImage(ctx context.Context, ref string) (image engine.Image, err error) {
	t.observe(ctx, "pull_image", ref, func(ctx context.Context) error {
		image, err = t.inner.PullImage(ctx, ref)
		return err
	})
	return image, err
}

func (t *TracedRuntime) BuildImage(ctx context.Context, source config.BuildImage, tag string) (image engine.Image, err error) {
	t.observe(ctx, "build_image", tag, func(ctx context.Context) error {
		image, err = t.inner.BuildImage(ctx, source, tag)
		return err
	})
	return image, err
}

func (t *TracedRuntime) CreateContainer(ctx context.Context, spec engine.ContainerSpec) (handle engine.RuntimeContainer, err error) {
	t.observe(ctx, "create_container", spec.Name, func(ctx context.Context) error {
		handle, err = t.inner.CreateContainer(ctx, spec)
		return err
	})
	return handle, err
}

func (t *TracedRuntime) StartContainer(ctx context.Context, container engine.RuntimeContainer) (err error) {
	t.observe(ctx, "start_container", container.Name, func(ctx context.Context) error {
		err = t.inner.StartContainer(ctx, container)
		return err
	})
	return err
}

func (t *TracedRuntime) RunContainer(ctx context.Context, container engine.RuntimeContainer) (exitCode int64, err error) {
	t.observe(ctx, "run_container", container.Name, func(ctx context.Context) error {
		exitCode, err = t.inner.RunContainer(ctx, container)
		return err
	})
	return exitCode, err
}

func (t *TracedRuntime) WaitForHealthy(ctx context.Context, container engine.RuntimeContainer) (err error) {
	t.observe(ctx, "wait_for_healthy", container.Name, func(ctx context.Context) error {
		err = t.inner.WaitForHealthy(ctx, container)
		return err
	})
	return err
}

func (t *TracedRuntime) StopContainer(ctx context.Context, container engine.RuntimeContainer) (err error) {
	t.observe(ctx, "stop_container", container.Name, func(ctx context.Context) error {
		err = t.inner.StopContainer(ctx, container)
		return err
	})
	return err
}

func (t *TracedRuntime) RemoveContainer(ctx context.Context, container engine.RuntimeContainer) (err error) {
	t.observe(ctx, "remove_container", container.Name, func(ctx context.Context) error {
		err = t.inner.RemoveContainer(ctx, container)
		return err
	})
	return err
}

func (t *TracedRuntime) CleanUpContainer(ctx context.Context, container engine.RuntimeContainer) (err error) {
	t.observe(ctx, "clean_up_container", container.Name, func(ctx context.Context) error {
		err = t.inner.CleanUpContainer(ctx, container)
		return err
	})
	return err
}
