package observers

import (
	"context"
	"errors"
	"sync"

	"github.com/openfroyo/crate/pkg/config"
	"github.com/openfroyo/crate/pkg/engine"
)

var (
	appContainer = &config.Container{Name: "app", Image: config.PullImage{Ref: "golang:1.25"}, Command: []string{"go", "test"}}
	dbContainer  = &config.Container{Name: "db", Image: config.PullImage{Ref: "postgres:16"}}

	testTask = &config.ResolvedTask{
		Project:       "shop",
		Task:          &config.Task{Name: "test", Run: config.TaskRun{Container: "app"}},
		TaskContainer: appContainer,
		Containers:    []*config.Container{appContainer, dbContainer},
	}
)

// successfulRun is the listener traffic of a run where everything works.
func successfulRun(l engine.Listener) {
	network := engine.Network{ID: "net-1", Name: "crate-test"}
	app := engine.RuntimeContainer{ID: "c-app", Name: "crate-test-app"}
	db := engine.RuntimeContainer{ID: "c-db", Name: "crate-test-db"}

	l.OnEventPosted(engine.TaskStartedEvent{})
	l.OnStepStarting(engine.CreateTaskNetworkStep{})
	l.OnStepStarting(engine.PullImageStep{Source: config.PullImage{Ref: "golang:1.25"}})
	l.OnStepStarting(engine.PullImageStep{Source: config.PullImage{Ref: "postgres:16"}})
	l.OnEventPosted(engine.TaskNetworkCreatedEvent{Network: network})
	l.OnEventPosted(engine.ImagePulledEvent{Source: config.PullImage{Ref: "golang:1.25"}, Image: engine.Image{ID: "sha-go"}})
	l.OnEventPosted(engine.ImagePulledEvent{Source: config.PullImage{Ref: "postgres:16"}, Image: engine.Image{ID: "sha-pg"}})
	l.OnStepStarting(engine.CreateContainerStep{Container: dbContainer})
	l.OnEventPosted(engine.ContainerCreatedEvent{Container: dbContainer, Handle: db})
	l.OnStepStarting(engine.StartContainerStep{Container: dbContainer, Handle: db})
	l.OnEventPosted(engine.ContainerStartedEvent{Container: dbContainer})
	l.OnStepStarting(engine.WaitForContainerToBecomeHealthyStep{Container: dbContainer, Handle: db})
	l.OnEventPosted(engine.ContainerBecameHealthyEvent{Container: dbContainer})
	l.OnStepStarting(engine.CreateContainerStep{Container: appContainer})
	l.OnEventPosted(engine.ContainerCreatedEvent{Container: appContainer, Handle: app})
	l.OnStepStarting(engine.RunContainerStep{Container: appContainer, Handle: app})
	l.OnEventPosted(engine.RunningContainerExitedEvent{Container: appContainer, ExitCode: 0})
	l.OnStepStarting(engine.RemoveContainerStep{Container: appContainer, Handle: app})
	l.OnStepStarting(engine.StopContainerStep{Container: dbContainer, Handle: db})
	l.OnEventPosted(engine.ContainerRemovedEvent{Container: appContainer})
	l.OnEventPosted(engine.ContainerStoppedEvent{Container: dbContainer})
	l.OnStepStarting(engine.RemoveContainerStep{Container: dbContainer, Handle: db})
	l.OnEventPosted(engine.ContainerRemovedEvent{Container: dbContainer})
	l.OnStepStarting(engine.DeleteTaskNetworkStep{Network: network})
	l.OnEventPosted(engine.TaskNetworkDeletedEvent{})
}

var errPullDenied = engine.NewPermanentError("pull access denied for nosuch/image", nil).
	WithCode(engine.ErrCodeNotFound).
	WithOperation("pull_image")

// failedRun is the listener traffic of a run whose image pull fails.
func failedRun(l engine.Listener) {
	network := engine.Network{ID: "net-1", Name: "crate-test"}

	l.OnEventPosted(engine.TaskStartedEvent{})
	l.OnStepStarting(engine.CreateTaskNetworkStep{})
	l.OnStepStarting(engine.PullImageStep{Source: config.PullImage{Ref: "nosuch/image"}})
	l.OnEventPosted(engine.TaskNetworkCreatedEvent{Network: network})
	l.OnEventPosted(engine.TaskFailedEvent{
		Step:    engine.StepPullImage,
		Message: "Could not pull image 'nosuch/image': pull access denied for nosuch/image",
		Err:     errPullDenied,
	})
	l.OnStepStarting(engine.DeleteTaskNetworkStep{Network: network})
	l.OnStepStarting(engine.DisplayTaskFailureStep{Message: "Could not pull image 'nosuch/image': pull access denied for nosuch/image"})
	l.OnEventPosted(engine.TaskNetworkDeletedEvent{})
}

// fakeRuntime succeeds at everything except the operations listed in fail.
type fakeRuntime struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeRuntime) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if f.fail[op] {
		return engine.NewTransientError(op+" failed", errors.New("boom"))
	}
	return nil
}

func (f *fakeRuntime) CreateNetwork(_ context.Context, name string) (engine.Network, error) {
	return engine.Network{ID: "net-1", Name: name}, f.record("CreateNetwork")
}

func (f *fakeRuntime) DeleteNetwork(context.Context, engine.Network) error {
	return f.record("DeleteNetwork")
}

func (f *fakeRuntime) PullImage(_ context.Context, ref string) (engine.Image, error) {
	return engine.Image{ID: "sha-" + ref, Ref: ref}, f.record("PullImage")
}

func (f *fakeRuntime) BuildImage(_ context.Context, _ config.BuildImage, tag string) (engine.Image, error) {
	return engine.Image{ID: "sha-built", Ref: tag}, f.record("BuildImage")
}

func (f *fakeRuntime) CreateContainer(_ context.Context, spec engine.ContainerSpec) (engine.RuntimeContainer, error) {
	return engine.RuntimeContainer{ID: "c-" + spec.Name, Name: spec.Name}, f.record("CreateContainer")
}

func (f *fakeRuntime) StartContainer(context.Context, engine.RuntimeContainer) error {
	return f.record("StartContainer")
}

func (f *fakeRuntime) RunContainer(context.Context, engine.RuntimeContainer) (int64, error) {
	return 3, f.record("RunContainer")
}

func (f *fakeRuntime) WaitForHealthy(context.Context, engine.RuntimeContainer) error {
	return f.record("WaitForHealthy")
}

func (f *fakeRuntime) StopContainer(context.Context, engine.RuntimeContainer) error {
	return f.record("StopContainer")
}

func (f *fakeRuntime) RemoveContainer(context.Context, engine.RuntimeContainer) error {
	return f.record("RemoveContainer")
}

func (f *fakeRuntime) CleanUpContainer(context.Context, engine.RuntimeContainer) error {
	return f.record("CleanUpContainer")
}
