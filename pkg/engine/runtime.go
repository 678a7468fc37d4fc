package engine

import (
	"context"

	"github.com/openfroyo/crate/pkg/config"
)

// Network is a network created by the runtime for a run.
type Network struct {
	ID   string
	Name string
}

// Image is an image available to the runtime.
type Image struct {
	ID string

	// Ref is the reference the image was pulled or tagged as.
	Ref string
}

// RuntimeContainer is a container created by the runtime.
type RuntimeContainer struct {
	ID   string
	Name string
}

// ContainerSpec is everything the runtime needs to create a container.
type ContainerSpec struct {
	// Name is the runtime-level container name, unique per run.
	Name string

	// Container is the definition being instantiated. Its name is used as
	// the container's alias on the task network.
	Container *config.Container

	// Command is the resolved command. Empty means the image default.
	Command []string

	Image   Image
	Network Network
}

// Runtime is the container runtime the engine drives. Every method
// returns a *RuntimeError on failure; other errors are treated as
// permanent.
type Runtime interface {
	// CreateNetwork creates the isolated network for a run.
	CreateNetwork(ctx context.Context, name string) (Network, error)

	// DeleteNetwork removes the run's network.
	DeleteNetwork(ctx context.Context, network Network) error

	// PullImage pulls an image from a registry, if not present locally.
	PullImage(ctx context.Context, ref string) (Image, error)

	// BuildImage builds an image from a local build context and tags it.
	BuildImage(ctx context.Context, source config.BuildImage, tag string) (Image, error)

	// CreateContainer creates, but doesn't start, a container.
	CreateContainer(ctx context.Context, spec ContainerSpec) (RuntimeContainer, error)

	// StartContainer starts a dependency container in the background.
	StartContainer(ctx context.Context, container RuntimeContainer) error

	// RunContainer starts the task container with its output attached and
	// blocks until it exits, returning its exit code.
	RunContainer(ctx context.Context, container RuntimeContainer) (int64, error)

	// WaitForHealthy blocks until the container reports healthy. A
	// container without a health check is healthy as soon as it runs.
	WaitForHealthy(ctx context.Context, container RuntimeContainer) error

	// StopContainer stops a running container.
	StopContainer(ctx context.Context, container RuntimeContainer) error

	// RemoveContainer removes a stopped container.
	RemoveContainer(ctx context.Context, container RuntimeContainer) error

	// CleanUpContainer forcibly stops and removes a container in any state.
	CleanUpContainer(ctx context.Context, container RuntimeContainer) error
}
