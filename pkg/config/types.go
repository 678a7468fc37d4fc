package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ImageSource describes where a container's image comes from.
// It is a closed set: PullImage and BuildImage are the only implementations.
type ImageSource interface {
	// Key uniquely identifies the source so that containers sharing an
	// image only pull or build it once.
	Key() string

	// String returns a human-readable description.
	String() string

	isImageSource()
}

// PullImage is an image pulled from a registry.
type PullImage struct {
	// Ref is the image reference (e.g., "postgres:16-alpine").
	Ref string
}

// Key implements ImageSource.
func (p PullImage) Key() string { return "pull:" + p.Ref }

// String implements ImageSource.
func (p PullImage) String() string { return p.Ref }

func (PullImage) isImageSource() {}

// BuildImage is an image built from a local build context.
type BuildImage struct {
	// Directory is the absolute path of the build context.
	Directory string

	// Dockerfile is the Dockerfile path relative to Directory.
	Dockerfile string

	// BuildArgs are passed to the build as --build-arg values.
	BuildArgs map[string]string
}

// Key implements ImageSource.
func (b BuildImage) Key() string {
	var sb strings.Builder
	sb.WriteString("build:")
	sb.WriteString(b.Directory)
	sb.WriteString("#")
	sb.WriteString(b.dockerfile())

	keys := make([]string, 0, len(b.BuildArgs))
	for k := range b.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, ";%s=%s", k, b.BuildArgs[k])
	}

	return sb.String()
}

// String implements ImageSource.
func (b BuildImage) String() string { return b.Directory }

func (b BuildImage) dockerfile() string {
	if b.Dockerfile == "" {
		return "Dockerfile"
	}
	return b.Dockerfile
}

// DockerfilePath returns the Dockerfile path relative to the build directory.
func (b BuildImage) DockerfilePath() string { return b.dockerfile() }

func (BuildImage) isImageSource() {}

// HealthCheck configures how the runtime decides a container is healthy.
// A zero HealthCheck means the image's own health check (if any) is used.
type HealthCheck struct {
	// Command overrides the image's health check command.
	Command []string

	// Interval is the time between checks.
	Interval time.Duration

	// Retries is the number of consecutive failures before unhealthy.
	Retries int

	// StartPeriod is the grace period during which failures don't count.
	StartPeriod time.Duration
}

// IsZero reports whether no health check settings were given.
func (h HealthCheck) IsZero() bool {
	return len(h.Command) == 0 && h.Interval == 0 && h.Retries == 0 && h.StartPeriod == 0
}

// VolumeMount binds a local path into a container.
type VolumeMount struct {
	Local     string
	Container string
	Options   string
}

// String returns the bind specification in "local:container[:options]" form.
func (v VolumeMount) String() string {
	if v.Options == "" {
		return v.Local + ":" + v.Container
	}
	return v.Local + ":" + v.Container + ":" + v.Options
}

// PortMapping publishes a container port on the host.
type PortMapping struct {
	Local     int
	Container int
}

// RunAsCurrentUser runs the container with the invoking user's uid and gid.
type RunAsCurrentUser struct {
	Enabled       bool
	HomeDirectory string
}

// Container is a fully resolved container definition.
type Container struct {
	// Name is unique within a project.
	Name string

	// Image is where the container's image comes from.
	Image ImageSource

	// Command overrides the image's default command when non-empty.
	Command []string

	// Dependencies are the names of containers that must be healthy
	// before this one is created.
	Dependencies []string

	// HealthCheck is the health check policy.
	HealthCheck HealthCheck

	// Environment variables passed to the container.
	Environment map[string]string

	// WorkingDirectory overrides the image's working directory.
	WorkingDirectory string

	// Volumes are bind mounts.
	Volumes []VolumeMount

	// Ports are published ports.
	Ports []PortMapping

	// RunAsCurrentUser maps the container user to the invoking user.
	RunAsCurrentUser RunAsCurrentUser
}

// DependsOn reports whether name is a direct dependency of the container.
func (c *Container) DependsOn(name string) bool {
	for _, dep := range c.Dependencies {
		if dep == name {
			return true
		}
	}
	return false
}

// TaskRun is the container invocation that makes up a task.
type TaskRun struct {
	// Container is the name of the task container.
	Container string

	// Command overrides the container's command for this task.
	Command []string

	// Environment is merged over the container's environment.
	Environment map[string]string
}

// Task is a named unit of work.
type Task struct {
	Name        string
	Description string
	Run         TaskRun

	// Dependencies are extra containers the task container needs for this task.
	Dependencies []string

	// Prerequisites are tasks run, in order, before this one.
	Prerequisites []string
}

// Project is a loaded and validated project file.
type Project struct {
	// Name is used to prefix network and container names.
	Name string

	// Directory is the absolute directory containing the project file.
	Directory string

	Containers map[string]*Container
	Tasks      map[string]*Task
}

// TaskNames returns task names in sorted order.
func (p *Project) TaskNames() []string {
	names := make([]string, 0, len(p.Tasks))
	for name := range p.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolvedTask is a task together with the transitive set of containers it needs.
type ResolvedTask struct {
	// Project is the name of the project the task belongs to.
	Project string

	Task *Task

	// TaskContainer is the container that runs the task.
	TaskContainer *Container

	// Containers holds the task container and all its transitive
	// dependencies, dependencies before dependents.
	Containers []*Container
}

// Container looks up a container of the resolved set by name.
func (r *ResolvedTask) Container(name string) (*Container, bool) {
	for _, c := range r.Containers {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}
