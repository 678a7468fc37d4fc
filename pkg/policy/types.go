package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openfroyo/crate/pkg/config"
	"github.com/openfroyo/crate/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block a run.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether violations of this severity stop a run.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are read from the
	// package's deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Container is the container that violated the policy, if any.
	Container string `json:"container,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

func (v Violation) String() string {
	if v.Container == "" {
		return fmt.Sprintf("[%s] %s: %s", v.Severity, v.Policy, v.Message)
	}
	return fmt.Sprintf("[%s] %s (%s): %s", v.Severity, v.Policy, v.Container, v.Message)
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed is false when any violation blocks the run.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists violations that don't block the run.
	Warnings []Violation `json:"warnings,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Err returns a classified error describing the blocking violations, or
// nil when the run is allowed.
func (r *Result) Err() error {
	if r.Allowed {
		return nil
	}

	lines := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		lines = append(lines, v.String())
	}

	return engine.NewPermanentError(
		"The task is blocked by policy:\n  "+strings.Join(lines, "\n  "), nil).
		WithCode(engine.ErrCodeInvalidSpec).
		WithOperation("policy")
}

// Input is the document policies are evaluated against.
type Input struct {
	Project    string           `json:"project"`
	Task       string           `json:"task"`
	Containers []ContainerInput `json:"containers"`
	Context    *Context         `json:"context,omitempty"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// User is the user running the task.
	User string `json:"user,omitempty"`

	// DockerHost is the daemon the task will run on.
	DockerHost string `json:"docker_host,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// ContainerInput describes one container taking part in the task.
type ContainerInput struct {
	Name             string        `json:"name"`
	Image            ImageInput    `json:"image"`
	Command          []string      `json:"command,omitempty"`
	Dependencies     []string      `json:"dependencies,omitempty"`
	Ports            []PortInput   `json:"ports,omitempty"`
	Volumes          []VolumeInput `json:"volumes,omitempty"`
	Environment      []string      `json:"environment,omitempty"`
	HealthCheck      bool          `json:"health_check"`
	RunAsCurrentUser bool          `json:"run_as_current_user"`
	TaskContainer    bool          `json:"task_container"`
}

// ImageInput describes where a container's image comes from.
type ImageInput struct {
	Kind       string `json:"kind"` // "pull" or "build"
	Ref        string `json:"ref,omitempty"`
	Directory  string `json:"directory,omitempty"`
	Dockerfile string `json:"dockerfile,omitempty"`
}

type PortInput struct {
	Local     int `json:"local"`
	Container int `json:"container"`
}

type VolumeInput struct {
	Local     string `json:"local"`
	Container string `json:"container"`
	Options   string `json:"options,omitempty"`
}

// NewInput builds the policy document for a resolved task. Environment
// values are left out so secrets never reach user policies.
func NewInput(rt *config.ResolvedTask) *Input {
	in := &Input{
		Project:    rt.Project,
		Task:       rt.Task.Name,
		Containers: make([]ContainerInput, 0, len(rt.Containers)),
	}

	for _, c := range rt.Containers {
		ci := ContainerInput{
			Name:             c.Name,
			Command:          c.Command,
			Dependencies:     c.Dependencies,
			HealthCheck:      !c.HealthCheck.IsZero(),
			RunAsCurrentUser: c.RunAsCurrentUser.Enabled,
			TaskContainer:    rt.TaskContainer != nil && c.Name == rt.TaskContainer.Name,
		}

		switch img := c.Image.(type) {
		case config.PullImage:
			ci.Image = ImageInput{Kind: "pull", Ref: img.Ref}
		case config.BuildImage:
			ci.Image = ImageInput{Kind: "build", Directory: img.Directory, Dockerfile: img.DockerfilePath()}
		}

		for _, p := range c.Ports {
			ci.Ports = append(ci.Ports, PortInput{Local: p.Local, Container: p.Container})
		}
		for _, v := range c.Volumes {
			ci.Volumes = append(ci.Volumes, VolumeInput{Local: v.Local, Container: v.Container, Options: v.Options})
		}
		for k := range c.Environment {
			ci.Environment = append(ci.Environment, k)
		}
		sort.Strings(ci.Environment)

		in.Containers = append(in.Containers, ci)
	}

	return in
}
