package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the project file looked up when none is given.
const DefaultFileName = "crate.yml"

// File is the on-disk representation of a project file.
type File struct {
	// ProjectName prefixes network and container names. Defaults to the
	// name of the directory holding the file.
	ProjectName string `yaml:"project_name" json:"project_name,omitempty" validate:"omitempty,crate_name"`

	// Variables are values substituted for ${{ name }} references.
	Variables map[string]string `yaml:"variables" json:"variables,omitempty"`

	// VariablesScript is a Starlark file whose top-level globals become variables.
	VariablesScript string `yaml:"variables_script" json:"variables_script,omitempty"`

	Containers map[string]ContainerSpec `yaml:"containers" json:"containers" validate:"required,min=1,dive,keys,crate_name,endkeys"`
	Tasks      map[string]TaskSpec      `yaml:"tasks" json:"tasks,omitempty" validate:"dive,keys,crate_name,endkeys"`
}

// ContainerSpec is a container definition as written in the project file.
type ContainerSpec struct {
	Image          string            `yaml:"image" json:"image,omitempty" validate:"required_without=BuildDirectory,excluded_with=BuildDirectory"`
	BuildDirectory string            `yaml:"build_directory" json:"build_directory,omitempty"`
	Dockerfile     string            `yaml:"dockerfile" json:"dockerfile,omitempty" validate:"excluded_without=BuildDirectory"`
	BuildArgs      map[string]string `yaml:"build_args" json:"build_args,omitempty" validate:"excluded_without=BuildDirectory"`

	Command          Command           `yaml:"command" json:"command,omitempty"`
	Dependencies     []string          `yaml:"dependencies" json:"dependencies,omitempty" validate:"unique,dive,required"`
	Environment      map[string]string `yaml:"environment" json:"environment,omitempty"`
	WorkingDirectory string            `yaml:"working_directory" json:"working_directory,omitempty"`
	Volumes          []string          `yaml:"volumes" json:"volumes,omitempty" validate:"dive,required"`
	Ports            []string          `yaml:"ports" json:"ports,omitempty" validate:"dive,required"`

	HealthCheck      *HealthCheckSpec      `yaml:"health_check" json:"health_check,omitempty"`
	RunAsCurrentUser *RunAsCurrentUserSpec `yaml:"run_as_current_user" json:"run_as_current_user,omitempty"`
}

// HealthCheckSpec overrides the image's health check.
type HealthCheckSpec struct {
	Command     Command `yaml:"command" json:"command,omitempty"`
	Interval    string  `yaml:"interval" json:"interval,omitempty"`
	Retries     int     `yaml:"retries" json:"retries,omitempty" validate:"gte=0"`
	StartPeriod string  `yaml:"start_period" json:"start_period,omitempty"`
}

// RunAsCurrentUserSpec maps the container user to the invoking user.
type RunAsCurrentUserSpec struct {
	Enabled       bool   `yaml:"enabled" json:"enabled,omitempty"`
	HomeDirectory string `yaml:"home_directory" json:"home_directory,omitempty" validate:"required_if=Enabled true"`
}

// TaskSpec is a task definition as written in the project file.
type TaskSpec struct {
	Description   string      `yaml:"description" json:"description,omitempty"`
	Run           TaskRunSpec `yaml:"run" json:"run"`
	Dependencies  []string    `yaml:"dependencies" json:"dependencies,omitempty" validate:"unique,dive,required"`
	Prerequisites []string    `yaml:"prerequisites" json:"prerequisites,omitempty" validate:"unique,dive,required"`
}

// TaskRunSpec names the task container and how to invoke it.
type TaskRunSpec struct {
	Container   string            `yaml:"container" json:"container" validate:"required"`
	Command     Command           `yaml:"command" json:"command,omitempty"`
	Environment map[string]string `yaml:"environment" json:"environment,omitempty"`
}

// Command is a command line. In YAML it may be a single string, which is
// split on whitespace honouring quotes, or a list of arguments.
type Command []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Command) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		args, err := SplitCommandLine(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*c = args
		return nil
	case yaml.SequenceNode:
		var args []string
		if err := value.Decode(&args); err != nil {
			return err
		}
		*c = args
		return nil
	default:
		return fmt.Errorf("line %d: command must be a string or a list of strings", value.Line)
	}
}

// SplitCommandLine splits a command line into arguments. Single quotes
// preserve everything literally, double quotes allow backslash escapes,
// and unquoted backslashes escape the next character.
func SplitCommandLine(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				current.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inArg = true
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}

	if escaped {
		return nil, fmt.Errorf("command line %q ends with a dangling backslash", line)
	}
	if quote != 0 {
		return nil, fmt.Errorf("command line %q has an unterminated %c quote", line, quote)
	}
	if inArg {
		args = append(args, current.String())
	}

	return args, nil
}
