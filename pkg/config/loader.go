package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	nameRegexp      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	variableRegexp  = regexp.MustCompile(`\$\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
	errNoContainers = errors.New("project defines no containers")
)

// LoadOptions tunes how a project file is loaded.
type LoadOptions struct {
	// Variables override values from the file and the variables script.
	Variables map[string]string

	// ScriptTimeout bounds the variables script. Zero means the default.
	ScriptTimeout time.Duration
}

// Loader reads, validates and resolves project files.
type Loader struct {
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewLoader creates a new project loader.
func NewLoader() *Loader {
	v := validator.New()
	// crate_name is registered on a fresh validator; it can't fail.
	_ = v.RegisterValidation("crate_name", func(fl validator.FieldLevel) bool {
		return nameRegexp.MatchString(fl.Field().String())
	})

	return &Loader{
		schemas:   NewSchemaRegistry(),
		validator: v,
	}
}

// Load reads the project file at path.
func (l *Loader) Load(ctx context.Context, path string, opts LoadOptions) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	file, err := l.Decode(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	project, err := l.Build(ctx, file, filepath.Dir(abs), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return project, nil
}

// Decode parses and validates the raw project file contents.
func (l *Loader) Decode(ctx context.Context, data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNoContainers
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.schemas.ValidateFile(ctx, &file); err != nil {
		return nil, err
	}

	if err := l.validator.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid project file: %w", err)
	}

	return &file, nil
}

// Build converts a decoded file into a project, evaluating variables
// and checking every reference. dir is the directory relative paths are
// resolved against.
func (l *Loader) Build(ctx context.Context, file *File, dir string, opts LoadOptions) (*Project, error) {
	vars, err := l.variables(ctx, file, dir, opts)
	if err != nil {
		return nil, err
	}

	name := file.ProjectName
	if name == "" {
		name = strings.ToLower(filepath.Base(dir))
	}

	project := &Project{
		Name:       name,
		Directory:  dir,
		Containers: make(map[string]*Container, len(file.Containers)),
		Tasks:      make(map[string]*Task, len(file.Tasks)),
	}

	x := &expander{vars: vars}

	for containerName, spec := range file.Containers {
		c, err := buildContainer(containerName, spec, dir, x)
		if err != nil {
			return nil, fmt.Errorf("container %s: %w", containerName, err)
		}
		project.Containers[containerName] = c
	}

	for taskName, spec := range file.Tasks {
		project.Tasks[taskName] = &Task{
			Name:        taskName,
			Description: spec.Description,
			Run: TaskRun{
				Container:   spec.Run.Container,
				Command:     x.slice(spec.Run.Command),
				Environment: x.env(spec.Run.Environment),
			},
			Dependencies:  spec.Dependencies,
			Prerequisites: spec.Prerequisites,
		}
	}

	if len(x.missing) > 0 {
		return nil, fmt.Errorf("undefined variables: %s", strings.Join(x.missingNames(), ", "))
	}

	if err := Check(project); err != nil {
		return nil, err
	}

	return project, nil
}

// variables merges file variables, the variables script and overrides.
func (l *Loader) variables(ctx context.Context, file *File, dir string, opts LoadOptions) (map[string]string, error) {
	vars := make(map[string]string, len(file.Variables))
	for k, v := range file.Variables {
		vars[k] = v
	}

	if file.VariablesScript != "" {
		path := file.VariablesScript
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}

		script, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read variables script: %w", err)
		}

		scriptVars, err := NewStarlarkEvaluator(opts.ScriptTimeout).Evaluate(ctx, filepath.Base(path), string(script), vars)
		if err != nil {
			return nil, fmt.Errorf("variables script %s: %w", file.VariablesScript, err)
		}
		for k, v := range scriptVars {
			vars[k] = v
		}
	}

	for k, v := range opts.Variables {
		vars[k] = v
	}

	return vars, nil
}

func buildContainer(name string, spec ContainerSpec, dir string, x *expander) (*Container, error) {
	c := &Container{
		Name:             name,
		Command:          x.slice(spec.Command),
		Dependencies:     spec.Dependencies,
		Environment:      x.env(spec.Environment),
		WorkingDirectory: spec.WorkingDirectory,
	}

	if spec.BuildDirectory != "" {
		c.Image = BuildImage{
			Directory:  resolvePath(dir, x.expand(spec.BuildDirectory)),
			Dockerfile: spec.Dockerfile,
			BuildArgs:  x.env(spec.BuildArgs),
		}
	} else {
		c.Image = PullImage{Ref: x.expand(spec.Image)}
	}

	for _, v := range spec.Volumes {
		mount, err := parseVolume(x.expand(v), dir)
		if err != nil {
			return nil, err
		}
		c.Volumes = append(c.Volumes, mount)
	}

	for _, p := range spec.Ports {
		mapping, err := parsePort(p)
		if err != nil {
			return nil, err
		}
		c.Ports = append(c.Ports, mapping)
	}

	if hc := spec.HealthCheck; hc != nil {
		interval, err := parseDuration("health_check.interval", hc.Interval)
		if err != nil {
			return nil, err
		}
		startPeriod, err := parseDuration("health_check.start_period", hc.StartPeriod)
		if err != nil {
			return nil, err
		}
		c.HealthCheck = HealthCheck{
			Command:     x.slice(hc.Command),
			Interval:    interval,
			Retries:     hc.Retries,
			StartPeriod: startPeriod,
		}
	}

	if ru := spec.RunAsCurrentUser; ru != nil {
		c.RunAsCurrentUser = RunAsCurrentUser{
			Enabled:       ru.Enabled,
			HomeDirectory: ru.HomeDirectory,
		}
	}

	return c, nil
}

func parseVolume(spec, dir string) (VolumeMount, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return VolumeMount{}, fmt.Errorf("invalid volume %q: expected local:container[:options]", spec)
	}

	mount := VolumeMount{
		Local:     resolvePath(dir, parts[0]),
		Container: parts[1],
	}
	if len(parts) == 3 {
		mount.Options = parts[2]
	}

	return mount, nil
}

func parsePort(spec string) (PortMapping, error) {
	local, container, ok := strings.Cut(spec, ":")
	if !ok {
		return PortMapping{}, fmt.Errorf("invalid port mapping %q: expected local:container", spec)
	}

	l, err := strconv.Atoi(local)
	if err != nil || l < 1 || l > 65535 {
		return PortMapping{}, fmt.Errorf("invalid local port in %q", spec)
	}
	c, err := strconv.Atoi(container)
	if err != nil || c < 1 || c > 65535 {
		return PortMapping{}, fmt.Errorf("invalid container port in %q", spec)
	}

	return PortMapping{Local: l, Container: c}, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}

func resolvePath(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

// expander substitutes ${{ name }} references, recording undefined names.
type expander struct {
	vars    map[string]string
	missing map[string]struct{}
}

func (x *expander) expand(s string) string {
	return variableRegexp.ReplaceAllStringFunc(s, func(ref string) string {
		name := variableRegexp.FindStringSubmatch(ref)[1]
		if value, ok := x.vars[name]; ok {
			return value
		}
		if x.missing == nil {
			x.missing = make(map[string]struct{})
		}
		x.missing[name] = struct{}{}
		return ref
	})
}

func (x *expander) slice(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = x.expand(s)
	}
	return out
}

func (x *expander) env(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = x.expand(v)
	}
	return out
}

func (x *expander) missingNames() []string {
	names := make([]string, 0, len(x.missing))
	for name := range x.missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
