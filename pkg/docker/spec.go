package docker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	"github.com/moby/patternmatcher/ignorefile"

	"github.com/openfroyo/crate/pkg/config"
	"github.com/openfroyo/crate/pkg/engine"
)

// Labels applied to everything crate creates.
const (
	LabelManagedBy = "crate.managed-by"
	LabelContainer = "crate.container"
	LabelNetwork   = "crate.network"
)

// User identifies the invoking user for run_as_current_user.
type User struct {
	UID  int
	GID  int
	Name string
}

// CurrentUser returns the user running this process.
func CurrentUser() User {
	name := os.Getenv("USER")
	if name == "" {
		name = "crate"
	}
	return User{UID: os.Getuid(), GID: os.Getgid(), Name: name}
}

// createConfig is everything ContainerCreate needs.
type createConfig struct {
	Config     *container.Config
	HostConfig *container.HostConfig
	Networking *network.NetworkingConfig
}

// buildCreateConfig translates a container spec into Docker API types.
// Relative local volume paths resolve against projectDir.
func buildCreateConfig(spec engine.ContainerSpec, projectDir string, user User) (*createConfig, error) {
	c := spec.Container

	exposed, bindings, err := portBindings(c.Ports)
	if err != nil {
		return nil, fmt.Errorf("container %s: %w", c.Name, err)
	}

	env := c.Environment
	if c.RunAsCurrentUser.Enabled && c.RunAsCurrentUser.HomeDirectory != "" {
		env = withEntry(env, "HOME", c.RunAsCurrentUser.HomeDirectory)
	}

	image := spec.Image.ID
	if image == "" {
		image = spec.Image.Ref
	}

	cfg := &container.Config{
		Image:        image,
		Cmd:          spec.Command,
		Env:          envList(env),
		WorkingDir:   c.WorkingDirectory,
		ExposedPorts: exposed,
		Healthcheck:  healthConfig(c.HealthCheck),
		AttachStdout: true,
		AttachStderr: true,
		Labels: map[string]string{
			LabelManagedBy: "crate",
			LabelContainer: c.Name,
			LabelNetwork:   spec.Network.Name,
		},
	}
	if c.RunAsCurrentUser.Enabled {
		cfg.User = fmt.Sprintf("%d:%d", user.UID, user.GID)
	}

	hostCfg := &container.HostConfig{
		Binds:        binds(c.Volumes, projectDir),
		PortBindings: bindings,
		NetworkMode:  container.NetworkMode(spec.Network.Name),
	}

	networking := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			spec.Network.Name: {
				NetworkID: spec.Network.ID,
				Aliases:   []string{c.Name},
			},
		},
	}

	return &createConfig{Config: cfg, HostConfig: hostCfg, Networking: networking}, nil
}

// portBindings maps published ports onto all host interfaces.
func portBindings(ports []config.PortMapping) (nat.PortSet, nat.PortMap, error) {
	if len(ports) == 0 {
		return nil, nil, nil
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(p.Container))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid container port %d: %w", p.Container, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{HostPort: strconv.Itoa(p.Local)})
	}

	return exposed, bindings, nil
}

// healthConfig overrides the image's health check with any settings given.
// Unset fields keep the image's values.
func healthConfig(h config.HealthCheck) *container.HealthConfig {
	if h.IsZero() {
		return nil
	}

	hc := &container.HealthConfig{
		Interval:    h.Interval,
		Retries:     h.Retries,
		StartPeriod: h.StartPeriod,
	}
	if len(h.Command) > 0 {
		hc.Test = append([]string{"CMD"}, h.Command...)
	}
	return hc
}

func binds(volumes []config.VolumeMount, projectDir string) []string {
	if len(volumes) == 0 {
		return nil
	}

	out := make([]string, 0, len(volumes))
	for _, v := range volumes {
		if !filepath.IsAbs(v.Local) {
			v.Local = filepath.Join(projectDir, v.Local)
		}
		out = append(out, v.String())
	}
	return out
}

// envList renders environment variables as sorted KEY=value pairs.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func withEntry(m map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}

// buildArgs converts build arguments to the pointer map the API expects.
func buildArgs(args map[string]string) map[string]*string {
	if len(args) == 0 {
		return nil
	}

	out := make(map[string]*string, len(args))
	for k, v := range args {
		v := v
		out[k] = &v
	}
	return out
}

// dockerignore reads exclusion patterns from the build context's
// .dockerignore, if there is one.
func dockerignore(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ".dockerignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ignorefile.ReadAll(f)
}
