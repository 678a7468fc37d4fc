package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"

	"github.com/openfroyo/crate/pkg/config"
	"github.com/openfroyo/crate/pkg/engine"
	"github.com/openfroyo/crate/pkg/transports/ssh"
)

// Defaults for Options.
const (
	DefaultStopTimeout        = 10 * time.Second
	DefaultHealthPollInterval = 250 * time.Millisecond
	DefaultPingTimeout        = 10 * time.Second
)

// Health states reported by the daemon.
const (
	healthStarting  = "starting"
	healthHealthy   = "healthy"
	healthUnhealthy = "unhealthy"
)

// Options configures a Runtime.
type Options struct {
	// Host overrides DOCKER_HOST.
	Host string

	// ProjectDirectory resolves relative volume paths.
	ProjectDirectory string

	// Stdout and Stderr receive the task container's output.
	Stdout io.Writer
	Stderr io.Writer

	// Progress receives pull and build progress. Defaults to discarding it.
	Progress io.Writer

	// StopTimeout is how long a container gets to stop before it's killed.
	StopTimeout time.Duration

	// HealthPollInterval is how often health status is checked.
	HealthPollInterval time.Duration

	// User is the user for run_as_current_user. Defaults to CurrentUser().
	User *User

	Logger *zerolog.Logger
}

// Runtime implements engine.Runtime on the Docker Engine API.
type Runtime struct {
	client   client.APIClient
	host     Host
	tunnel   *ssh.SSHClient
	opts     Options
	user     User
	logger   zerolog.Logger
	outputMu sync.Mutex
}

var _ engine.Runtime = (*Runtime)(nil)

// New connects to the Docker daemon named by opts.Host or DOCKER_HOST.
// ssh:// hosts are reached through an SSH tunnel.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	raw := opts.Host
	if raw == "" {
		raw = os.Getenv(client.EnvOverrideHost)
	}

	host, err := ParseHost(raw)
	if err != nil {
		return nil, err
	}

	r := newRuntime(nil, host, opts)

	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host.Kind == HostSSH {
		sshConfig, err := ssh.ParseDockerHost(host.URL)
		if err != nil {
			return nil, err
		}
		tunnel, err := ssh.NewSSHClient(sshConfig)
		if err != nil {
			return nil, err
		}
		if err := tunnel.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to Docker host %s: %w", host.Name, err)
		}
		r.tunnel = tunnel
		// The host name is only used for the Host header; streams go
		// through the tunnel.
		clientOpts = append(clientOpts,
			client.WithHost("http://docker.example.com"),
			client.WithDialContext(tunnel.DialContext),
		)
	} else if opts.Host != "" {
		clientOpts = append(clientOpts, client.WithHost(host.URL))
	}

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		r.closeTunnel()
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	r.client = cli

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		_ = r.Close()
		return nil, classify("ping", host.Name, err)
	}

	r.logger.Debug().Str("host", host.URL).Str("api_version", cli.ClientVersion()).Msg("Connected to Docker daemon")
	return r, nil
}

// NewWithClient wraps an existing API client.
func NewWithClient(cli client.APIClient, opts Options) *Runtime {
	return newRuntime(cli, Host{Kind: HostUnix, URL: client.DefaultDockerHost, Name: "localhost"}, opts)
}

func newRuntime(cli client.APIClient, host Host, opts Options) *Runtime {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.HealthPollInterval <= 0 {
		opts.HealthPollInterval = DefaultHealthPollInterval
	}

	user := CurrentUser()
	if opts.User != nil {
		user = *opts.User
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "docker").Logger()
	}

	return &Runtime{client: cli, host: host, opts: opts, user: user, logger: logger}
}

// Host returns the daemon's parsed address.
func (r *Runtime) Host() Host {
	return r.host
}

// HostName returns the name containers can use to reach the Docker host,
// when the platform provides one.
func (r *Runtime) HostName(ctx context.Context) (string, bool) {
	v, err := r.client.ServerVersion(ctx)
	if err != nil {
		return "", false
	}
	return ResolveHostName(runtime.GOOS, v.Version)
}

// Close releases the client and any SSH tunnel.
func (r *Runtime) Close() error {
	var err error
	if r.client != nil {
		err = r.client.Close()
	}
	r.closeTunnel()
	return err
}

func (r *Runtime) closeTunnel() {
	if r.tunnel != nil {
		_ = r.tunnel.Disconnect()
	}
}

// CreateNetwork implements engine.Runtime.
func (r *Runtime) CreateNetwork(ctx context.Context, name string) (engine.Network, error) {
	resp, err := r.client.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{LabelManagedBy: "crate"},
	})
	if err != nil {
		return engine.Network{}, classify("create-network", name, err)
	}

	return engine.Network{ID: resp.ID, Name: name}, nil
}

// DeleteNetwork implements engine.Runtime.
func (r *Runtime) DeleteNetwork(ctx context.Context, n engine.Network) error {
	if err := r.client.NetworkRemove(ctx, n.ID); err != nil && !errdefs.IsNotFound(err) {
		return classify("delete-network", n.Name, err)
	}
	return nil
}

// PullImage implements engine.Runtime.
func (r *Runtime) PullImage(ctx context.Context, ref string) (engine.Image, error) {
	if img, ok := r.inspectImage(ctx, ref); ok {
		return img, nil
	}

	body, err := r.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return engine.Image{}, classify("pull", ref, err)
	}
	defer body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(body, r.opts.Progress, 0, false, nil); err != nil {
		return engine.Image{}, classify("pull", ref, err)
	}

	img, ok := r.inspectImage(ctx, ref)
	if !ok {
		return engine.Image{}, failure("pull", ref, engine.ErrCodeNotFound, "image not present after pull")
	}
	return img, nil
}

// BuildImage implements engine.Runtime.
func (r *Runtime) BuildImage(ctx context.Context, source config.BuildImage, tag string) (engine.Image, error) {
	excludes, err := dockerignore(source.Directory)
	if err != nil {
		return engine.Image{}, classify("build", source.Directory, err)
	}

	buildContext, err := archive.TarWithOptions(source.Directory, &archive.TarOptions{ExcludePatterns: excludes})
	if err != nil {
		return engine.Image{}, classify("build", source.Directory, err)
	}
	defer buildContext.Close()

	resp, err := r.client.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  source.DockerfilePath(),
		BuildArgs:   buildArgs(source.BuildArgs),
		Remove:      true,
		ForceRemove: true,
		Labels:      map[string]string{LabelManagedBy: "crate"},
	})
	if err != nil {
		return engine.Image{}, classify("build", source.Directory, err)
	}
	defer resp.Body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, r.opts.Progress, 0, false, nil); err != nil {
		return engine.Image{}, failure("build", source.Directory, engine.ErrCodeBuildFailed, err.Error())
	}

	img, ok := r.inspectImage(ctx, tag)
	if !ok {
		return engine.Image{}, failure("build", source.Directory, engine.ErrCodeBuildFailed, "image not present after build")
	}
	return img, nil
}

func (r *Runtime) inspectImage(ctx context.Context, ref string) (engine.Image, bool) {
	info, _, err := r.client.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return engine.Image{}, false
	}
	return engine.Image{ID: info.ID, Ref: ref}, true
}

// CreateContainer implements engine.Runtime.
func (r *Runtime) CreateContainer(ctx context.Context, spec engine.ContainerSpec) (engine.RuntimeContainer, error) {
	cc, err := buildCreateConfig(spec, r.opts.ProjectDirectory, r.user)
	if err != nil {
		return engine.RuntimeContainer{}, failure("create", spec.Name, engine.ErrCodeInvalidSpec, err.Error())
	}

	resp, err := r.client.ContainerCreate(ctx, cc.Config, cc.HostConfig, cc.Networking, nil, spec.Name)
	if err != nil {
		return engine.RuntimeContainer{}, classify("create", spec.Name, err)
	}
	for _, w := range resp.Warnings {
		r.logger.Warn().Str("container", spec.Name).Msg(w)
	}

	return engine.RuntimeContainer{ID: resp.ID, Name: spec.Name}, nil
}

// StartContainer implements engine.Runtime.
func (r *Runtime) StartContainer(ctx context.Context, c engine.RuntimeContainer) error {
	if err := r.client.ContainerStart(ctx, c.ID, container.StartOptions{}); err != nil {
		return classify("start", c.Name, err)
	}
	return nil
}

// RunContainer implements engine.Runtime. Output is copied to the
// configured writers until the container exits.
func (r *Runtime) RunContainer(ctx context.Context, c engine.RuntimeContainer) (int64, error) {
	attach, err := r.client.ContainerAttach(ctx, c.ID, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return -1, classify("attach", c.Name, err)
	}
	defer attach.Close()

	// Waiting must begin before the container starts, or a fast exit is missed.
	statusCh, errCh := r.client.ContainerWait(ctx, c.ID, container.WaitConditionNextExit)

	copied := make(chan error, 1)
	go func() {
		r.outputMu.Lock()
		defer r.outputMu.Unlock()
		_, err := stdcopy.StdCopy(r.opts.Stdout, r.opts.Stderr, attach.Reader)
		copied <- err
	}()

	if err := r.client.ContainerStart(ctx, c.ID, container.StartOptions{}); err != nil {
		return -1, classify("start", c.Name, err)
	}

	select {
	case err := <-errCh:
		return -1, classify("wait", c.Name, err)
	case status := <-statusCh:
		if status.Error != nil {
			return -1, failure("wait", c.Name, engine.ErrCodeInternal, status.Error.Message)
		}
		if err := <-copied; err != nil {
			r.logger.Debug().Err(err).Str("container", c.Name).Msg("Output stream ended with an error")
		}
		return status.StatusCode, nil
	}
}

// WaitForHealthy implements engine.Runtime.
func (r *Runtime) WaitForHealthy(ctx context.Context, c engine.RuntimeContainer) error {
	ticker := time.NewTicker(r.opts.HealthPollInterval)
	defer ticker.Stop()

	for {
		info, err := r.client.ContainerInspect(ctx, c.ID)
		if err != nil {
			return classify("inspect", c.Name, err)
		}

		done, err := healthOutcome(c.Name, info)
		if done {
			return err
		}

		select {
		case <-ctx.Done():
			return classify("wait-healthy", c.Name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// healthOutcome decides whether waiting for health is over, and if so
// whether the container became healthy.
func healthOutcome(name string, info types.ContainerJSON) (bool, error) {
	if info.ContainerJSONBase == nil || info.State == nil {
		return false, nil
	}
	state := info.State

	if !state.Running {
		if state.Status == "created" {
			return false, nil
		}
		return true, failure("wait-healthy", name, engine.ErrCodeExited,
			fmt.Sprintf("The container exited with code %d before becoming healthy", state.ExitCode))
	}

	if state.Health == nil {
		return true, nil
	}

	switch state.Health.Status {
	case healthHealthy:
		return true, nil
	case healthUnhealthy:
		msg := "The container did not become healthy"
		if n := len(state.Health.Log); n > 0 && state.Health.Log[n-1].Output != "" {
			msg = fmt.Sprintf("%s. The last health check exited with code %d and output: %s",
				msg, state.Health.Log[n-1].ExitCode, state.Health.Log[n-1].Output)
		}
		return true, failure("wait-healthy", name, engine.ErrCodeUnhealthy, msg)
	default:
		return false, nil
	}
}

// StopContainer implements engine.Runtime.
func (r *Runtime) StopContainer(ctx context.Context, c engine.RuntimeContainer) error {
	timeout := int(r.opts.StopTimeout / time.Second)
	if err := r.client.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
		return classify("stop", c.Name, err)
	}
	return nil
}

// RemoveContainer implements engine.Runtime.
func (r *Runtime) RemoveContainer(ctx context.Context, c engine.RuntimeContainer) error {
	if err := r.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{RemoveVolumes: true}); err != nil {
		return classify("remove", c.Name, err)
	}
	return nil
}

// CleanUpContainer implements engine.Runtime.
func (r *Runtime) CleanUpContainer(ctx context.Context, c engine.RuntimeContainer) error {
	err := r.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return classify("cleanup", c.Name, err)
	}
	return nil
}
