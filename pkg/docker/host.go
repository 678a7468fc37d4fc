package docker

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/docker/docker/client"
)

// HostKind is how the Docker daemon is reached.
type HostKind string

const (
	HostUnix  HostKind = "unix"
	HostTCP   HostKind = "tcp"
	HostNpipe HostKind = "npipe"
	HostSSH   HostKind = "ssh"
)

// Host is a parsed DOCKER_HOST value.
type Host struct {
	Kind HostKind

	// URL is the value as given, or the platform default.
	URL string

	// Name is the machine the daemon runs on, for display. It is
	// "localhost" for local sockets.
	Name string
}

// ParseHost parses a DOCKER_HOST value. An empty value selects the
// client's platform default.
func ParseHost(raw string) (Host, error) {
	if raw == "" {
		raw = client.DefaultDockerHost
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Host{}, fmt.Errorf("invalid DOCKER_HOST %q: %w", raw, err)
	}

	switch HostKind(u.Scheme) {
	case HostUnix, HostNpipe:
		return Host{Kind: HostKind(u.Scheme), URL: raw, Name: "localhost"}, nil
	case HostTCP, HostSSH:
		if u.Hostname() == "" {
			return Host{}, fmt.Errorf("invalid DOCKER_HOST %q: no host name", raw)
		}
		return Host{Kind: HostKind(u.Scheme), URL: raw, Name: u.Hostname()}, nil
	case "http", "https":
		if u.Hostname() == "" {
			return Host{}, fmt.Errorf("invalid DOCKER_HOST %q: no host name", raw)
		}
		return Host{Kind: HostTCP, URL: raw, Name: u.Hostname()}, nil
	default:
		return Host{}, fmt.Errorf("invalid DOCKER_HOST %q: unsupported scheme %q", raw, u.Scheme)
	}
}

// IsLocal reports whether the daemon runs on this machine.
func (h Host) IsLocal() bool {
	switch h.Kind {
	case HostUnix, HostNpipe:
		return true
	}
	return h.Name == "localhost" || h.Name == "127.0.0.1" || h.Name == "::1"
}

// ResolveHostName returns the name containers can use to reach the machine
// running Docker Desktop for Mac, given the daemon's version. Only Docker
// for Mac provides such a name; everywhere else ok is false.
func ResolveHostName(goos, serverVersion string) (name string, ok bool) {
	if goos != "darwin" {
		return "", false
	}

	major, minor, ok := parseVersion(serverVersion)
	if !ok {
		return "", false
	}

	switch {
	case before(major, minor, 17, 6):
		return "", false
	case before(major, minor, 17, 12):
		return "docker.for.mac.localhost", true
	case before(major, minor, 18, 3):
		return "docker.for.mac.host.internal", true
	default:
		return "host.docker.internal", true
	}
}

func before(major, minor, wantMajor, wantMinor int) bool {
	return major < wantMajor || (major == wantMajor && minor < wantMinor)
}

// parseVersion reads the major and minor parts of versions such as
// "17.06.0-ce" or "18.03.1-ce-mac65".
func parseVersion(v string) (major, minor int, ok bool) {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}

	digits := parts[1]
	if i := strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		digits = digits[:i]
	}
	minor, err = strconv.Atoi(digits)
	if err != nil {
		return 0, 0, false
	}

	return major, minor, true
}
