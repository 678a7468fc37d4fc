package docker

import (
	"strings"
	"testing"
)

func TestParseHost(t *testing.T) {
	tests := []struct {
		raw      string
		kind     HostKind
		name     string
		local    bool
		errorMsg string
	}{
		{raw: "unix:///var/run/docker.sock", kind: HostUnix, name: "localhost", local: true},
		{raw: "npipe:////./pipe/docker_engine", kind: HostNpipe, name: "localhost", local: true},
		{raw: "tcp://192.168.99.100:2376", kind: HostTCP, name: "192.168.99.100"},
		{raw: "tcp://127.0.0.1:2375", kind: HostTCP, name: "127.0.0.1", local: true},
		{raw: "https://docker.internal:2376", kind: HostTCP, name: "docker.internal"},
		{raw: "ssh://ci@build.example.com", kind: HostSSH, name: "build.example.com"},
		{raw: "tcp://", errorMsg: "no host name"},
		{raw: "ftp://example.com", errorMsg: "unsupported scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, err := ParseHost(tt.raw)
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Fatalf("expected error containing %q, got %v", tt.errorMsg, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if host.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, host.Kind)
			}
			if host.Name != tt.name {
				t.Errorf("expected name %s, got %s", tt.name, host.Name)
			}
			if host.IsLocal() != tt.local {
				t.Errorf("expected local=%v", tt.local)
			}
		})
	}
}

func TestParseHostDefault(t *testing.T) {
	host, err := ParseHost("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !host.IsLocal() {
		t.Errorf("expected the default host to be local, got %+v", host)
	}
}

func TestResolveHostName(t *testing.T) {
	tests := []struct {
		goos    string
		version string
		want    string
		ok      bool
	}{
		{"darwin", "17.05.0-ce", "", false},
		{"darwin", "17.06.0-ce", "docker.for.mac.localhost", true},
		{"darwin", "17.09.1-ce-mac1", "docker.for.mac.localhost", true},
		{"darwin", "17.12.0-ce", "docker.for.mac.host.internal", true},
		{"darwin", "17.12.0-ce-mac2", "docker.for.mac.host.internal", true},
		{"darwin", "18.03.0-ce", "host.docker.internal", true},
		{"darwin", "27.1.1", "host.docker.internal", true},
		{"darwin", "garbage", "", false},
		{"linux", "27.1.1", "", false},
		{"windows", "27.1.1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.version, func(t *testing.T) {
			got, ok := ResolveHostName(tt.goos, tt.version)
			if got != tt.want || ok != tt.ok {
				t.Errorf("expected (%q, %v), got (%q, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}
