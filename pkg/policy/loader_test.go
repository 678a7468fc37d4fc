package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testRego = `# Containers must not publish port 22.
# severity: error

package team.ssh

import rego.v1

deny contains msg if {
	some container in input.containers
	some port in container.ports
	port["local"] == 22
	msg := sprintf("%s publishes port 22", [container.name])
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "no-ssh.rego")
	writeFile(t, policyFile, testRego)

	policy, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "no-ssh" {
		t.Errorf("Expected name 'no-ssh', got '%s'", policy.Name)
	}
	if policy.Description != "Containers must not publish port 22." {
		t.Errorf("Unexpected description: %q", policy.Description)
	}
	if policy.Severity != SeverityError {
		t.Errorf("Expected severity from header, got %s", policy.Severity)
	}
	if policy.Source != policyFile {
		t.Errorf("Expected source %s, got %s", policyFile, policy.Source)
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "from-json.json")
	writeFile(t, policyFile, `{"description": "JSON policy", "enabled": true, "rego": "package j\n\nimport rego.v1\n\ndeny contains \"x\" if false"}`)

	policy, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "from-json" {
		t.Errorf("Expected name from file name, got %s", policy.Name)
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Expected default severity, got %s", policy.Severity)
	}
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, policyFile, `{not json`)

	if _, err := loader.loadFromFile(policyFile); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadFromFile_UnsupportedType(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "policy.txt")
	writeFile(t, policyFile, "hello")

	if _, err := loader.loadFromFile(policyFile); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), "package a\n")
	writeFile(t, filepath.Join(dir, "nested", "b.rego"), "package b\n")
	writeFile(t, filepath.Join(dir, "README.md"), "ignored")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
}

func TestLoadFromPath_NonExistent(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	_, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		description string
		severity    Severity
	}{
		{"no comments", "package x\n", "", SeverityWarning},
		{"multi-line", "# First line\n# second line\npackage x\n# not this", "First line second line", SeverityWarning},
		{"severity only", "# severity: critical\npackage x", "", SeverityCritical},
		{"leading blank lines", "\n\n# Hello\n\npackage x", "Hello", SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			description, severity := parseHeader(tt.content)
			if description != tt.description {
				t.Errorf("Expected description %q, got %q", tt.description, description)
			}
			if severity != tt.severity {
				t.Errorf("Expected severity %s, got %s", tt.severity, severity)
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "p.rego")
	writeFile(t, policyFile, "# Old\npackage p\n")

	if _, err := loader.loadFromFile(policyFile); err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	writeFile(t, policyFile, "# New\npackage p\n")
	cached, _ := loader.loadFromFile(policyFile)
	if cached.Description != "Old" {
		t.Errorf("Expected cached policy, got %q", cached.Description)
	}

	loader.ClearCache()
	fresh, _ := loader.loadFromFile(policyFile)
	if fresh.Description != "New" {
		t.Errorf("Expected reloaded policy, got %q", fresh.Description)
	}
}

func TestEngineLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "no-ssh.rego"), testRego)

	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	bastion := pulled("bastion", "alpine:3.20")
	bastion.Ports = []PortInput{{Local: 22, Container: 22}}
	result, err := eng.Evaluate(context.Background(), &Input{Task: "ops", Containers: []ContainerInput{bastion}})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("Expected the loaded policy to block the run")
	}
	if !strings.Contains(result.Violations[0].Message, "bastion publishes port 22") {
		t.Errorf("Unexpected violation: %+v", result.Violations[0])
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), "package a\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 4)
	loader := NewLoader(zerolog.Nop())
	err := loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		reloaded <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to start watching: %v", err)
	}

	writeFile(t, filepath.Join(dir, "b.rego"), "package b\n")

	select {
	case policies := <-reloaded:
		if len(policies) != 2 {
			t.Errorf("Expected 2 policies after reload, got %d", len(policies))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}
