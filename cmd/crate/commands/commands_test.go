package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/crate/pkg/engine"
	"github.com/openfroyo/crate/pkg/stores"
)

const testProject = `
project_name: shop
containers:
  db:
    image: postgres:16
  app:
    image: golang:1.25
    dependencies: [db]
tasks:
  lint:
    description: Lint the code
    run:
      container: app
      command: go vet ./...
  test:
    description: Run the tests
    run:
      container: app
      command: go test ./...
    prerequisites: [lint]
`

func writeProject(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crate.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write project: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand("test", "abc123", "today")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTasksCommand(t *testing.T) {
	path := writeProject(t, testProject)

	out, err := execute(t, "tasks", "-c", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 tasks, got:\n%s", out)
	}
	if !strings.HasPrefix(lines[0], "lint") || !strings.Contains(lines[0], "Lint the code") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "Run the tests (runs lint first)") {
		t.Errorf("unexpected second line %q", lines[1])
	}
}

func TestTasksCommand_JSON(t *testing.T) {
	path := writeProject(t, testProject)

	out, err := execute(t, "tasks", "-c", path, "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var infos []taskInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(infos) != 2 || infos[1].Name != "test" || infos[1].Container != "app" {
		t.Errorf("unexpected tasks %+v", infos)
	}
}

func TestValidateCommand(t *testing.T) {
	path := writeProject(t, testProject)

	out, err := execute(t, "validate", "-c", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Project shop is valid: 2 containers, 2 tasks.") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestValidateCommand_PolicyViolation(t *testing.T) {
	path := writeProject(t, `
project_name: shop
containers:
  db:
    image: postgres:16
    ports: ["5432:5432"]
  app:
    image: golang:1.25
    dependencies: [db]
    ports: ["5432:5432"]
tasks:
  test:
    run:
      container: app
`)

	_, err := execute(t, "validate", "-c", path)
	if err == nil {
		t.Fatal("expected a policy violation")
	}
	if !strings.Contains(err.Error(), "port-conflicts") || !strings.Contains(err.Error(), "task test") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunCommand_UnknownTask(t *testing.T) {
	path := writeProject(t, testProject)

	_, err := execute(t, "run", "deploy", "-c", path, "--no-history")
	if err == nil || !strings.Contains(err.Error(), "task deploy does not exist") {
		t.Fatalf("expected unknown task error, got %v", err)
	}
}

func seedHistory(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()

	store, err := openHistory(ctx, path)
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	defer store.Close()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := &stores.Run{ID: id, Project: "shop", Task: "test", StartedAt: start.Add(time.Duration(i) * time.Minute)}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	code := 3
	err = store.FinishRun(ctx, "run-c", stores.RunResult{
		Status:      stores.RunStatusExitedNonZero,
		ExitCode:    &code,
		CompletedAt: start.Add(2*time.Minute + 1500*time.Millisecond),
	})
	if err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	app := "app"
	for i, e := range []*stores.Event{
		{Kind: "task-started", Level: stores.EventLevelInfo, Message: "Task started"},
		{Kind: "running-container-exited", Container: &app, Level: stores.EventLevelInfo, Message: "app exited with code 3"},
		{Kind: "task-failed", Level: stores.EventLevelError, Message: "Could not remove app"},
	} {
		e.RunID = "run-c"
		e.Seq = i + 1
		e.Timestamp = start.Add(2 * time.Minute)
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}
}

func TestHistoryCommand(t *testing.T) {
	path := writeProject(t, testProject)
	history := filepath.Join(t.TempDir(), "history.db")
	seedHistory(t, history)

	out, err := execute(t, "history", "-c", path, "--history", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected a header and 3 runs, got:\n%s", out)
	}
	if !strings.HasPrefix(lines[1], "run-c") || !strings.Contains(lines[1], "exited-non-zero") || !strings.Contains(lines[1], "1.5s") {
		t.Errorf("expected the newest run first, got %q", lines[1])
	}

	out, err = execute(t, "history", "-c", path, "--history", history, "--status", "exited-non-zero", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var runs []stores.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-c" {
		t.Errorf("unexpected runs %+v", runs)
	}
}

func TestHistoryCommand_Prune(t *testing.T) {
	path := writeProject(t, testProject)
	history := filepath.Join(t.TempDir(), "history.db")
	seedHistory(t, history)

	out, err := execute(t, "history", "-c", path, "--history", history, "--prune", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Removed 2 runs.") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestEventsCommand(t *testing.T) {
	path := writeProject(t, testProject)
	history := filepath.Join(t.TempDir(), "history.db")
	seedHistory(t, history)

	out, err := execute(t, "events", "run-c", "-c", path, "--history", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "Run run-c of test: exited-non-zero") {
		t.Errorf("unexpected header in:\n%s", out)
	}
	for _, want := range []string{"Task started", "app exited with code 3", "Could not remove app"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	out, err = execute(t, "events", "run-c", "-c", path, "--history", history, "--level", "error")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "Task started") || !strings.Contains(out, "Could not remove app") {
		t.Errorf("expected only the error event in:\n%s", out)
	}

	if _, err := execute(t, "events", "nosuch", "-c", path, "--history", history); err == nil {
		t.Error("expected an error for an unknown run")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		status engine.RunStatus
		code   int64
		want   int
	}{
		{engine.RunStatusSucceeded, 0, 0},
		{engine.RunStatusExitedNonZero, 3, 3},
		{engine.RunStatusExitedNonZero, 300, exitCodeFailed},
		{engine.RunStatusFailed, -1, exitCodeFailed},
		{engine.RunStatusCancelled, -1, exitCodeInterrupted},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got := exitCode(&engine.Result{Status: tt.status, ExitCode: tt.code})
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
