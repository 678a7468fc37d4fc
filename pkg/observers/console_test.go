package observers

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/crate/pkg/engine"
)

func TestConsole_SuccessfulRun(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out, testTask, nil)

	successfulRun(console)

	want := strings.Join([]string{
		"Pulling golang:1.25...",
		"Pulling postgres:16...",
		"Pulled golang:1.25.",
		"Pulled postgres:16.",
		"Starting dependencies...",
		"Starting db...",
		"db has become healthy.",
		"Running test (go test in app)...",
		"Cleaning up...",
		"",
	}, "\n")
	if out.String() != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestConsole_TaskCommandOverride(t *testing.T) {
	task := *testTask
	taskDef := *testTask.Task
	taskDef.Run.Command = []string{"go", "vet", "./..."}
	task.Task = &taskDef

	var out bytes.Buffer
	console := NewConsole(&out, &task, nil)
	console.OnStepStarting(engine.RunContainerStep{Container: appContainer})

	if got := out.String(); got != "Running test (go vet ./... in app)...\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestConsole_FailedRun(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out, testTask, nil)

	failedRun(console)
	console.Summary(&engine.Result{
		Task:     "test",
		Status:   engine.RunStatusFailed,
		ExitCode: -1,
		Failure:  "Could not pull image 'nosuch/image': pull access denied for nosuch/image",
	})

	got := out.String()
	if n := strings.Count(got, "Cleaning up..."); n != 1 {
		t.Errorf("expected one cleanup line, got %d in:\n%s", n, got)
	}
	if n := strings.Count(got, "pull access denied"); n != 1 {
		t.Errorf("expected the failure to be shown once, got %d in:\n%s", n, got)
	}
	if !strings.HasPrefix(got, "Pulling nosuch/image...\nCleaning up...\n") {
		t.Errorf("unexpected output:\n%s", got)
	}
}

func TestConsole_Summary(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		result   engine.Result
		contains []string
	}{
		{
			name: "succeeded",
			result: engine.Result{
				Task: "test", Status: engine.RunStatusSucceeded, ExitCode: 0,
				StartedAt: start, CompletedAt: start.Add(1234 * time.Millisecond),
			},
			contains: []string{"test finished with exit code 0 in 1.23s."},
		},
		{
			name: "exited non-zero",
			result: engine.Result{
				Task: "test", Status: engine.RunStatusExitedNonZero, ExitCode: 3,
				StartedAt: start, CompletedAt: start.Add(2 * time.Second),
			},
			contains: []string{"test finished with exit code 3 in 2s."},
		},
		{
			name:     "cancelled",
			result:   engine.Result{Task: "test", Status: engine.RunStatusCancelled, ExitCode: -1},
			contains: []string{"test was interrupted."},
		},
		{
			name:     "failed",
			result:   engine.Result{Task: "test", Status: engine.RunStatusFailed, ExitCode: -1, Failure: "Could not create network"},
			contains: []string{"\nCould not create network\n\n"},
		},
		{
			name: "cleanup failures",
			result: engine.Result{
				Task: "test", Status: engine.RunStatusSucceeded, ExitCode: 0,
				CleanupFailures: []string{"container crate-1-db", "network crate-1"},
			},
			contains: []string{
				"Clean up did not complete. You may need to remove the following by hand:\n",
				"  - container crate-1-db\n",
				"  - network crate-1\n",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			NewConsole(&out, testTask, nil).Summary(&tt.result)

			for _, want := range tt.contains {
				if !strings.Contains(out.String(), want) {
					t.Errorf("expected %q in output:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestConsole_Interrupted(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out, testTask, nil)

	console.OnEventPosted(engine.TaskInterruptedEvent{Reason: "signal"})
	console.OnStepStarting(engine.StopContainerStep{Container: dbContainer})
	console.OnStepStarting(engine.DeleteTaskNetworkStep{})

	if got := out.String(); got != "Interrupt received, cleaning up...\n" {
		t.Errorf("unexpected output %q", got)
	}
}
