package config

import (
	"reflect"
	"strings"
	"testing"
)

func testProject() *Project {
	return &Project{
		Name: "shop",
		Containers: map[string]*Container{
			"db":    {Name: "db", Image: PullImage{Ref: "postgres:16"}},
			"cache": {Name: "cache", Image: PullImage{Ref: "redis:7"}},
			"api":   {Name: "api", Image: PullImage{Ref: "api:dev"}, Dependencies: []string{"db"}, Command: []string{"serve"}},
			"app": {
				Name:         "app",
				Image:        BuildImage{Directory: "/src"},
				Dependencies: []string{"api"},
				Environment:  map[string]string{"A": "1"},
			},
		},
		Tasks: map[string]*Task{
			"lint": {Name: "lint", Run: TaskRun{Container: "app"}},
			"test": {
				Name:          "test",
				Run:           TaskRun{Container: "app", Command: []string{"go", "test"}, Environment: map[string]string{"B": "2"}},
				Dependencies:  []string{"cache"},
				Prerequisites: []string{"lint"},
			},
			"ci": {Name: "ci", Run: TaskRun{Container: "app"}, Prerequisites: []string{"test", "lint"}},
		},
	}
}

func names(containers []*Container) []string {
	out := make([]string, len(containers))
	for i, c := range containers {
		out[i] = c.Name
	}
	return out
}

func TestResolveTask(t *testing.T) {
	p := testProject()

	resolved, err := ResolveTask(p, "test")
	if err != nil {
		t.Fatalf("failed to resolve task: %v", err)
	}

	want := []string{"db", "api", "cache", "app"}
	if got := names(resolved.Containers); !reflect.DeepEqual(got, want) {
		t.Errorf("expected containers %v, got %v", want, got)
	}

	tc := resolved.TaskContainer
	if tc.Name != "app" {
		t.Fatalf("expected task container app, got %s", tc.Name)
	}
	if !reflect.DeepEqual(tc.Command, []string{"go", "test"}) {
		t.Errorf("expected task command override, got %v", tc.Command)
	}
	if !tc.DependsOn("cache") || !tc.DependsOn("api") {
		t.Errorf("expected task dependencies merged, got %v", tc.Dependencies)
	}
	if tc.Environment["A"] != "1" || tc.Environment["B"] != "2" {
		t.Errorf("expected merged environment, got %v", tc.Environment)
	}

	// The project's own definition must be untouched.
	if p.Containers["app"].DependsOn("cache") || p.Containers["app"].Environment["B"] != "" {
		t.Error("resolving a task modified the project container")
	}

	if c, ok := resolved.Container("app"); !ok || c != tc {
		t.Error("expected resolved set to hold the task container copy")
	}
}

func TestResolveTask_Unknown(t *testing.T) {
	if _, err := ResolveTask(testProject(), "nope"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestExecutionOrder(t *testing.T) {
	p := testProject()

	order, err := ExecutionOrder(p, "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"lint", "test", "ci"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestExecutionOrder_Cycle(t *testing.T) {
	p := testProject()
	p.Tasks["lint"].Prerequisites = []string{"ci"}

	_, err := ExecutionOrder(p, "ci")
	if err == nil || !strings.Contains(err.Error(), "prerequisite cycle") {
		t.Errorf("expected prerequisite cycle error, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	if err := Check(testProject()); err != nil {
		t.Fatalf("expected valid project, got %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(p *Project)
		wantErr string
	}{
		{
			name:    "self dependency",
			mutate:  func(p *Project) { p.Containers["db"].Dependencies = []string{"db"} },
			wantErr: "cannot depend on itself",
		},
		{
			name:    "task depends on its own container",
			mutate:  func(p *Project) { p.Tasks["lint"].Dependencies = []string{"app"} },
			wantErr: "own task container",
		},
		{
			name:    "unknown prerequisite",
			mutate:  func(p *Project) { p.Tasks["lint"].Prerequisites = []string{"deploy"} },
			wantErr: "prerequisite deploy",
		},
		{
			name:    "unknown task dependency",
			mutate:  func(p *Project) { p.Tasks["lint"].Dependencies = []string{"queue"} },
			wantErr: "container queue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProject()
			tt.mutate(p)

			err := Check(p)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestImageSourceKey(t *testing.T) {
	a := BuildImage{Directory: "/src", BuildArgs: map[string]string{"X": "1", "Y": "2"}}
	b := BuildImage{Directory: "/src", Dockerfile: "Dockerfile", BuildArgs: map[string]string{"Y": "2", "X": "1"}}
	c := BuildImage{Directory: "/src", BuildArgs: map[string]string{"X": "2"}}

	if a.Key() != b.Key() {
		t.Errorf("expected equal keys, got %s and %s", a.Key(), b.Key())
	}
	if a.Key() == c.Key() {
		t.Error("expected different build args to give different keys")
	}
	if (PullImage{Ref: "/src"}).Key() == (BuildImage{Directory: "/src"}).Key() {
		t.Error("expected pull and build keys to differ")
	}
}
