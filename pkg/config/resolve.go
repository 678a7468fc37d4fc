package config

import (
	"fmt"
	"sort"
	"strings"
)

// Check verifies that every reference in the project points at a defined
// container or task and that neither dependencies nor prerequisites form
// a cycle.
func Check(p *Project) error {
	for _, name := range sortedKeys(p.Containers) {
		c := p.Containers[name]
		for _, dep := range c.Dependencies {
			if dep == name {
				return fmt.Errorf("container %s cannot depend on itself", name)
			}
			if _, ok := p.Containers[dep]; !ok {
				return fmt.Errorf("container %s depends on %s, which does not exist", name, dep)
			}
		}
	}

	for _, name := range sortedKeys(p.Containers) {
		if _, err := containerClosure(p.Containers, []string{name}); err != nil {
			return err
		}
	}

	for _, name := range p.TaskNames() {
		t := p.Tasks[name]
		if _, ok := p.Containers[t.Run.Container]; !ok {
			return fmt.Errorf("task %s runs container %s, which does not exist", name, t.Run.Container)
		}
		for _, dep := range t.Dependencies {
			if dep == t.Run.Container {
				return fmt.Errorf("task %s cannot list its own task container %s as a dependency", name, dep)
			}
			if _, ok := p.Containers[dep]; !ok {
				return fmt.Errorf("task %s depends on container %s, which does not exist", name, dep)
			}
		}
		for _, pre := range t.Prerequisites {
			if _, ok := p.Tasks[pre]; !ok {
				return fmt.Errorf("task %s has prerequisite %s, which does not exist", name, pre)
			}
		}
		if _, err := ExecutionOrder(p, name); err != nil {
			return err
		}
	}

	return nil
}

// ExecutionOrder returns the tasks to run for name: its prerequisites,
// recursively and in declaration order, followed by the task itself.
// A task reachable through several paths runs once.
func ExecutionOrder(p *Project, name string) ([]string, error) {
	if _, ok := p.Tasks[name]; !ok {
		return nil, fmt.Errorf("task %s does not exist", name)
	}

	var order []string
	visited := make(map[string]bool)
	onPath := make(map[string]bool)
	var path []string

	var visit func(string) error
	visit = func(n string) error {
		if onPath[n] {
			return fmt.Errorf("prerequisite cycle: %s -> %s", strings.Join(path, " -> "), n)
		}
		if visited[n] {
			return nil
		}

		t, ok := p.Tasks[n]
		if !ok {
			return fmt.Errorf("prerequisite %s does not exist", n)
		}

		onPath[n] = true
		path = append(path, n)
		for _, pre := range t.Prerequisites {
			if err := visit(pre); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		onPath[n] = false

		visited[n] = true
		order = append(order, n)
		return nil
	}

	if err := visit(name); err != nil {
		return nil, err
	}

	return order, nil
}

// ResolveTask computes the full container set for a task. The task
// container is copied with the task's command, environment and extra
// dependencies applied; other containers are shared with the project.
func ResolveTask(p *Project, name string) (*ResolvedTask, error) {
	t, ok := p.Tasks[name]
	if !ok {
		return nil, fmt.Errorf("task %s does not exist", name)
	}

	base, ok := p.Containers[t.Run.Container]
	if !ok {
		return nil, fmt.Errorf("task %s runs container %s, which does not exist", name, t.Run.Container)
	}

	taskContainer := *base
	taskContainer.Dependencies = mergeNames(base.Dependencies, t.Dependencies)
	if len(t.Run.Command) > 0 {
		taskContainer.Command = t.Run.Command
	}
	taskContainer.Environment = mergeEnv(base.Environment, t.Run.Environment)

	containers := make(map[string]*Container, len(p.Containers))
	for k, v := range p.Containers {
		containers[k] = v
	}
	containers[taskContainer.Name] = &taskContainer

	ordered, err := containerClosure(containers, []string{taskContainer.Name})
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", name, err)
	}

	return &ResolvedTask{
		Project:       p.Name,
		Task:          t,
		TaskContainer: &taskContainer,
		Containers:    ordered,
	}, nil
}

// containerClosure returns roots and everything they transitively depend
// on, dependencies before dependents.
func containerClosure(containers map[string]*Container, roots []string) ([]*Container, error) {
	var ordered []*Container
	visited := make(map[string]bool)
	onPath := make(map[string]bool)
	var path []string

	var visit func(string) error
	visit = func(n string) error {
		if onPath[n] {
			return fmt.Errorf("dependency cycle: %s -> %s", strings.Join(path, " -> "), n)
		}
		if visited[n] {
			return nil
		}

		c, ok := containers[n]
		if !ok {
			return fmt.Errorf("container %s does not exist", n)
		}

		onPath[n] = true
		path = append(path, n)
		for _, dep := range c.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		onPath[n] = false

		visited[n] = true
		ordered = append(ordered, c)
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return nil, err
		}
	}

	return ordered, nil
}

func mergeNames(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, n := range append(append([]string{}, a...), b...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func mergeEnv(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
