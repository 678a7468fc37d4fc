package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator runs variables scripts. Every top-level global whose
// name doesn't start with an underscore and whose value is a string,
// number or bool becomes a project variable.
type StarlarkEvaluator struct {
	timeout time.Duration
	lookup  func(string) (string, bool)
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
		lookup:  os.LookupEnv,
	}
}

// Evaluate executes script and returns the variables it defines.
// predefined values are visible to the script under the same names.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename, script string, predefined map[string]string) (map[string]string, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "variables",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(evalCtx.Err().Error())
		case <-done:
		}
	}()

	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"env":    starlark.NewBuiltin("env", se.builtinEnv),
	}
	for name, value := range predefined {
		predeclared[name] = starlark.String(value)
	}

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		if evalCtx.Err() != nil {
			return nil, fmt.Errorf("starlark execution timeout after %v", se.timeout)
		}
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make(map[string]string, len(globals))
	for _, name := range names {
		if name[0] == '_' {
			continue
		}

		switch val := globals[name].(type) {
		case starlark.String:
			vars[name] = string(val)
		case starlark.Int, starlark.Float, starlark.Bool:
			vars[name] = val.String()
		case *starlark.Function, *starlark.Builtin:
			// helpers are not variables
		default:
			return nil, fmt.Errorf("variable %s has unsupported type %s", name, val.Type())
		}
	}

	return vars, nil
}

// builtinEnv implements env(name, default=None).
func (se *StarlarkEvaluator) builtinEnv(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var def starlark.Value = starlark.None

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
		return nil, err
	}

	if value, ok := se.lookup(name); ok {
		return starlark.String(value), nil
	}

	if def == starlark.None {
		return nil, fmt.Errorf("env: %s is not set and no default was given", name)
	}

	return def, nil
}
