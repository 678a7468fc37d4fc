package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// The built-in schemas are constants; a compile failure is a programming error.
	if err := sr.RegisterSchema("project", builtinProjectSchema, "#Project"); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema("container", builtinProjectSchema, "#Container"); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema("task", builtinProjectSchema, "#Task"); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles a CUE source and registers the definition at
// path under the given name.
func (sr *SchemaRegistry) RegisterSchema(name, source, path string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(path))
	if err := def.Err(); err != nil {
		return fmt.Errorf("failed to find %s in schema %s: %w", path, name, err)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateFile validates a decoded project file against the project schema.
func (sr *SchemaRegistry) ValidateFile(ctx context.Context, file *File) error {
	return sr.ValidateAgainstSchema(ctx, "project", file)
}

const builtinProjectSchema = `
#Name: =~"^[a-zA-Z0-9][a-zA-Z0-9_.-]*$"

#Command: [...string]

#Duration: =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"

#Container: {
	image?:           string & !=""
	build_directory?: string & !=""
	dockerfile?:      string
	build_args?: {[string]: string}

	command?: #Command
	dependencies?: [...#Name]
	environment?: {[string]: string}
	working_directory?: string & =~"^/"

	// local:container[:options]
	volumes?: [...(string & =~"^[^:]+:/[^:]*(:[a-zA-Z,]+)?$")]

	// local:container
	ports?: [...(string & =~"^[0-9]{1,5}:[0-9]{1,5}$")]

	health_check?: {
		command?:      #Command
		interval?:     #Duration
		retries?:      int & >=0
		start_period?: #Duration
	}

	run_as_current_user?: {
		enabled?:        bool
		home_directory?: string & =~"^/"
	}
}

#Task: {
	description?: string
	run: {
		container: #Name
		command?:  #Command
		environment?: {[string]: string}
	}
	dependencies?: [...#Name]
	prerequisites?: [...#Name]
}

#Project: {
	project_name?: #Name
	variables?: {[string]: string}
	variables_script?: string
	containers: {[#Name]: #Container}
	tasks?: {[#Name]: #Task}
}
`
