// Package config loads crate project files and resolves tasks into the
// container sets the engine runs.
//
// # Overview
//
// A project file (crate.yml) declares containers and tasks. Loading goes
// through three checks before anything is resolved:
//
//   - YAML decoding with unknown keys rejected
//   - structural validation against a built-in CUE schema
//   - field rules expressed as validator struct tags
//
// After decoding, ${{ name }} references are substituted from the file's
// variables, an optional Starlark variables script and command-line
// overrides, in increasing order of precedence. Every container and task
// reference is then checked and dependency and prerequisite cycles are
// rejected.
//
// # Example project file
//
//	project_name: shop
//	containers:
//	  db:
//	    image: postgres:16-alpine
//	    health_check:
//	      interval: 1s
//	      retries: 30
//	  build-env:
//	    build_directory: .crate/build-env
//	    volumes:
//	      - .:/code
//	    working_directory: /code
//	tasks:
//	  test:
//	    description: Run the integration tests
//	    run:
//	      container: build-env
//	      command: go test ./...
//	    dependencies: [db]
//
// # Components
//
// Loader: reads, validates and builds a Project. Watch re-runs Load when
// the file changes.
//
// SchemaRegistry: CUE schemas for the project file.
//
// StarlarkEvaluator: runs variables scripts with a timeout.
//
// ResolveTask and ExecutionOrder: compute what a task needs. The engine
// consumes ResolvedTask read-only.
package config
