// Package policy checks tasks against Open Policy Agent (OPA) Rego policies
// before crate starts any containers.
//
// Policies see an Input document describing the task and every container
// it needs: names, image sources, ports, volumes and health check settings.
// Environment variable values are never included, only their names.
//
// Each policy is a Rego module whose package defines a deny set. Elements
// are either strings or objects with "message", and optionally "container"
// and "severity":
//
//	package team.images
//
//	import rego.v1
//
//	deny contains violation if {
//		some container in input.containers
//		startswith(container.image.ref, "docker.io/")
//		violation := {
//			"message": "Pull from the internal mirror instead",
//			"container": container.name,
//			"severity": "error",
//		}
//	}
//
// Violations with severity error or critical block the run; anything else is
// reported as a warning.
//
// # Built-in policies
//
//   - container-naming: names must be usable as DNS labels (error)
//   - image-tags: pulled images should be pinned (warning)
//   - port-conflicts: two containers cannot publish the same local port (error)
//   - volume-mounts: flags the Docker socket (warning) and the host root (error)
//
// # User policies
//
// Loader reads .rego and .json files from files or directories. The comment
// block at the top of a .rego file becomes the policy description, and a
// "# severity: <level>" line sets its default severity. Loader.Watch reloads
// policies when files change, for use with Engine.ReplacePolicies.
package policy
