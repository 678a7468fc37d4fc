package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		containerNamingPolicy(),
		imageTagsPolicy(),
		portConflictsPolicy(),
		volumeMountsPolicy(),
	}
}

// containerNamingPolicy keeps container names usable as network aliases.
func containerNamingPolicy() Policy {
	return Policy{
		Name:        "container-naming",
		Description: "Container names must be valid DNS labels so other containers can reach them by name",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "network"},
		Rego: `package crate.policies.naming

import rego.v1

deny contains violation if {
	some container in input.containers
	not regex.match("^[a-z0-9]([a-z0-9_.-]*[a-z0-9])?$", container.name)
	violation := {
		"message": sprintf("Container name '%s' must use lowercase letters, digits, '.', '_' and '-', and start and end with a letter or digit", [container.name]),
		"container": container.name,
	}
}

deny contains violation if {
	some container in input.containers
	count(container.name) > 63
	violation := {
		"message": sprintf("Container name '%s' must not exceed 63 characters", [container.name]),
		"container": container.name,
	}
}`,
	}
}

// imageTagsPolicy warns about images that float with the registry.
func imageTagsPolicy() Policy {
	return Policy{
		Name:        "image-tags",
		Description: "Pulled images should be pinned to a tag or digest other than latest",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"images", "reproducibility"},
		Rego: `package crate.policies.images

import rego.v1

deny contains violation if {
	some container in input.containers
	container.image.kind == "pull"
	not pinned(container.image.ref)
	violation := {
		"message": sprintf("Image '%s' has no tag, so it will use whatever 'latest' is when pulled", [container.image.ref]),
		"container": container.name,
	}
}

deny contains violation if {
	some container in input.containers
	container.image.kind == "pull"
	endswith(container.image.ref, ":latest")
	violation := {
		"message": sprintf("Image '%s' uses the 'latest' tag", [container.image.ref]),
		"container": container.name,
	}
}

pinned(ref) if contains(ref, "@")

pinned(ref) if {
	parts := split(ref, "/")
	contains(parts[count(parts) - 1], ":")
}`,
	}
}

// portConflictsPolicy rejects two containers publishing the same local port.
func portConflictsPolicy() Policy {
	return Policy{
		Name:        "port-conflicts",
		Description: "Two containers in a task cannot publish the same local port",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"network"},
		Rego: `package crate.policies.ports

import rego.v1

deny contains violation if {
	some i, j
	a := input.containers[i]
	b := input.containers[j]
	i < j
	some pa in a.ports
	some pb in b.ports
	pa["local"] == pb["local"]
	violation := {
		"message": sprintf("Containers '%s' and '%s' both publish local port %d", [a.name, b.name, pa["local"]]),
		"container": b.name,
	}
}`,
	}
}

// volumeMountsPolicy flags mounts that hand a container control of the host.
func volumeMountsPolicy() Policy {
	return Policy{
		Name:        "volume-mounts",
		Description: "Warns when a container mounts the Docker socket and rejects mounting the host root",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"volumes", "security"},
		Rego: `package crate.policies.volumes

import rego.v1

deny contains violation if {
	some container in input.containers
	some volume in container.volumes
	volume["local"] == "/var/run/docker.sock"
	violation := {
		"message": "Mounting the Docker socket gives the container control of the Docker daemon",
		"container": container.name,
	}
}

deny contains violation if {
	some container in input.containers
	some volume in container.volumes
	volume["local"] == "/"
	violation := {
		"message": "Mounting the host's root directory is not allowed",
		"container": container.name,
		"severity": "error",
	}
}`,
	}
}
