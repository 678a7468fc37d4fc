// Package docker implements the engine's container runtime on the Docker
// Engine API.
//
// The daemon is found through DOCKER_HOST like the docker CLI does: unix
// and npipe sockets, tcp:// with the usual TLS variables, and ssh:// hosts
// reached through the SSH transport. Daemon errors are classified into
// engine.RuntimeError values so the engine can retry transient failures
// and show the daemon's message otherwise.
package docker
