package docker

import (
	"context"
	"errors"
	"strings"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/openfroyo/crate/pkg/engine"
)

// classify converts a Docker client error into a classified runtime error.
// The daemon's message becomes the error message users see.
func classify(operation, resource string, err error) error {
	if err == nil {
		return nil
	}

	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return re
	}

	msg := strings.TrimPrefix(err.Error(), "Error response from daemon: ")
	lower := strings.ToLower(msg)

	switch {
	case errors.Is(err, context.DeadlineExceeded), errdefs.IsDeadline(err):
		re = engine.NewTransientError(msg, nil).WithCode(engine.ErrCodeTimeout)
	case errors.Is(err, context.Canceled), errdefs.IsCancelled(err):
		re = engine.NewPermanentError(msg, nil).WithCode(engine.ErrCodeInternal)
	case client.IsErrConnectionFailed(err), errdefs.IsUnavailable(err):
		re = engine.NewTransientError(msg, nil).WithCode(engine.ErrCodeDaemonUnavailable)
	case strings.Contains(lower, "toomanyrequests"), strings.Contains(lower, "rate limit"):
		re = engine.NewThrottledError(msg, nil).WithCode(engine.ErrCodeRateLimited)
	case errdefs.IsNotFound(err):
		re = engine.NewPermanentError(msg, nil).WithCode(engine.ErrCodeNotFound)
	case errdefs.IsConflict(err):
		re = engine.NewConflictError(msg, nil).WithCode(engine.ErrCodeAlreadyExists)
	case errdefs.IsUnauthorized(err), errdefs.IsForbidden(err):
		re = engine.NewPermanentError(msg, nil).WithCode(engine.ErrCodePermissionDenied)
	case errdefs.IsInvalidParameter(err):
		re = engine.NewPermanentError(msg, nil).WithCode(engine.ErrCodeInvalidSpec)
	default:
		re = engine.NewPermanentError(msg, nil).WithCode(engine.ErrCodeInternal)
	}

	return re.WithOperation(operation).WithResource(resource)
}

// failure builds a classified error for a condition detected by the
// runtime itself rather than reported by the daemon.
func failure(operation, resource, code, message string) error {
	return engine.NewPermanentError(message, nil).
		WithCode(code).
		WithOperation(operation).
		WithResource(resource)
}
