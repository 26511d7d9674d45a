// Package ragerr expresses the error taxonomy of §7 as errors.Is-compatible
// sentinel kinds, the idiomatic Go equivalent of an exception hierarchy.
package ragerr

import (
	"errors"
	"fmt"
)

// Kind is a sentinel error representing one taxonomy bucket. Wrap it with
// fmt.Errorf("%w: detail", kind) at the point of failure; callers classify
// with errors.Is.
type Kind error

var (
	// InvalidArgument: caller violates a precondition (empty vector,
	// non-positive batch size, unknown model).
	InvalidArgument Kind = errors.New("invalid argument")
	// NotFound: scope or session absent.
	NotFound Kind = errors.New("not found")
	// Conflict: concurrent ingestion detected on the same scope.
	Conflict Kind = errors.New("conflict")
	// DependencyMissing: required model or external index unavailable.
	DependencyMissing Kind = errors.New("dependency missing")
	// ProviderProtocolError: external embedding/LLM/reranker returned
	// malformed data (e.g. count mismatch).
	ProviderProtocolError Kind = errors.New("provider protocol error")
	// Transient: network or timeout; retriable.
	Transient Kind = errors.New("transient")
	// Fatal: invariant violated; not retriable.
	Fatal Kind = errors.New("fatal")
)

// Wrap attaches kind to err via %w so errors.Is(result, kind) succeeds.
func Wrap(kind Kind, op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// New creates a new error of the given kind with a formatted message.
func New(kind Kind, op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, kind, fmt.Sprintf(format, args...))
}

// Is reports whether err carries the given taxonomy kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}

// StatusCode maps a taxonomy kind to the HTTP status §7 assigns it.
// SSE responses ignore this and signal errors inside the stream instead.
func StatusCode(err error) int {
	switch {
	case Is(err, InvalidArgument):
		return 400
	case Is(err, NotFound):
		return 404
	case Is(err, Conflict):
		return 409
	default:
		return 500
	}
}
