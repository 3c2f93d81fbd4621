// Package acperr defines the error taxonomy of spec.md §7 as a typed
// Kind enum plus an Error struct carrying a human-readable message and
// optional structured data, with errors.Is/errors.As support.
package acperr

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy spec.md §7 names.
type Kind string

const (
	KindNotConnected           Kind = "not_connected"
	KindAlreadySpawned         Kind = "already_spawned"
	KindClosed                 Kind = "closed"
	KindTimeout                Kind = "timeout"
	KindSpawnFailed            Kind = "spawn_failed"
	KindVersionMismatch        Kind = "version_mismatch"
	KindAuthRequired           Kind = "auth_required"
	KindAuthenticationFailed   Kind = "authentication_failed"
	KindCapabilityNotSupported Kind = "capability_not_supported"
	KindSessionNotFound        Kind = "session_not_found"
	KindAlreadyInProgress      Kind = "already_in_progress"
	KindTerminalNotFound       Kind = "terminal_not_found"
	KindResourceNotFound       Kind = "resource_not_found"
	KindTransportClosed        Kind = "transport_closed"
	KindInternal               Kind = "internal"
)

// Error is the structured error value surfaced to callers of acpcore.
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]any
	Wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped error to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Wrapped }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, acperr.New(acperr.KindTimeout, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: cause}
}

// WithData attaches structured data to the error and returns it for
// chaining at the construction site.
func (e *Error) WithData(data map[string]any) *Error {
	e.Data = data
	return e
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind from err, returning KindInternal if err is not
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
