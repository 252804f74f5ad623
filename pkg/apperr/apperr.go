// Package apperr defines the closed set of error kinds the facade is
// allowed to surface to clients, and the helpers repositories and core
// components use to produce them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed error kinds enumerated in the tool dispatch
// facade's envelope contract. Never add a Kind without updating the facade's
// envelope documentation alongside it.
type Kind string

const (
	Invalid         Kind = "INVALID"
	NotFound        Kind = "NOT_FOUND"
	Conflict        Kind = "CONFLICT"
	Cycle           Kind = "CYCLE"
	VersionConflict Kind = "VERSION_CONFLICT"
	Capacity        Kind = "CAPACITY"
	Forbidden       Kind = "FORBIDDEN"
	Cancelled       Kind = "CANCELLED"
	Internal        Kind = "INTERNAL"
)

// Error is the structured error type produced by every core component.
// Op names the failing operation in "Type.Method" form, matching the
// teacher's repository tracer span names (e.g. "TaskRepository.Create").
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error with no underlying cause.
func New(op string, kind Kind, message string) *Error {
	return &Error{Op: op, Kind: kind, Message: message}
}

// Wrap attaches op/kind to an underlying error, preserving it for errors.Is/As.
// If cause already is (or wraps) an *Error, Wrap keeps that error's Kind,
// Message and Details, replaces only Op, and links to that error's own Cause
// rather than to cause itself.
func Wrap(op string, kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	var existing *Error
	if errors.As(cause, &existing) {
		return &Error{Op: op, Kind: existing.Kind, Message: existing.Message, Details: existing.Details, Cause: existing.Cause}
	}
	return &Error{Op: op, Kind: kind, Message: cause.Error(), Cause: cause}
}

// WithDetails returns a copy of e whose Details is replaced by details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Internal for unstructured
// errors so the facade never leaks a raw error string to clients.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}
