// Package errors defines the error kinds the data client surfaces to
// its host, as sentinel-wrapped errors layered with
// github.com/pkg/errors for wrapping and cause inspection.
package errors

import (
	"github.com/pkg/errors"
)

// Kind is one of the four error categories the router can produce for
// a host-facing call.
type Kind uint8

const (
	// DataIsUnavailable is returned when no connected peer, or no
	// non-ignored peer, advertises the requested range.
	DataIsUnavailable Kind = iota
	// Timeout is returned when an RPC deadline was exceeded.
	Timeout
	// InvalidResponse is returned when a response's variant did not
	// match the request, advertised a wrong range, or was malformed.
	InvalidResponse
	// InternalError is returned for remote-reported errors, transport
	// failures, or serialization failures.
	InternalError
)

func (k Kind) String() string {
	switch k {
	case DataIsUnavailable:
		return "DataIsUnavailable"
	case Timeout:
		return "Timeout"
	case InvalidResponse:
		return "InvalidResponse"
	case InternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with a descriptive message. It satisfies the
// standard error interface and supports errors.Cause unwrapping via
// github.com/pkg/errors.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

// Cause implements github.com/pkg/errors's causer interface.
func (e *Error) Cause() error {
	return e.cause
}

// Unwrap supports the standard library's errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an *Error of the given kind with the given message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind, wrapping cause for later
// inspection via Cause/Unwrap.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.WithMessage(cause, message)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// ErrDataIsUnavailable is a convenience constructor matching the
// common case of no candidate peers.
func ErrDataIsUnavailable(message string) *Error {
	return New(DataIsUnavailable, message)
}
