// Package syncerr defines the error kinds a sync can fail with.
package syncerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	MalformedResponse  Kind = "MalformedResponse"
	UpstreamError      Kind = "UpstreamError"
	UnexpectedShape    Kind = "UnexpectedShape"
	ConfigurationError Kind = "ConfigurationError"
	LoadFailure        Kind = "LoadFailure"
	TransportFailure   Kind = "TransportFailure"
)

// Error is a classified sync failure. Message carries the operator-facing
// detail (status codes, body prefixes, original error type); Err is the cause.
type Error struct {
	Kind    Kind
	Message string
	Status  int // upstream HTTP status, 0 when not applicable
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
