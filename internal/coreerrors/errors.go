// Package coreerrors defines the closed failure taxonomy shared across the
// RAG core. The framing layer maps Kind to a transport status; components
// never encode that mapping themselves.
package coreerrors

import "fmt"

// Kind is one of the closed set of failure categories the core recognizes.
type Kind string

const (
	InvalidRequest      Kind = "invalid_request"
	NotFound             Kind = "not_found"
	DuplicateContent     Kind = "duplicate_content"
	RateLimited          Kind = "rate_limited"
	QueueFull            Kind = "queue_full"
	QueueCleared         Kind = "queue_cleared"
	BackendUnavailable   Kind = "backend_unavailable"
	BackendRejected      Kind = "backend_rejected"
	LLMUnavailable       Kind = "llm_unavailable"
	LLMStreamError       Kind = "llm_stream_error"
	ProtocolError        Kind = "protocol_error"
	IndexPartialFailure  Kind = "index_partial_failure"
)

// Error is a typed error carrying one of the closed Kinds.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error of the given Kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given Kind wrapping a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
