// Package apierr defines the closed failure taxonomy shared by catalog
// construction and tool invocation.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind is a stable failure category. Callers branch on Kind, never on Message.
type Kind string

const (
	KindSpecificationLoad Kind = "specification_load_failure"
	KindToolGeneration    Kind = "tool_generation_failure"
	KindInvalidArgument   Kind = "missing_or_invalid_argument"
	KindTransient         Kind = "transient_transport_failure"
	KindAuthentication    Kind = "authentication_failure"
	KindAuthorization     Kind = "authorization_failure"
	KindRateLimited       Kind = "rate_limited"
	KindNotFound          Kind = "not_found"
	KindUnknownRemote     Kind = "unknown_remote_failure"
)

// Retryable reports whether the dispatcher may retry a failure of this kind.
// Validation, auth, not-found and rate-limit failures are surfaced immediately.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransient, KindUnknownRemote:
		return true
	default:
		return false
	}
}

// Error is the structured failure returned to callers.
type Error struct {
	Kind       Kind
	Message    string
	Field      string        // offending argument, for KindInvalidArgument
	Status     int           // remote HTTP status, 0 for local failures
	RetryAfter time.Duration // remote retry hint, for KindRateLimited
	Detail     string        // raw remote payload, kept for diagnostics
	Duration   time.Duration // elapsed time of the invocation
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// InvalidArgument reports a caller-input failure on one field.
func InvalidArgument(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidArgument, Field: field, Message: fmt.Sprintf(format, args...)}
}

// As extracts an *Error from err. Errors outside the taxonomy are reported
// as KindUnknownRemote so callers always receive a well-formed failure.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUnknownRemote, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return As(err).Kind
}

// payload is the wire form surfaced to MCP callers.
type payload struct {
	Kind              Kind   `json:"kind"`
	Message           string `json:"message"`
	Field             string `json:"field,omitempty"`
	Status            int    `json:"status,omitempty"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
	Detail            string `json:"detail,omitempty"`
	DurationMs        int64  `json:"duration_ms"`
	Attempts          int    `json:"attempts,omitempty"`
}

// MarshalJSON renders the caller-visible form of the failure.
func (e *Error) MarshalJSON() ([]byte, error) {
	p := payload{
		Kind:       e.Kind,
		Message:    e.Message,
		Field:      e.Field,
		Status:     e.Status,
		DurationMs: e.Duration.Milliseconds(),
		Attempts:   e.Attempts,
	}
	if e.RetryAfter > 0 {
		p.RetryAfterSeconds = int64(e.RetryAfter / time.Second)
	}
	if e.Kind == KindUnknownRemote {
		p.Detail = e.Detail
	}
	if e.Err != nil && p.Message == "" {
		p.Message = e.Err.Error()
	}
	return json.Marshal(p)
}
