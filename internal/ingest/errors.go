package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind tags a failure for retry classification and metrics.
type ErrorKind string

// Error kinds. Network is a network-level transport failure; Transport is a
// non-network one such as an unexpected status or an empty body.
const (
	ErrBlocked     ErrorKind = "blocked"
	ErrRateLimited ErrorKind = "rate_limited"
	ErrNotFound    ErrorKind = "not_found"
	ErrNetwork     ErrorKind = "network"
	ErrTransport   ErrorKind = "transport"
	ErrParse       ErrorKind = "parse"
	ErrValidation  ErrorKind = "validation"
	ErrCanceled    ErrorKind = "canceled"
	ErrUnknown     ErrorKind = "unknown"
)

// Retryable reports whether a failure of the given kind may succeed on retry.
func Retryable(kind ErrorKind) bool {
	switch kind {
	case ErrBlocked, ErrRateLimited, ErrNetwork:
		return true
	default:
		return false
	}
}

// ErrMissingParent is returned when a child record's parent is not stored.
var ErrMissingParent = errors.New("parent record not persisted")

// FetchError is the typed failure returned by fetchers.
type FetchError struct {
	Kind       ErrorKind
	Locator    string
	StatusCode int
	// RetryAfter is a server hint, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.Locator, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError builds a FetchError.
func NewFetchError(kind ErrorKind, locator string, status int, err error) *FetchError {
	return &FetchError{Kind: kind, Locator: locator, StatusCode: status, Err: err}
}

// ParseReason distinguishes parse failures.
type ParseReason string

// Parse failure reasons.
const (
	MissingField    ParseReason = "missing_field"
	UnexpectedShape ParseReason = "unexpected_shape"
)

// ParseError is returned by document parsers.
type ParseError struct {
	Reason  ParseReason
	Locator string
	Field   string
	Detail  string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s: %s", e.Locator, e.Reason)
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Missing reports a required field absent from a document.
func Missing(locator, field string) *ParseError {
	return &ParseError{Reason: MissingField, Locator: locator, Field: field}
}

// Unexpected reports a document whose structure cannot be interpreted.
func Unexpected(locator, field, format string, args ...any) *ParseError {
	return &ParseError{Reason: UnexpectedShape, Locator: locator, Field: field, Detail: fmt.Sprintf(format, args...)}
}

// ValidationError reports a unit whose required records were all rejected.
type ValidationError struct {
	Kind   EntityKind
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation %s: %s", e.Kind, e.Detail)
}

// KindOf classifies any error returned from a pipeline stage.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return ErrParse
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrValidation
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCanceled
	}
	return ErrUnknown
}
