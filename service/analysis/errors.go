package analysis

import (
	"context"
	"errors"
	"fmt"
)

// Failure taxonomy of an analysis. Callers wrap these with fmt.Errorf("...: %w")
// and transports map them with KindOf.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("transaction not found")
	ErrMalformedRecord = errors.New("malformed transaction record")
	ErrUpstream        = errors.New("upstream error")
	ErrInternal        = errors.New("internal error")

	// ErrTimeout is the upstream failure of a call that ran out of time.
	// errors.Is(err, ErrUpstream) holds for it; KindOf reports Timeout.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrUpstream)
)

// ErrorKind is the transport-facing class of an analysis failure.
type ErrorKind string

const (
	InvalidInput    ErrorKind = "invalid_input"
	NotFound        ErrorKind = "not_found"
	MalformedRecord ErrorKind = "malformed_record"
	Upstream        ErrorKind = "upstream_error"
	Timeout         ErrorKind = "timeout"
	Internal        ErrorKind = "internal"
)

// KindOf classifies err. Errors that match no sentinel are Internal.
// A nil error has no kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return InvalidInput
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrMalformedRecord):
		return MalformedRecord
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, ErrUpstream):
		return Upstream
	default:
		return Internal
	}
}

// Retryable reports whether repeating the same request could succeed.
// Input, lookup and record-shape failures are final.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Upstream, Timeout:
		return true
	default:
		return false
	}
}
