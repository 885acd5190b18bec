// Package connerr defines the connector framework's error taxonomy.
//
// Every error that crosses a plugin boundary is classified into one of four
// kinds. The runtimes use the kind, not the error's type, to decide whether to
// retry, skip-and-acknowledge, or terminate the process.
package connerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure for the purposes of runtime error handling.
type Kind int

const (
	// Retryable indicates a transient failure; the runtime retries under the
	// configured backoff policy before demoting it to a terminal error.
	Retryable Kind = iota
	// Fatal indicates the runtime cannot continue; it drains and exits 2.
	Fatal
	// InvalidData indicates the record itself cannot be processed; the
	// runtime skips it, acknowledges it, and increments invalid_data.
	InvalidData
	// Config indicates a configuration validation failure; it propagates
	// from validate() only and the process exits 3.
	Config
)

func (k Kind) String() string {
	switch k {
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	case InvalidData:
		return "invalid_data"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every runtime path deals in. It wraps an
// optional cause so the cause chain survives for logging. Error() includes
// the cause's message; formatting Unwrap()'s result with %+v prints the
// stack trace pkg/errors attaches at the point a bare error is first
// wrapped (the *Error itself has no Format method, so %+v on it prints the
// same text as Error()).
type Error struct {
	kind    Kind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Unwrap allows errors.Is / errors.As / pkg/errors.Cause to reach the
// underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Kind reports the error's classification.
func (e *Error) Kind() Kind { return e.kind }

func newErr(kind Kind, message string, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &Error{kind: kind, message: message, cause: wrapped}
}

// Retryablef builds a Retryable error.
func Retryablef(cause error, format string, args ...any) *Error {
	return newErr(Retryable, fmt.Sprintf(format, args...), cause)
}

// Fatalf builds a Fatal error.
func Fatalf(cause error, format string, args ...any) *Error {
	return newErr(Fatal, fmt.Sprintf(format, args...), cause)
}

// InvalidDataf builds an InvalidData error.
func InvalidDataf(cause error, format string, args ...any) *Error {
	return newErr(InvalidData, fmt.Sprintf(format, args...), cause)
}

// Configf builds a Config error.
func Configf(cause error, format string, args ...any) *Error {
	return newErr(Config, fmt.Sprintf(format, args...), cause)
}

// Classify coerces an arbitrary error into a classified *Error. A nil error
// classifies to nil. An already-classified error passes through unchanged.
// Anything else is treated as Retryable — the conservative default, since an
// unclassified failure from a plugin is more likely transient I/O than a
// permanently broken record.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return Retryablef(err, "unclassified plugin error")
}

// Is reports whether err is a classified Error of the given kind.
func Is(err error, kind Kind) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.kind == kind
}

// ExitCode maps a terminal error's kind to the process exit code from spec
// §6: 0 normal, 2 fatal runtime error, 3 configuration error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch Classify(err).kind {
	case Config:
		return 3
	default:
		return 2
	}
}
