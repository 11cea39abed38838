// Package apierr defines the error envelope carried from pipeline stages to
// the error translator, and the rules that turn any error into a response
// status and message.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// DefaultStatus is the status used when an error carries none.
const DefaultStatus = http.StatusInternalServerError

const maxStackDepth = 32

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Error is a failure raised anywhere in the request pipeline.
//
// A zero Status means unspecified and is derived as DefaultStatus.
type Error struct {
	Status  int
	Message string
	// Route optionally names where the failure was raised. The translator
	// falls back to the request URI, query included.
	Route string

	cause error
	stack []uintptr
}

// New creates an error with the given status and message.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message, stack: callers()}
}

// Newf creates an error with a formatted message.
func Newf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...), stack: callers()}
}

// Wrap creates an error with the given status and message around cause.
func Wrap(status int, message string, cause error) *Error {
	return &Error{Status: status, Message: message, cause: cause, stack: callers()}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.cause == nil:
		return e.Message
	case e.Message == "":
		return e.cause.Error()
	default:
		return e.Message + ": " + e.cause.Error()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// StatusCode implements StatusCoder.
func (e *Error) StatusCode() int {
	return e.Status
}

// Stack returns the formatted call stack captured when the error was created.
func (e *Error) Stack() string {
	if len(e.stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}

func callers() []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// Skip runtime.Callers, callers and the constructor.
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

// DeriveStatus returns the HTTP status for err: the first status in the
// range 200-599 carried by an error in the chain, or DefaultStatus. The
// chain is walked in the same order as errors.As, so a wrapper with an
// unspecified status defers to the statuses it wraps.
func DeriveStatus(err error) int {
	if code, ok := statusIn(err); ok {
		return code
	}
	return DefaultStatus
}

func statusIn(err error) (int, bool) {
	for err != nil {
		if sc, ok := err.(StatusCoder); ok {
			if code := sc.StatusCode(); code >= http.StatusOK && code <= 599 {
				return code, true
			}
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				if code, ok := statusIn(inner); ok {
					return code, true
				}
			}
			return 0, false
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return 0, false
		}
	}
	return 0, false
}

// DeriveMessage returns the client-facing message for err. Envelope errors
// yield their Message as-is, which may be empty. Other errors are passed
// through unchanged. A nil error yields "".
func DeriveMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// StackOf returns the stack captured by the first envelope in err's chain.
func StackOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stack()
	}
	return ""
}
