package errors

import (
	stderrors "errors"
	"fmt"
	"sync/atomic"
)

// Category represents the type of error.
type Category string

const (
	// CategoryUsage marks a mistake in user code or configuration. Usage
	// errors fail fast and never leak into an HTTP body.
	CategoryUsage Category = "usage"

	// CategoryInternal marks a broken invariant inside the runtime itself.
	CategoryInternal Category = "internal"

	// CategoryHook marks a failure raised by a user hook.
	CategoryHook Category = "hook"

	// CategoryConfig marks an invalid or unreadable configuration file.
	CategoryConfig Category = "config"

	// CategoryWarning marks a condition that is reported but not fatal.
	CategoryWarning Category = "warning"
)

// Error is a structured error with a code, a suggestion, and documentation.
type Error struct {
	// Code is a unique error identifier (e.g., "P001").
	Code string

	// Category is the error type (usage, internal, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer, request-specific explanation.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error

	logged atomic.Bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// MarkLogged records that the error has been written to the log.
// It reports true only for the first call.
func (e *Error) MarkLogged() bool {
	return e.logged.CompareAndSwap(false, true)
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithDetailf adds a formatted explanation to the error.
func (e *Error) WithDetailf(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Usagef creates an uncoded usage error.
func Usagef(format string, args ...any) *Error {
	return Newf(CategoryUsage, format, args...)
}

// Internalf creates an assertion failure. Seeing one means the runtime has a bug.
func Internalf(format string, args ...any) *Error {
	return Newf(CategoryInternal, format, args...)
}

// FromError wraps a standard error in an Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// IsUsage reports whether err carries a usage error.
func IsUsage(err error) bool {
	return hasCategory(err, CategoryUsage)
}

// IsInternal reports whether err carries an assertion failure.
func IsInternal(err error) bool {
	return hasCategory(err, CategoryInternal)
}

// HasCode reports whether err carries an Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Code == code
}

func hasCategory(err error, c Category) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Category == c
}

// Loggable is implemented by errors that remember whether they were logged.
type Loggable interface {
	MarkLogged() bool
}

// MarkLogged reports whether err should be logged now. Errors that do not
// carry a marker are always reported as not yet logged.
func MarkLogged(err error) bool {
	if err == nil {
		return false
	}
	var l Loggable
	if stderrors.As(err, &l) {
		return l.MarkLogged()
	}
	return true
}
