package apperrors

import (
	"errors"
	"strings"
)

// appError is the concrete implementation behind Error. A sentinel defined
// with New acts as a template: errors derived from it via New/Msg/Err keep it
// as their base so errors.Is matches anywhere in the chain.
type appError struct {
	msg           string
	base          error
	wrappedErrors []error
}

func (e *appError) Error() string {
	if len(e.wrappedErrors) == 0 {
		return e.msg
	}
	var b strings.Builder
	b.WriteString(e.msg)
	for _, err := range e.wrappedErrors {
		b.WriteString(": ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the base error for compatibility with errors.Is / errors.As.
func (e *appError) Unwrap() error {
	return e.base
}

// UnwrapAll returns all wrapped errors in the order they were added.
func (e *appError) UnwrapAll() []error {
	return e.wrappedErrors
}

// New derives a fresh error using the current error as a template. The new
// error starts with its own message and no wrapped errors.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:  msg,
		base: e,
	}
}

// Msg creates a new error with the given message, wrapping the original.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: append([]error{e}, e.wrappedErrors...),
	}
}

// MsgErr creates a new error with the given message and wraps the original
// together with any additional errors.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	all := append([]error{e}, errs...)
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: all,
	}
}

// Err attaches additional errors while keeping the original message.
func (e *appError) Err(errs ...error) Error {
	all := append([]error{e}, errs...)
	return &appError{
		msg:           e.msg,
		base:          e,
		wrappedErrors: all,
	}
}

// Is reports whether target matches the base or any wrapped error.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrappedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// New creates a root-level error with the given message. This is the entry
// point for defining sentinel hierarchies.
func New(msg string) Error {
	return &appError{
		msg: msg,
	}
}
