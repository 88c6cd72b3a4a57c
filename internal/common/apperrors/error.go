// Package apperrors provides the application error type used across the
// pipeline. It extends the standard error interface with error chaining and
// template-based sentinel hierarchies while remaining compatible with
// errors.Is and errors.As.
package apperrors

// Error is the interface implemented by all application errors. Methods
// return Error so sentinel definitions can chain.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // derives a new sentinel from the current one
	Msg(msg string) Error                  // new error with message, wrapping the original
	MsgErr(msg string, err ...error) Error // new error with message plus extra wrapped errors
	Err(err ...error) Error                // attaches errors, keeping the original message
	UnwrapAll() []error                    // all wrapped errors
}
