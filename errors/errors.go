// Package errors provides error construction and inspection helpers built
// directly on top of the standard errors package, so error chains created
// here stay interoperable with errors.Is/errors.As on the caller's side.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// New returns an error that formats as the given text.
// Each call to New returns a distinct error value even if the text is identical.
func New(message string) error {
	return stdErrors.New(message)
}

// Newf returns an error that formats according to a format specifier.
// Each call to Newf returns a distinct error value even if the text is identical.
func Newf(format string, args ...interface{}) error {
	return New(fmt.Sprintf(format, args...))
}

// Wrap annotates err with the supplied message, preserving err in the chain
// so that Is/As and Unwrap keep working. If err is nil, Wrap returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf annotates err with a formatted message. If err is nil, Wrapf
// returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Unwrap returns the result of calling the Unwrap method on err, if err's
// type contains an Unwrap method returning error. Otherwise, Unwrap
// returns nil.
func Unwrap(err error) error {
	return stdErrors.Unwrap(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stdErrors.Is(err, target)
}

// As finds the first error in err's chain that matches target, and if one
// is found, sets target to that error value and returns true.
func As(err error, target interface{}) bool {
	return stdErrors.As(err, target)
}
