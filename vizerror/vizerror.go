// Package vizerror distinguishes errors that are safe to show verbatim to
// a caller (malformed input, inconsistent topology, ...) from internal
// invariant failures, which are bugs and must not be papered over.
package vizerror

import (
	"errors"
	"fmt"
)

// Error wraps an error that is safe to surface to a user or calling
// process as-is: its message contains no internal implementation detail.
type Error struct {
	err error
}

func (e Error) Error() string { return e.err.Error() }

func (e Error) Unwrap() error { return e.err }

// New returns a user-visible error with the given message.
func New(msg string) error {
	return Error{errors.New(msg)}
}

// Errorf returns a user-visible error, formatted like fmt.Errorf. Wrapped
// errors (%w) remain reachable via errors.Is/errors.As.
func Errorf(format string, a ...any) error {
	return Error{fmt.Errorf(format, a...)}
}

// Wrap marks err as user-visible, using its existing message.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return Error{err}
}

// As reports whether err (or an error in its chain) is a vizerror.Error
// and, if so, returns that vizerror.Error.
func As(err error) (error, bool) {
	var v Error
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
