package core

import (
	"github.com/go-faster/errors"
)

var (
	// ErrType is returned when a value of the wrong kind is stored in a typed
	// slot, such as a JSON value that cannot be encoded.
	ErrType = errors.New("type violation")
	// ErrValue is returned when a value violates an invariant: a malformed
	// identifier, a zero qubit or a duplicate set member.
	ErrValue = errors.New("value violation")
	// ErrDispatch is returned when a recognized command or gate has no handler.
	ErrDispatch = errors.New("dispatch violation")
)

func typeErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrType, format, args...)
}

func valueErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValue, format, args...)
}

// DispatchErrorf wraps ErrDispatch with a message.
func DispatchErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDispatch, format, args...)
}
