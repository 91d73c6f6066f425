// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scwire

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific MessageError.
const (
	// ErrUnknownVersion is returned when the leading version field of an
	// object does not identify a known object kind.
	ErrUnknownVersion = ErrorKind("ErrUnknownVersion")

	// ErrTooManyOutputs is returned when the number of sidechain creation,
	// forward transfer or backward transfer outputs exceeds the maximum
	// allowed.
	ErrTooManyOutputs = ErrorKind("ErrTooManyOutputs")

	// ErrTooManyObjects is returned when the number of transactions or
	// certificates in a block exceeds the maximum allowed.
	ErrTooManyObjects = ErrorKind("ErrTooManyObjects")

	// ErrProofTooLarge is returned when a certificate proof exceeds the
	// maximum size allowed.
	ErrProofTooLarge = ErrorKind("ErrProofTooLarge")

	// ErrVkTooLarge is returned when a verification key exceeds the maximum
	// size allowed.
	ErrVkTooLarge = ErrorKind("ErrVkTooLarge")

	// ErrTrailingBytes is returned when an object is decoded from a buffer
	// that holds more bytes than the object consumes.
	ErrTrailingBytes = ErrorKind("ErrTrailingBytes")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// MessageError identifies an error related to encoding or decoding sidechain
// objects.  It has full support for errors.Is and errors.As, so the caller can
// ascertain the specific reason for the error by checking the underlying
// error.
type MessageError struct {
	Func        string
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e MessageError) Error() string {
	if e.Func != "" {
		return e.Func + ": " + e.Description
	}
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e MessageError) Unwrap() error {
	return e.Err
}

// messageError creates a MessageError given a set of arguments.
func messageError(fn string, kind ErrorKind, desc string) MessageError {
	return MessageError{Func: fn, Err: kind, Description: desc}
}
