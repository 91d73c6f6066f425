// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package query

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

const (
	// ErrNotFound indicates the requested object is neither in the pool nor
	// in any enabled index.
	ErrNotFound = ErrorKind("ErrNotFound")

	// ErrInvalidParameter indicates a malformed or mismatched request
	// parameter.
	ErrInvalidParameter = ErrorKind("ErrInvalidParameter")

	// ErrDecode indicates serialized object bytes could not be decoded.
	ErrDecode = ErrorKind("ErrDecode")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a failed query.  It has full support for errors.Is and
// errors.As, so the caller can ascertain the specific reason for the error
// by checking the underlying error, which is either an ErrorKind or a kind
// reported by the ledger.
type Error struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// queryError creates an Error given a set of arguments.
func queryError(kind error, desc string) Error {
	return Error{Err: kind, Description: desc}
}
