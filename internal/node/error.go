// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

const (
	// ErrBlockInvalidated indicates a block was explicitly invalidated and
	// is rejected until it is reconsidered.
	ErrBlockInvalidated = ErrorKind("ErrBlockInvalidated")

	// ErrNotInvalidated indicates a block to reconsider was never
	// invalidated.
	ErrNotInvalidated = ErrorKind("ErrNotInvalidated")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// NodeError identifies an error raised by the node itself rather than by
// one of its subsystems.
type NodeError struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e NodeError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e NodeError) Unwrap() error {
	return e.Err
}

// nodeError creates a NodeError given a set of arguments.
func nodeError(kind ErrorKind, desc string) NodeError {
	return NodeError{Err: kind, Description: desc}
}
