// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// AssertError identifies an error that indicates an internal code consistency
// issue and should be treated as a critical and unrecoverable error.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific RuleError.
const (
	// ErrUnknownSidechain indicates a certificate or forward transfer
	// references a sidechain that is not registered.
	ErrUnknownSidechain = ErrorKind("ErrUnknownSidechain")

	// ErrEpochMismatch indicates a certificate targets an epoch other than
	// the one the sidechain is currently expected to certify.
	ErrEpochMismatch = ErrorKind("ErrEpochMismatch")

	// ErrCommitmentMismatch indicates the cumulative commitment claimed by
	// a certificate differs from the one derived from the chain for the
	// end of its epoch.
	ErrCommitmentMismatch = ErrorKind("ErrCommitmentMismatch")

	// ErrProofRejected indicates the proof of a certificate did not verify
	// against the verification key of its sidechain.
	ErrProofRejected = ErrorKind("ErrProofRejected")

	// ErrStaleQuality indicates a certificate does not strictly improve the
	// quality of the best certificate already known for its epoch.
	ErrStaleQuality = ErrorKind("ErrStaleQuality")

	// ErrInsufficientFunds indicates the backward transfers and fees of a
	// certificate exceed the confirmed balance of its sidechain.
	ErrInsufficientFunds = ErrorKind("ErrInsufficientFunds")

	// ErrOutOfRange indicates a height query precedes the creation height
	// of a sidechain or lies outside the known chain.
	ErrOutOfRange = ErrorKind("ErrOutOfRange")

	// ErrDuplicateSidechain indicates a creation output derives the
	// identifier of an already registered sidechain.
	ErrDuplicateSidechain = ErrorKind("ErrDuplicateSidechain")

	// ErrBadScCreation indicates a sidechain creation output is malformed.
	ErrBadScCreation = ErrorKind("ErrBadScCreation")

	// ErrBadFwdTransfer indicates a forward transfer output is malformed.
	ErrBadFwdTransfer = ErrorKind("ErrBadFwdTransfer")

	// ErrBadCertificate indicates a certificate is malformed independently
	// of the chain state.
	ErrBadCertificate = ErrorKind("ErrBadCertificate")

	// ErrMissingParent indicates a block does not extend the current tip.
	ErrMissingParent = ErrorKind("ErrMissingParent")

	// ErrBadBlockCommitment indicates the sidechain commitment of a block
	// header does not commit to the objects of the block.
	ErrBadBlockCommitment = ErrorKind("ErrBadBlockCommitment")

	// ErrDuplicateObject indicates a block carries the same transaction or
	// certificate more than once.
	ErrDuplicateObject = ErrorKind("ErrDuplicateObject")

	// ErrNoBlocks indicates an attempt to disconnect the tip when no block
	// has been connected to the ledger.
	ErrNoBlocks = ErrorKind("ErrNoBlocks")

	// ErrDBTooNew indicates the ledger database was created by a newer
	// version of the software.
	ErrDBTooNew = ErrorKind("ErrDBTooNew")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a block, transaction or certificate failed due to one of the
// sidechain rules.  It has full support for errors.Is and errors.As, so the
// caller can ascertain the specific reason for the rule violation.
type RuleError struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e RuleError) Unwrap() error {
	return e.Err
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(kind ErrorKind, desc string) RuleError {
	return RuleError{Err: kind, Description: desc}
}

// unknownSidechainError creates a RuleError with the kind of error set to
// ErrUnknownSidechain and a description that includes the provided id.
func unknownSidechainError(id *chainhash.Hash) RuleError {
	str := fmt.Sprintf("sidechain %s is not registered", id)
	return ruleError(ErrUnknownSidechain, str)
}
