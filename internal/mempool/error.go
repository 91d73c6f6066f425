// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"

	"github.com/decred/scledger/internal/sidechain"
)

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

const (
	// ErrInvalid indicates the object is invalid per consensus.
	ErrInvalid = ErrorKind("ErrInvalid")

	// ErrDuplicate indicates the object already exists in the pool or was
	// recently mined.
	ErrDuplicate = ErrorKind("ErrDuplicate")

	// ErrUnknownSidechain indicates a forward transfer targets a sidechain
	// that is neither registered nor created by a pooled transaction.
	ErrUnknownSidechain = ErrorKind("ErrUnknownSidechain")

	// ErrSidechainExists indicates a transaction creates a sidechain that is
	// already registered or created by a pooled transaction.
	ErrSidechainExists = ErrorKind("ErrSidechainExists")

	// ErrPendingCertificate indicates the sidechain already has a pending
	// certificate for a different epoch.
	ErrPendingCertificate = ErrorKind("ErrPendingCertificate")

	// ErrPoolFull indicates the pool holds the maximum number of objects
	// allowed by policy.
	ErrPoolFull = ErrorKind("ErrPoolFull")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of an object failed due to one of the many validation rules.
// It has full support for errors.Is and errors.As, so the caller can
// ascertain the specific reason for the error by checking the underlying
// error, which will be either an ErrorKind or a sidechain.ErrorKind.
type RuleError struct {
	Description string
	Err         error
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

// chainRuleError returns a RuleError that encapsulates the given error from
// the ledger.  Ledger rule violations keep their kind so callers can check
// them with errors.Is.  Any other error is reported as ErrInvalid.
func chainRuleError(err error) RuleError {
	var rerr sidechain.RuleError
	if errors.As(err, &rerr) {
		return RuleError{Err: rerr.Err, Description: rerr.Description}
	}
	return RuleError{Err: ErrInvalid, Description: err.Error()}
}
