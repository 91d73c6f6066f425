// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package sidechain implements the sidechain ledger: the registry of sidechains
anchored to the main chain, the maturity schedule of value sent to them, the
rules certificates must follow to move value back out and the mutator that
applies and undoes the effects of main chain blocks.

# Epochs

A sidechain created at height C with epoch length L is in epoch
(h-C)/L at height h and epoch n ends at height C+(n+1)*L-1.  A certificate for
epoch n can only be included in a block after that end height and commits to
the cumulative commitment of the chain at that height.

# Certificates

Certificates are checked in a fixed order so every rejection carries a
distinct error kind: the sidechain must exist (ErrUnknownSidechain), the epoch
must be the next one expected or the most recently certified one
(ErrEpochMismatch), the claimed commitment must match the chain
(ErrCommitmentMismatch), the proof must verify (ErrProofRejected), the quality
must strictly improve on any certificate already known for the epoch
(ErrStaleQuality) and the confirmed balance must cover the backward transfers
plus fees (ErrInsufficientFunds).

# Reorganizations

Every connected block records undo data describing exactly what it changed.
Disconnecting the block replays that data in reverse so connecting and
disconnecting any run of blocks leaves the registry identical to applying the
resulting chain directly.
*/
package sidechain
