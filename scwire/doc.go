// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package scwire implements the canonical encoding of sidechain-bearing objects.

Two kinds of objects affect sidechain state: sidechain transactions, which
carry sidechain creation outputs and forward transfer outputs next to a regular
transparent transaction, and withdrawal certificates, which carry backward
transfer outputs.  Both share a leading signed version field so a generic
decoder can tell them apart: transactions use positive versions and
certificates use CertVersion, which is negative.

Every object serializes to exactly one byte representation and decoding the
bytes of an object followed by encoding it again yields the original bytes.
Object identifiers are the BLAKE-256 hash of that representation.

Blocks group sidechain transactions and certificates under a header that
commits to every object it contains.
*/
package scwire
