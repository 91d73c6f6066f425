// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package verifier provides a deterministic certificate proof system suitable
// for test networks and tooling.  A proof is the BLAKE-256 digest of the
// verification key followed by the canonical serialization of the public
// inputs, so anybody holding the key can produce a valid proof.
package verifier

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"

	"github.com/decred/dcrd/crypto/blake256"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/dcrd/wire"
	"github.com/decred/scledger/internal/sidechain"
)

const (
	// VkSize is the size of generated verification keys.
	VkSize = blake256.Size

	// ConstantSize is the size of generated sidechain constants.
	ConstantSize = 32

	// ProofSize is the size of proofs created by CreateProof.
	ProofSize = blake256.Size
)

// serializeInputs writes the canonical form of the public inputs.
func serializeInputs(w *bytes.Buffer, in *sidechain.ProofInputs) {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[:4], uint32(in.Epoch))
	w.Write(b[:4])
	binary.LittleEndian.PutUint64(b[:], uint64(in.Quality))
	w.Write(b[:])
	w.Write(in.EndEpochCumCommitment[:])
	binary.LittleEndian.PutUint64(b[:], uint64(in.FtScFee))
	w.Write(b[:])
	binary.LittleEndian.PutUint64(b[:], uint64(in.MbtrScFee))
	w.Write(b[:])

	// Writes to a bytes buffer never fail.
	_ = wire.WriteVarBytes(w, 0, in.Constant)
	_ = wire.WriteVarInt(w, 0, uint64(len(in.BackwardTransfers)))
	for _, bt := range in.BackwardTransfers {
		w.Write(bt.PubKeyHash[:])
		binary.LittleEndian.PutUint64(b[:], uint64(bt.Value))
		w.Write(b[:])
	}
}

// CreateProof returns the proof for the provided inputs under the provided
// verification key.
func CreateProof(vk []byte, in *sidechain.ProofInputs) []byte {
	var buf bytes.Buffer
	buf.Write(vk)
	serializeInputs(&buf, in)
	proof := blake256.Sum256(buf.Bytes())
	return proof[:]
}

// GenerateParams returns a new random verification key bound to the provided
// tag.
func GenerateParams(tag string) []byte {
	var seed [32]byte
	rand.Read(seed[:])
	vk := blake256.Sum256(append([]byte(tag), seed[:]...))
	return vk[:]
}

// GenerateConstant returns a new random sidechain constant.
func GenerateConstant() []byte {
	constant := make([]byte, ConstantSize)
	rand.Read(constant)
	return constant
}

// HashVerifier verifies proofs created by CreateProof.  It is safe for
// concurrent use.
type HashVerifier struct {
	verified atomic.Uint64
}

// Ensure HashVerifier implements the sidechain.ProofVerifier interface.
var _ sidechain.ProofVerifier = (*HashVerifier)(nil)

// New returns a new verifier.
func New() *HashVerifier {
	return &HashVerifier{}
}

// VerifyProof returns whether the proof is valid for the public inputs under
// the verification key.
//
// This is part of the sidechain.ProofVerifier interface.
func (v *HashVerifier) VerifyProof(vk []byte, in *sidechain.ProofInputs, proof []byte) bool {
	v.verified.Add(1)
	if len(vk) == 0 || len(proof) != ProofSize {
		return false
	}
	return bytes.Equal(CreateProof(vk, in), proof)
}

// Verified returns the number of proofs checked so far.
func (v *HashVerifier) Verified() uint64 {
	return v.verified.Load()
}
