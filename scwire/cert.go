// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scwire

import (
	"bytes"
	"io"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
)

// CertVersion is the version of withdrawal certificates.  It is negative so
// certificates are distinguishable from sidechain transactions by their
// leading version field.
const CertVersion int32 = -5

// BackwardTransferOutput pays value out of a sidechain to a main chain public
// key hash.
type BackwardTransferOutput struct {
	PubKeyHash [20]byte
	Value      int64
}

// backwardTransferSize is the serialized size of a backward transfer output.
const backwardTransferSize = 20 + 8

// MsgCert is a withdrawal certificate for one epoch of a sidechain.  The
// transparent part holds the inputs paying the certificate fee together with
// any change outputs.
type MsgCert struct {
	Version               int32
	ScID                  chainhash.Hash
	EpochNumber           int32
	Quality               int64
	EndEpochCumCommitment chainhash.Hash
	Proof                 []byte
	FtScFee               int64
	MbtrScFee             int64
	Transparent           *wire.MsgTx
	BackwardTransfers     []*BackwardTransferOutput
}

// NewMsgCert returns a new certificate for the provided sidechain epoch with
// an empty transparent part and no backward transfers.
func NewMsgCert(scID *chainhash.Hash, epoch int32, quality int64) *MsgCert {
	return &MsgCert{
		Version:     CertVersion,
		ScID:        *scID,
		EpochNumber: epoch,
		Quality:     quality,
		Transparent: wire.NewMsgTx(),
	}
}

// AddBackwardTransfer adds a backward transfer output to the certificate.
func (msg *MsgCert) AddBackwardTransfer(out *BackwardTransferOutput) {
	msg.BackwardTransfers = append(msg.BackwardTransfers, out)
}

// BackwardTransferTotal returns the sum of all backward transfer outputs.
func (msg *MsgCert) BackwardTransferTotal() int64 {
	var total int64
	for _, bt := range msg.BackwardTransfers {
		total += bt.Value
	}
	return total
}

// Fee returns the fee paid by the transparent part of the certificate.  It is
// zero when the certificate has no transparent inputs.
func (msg *MsgCert) Fee() int64 {
	if msg.Transparent == nil {
		return 0
	}
	var in, out int64
	for _, txIn := range msg.Transparent.TxIn {
		in += txIn.ValueIn
	}
	for _, txOut := range msg.Transparent.TxOut {
		out += txOut.Value
	}
	if in < out {
		return 0
	}
	return in - out
}

// SerializeSize returns the number of bytes it would take to serialize the
// certificate.
func (msg *MsgCert) SerializeSize() int {
	n := 4 + chainhash.HashSize + 4 + 8 + chainhash.HashSize +
		varBytesSize(msg.Proof) + 8 + 8
	n += transparentSize(msg.Transparent)
	n += wire.VarIntSerializeSize(uint64(len(msg.BackwardTransfers)))
	n += len(msg.BackwardTransfers) * backwardTransferSize
	return n
}

// Serialize encodes the certificate to w using the canonical encoding.
func (msg *MsgCert) Serialize(w io.Writer) error {
	if err := writeUint32(w, uint32(msg.Version)); err != nil {
		return err
	}
	if _, err := w.Write(msg.ScID[:]); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(msg.EpochNumber)); err != nil {
		return err
	}
	if err := writeInt64(w, msg.Quality); err != nil {
		return err
	}
	if _, err := w.Write(msg.EndEpochCumCommitment[:]); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, msg.Proof); err != nil {
		return err
	}
	if err := writeInt64(w, msg.FtScFee); err != nil {
		return err
	}
	if err := writeInt64(w, msg.MbtrScFee); err != nil {
		return err
	}
	if err := writeTransparent(w, msg.Transparent); err != nil {
		return err
	}

	err := wire.WriteVarInt(w, pver, uint64(len(msg.BackwardTransfers)))
	if err != nil {
		return err
	}
	for _, bt := range msg.BackwardTransfers {
		if _, err := w.Write(bt.PubKeyHash[:]); err != nil {
			return err
		}
		if err := writeInt64(w, bt.Value); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize decodes a certificate from r into the receiver.
func (msg *MsgCert) Deserialize(r io.Reader) error {
	const op = "MsgCert.Deserialize"

	version, err := readInt32(r)
	if err != nil {
		return err
	}
	if version != CertVersion {
		return messageError(op, ErrUnknownVersion, "not a certificate "+
			"version")
	}
	msg.Version = version

	if err := readHash(r, &msg.ScID); err != nil {
		return err
	}
	msg.EpochNumber, err = readInt32(r)
	if err != nil {
		return err
	}
	msg.Quality, err = readInt64(r)
	if err != nil {
		return err
	}
	if err := readHash(r, &msg.EndEpochCumCommitment); err != nil {
		return err
	}
	msg.Proof, err = readVarBytes(r, MaxProofSize, ErrProofTooLarge, op,
		"proof")
	if err != nil {
		return err
	}
	msg.FtScFee, err = readInt64(r)
	if err != nil {
		return err
	}
	msg.MbtrScFee, err = readInt64(r)
	if err != nil {
		return err
	}
	msg.Transparent, err = readTransparent(r)
	if err != nil {
		return err
	}

	count, err := readCount(r, MaxBackwardTransfers, op, "backward transfers")
	if err != nil {
		return err
	}
	msg.BackwardTransfers = nil
	if count > 0 {
		msg.BackwardTransfers = make([]*BackwardTransferOutput, 0, count)
	}
	for i := uint64(0); i < count; i++ {
		var bt BackwardTransferOutput
		if _, err := io.ReadFull(r, bt.PubKeyHash[:]); err != nil {
			return err
		}
		bt.Value, err = readInt64(r)
		if err != nil {
			return err
		}
		msg.BackwardTransfers = append(msg.BackwardTransfers, &bt)
	}
	return nil
}

// Bytes returns the canonical serialization of the certificate.
func (msg *MsgCert) Bytes() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, msg.SerializeSize()))
	if err := msg.Serialize(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CertHash returns the identifier of the certificate.
func (msg *MsgCert) CertHash() chainhash.Hash {
	b, err := msg.Bytes()
	if err != nil {
		// Serializing to a bytes buffer only fails when out of memory.
		panic(err)
	}
	return chainhash.HashH(b)
}
