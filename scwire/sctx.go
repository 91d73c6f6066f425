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

// ScTxVersion is the current version of sidechain transactions.  Any positive
// version is decoded as a sidechain transaction.
const ScTxVersion int32 = 1

// ScCreationOutput registers a new sidechain.  The identifier of the sidechain
// is derived from the hash of the transaction carrying the output and the
// index of the output within the transaction's creation outputs.
type ScCreationOutput struct {
	WithdrawalEpochLength uint32
	Value                 int64
	Address               [32]byte
	WCertVk               []byte
	CustomData            []byte
	Constant              []byte
}

// serializeSize returns the number of bytes it would take to serialize the
// output.
func (o *ScCreationOutput) serializeSize() int {
	return 4 + 8 + 32 + varBytesSize(o.WCertVk) + varBytesSize(o.CustomData) +
		varBytesSize(o.Constant)
}

// FwdTransferOutput moves value from the main chain into an existing
// sidechain.
type FwdTransferOutput struct {
	ScID    chainhash.Hash
	Value   int64
	Address [32]byte
}

// fwdTransferSize is the serialized size of a forward transfer output.
const fwdTransferSize = chainhash.HashSize + 8 + 32

// MsgScTx is a sidechain transaction.  The transparent part holds the regular
// inputs funding the sidechain outputs together with any change outputs.
type MsgScTx struct {
	Version      int32
	Transparent  *wire.MsgTx
	ScCreations  []*ScCreationOutput
	FwdTransfers []*FwdTransferOutput
}

// NewMsgScTx returns a new sidechain transaction with an empty transparent
// part.
func NewMsgScTx() *MsgScTx {
	return &MsgScTx{
		Version:     ScTxVersion,
		Transparent: wire.NewMsgTx(),
	}
}

// AddScCreation adds a sidechain creation output to the transaction.
func (msg *MsgScTx) AddScCreation(out *ScCreationOutput) {
	msg.ScCreations = append(msg.ScCreations, out)
}

// AddFwdTransfer adds a forward transfer output to the transaction.
func (msg *MsgScTx) AddFwdTransfer(out *FwdTransferOutput) {
	msg.FwdTransfers = append(msg.FwdTransfers, out)
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction.
func (msg *MsgScTx) SerializeSize() int {
	n := 4 + transparentSize(msg.Transparent)
	n += wire.VarIntSerializeSize(uint64(len(msg.ScCreations)))
	for _, out := range msg.ScCreations {
		n += out.serializeSize()
	}
	n += wire.VarIntSerializeSize(uint64(len(msg.FwdTransfers)))
	n += len(msg.FwdTransfers) * fwdTransferSize
	return n
}

// Serialize encodes the transaction to w using the canonical encoding.
func (msg *MsgScTx) Serialize(w io.Writer) error {
	if err := writeUint32(w, uint32(msg.Version)); err != nil {
		return err
	}
	if err := writeTransparent(w, msg.Transparent); err != nil {
		return err
	}

	err := wire.WriteVarInt(w, pver, uint64(len(msg.ScCreations)))
	if err != nil {
		return err
	}
	for _, out := range msg.ScCreations {
		if err := writeUint32(w, out.WithdrawalEpochLength); err != nil {
			return err
		}
		if err := writeInt64(w, out.Value); err != nil {
			return err
		}
		if _, err := w.Write(out.Address[:]); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, pver, out.WCertVk); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, pver, out.CustomData); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, pver, out.Constant); err != nil {
			return err
		}
	}

	err = wire.WriteVarInt(w, pver, uint64(len(msg.FwdTransfers)))
	if err != nil {
		return err
	}
	for _, out := range msg.FwdTransfers {
		if _, err := w.Write(out.ScID[:]); err != nil {
			return err
		}
		if err := writeInt64(w, out.Value); err != nil {
			return err
		}
		if _, err := w.Write(out.Address[:]); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize decodes a transaction from r into the receiver.
func (msg *MsgScTx) Deserialize(r io.Reader) error {
	const op = "MsgScTx.Deserialize"

	version, err := readInt32(r)
	if err != nil {
		return err
	}
	if version <= 0 {
		return messageError(op, ErrUnknownVersion, "sidechain transaction "+
			"version must be positive")
	}
	msg.Version = version

	msg.Transparent, err = readTransparent(r)
	if err != nil {
		return err
	}

	count, err := readCount(r, MaxScOutputsPerTx, op, "creation outputs")
	if err != nil {
		return err
	}
	msg.ScCreations = nil
	if count > 0 {
		msg.ScCreations = make([]*ScCreationOutput, 0, count)
	}
	for i := uint64(0); i < count; i++ {
		var out ScCreationOutput
		out.WithdrawalEpochLength, err = readUint32(r)
		if err != nil {
			return err
		}
		out.Value, err = readInt64(r)
		if err != nil {
			return err
		}
		if _, err := io.ReadFull(r, out.Address[:]); err != nil {
			return err
		}
		out.WCertVk, err = readVarBytes(r, MaxVkSize, ErrVkTooLarge, op,
			"verification key")
		if err != nil {
			return err
		}
		out.CustomData, err = readVarBytes(r, MaxCustomDataSize, "", op,
			"custom data")
		if err != nil {
			return err
		}
		out.Constant, err = readVarBytes(r, MaxCustomDataSize, "", op,
			"constant")
		if err != nil {
			return err
		}
		msg.ScCreations = append(msg.ScCreations, &out)
	}

	count, err = readCount(r, MaxScOutputsPerTx, op, "forward transfers")
	if err != nil {
		return err
	}
	msg.FwdTransfers = nil
	if count > 0 {
		msg.FwdTransfers = make([]*FwdTransferOutput, 0, count)
	}
	for i := uint64(0); i < count; i++ {
		var out FwdTransferOutput
		if err := readHash(r, &out.ScID); err != nil {
			return err
		}
		out.Value, err = readInt64(r)
		if err != nil {
			return err
		}
		if _, err := io.ReadFull(r, out.Address[:]); err != nil {
			return err
		}
		msg.FwdTransfers = append(msg.FwdTransfers, &out)
	}
	return nil
}

// Bytes returns the canonical serialization of the transaction.
func (msg *MsgScTx) Bytes() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, msg.SerializeSize()))
	if err := msg.Serialize(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TxHash returns the identifier of the transaction.
func (msg *MsgScTx) TxHash() chainhash.Hash {
	b, err := msg.Bytes()
	if err != nil {
		// Serializing to a bytes buffer only fails when out of memory.
		panic(err)
	}
	return chainhash.HashH(b)
}

// TotalScValue returns the sum of the values of all sidechain creation and
// forward transfer outputs.
func (msg *MsgScTx) TotalScValue() int64 {
	var total int64
	for _, out := range msg.ScCreations {
		total += out.Value
	}
	for _, out := range msg.FwdTransfers {
		total += out.Value
	}
	return total
}

// SidechainID derives the identifier of the sidechain registered by the
// creation output at index of the transaction with the provided hash.
func SidechainID(txHash *chainhash.Hash, index uint32) chainhash.Hash {
	var b [chainhash.HashSize + 4]byte
	copy(b[:], txHash[:])
	byteOrder.PutUint32(b[chainhash.HashSize:], index)
	return chainhash.HashH(b[:])
}

// ScCreationIDs returns the identifiers of all sidechains registered by the
// transaction in output order.
func (msg *MsgScTx) ScCreationIDs() []chainhash.Hash {
	if len(msg.ScCreations) == 0 {
		return nil
	}
	txHash := msg.TxHash()
	ids := make([]chainhash.Hash, len(msg.ScCreations))
	for i := range msg.ScCreations {
		ids[i] = SidechainID(&txHash, uint32(i))
	}
	return ids
}
