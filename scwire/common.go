// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
)

const (
	// pver is the protocol version passed to the variable length helpers of
	// the wire package.  The sidechain encodings do not vary by protocol
	// version.
	pver = wire.ProtocolVersion

	// MaxScOutputsPerTx is the maximum number of sidechain creation or
	// forward transfer outputs a single sidechain transaction may carry.
	MaxScOutputsPerTx = 1000

	// MaxBackwardTransfers is the maximum number of backward transfer
	// outputs a single certificate may carry.
	MaxBackwardTransfers = 4000

	// MaxProofSize is the maximum size of a certificate proof.
	MaxProofSize = 9 * 1024

	// MaxVkSize is the maximum size of a sidechain verification key.
	MaxVkSize = 9 * 1024

	// MaxCustomDataSize is the maximum size of the custom data and the
	// constant carried by a sidechain creation output.
	MaxCustomDataSize = 1024

	// MaxObjectsPerBlock is the maximum number of transactions or
	// certificates a single block may carry.
	MaxObjectsPerBlock = 50000
)

// byteOrder is the byte order used for all fixed size integers.
var byteOrder = binary.LittleEndian

// readUint32 reads a little endian uint32 from r.
func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b[:]), nil
}

// readInt32 reads a little endian int32 from r.
func readInt32(r io.Reader) (int32, error) {
	v, err := readUint32(r)
	return int32(v), err
}

// readInt64 reads a little endian int64 from r.
func readInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(byteOrder.Uint64(b[:])), nil
}

// writeUint32 writes v to w as a little endian uint32.
func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	byteOrder.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// writeInt64 writes v to w as a little endian int64.
func writeInt64(w io.Writer, v int64) error {
	var b [8]byte
	byteOrder.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

// readHash reads a hash from r.
func readHash(r io.Reader, hash *chainhash.Hash) error {
	_, err := io.ReadFull(r, hash[:])
	return err
}

// readCount reads a variable length count from r and ensures it does not
// exceed the provided maximum.
func readCount(r io.Reader, max uint64, fn, field string) (uint64, error) {
	count, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return 0, err
	}
	if count > max {
		str := fmt.Sprintf("too many %s [count %d, max %d]", field, count,
			max)
		kind := ErrTooManyOutputs
		if field == "transactions" || field == "certificates" {
			kind = ErrTooManyObjects
		}
		return 0, messageError(fn, kind, str)
	}
	return count, nil
}

// readVarBytes reads variable length bytes from r and maps oversized fields to
// the provided error kind.
func readVarBytes(r io.Reader, max uint32, kind ErrorKind, fn, field string) ([]byte, error) {
	b, err := wire.ReadVarBytes(r, pver, max, field)
	if err != nil {
		if kind != "" && errors.Is(err, wire.ErrVarBytesTooLong) {
			str := fmt.Sprintf("%s exceeds max length %d", field, max)
			return nil, messageError(fn, kind, str)
		}
		return nil, err
	}
	return b, nil
}

// readTransparent reads the transparent part of an object.
func readTransparent(r io.Reader) (*wire.MsgTx, error) {
	tx := new(wire.MsgTx)
	if err := tx.Deserialize(r); err != nil {
		return nil, err
	}
	return tx, nil
}

// writeTransparent writes the transparent part of an object.  A nil
// transaction is written as an empty one.
func writeTransparent(w io.Writer, tx *wire.MsgTx) error {
	if tx == nil {
		tx = wire.NewMsgTx()
	}
	return tx.Serialize(w)
}

// transparentSize returns the serialized size of the transparent part of an
// object.
func transparentSize(tx *wire.MsgTx) int {
	if tx == nil {
		tx = wire.NewMsgTx()
	}
	return tx.SerializeSize()
}

// varBytesSize returns the number of bytes it takes to serialize b as variable
// length bytes.
func varBytesSize(b []byte) int {
	return wire.VarIntSerializeSize(uint64(len(b))) + len(b)
}
