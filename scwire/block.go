// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scwire

import (
	"bytes"
	"io"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
	"lukechampine.com/blake3"
)

// blockHeaderLen is the serialized size of a block header.
const blockHeaderLen = 4 + chainhash.HashSize*2 + 4 + 8

// BlockHeader describes a main chain block from the point of view of the
// sidechain ledger.
type BlockHeader struct {
	Version      int32
	PrevBlock    chainhash.Hash
	ScCommitment chainhash.Hash
	Height       uint32
	Timestamp    time.Time
}

// Serialize encodes the header to w.
func (h *BlockHeader) Serialize(w io.Writer) error {
	if err := writeUint32(w, uint32(h.Version)); err != nil {
		return err
	}
	if _, err := w.Write(h.PrevBlock[:]); err != nil {
		return err
	}
	if _, err := w.Write(h.ScCommitment[:]); err != nil {
		return err
	}
	if err := writeUint32(w, h.Height); err != nil {
		return err
	}
	return writeInt64(w, h.Timestamp.Unix())
}

// Deserialize decodes a header from r into the receiver.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	var err error
	h.Version, err = readInt32(r)
	if err != nil {
		return err
	}
	if err := readHash(r, &h.PrevBlock); err != nil {
		return err
	}
	if err := readHash(r, &h.ScCommitment); err != nil {
		return err
	}
	h.Height, err = readUint32(r)
	if err != nil {
		return err
	}
	sec, err := readInt64(r)
	if err != nil {
		return err
	}
	h.Timestamp = time.Unix(sec, 0)
	return nil
}

// BlockHash returns the hash of the header.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	buf := bytes.NewBuffer(make([]byte, 0, blockHeaderLen))
	if err := h.Serialize(buf); err != nil {
		panic(err)
	}
	return chainhash.HashH(buf.Bytes())
}

// MsgBlock is a block carrying sidechain transactions and certificates.
type MsgBlock struct {
	Header       BlockHeader
	Transactions []*MsgScTx
	Certificates []*MsgCert
}

// BlockHash returns the hash of the block header.
func (msg *MsgBlock) BlockHash() chainhash.Hash {
	return msg.Header.BlockHash()
}

// AddTransaction adds a sidechain transaction to the block.
func (msg *MsgBlock) AddTransaction(tx *MsgScTx) {
	msg.Transactions = append(msg.Transactions, tx)
}

// AddCertificate adds a certificate to the block.
func (msg *MsgBlock) AddCertificate(cert *MsgCert) {
	msg.Certificates = append(msg.Certificates, cert)
}

// CalcScCommitment returns the commitment to every sidechain object of the
// block.  It is the BLAKE3 hash of the transaction hashes followed by the
// certificate hashes in block order.
func (msg *MsgBlock) CalcScCommitment() chainhash.Hash {
	h := blake3.New(chainhash.HashSize, nil)
	for _, tx := range msg.Transactions {
		txHash := tx.TxHash()
		h.Write(txHash[:])
	}
	for _, cert := range msg.Certificates {
		certHash := cert.CertHash()
		h.Write(certHash[:])
	}
	var commitment chainhash.Hash
	copy(commitment[:], h.Sum(nil))
	return commitment
}

// SerializeSize returns the number of bytes it would take to serialize the
// block.
func (msg *MsgBlock) SerializeSize() int {
	n := blockHeaderLen
	n += wire.VarIntSerializeSize(uint64(len(msg.Transactions)))
	for _, tx := range msg.Transactions {
		n += tx.SerializeSize()
	}
	n += wire.VarIntSerializeSize(uint64(len(msg.Certificates)))
	for _, cert := range msg.Certificates {
		n += cert.SerializeSize()
	}
	return n
}

// Serialize encodes the block to w.
func (msg *MsgBlock) Serialize(w io.Writer) error {
	if err := msg.Header.Serialize(w); err != nil {
		return err
	}
	err := wire.WriteVarInt(w, pver, uint64(len(msg.Transactions)))
	if err != nil {
		return err
	}
	for _, tx := range msg.Transactions {
		if err := tx.Serialize(w); err != nil {
			return err
		}
	}
	err = wire.WriteVarInt(w, pver, uint64(len(msg.Certificates)))
	if err != nil {
		return err
	}
	for _, cert := range msg.Certificates {
		if err := cert.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize decodes a block from r into the receiver.
func (msg *MsgBlock) Deserialize(r io.Reader) error {
	const op = "MsgBlock.Deserialize"

	if err := msg.Header.Deserialize(r); err != nil {
		return err
	}

	count, err := readCount(r, MaxObjectsPerBlock, op, "transactions")
	if err != nil {
		return err
	}
	msg.Transactions = make([]*MsgScTx, 0, count)
	for i := uint64(0); i < count; i++ {
		var tx MsgScTx
		if err := tx.Deserialize(r); err != nil {
			return err
		}
		msg.Transactions = append(msg.Transactions, &tx)
	}

	count, err = readCount(r, MaxObjectsPerBlock, op, "certificates")
	if err != nil {
		return err
	}
	msg.Certificates = make([]*MsgCert, 0, count)
	for i := uint64(0); i < count; i++ {
		var cert MsgCert
		if err := cert.Deserialize(r); err != nil {
			return err
		}
		msg.Certificates = append(msg.Certificates, &cert)
	}
	return nil
}

// Bytes returns the serialized block.
func (msg *MsgBlock) Bytes() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, msg.SerializeSize()))
	if err := msg.Serialize(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes decodes a block from b.  It is an error for b to hold more bytes
// than the block consumes.
func (msg *MsgBlock) FromBytes(b []byte) error {
	r := bytes.NewReader(b)
	if err := msg.Deserialize(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return messageError("MsgBlock.FromBytes", ErrTrailingBytes,
			"trailing bytes after block")
	}
	return nil
}
