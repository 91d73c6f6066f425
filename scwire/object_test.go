// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scwire

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
)

// hexToHash converts the passed hex string into a hash and panics on failure.
func hexToHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}

// testScTx returns a sidechain transaction with one transparent input, one
// change output, two creations and one forward transfer.
func testScTx() *MsgScTx {
	prevHash := hexToHash("4e0bd5a9c5fb3ba5d1fc8e5f9da8e9a9c3b11e2be0fbd8c8a6b4f3d7e2a19c11")
	tx := NewMsgScTx()
	prevOut := wire.NewOutPoint(&prevHash, 1, wire.TxTreeRegular)
	tx.Transparent.AddTxIn(wire.NewTxIn(prevOut, 1e8, []byte{0x51}))
	tx.Transparent.AddTxOut(wire.NewTxOut(2e7, []byte{0x76, 0xa9}))
	tx.AddScCreation(&ScCreationOutput{
		WithdrawalEpochLength: 5,
		Value:                 5e7,
		Address:               [32]byte{0x01},
		WCertVk:               bytes.Repeat([]byte{0xaa}, 32),
		CustomData:            []byte("custom"),
		Constant:              bytes.Repeat([]byte{0xbb}, 32),
	})
	tx.AddScCreation(&ScCreationOutput{
		WithdrawalEpochLength: 10,
		Value:                 1e7,
		WCertVk:               []byte{0x01, 0x02},
	})
	tx.AddFwdTransfer(&FwdTransferOutput{
		ScID:    hexToHash("00000000000000000000000000000000000000000000000000000000000000ff"),
		Value:   1e7,
		Address: [32]byte{0x02},
	})
	return tx
}

// testCert returns a certificate with a fee input, a change output and two
// backward transfers.
func testCert() *MsgCert {
	scID := hexToHash("00000000000000000000000000000000000000000000000000000000000000ff")
	cert := NewMsgCert(&scID, 3, 7)
	cert.EndEpochCumCommitment = hexToHash("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	cert.Proof = bytes.Repeat([]byte{0xcc}, 32)
	cert.FtScFee = 10
	cert.MbtrScFee = 20
	prevHash := hexToHash("a1")
	prevOut := wire.NewOutPoint(&prevHash, 0, wire.TxTreeRegular)
	cert.Transparent.AddTxIn(wire.NewTxIn(prevOut, 1000, nil))
	cert.Transparent.AddTxOut(wire.NewTxOut(900, []byte{0x51}))
	cert.AddBackwardTransfer(&BackwardTransferOutput{PubKeyHash: [20]byte{1}, Value: 3e6})
	cert.AddBackwardTransfer(&BackwardTransferOutput{PubKeyHash: [20]byte{2}, Value: 4e6})
	return cert
}

// TestObjectRoundTrip ensures decoding then re-encoding every kind of object
// yields the original bytes and that the generic decoder picks the right kind.
func TestObjectRoundTrip(t *testing.T) {
	t.Parallel()

	emptyCert := NewMsgCert(&chainhash.Hash{}, 0, 0)
	tests := []struct {
		name string
		obj  *Object
	}{
		{"full transaction", TxObject(testScTx())},
		{"empty transaction", TxObject(NewMsgScTx())},
		{"full certificate", CertObject(testCert())},
		{"attestation certificate", CertObject(emptyCert)},
	}

	for _, test := range tests {
		b, err := test.obj.Bytes()
		if err != nil {
			t.Errorf("%s: unexpected serialize error: %v", test.name, err)
			continue
		}

		var size int
		if test.obj.Kind == ObjCertificate {
			size = test.obj.Cert.SerializeSize()
		} else {
			size = test.obj.Tx.SerializeSize()
		}
		if size != len(b) {
			t.Errorf("%s: mismatched size -- got %d, want %d", test.name,
				size, len(b))
			continue
		}

		decoded, err := DecodeObject(b)
		if err != nil {
			t.Errorf("%s: unexpected decode error: %v", test.name, err)
			continue
		}
		if decoded.Kind != test.obj.Kind {
			t.Errorf("%s: wrong kind -- got %v, want %v", test.name,
				decoded.Kind, test.obj.Kind)
			continue
		}
		got, err := decoded.Bytes()
		if err != nil {
			t.Errorf("%s: unexpected re-serialize error: %v", test.name, err)
			continue
		}
		if !bytes.Equal(got, b) {
			t.Errorf("%s: round trip mismatch\ngot: %x\nwant: %x", test.name,
				got, b)
			continue
		}
		if decoded.Hash() != test.obj.Hash() {
			t.Errorf("%s: hash mismatch -- got %v, want %v", test.name,
				decoded.Hash(), test.obj.Hash())
		}
	}
}

// TestDecodeObjectErrors ensures malformed encodings are rejected with the
// expected error kinds.
func TestDecodeObjectErrors(t *testing.T) {
	t.Parallel()

	certBytes, err := testCert().Bytes()
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}
	badVersion := append([]byte(nil), certBytes...)
	byteOrder.PutUint32(badVersion, uint32(0))

	bigProof := testCert()
	bigProof.Proof = make([]byte, MaxProofSize+1)
	bigProofBytes, err := bigProof.Bytes()
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}

	tests := []struct {
		name string
		b    []byte
		want error
	}{
		{"short", []byte{0x01}, ErrUnknownVersion},
		{"zero version", badVersion, ErrUnknownVersion},
		{"trailing bytes", append(append([]byte(nil), certBytes...), 0x00), ErrTrailingBytes},
		{"oversized proof", bigProofBytes, ErrProofTooLarge},
	}

	for _, test := range tests {
		_, err := DecodeObject(test.b)
		if !errors.Is(err, test.want) {
			t.Errorf("%s: mismatched error -- got %v, want %v", test.name,
				err, test.want)
		}
	}
}

// TestSidechainID ensures sidechain identifiers are unique per creation
// output and deterministic.
func TestSidechainID(t *testing.T) {
	t.Parallel()

	tx := testScTx()
	ids := tx.ScCreationIDs()
	if len(ids) != 2 {
		t.Fatalf("unexpected number of ids: %d", len(ids))
	}
	if ids[0] == ids[1] {
		t.Fatalf("creation outputs share id %v", ids[0])
	}
	txHash := tx.TxHash()
	if got := SidechainID(&txHash, 1); got != ids[1] {
		t.Fatalf("mismatched id -- got %v, want %v", got, ids[1])
	}
	if NewMsgScTx().ScCreationIDs() != nil {
		t.Fatal("transaction without creations returned ids")
	}
}

// TestCertAmounts ensures the backward transfer total and transparent fee of
// certificates are computed as expected.
func TestCertAmounts(t *testing.T) {
	t.Parallel()

	cert := testCert()
	if got := cert.BackwardTransferTotal(); got != 7e6 {
		t.Errorf("unexpected backward transfer total %d", got)
	}
	if got := cert.Fee(); got != 100 {
		t.Errorf("unexpected fee %d", got)
	}
	if got := NewMsgCert(&chainhash.Hash{}, 0, 0).Fee(); got != 0 {
		t.Errorf("unexpected attestation fee %d", got)
	}
}

// TestBlockRoundTrip ensures blocks survive serialization and commit to their
// objects.
func TestBlockRoundTrip(t *testing.T) {
	t.Parallel()

	block := &MsgBlock{
		Header: BlockHeader{
			Version:   1,
			PrevBlock: hexToHash("ff"),
			Height:    220,
			Timestamp: time.Unix(1700000000, 0),
		},
	}
	block.AddTransaction(testScTx())
	block.AddCertificate(testCert())
	block.Header.ScCommitment = block.CalcScCommitment()

	b, err := block.Bytes()
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}
	if len(b) != block.SerializeSize() {
		t.Fatalf("mismatched size -- got %d, want %d", block.SerializeSize(),
			len(b))
	}

	var decoded MsgBlock
	if err := decoded.FromBytes(b); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if decoded.BlockHash() != block.BlockHash() {
		t.Fatalf("mismatched block hash -- got %v, want %v",
			decoded.BlockHash(), block.BlockHash())
	}
	if decoded.CalcScCommitment() != block.Header.ScCommitment {
		t.Fatalf("mismatched commitment")
	}
	if len(decoded.Certificates) != 1 ||
		decoded.Certificates[0].CertHash() != block.Certificates[0].CertHash() {
		t.Fatalf("mismatched certificates\ngot: %s\nwant: %s",
			spew.Sdump(decoded.Certificates), spew.Sdump(block.Certificates))
	}
	if decoded.Header.Timestamp.Unix() != block.Header.Timestamp.Unix() {
		t.Fatalf("mismatched timestamp")
	}

	empty := &MsgBlock{Header: block.Header}
	if empty.CalcScCommitment() == block.Header.ScCommitment {
		t.Fatal("empty block commits to the same objects")
	}
}
