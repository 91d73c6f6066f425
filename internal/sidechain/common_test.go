// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/database/v3"
	_ "github.com/decred/dcrd/database/v3/ffldb"
	"github.com/decred/dcrd/wire"
	"github.com/decred/scledger/scwire"
)

// validProof is the only proof the test verifier accepts.
var validProof = []byte("valid proof")

// testVerifier accepts validProof and counts the verifications it performs.
type testVerifier struct {
	calls atomic.Int64
}

func (v *testVerifier) VerifyProof(vk []byte, inputs *ProofInputs, proof []byte) bool {
	v.calls.Add(1)
	return len(vk) > 0 && bytes.Equal(proof, validProof)
}

// testHarness drives a ledger with blocks built on top of its tip.
type testHarness struct {
	t        *testing.T
	ledger   *Ledger
	verifier *testVerifier
	db       database.DB
	ntfns    []*Notification
	nonce    uint32
	delay    int64
}

// newTestHarness returns a harness over a new ledger with the provided
// maturity delay.  The ledger is backed by a temporary ffldb database when
// withDB is set.
func newTestHarness(t *testing.T, maturityDelay int64, withDB bool) *testHarness {
	t.Helper()

	h := &testHarness{t: t, verifier: new(testVerifier), delay: maturityDelay}
	if withDB {
		dbPath := filepath.Join(t.TempDir(), "ffldb")
		db, err := database.Create("ffldb", dbPath, wire.SimNet)
		if err != nil {
			t.Fatalf("unable to create database: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		h.db = db
	}
	h.ledger = h.newLedger()
	return h
}

// newLedger creates a ledger over the harness database.
func (h *testHarness) newLedger() *Ledger {
	h.t.Helper()

	ledger, err := New(&Config{
		DB:            h.db,
		MaturityDelay: h.delay,
		Verifier:      h.verifier,
		StartHeight:   1,
		Notifications: func(n *Notification) {
			h.ntfns = append(h.ntfns, n)
		},
	})
	if err != nil {
		h.t.Fatalf("unable to create ledger: %v", err)
	}
	return ledger
}

// nextBlock returns a block extending the current tip of the ledger with the
// provided objects.
func (h *testHarness) nextBlock(txs []*scwire.MsgScTx, certs []*scwire.MsgCert) *scwire.MsgBlock {
	best := h.ledger.BestSnapshot()
	block := &scwire.MsgBlock{
		Header: scwire.BlockHeader{
			Version:   1,
			PrevBlock: best.Hash,
			Height:    uint32(best.Height + 1),
			Timestamp: time.Unix(1700000000+best.Height*150, 0),
		},
		Transactions: txs,
		Certificates: certs,
	}
	block.Header.ScCommitment = block.CalcScCommitment()
	return block
}

// connect connects a block with the provided objects and fails the test on
// error.
func (h *testHarness) connect(txs []*scwire.MsgScTx, certs []*scwire.MsgCert) *scwire.MsgBlock {
	h.t.Helper()

	block := h.nextBlock(txs, certs)
	if err := h.ledger.ConnectBlock(block); err != nil {
		h.t.Fatalf("unable to connect block at height %d: %v",
			block.Header.Height, err)
	}
	return block
}

// connectEmpty connects n empty blocks.
func (h *testHarness) connectEmpty(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.connect(nil, nil)
	}
}

// disconnect disconnects the tip and fails the test on error.
func (h *testHarness) disconnect() *scwire.MsgBlock {
	h.t.Helper()

	block, err := h.ledger.DisconnectTip()
	if err != nil {
		h.t.Fatalf("unable to disconnect tip: %v", err)
	}
	return block
}

// creationTx returns a transaction creating one sidechain with the provided
// value and epoch length along with the id of the sidechain.
func (h *testHarness) creationTx(value int64, epochLength uint32) (*scwire.MsgScTx, chainhash.Hash) {
	h.nonce++
	var vk [32]byte
	binary.LittleEndian.PutUint32(vk[:], h.nonce)
	tx := scwire.NewMsgScTx()
	tx.AddScCreation(&scwire.ScCreationOutput{
		WithdrawalEpochLength: epochLength,
		Value:                 value,
		WCertVk:               vk[:],
		Constant:              []byte{0x01},
	})
	txHash := tx.TxHash()
	return tx, scwire.SidechainID(&txHash, 0)
}

// fwdTx returns a transaction forwarding each of the values to the sidechain.
func (h *testHarness) fwdTx(id chainhash.Hash, values ...int64) *scwire.MsgScTx {
	h.nonce++
	tx := scwire.NewMsgScTx()
	tx.Transparent.LockTime = h.nonce
	for _, value := range values {
		tx.AddFwdTransfer(&scwire.FwdTransferOutput{ScID: id, Value: value})
	}
	return tx
}

// cert returns a certificate for the epoch of the sidechain claiming the
// commitment derived from the ledger and carrying a valid proof.  Each value
// becomes a backward transfer.
func (h *testHarness) cert(id chainhash.Hash, epoch int32, quality int64, values ...int64) *scwire.MsgCert {
	h.t.Helper()

	cert := scwire.NewMsgCert(&id, epoch, quality)
	commitment, err := h.ledger.CommitmentHashForEpoch(&id, epoch)
	if err != nil {
		h.t.Fatalf("unable to fetch commitment for epoch %d: %v", epoch, err)
	}
	cert.EndEpochCumCommitment = commitment
	cert.Proof = validProof
	for i, value := range values {
		cert.AddBackwardTransfer(&scwire.BackwardTransferOutput{
			PubKeyHash: [20]byte{byte(i)},
			Value:      value,
		})
	}
	return cert
}

// fetch returns the record of the sidechain and fails the test when it is not
// registered.
func (h *testHarness) fetch(id chainhash.Hash) *Sidechain {
	h.t.Helper()

	sc, err := h.ledger.FetchSidechain(&id)
	if err != nil {
		h.t.Fatalf("unable to fetch sidechain %v: %v", id, err)
	}
	return sc
}

// registryState returns the serialized form of every registered sidechain in
// registry order.
func (h *testHarness) registryState() [][]byte {
	var state [][]byte
	for _, sc := range h.ledger.Sidechains() {
		state = append(state, serializeSidechain(sc))
	}
	return state
}
