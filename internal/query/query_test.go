// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package query

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/database/v3"
	_ "github.com/decred/dcrd/database/v3/ffldb"
	"github.com/decred/dcrd/wire"
	"github.com/decred/scledger/internal/indexers"
	"github.com/decred/scledger/internal/mempool"
	"github.com/decred/scledger/internal/sidechain"
	"github.com/decred/scledger/internal/verifier"
	"github.com/decred/scledger/scwire"
)

// queryHarness houses a query server over a database backed ledger and a
// pool.
type queryHarness struct {
	t      *testing.T
	ledger *sidechain.Ledger
	pool   *mempool.Pool
	server *Server
}

// newQueryHarness returns a harness whose coin index is always enabled and
// whose full history index is enabled when txIndex is set.
func newQueryHarness(t *testing.T, txIndex bool) *queryHarness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ffldb")
	db, err := database.Create("ffldb", dbPath, wire.SimNet)
	if err != nil {
		t.Fatalf("unable to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	coinIndex := indexers.NewCoinIndex(db)
	indexes := []indexers.Indexer{coinIndex}
	cfg := Config{CoinIndex: coinIndex, ChainParams: chaincfg.SimNetParams()}
	if txIndex {
		idx := indexers.NewTxIndex(db)
		indexes = append(indexes, idx)
		cfg.TxIndex = idx
	}
	manager := indexers.NewManager(db, indexes)
	ledger, err := sidechain.New(&sidechain.Config{
		DB:            db,
		MaturityDelay: 2,
		Verifier:      verifier.New(),
		IndexManager:  manager,
		StartHeight:   1,
	})
	if err != nil {
		t.Fatalf("unable to create ledger: %v", err)
	}
	if err := manager.Init(context.Background(), ledger); err != nil {
		t.Fatalf("unable to init index manager: %v", err)
	}

	pool := mempool.New(&mempool.Config{Chain: ledger})
	cfg.Ledger = ledger
	cfg.Pool = pool
	return &queryHarness{
		t:      t,
		ledger: ledger,
		pool:   pool,
		server: New(&cfg),
	}
}

// mine connects a block holding every pooled object.
func (h *queryHarness) mine() int64 {
	h.t.Helper()

	block := h.nextBlock()
	if err := h.ledger.ConnectBlock(block); err != nil {
		h.t.Fatalf("unable to connect block: %v", err)
	}
	h.pool.HandleConnectedBlock(block)
	return int64(block.Header.Height)
}

// nextBlock returns a block extending the ledger tip holding every pooled
// object.
func (h *queryHarness) nextBlock() *scwire.MsgBlock {
	txs, certs := h.pool.MiningObjects()
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

// submitCreation adds a transaction creating a sidechain with an epoch length
// of two blocks to the pool.
func (h *queryHarness) submitCreation(value int64) (*scwire.MsgScTx, chainhash.Hash) {
	h.t.Helper()

	tx := scwire.NewMsgScTx()
	tx.AddScCreation(&scwire.ScCreationOutput{
		WithdrawalEpochLength: 2,
		Value:                 value,
		WCertVk:               verifier.GenerateParams("query"),
		Constant:              verifier.GenerateConstant(),
	})
	if _, err := h.pool.MaybeAcceptTransaction(tx); err != nil {
		h.t.Fatalf("unable to accept creation: %v", err)
	}
	txHash := tx.TxHash()
	return tx, scwire.SidechainID(&txHash, 0)
}

// submitCert adds a certificate with a valid proof to the pool.
func (h *queryHarness) submitCert(id chainhash.Hash, epoch int32, quality, bt int64) *scwire.MsgCert {
	h.t.Helper()

	sc, err := h.ledger.FetchSidechain(&id)
	if err != nil {
		h.t.Fatalf("unable to fetch sidechain: %v", err)
	}
	cert := scwire.NewMsgCert(&id, epoch, quality)
	cert.EndEpochCumCommitment, err = h.ledger.CommitmentHashForEpoch(&id, epoch)
	if err != nil {
		h.t.Fatalf("unable to fetch commitment: %v", err)
	}
	if bt > 0 {
		cert.AddBackwardTransfer(&scwire.BackwardTransferOutput{
			PubKeyHash: [20]byte{0x0a, 0x0b},
			Value:      bt,
		})
	}
	cert.Proof = verifier.CreateProof(sc.WCertVk,
		sidechain.ProofInputsFromCert(cert, sc.Constant))
	if _, err := h.pool.MaybeAcceptCertificate(cert); err != nil {
		h.t.Fatalf("unable to accept certificate: %v", err)
	}
	return cert
}

// TestGetScInfo ensures sidechain info reflects pending and confirmed state
// and that immature amounts mature exactly at their maturity height.
func TestGetScInfo(t *testing.T) {
	h := newQueryHarness(t, false)
	h.mine()

	_, err := h.server.GetScInfo(&chainhash.Hash{0x01})
	if !errors.Is(err, sidechain.ErrUnknownSidechain) {
		t.Fatalf("unexpected error: got %v, want %v", err,
			sidechain.ErrUnknownSidechain)
	}

	creation, id := h.submitCreation(5e7)
	info, err := h.server.GetScInfo(&id)
	if err != nil {
		t.Fatalf("GetScInfo: unexpected error: %v", err)
	}
	if info.UnconfCreatingTxHash != creation.TxHash().String() ||
		info.CreatingTxHash != "" || info.UnconfAmount != 0.5 {

		t.Fatalf("unexpected unconfirmed info: %v", spew.Sdump(info))
	}
	if got := h.server.ListScInfo(false); len(got) != 0 {
		t.Fatalf("unexpected confirmed sidechains: %v", spew.Sdump(got))
	}
	if got := h.server.ListScInfo(true); len(got) != 1 {
		t.Fatalf("unexpected sidechains: %v", spew.Sdump(got))
	}

	creationHeight := h.mine()
	info, err = h.server.GetScInfo(&id)
	if err != nil {
		t.Fatalf("GetScInfo: unexpected error: %v", err)
	}
	wantImmature := []ImmatureAmountResult{{
		MaturityHeight: creationHeight + 2,
		Amount:         0.5,
	}}
	if info.CreatingTxHash != creation.TxHash().String() ||
		info.UnconfCreatingTxHash != "" || info.Balance != 0 ||
		!reflect.DeepEqual(info.ImmatureAmounts, wantImmature) {

		t.Fatalf("unexpected info at creation height: %v", spew.Sdump(info))
	}

	fwd := scwire.NewMsgScTx()
	fwd.AddFwdTransfer(&scwire.FwdTransferOutput{ScID: id, Value: 2e7})
	if _, err := h.pool.MaybeAcceptTransaction(fwd); err != nil {
		t.Fatalf("unable to accept forward transfer: %v", err)
	}
	h.mine()
	info, err = h.server.GetScInfo(&id)
	if err != nil {
		t.Fatalf("GetScInfo: unexpected error: %v", err)
	}
	wantImmature = []ImmatureAmountResult{{
		MaturityHeight: creationHeight + 2,
		Amount:         0.5,
	}, {
		MaturityHeight: creationHeight + 3,
		Amount:         0.2,
	}}
	if !reflect.DeepEqual(info.ImmatureAmounts, wantImmature) {
		t.Fatalf("unexpected immature amounts: %v",
			spew.Sdump(info.ImmatureAmounts))
	}

	h.mine()
	info, err = h.server.GetScInfo(&id)
	if err != nil {
		t.Fatalf("GetScInfo: unexpected error: %v", err)
	}
	if info.Balance != 0.5 || len(info.ImmatureAmounts) != 1 {
		t.Fatalf("unexpected info at maturity height: %v", spew.Sdump(info))
	}
	if info.Epoch != 1 || info.EndEpochHeight != creationHeight+3 {
		t.Fatalf("unexpected epoch %d ending at %d", info.Epoch,
			info.EndEpochHeight)
	}
}

// TestViewLock ensures queries wait while a block is applied to the ledger
// and the pool so they never count a mined forward transfer both as
// immature and as unconfirmed.
func TestViewLock(t *testing.T) {
	h := newQueryHarness(t, false)
	_, id := h.submitCreation(5e7)
	h.mine()

	var stateLock sync.RWMutex
	server := New(&Config{
		Ledger:      h.ledger,
		Pool:        h.pool,
		ChainParams: chaincfg.SimNetParams(),
		ViewLock:    stateLock.RLocker(),
	})

	fwd := scwire.NewMsgScTx()
	fwd.AddFwdTransfer(&scwire.FwdTransferOutput{ScID: id, Value: 3e7})
	if _, err := h.pool.MaybeAcceptTransaction(fwd); err != nil {
		t.Fatalf("unable to accept forward transfer: %v", err)
	}
	block := h.nextBlock()

	stateLock.Lock()
	if err := h.ledger.ConnectBlock(block); err != nil {
		stateLock.Unlock()
		t.Fatalf("unable to connect block: %v", err)
	}

	type result struct {
		info *ScInfoResult
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := server.GetScInfo(&id)
		done <- result{info, err}
	}()
	select {
	case <-done:
		stateLock.Unlock()
		t.Fatal("query returned while a block was being applied")
	case <-time.After(50 * time.Millisecond):
	}

	h.pool.HandleConnectedBlock(block)
	stateLock.Unlock()

	res := <-done
	if res.err != nil {
		t.Fatalf("GetScInfo: unexpected error: %v", res.err)
	}
	var immature float64
	for _, entry := range res.info.ImmatureAmounts {
		immature += entry.Amount
	}
	held := immature + res.info.Balance
	if res.info.UnconfAmount != 0 || math.Abs(held-0.8) > 1e-9 {
		t.Fatalf("inconsistent sidechain info: %v", spew.Sdump(res.info))
	}

	// Without a view lock queries run unguarded.
	if _, err := New(&Config{Ledger: h.ledger, Pool: h.pool}).GetScInfo(&id); err != nil {
		t.Fatalf("GetScInfo: unexpected error: %v", err)
	}
}

// TestRawObjects ensures raw objects are identical whether served from the
// pool or an index and that confirmed objects without main chain outputs
// are only available with the full history index.
func TestRawObjects(t *testing.T) {
	for _, txIndex := range []bool{false, true} {
		h := newQueryHarness(t, txIndex)
		h.mine()

		creation, id := h.submitCreation(1e8)
		creationHash := creation.TxHash()
		pooled, err := h.server.GetRawTransaction(&creationHash, true)
		if err != nil {
			t.Fatalf("txindex=%v: GetRawTransaction: %v", txIndex, err)
		}
		if pooled.Status.Kind != StatusUnconfirmed {
			t.Fatalf("txindex=%v: unexpected status %v", txIndex,
				pooled.Status.Kind)
		}
		if len(pooled.Decoded.ScCreations) != 1 ||
			pooled.Decoded.ScCreations[0].ScID != id.String() {

			t.Fatalf("txindex=%v: unexpected decoded creation %v", txIndex,
				spew.Sdump(pooled.Decoded))
		}
		_, err = h.server.GetRawCertificate(&creationHash, false)
		if !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("txindex=%v: unexpected error: got %v, want %v",
				txIndex, err, ErrInvalidParameter)
		}

		creationHeight := h.mine()
		confirmed, err := h.server.GetRawTransaction(&creationHash, true)
		switch {
		case txIndex && err != nil:
			t.Fatalf("txindex=%v: GetRawTransaction: %v", txIndex, err)

		case txIndex:
			if confirmed.Hex != pooled.Hex ||
				!reflect.DeepEqual(confirmed.Decoded, pooled.Decoded) {

				t.Fatalf("txindex=%v: confirmed transaction differs from "+
					"pooled transaction", txIndex)
			}
			if confirmed.Status.Kind != StatusConfirmed ||
				confirmed.Status.Height != creationHeight ||
				confirmed.Status.Confirmations != 1 {

				t.Fatalf("txindex=%v: unexpected status %v", txIndex,
					spew.Sdump(confirmed.Status))
			}

		case !errors.Is(err, ErrNotFound):
			t.Fatalf("txindex=%v: unexpected error: got %v, want %v",
				txIndex, err, ErrNotFound)
		}

		// Certificates paying backward transfers are reachable through the
		// coin index regardless of the full history index.
		h.mine()
		h.mine()
		cert := h.submitCert(id, 0, 1, 1e7)
		certHash := cert.CertHash()
		pooledCert, err := h.server.GetRawCertificate(&certHash, true)
		if err != nil {
			t.Fatalf("txindex=%v: GetRawCertificate: %v", txIndex, err)
		}
		h.mine()
		confirmedCert, err := h.server.GetRawCertificate(&certHash, true)
		if err != nil {
			t.Fatalf("txindex=%v: GetRawCertificate: %v", txIndex, err)
		}
		generic, err := h.server.GetRawTransaction(&certHash, true)
		if err != nil {
			t.Fatalf("txindex=%v: GetRawTransaction: %v", txIndex, err)
		}
		if confirmedCert.Hex != pooledCert.Hex ||
			!reflect.DeepEqual(confirmedCert.Decoded, pooledCert.Decoded) ||
			!reflect.DeepEqual(generic, confirmedCert) {

			t.Fatalf("txindex=%v: certificate results differ: %v", txIndex,
				spew.Sdump(pooledCert, confirmedCert, generic))
		}
		if confirmedCert.Decoded.Cert.ScID != id.String() ||
			len(confirmedCert.Decoded.BackwardTransfers) != 1 {

			t.Fatalf("txindex=%v: unexpected decoded certificate %v",
				txIndex, spew.Sdump(confirmedCert.Decoded))
		}

		// Decoding the raw bytes yields the same content through either
		// accessor.
		decoded, err := h.server.DecodeRawTransaction(confirmedCert.Hex)
		if err != nil {
			t.Fatalf("txindex=%v: DecodeRawTransaction: %v", txIndex, err)
		}
		decodedCert, err := h.server.DecodeRawCertificate(confirmedCert.Hex)
		if err != nil {
			t.Fatalf("txindex=%v: DecodeRawCertificate: %v", txIndex, err)
		}
		if !reflect.DeepEqual(decoded, decodedCert) ||
			!reflect.DeepEqual(decoded, confirmedCert.Decoded) {

			t.Fatalf("txindex=%v: decoded certificates differ", txIndex)
		}
		_, err = h.server.DecodeRawCertificate(pooled.Hex)
		if !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("txindex=%v: unexpected error: got %v, want %v",
				txIndex, err, ErrInvalidParameter)
		}
	}
}

// TestObjectStatus ensures unknown objects report a not found status.
func TestObjectStatus(t *testing.T) {
	h := newQueryHarness(t, false)

	unknown := chainhash.Hash{0xee}
	status, err := h.server.ObjectStatus(&unknown)
	if err != nil {
		t.Fatalf("ObjectStatus: unexpected error: %v", err)
	}
	if status.Kind != StatusNotFound {
		t.Fatalf("unexpected status %v", status.Kind)
	}
	_, err = h.server.GetRawTransaction(&unknown, false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrNotFound)
	}
}

// TestDecodeErrors ensures malformed raw objects are rejected.
func TestDecodeErrors(t *testing.T) {
	h := newQueryHarness(t, false)

	tests := []struct {
		name string
		hex  string
	}{
		{name: "not hex", hex: "zz"},
		{name: "too short", hex: "01"},
		{name: "truncated transaction", hex: "0100000000"},
	}
	for _, test := range tests {
		_, err := h.server.DecodeRawTransaction(test.hex)
		if !errors.Is(err, ErrDecode) {
			t.Errorf("%s: unexpected error: got %v, want %v", test.name, err,
				ErrDecode)
		}
	}
}

// TestGetEpochData ensures the epoch a certificate may target follows the
// chain and the confirmed certificates.
func TestGetEpochData(t *testing.T) {
	h := newQueryHarness(t, false)
	_, id := h.submitCreation(1e8)
	creationHeight := h.mine()

	_, err := h.server.GetEpochData(&id)
	if !errors.Is(err, sidechain.ErrOutOfRange) {
		t.Fatalf("unexpected error: got %v, want %v", err,
			sidechain.ErrOutOfRange)
	}

	h.mine()
	data, err := h.server.GetEpochData(&id)
	if err != nil {
		t.Fatalf("GetEpochData: unexpected error: %v", err)
	}
	commitment, err := h.ledger.CommitmentHashForEpoch(&id, 0)
	if err != nil {
		t.Fatalf("CommitmentHashForEpoch: unexpected error: %v", err)
	}
	want := &EpochDataResult{
		ScID:                  id.String(),
		Epoch:                 0,
		EndEpochHeight:        creationHeight + 1,
		EndEpochCumCommitment: commitment.String(),
	}
	if !reflect.DeepEqual(data, want) {
		t.Fatalf("mismatched epoch data: got %v, want %v", spew.Sdump(data),
			spew.Sdump(want))
	}

	// A certified epoch is final, so nothing qualifies until the next epoch
	// ends.
	h.submitCert(id, 0, 3, 0)
	h.mine()
	_, err = h.server.GetEpochData(&id)
	if !errors.Is(err, sidechain.ErrOutOfRange) {
		t.Fatalf("unexpected error: got %v, want %v", err,
			sidechain.ErrOutOfRange)
	}

	h.mine()
	data, err = h.server.GetEpochData(&id)
	if err != nil {
		t.Fatalf("GetEpochData: unexpected error: %v", err)
	}
	commitment, err = h.ledger.CommitmentHashForEpoch(&id, 1)
	if err != nil {
		t.Fatalf("CommitmentHashForEpoch: unexpected error: %v", err)
	}
	want = &EpochDataResult{
		ScID:                  id.String(),
		Epoch:                 1,
		EndEpochHeight:        creationHeight + 3,
		EndEpochCumCommitment: commitment.String(),
	}
	if !reflect.DeepEqual(data, want) {
		t.Fatalf("mismatched epoch data: got %v, want %v", spew.Sdump(data),
			spew.Sdump(want))
	}
}
