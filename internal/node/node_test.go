// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/database/v3"
	_ "github.com/decred/dcrd/database/v3/ffldb"
	"github.com/decred/dcrd/wire"
	"github.com/decred/scledger/internal/metrics"
	"github.com/decred/scledger/internal/query"
	"github.com/decred/scledger/internal/sidechain"
	"github.com/decred/scledger/internal/verifier"
	"github.com/decred/scledger/scwire"
)

// testTime is the timestamp of the first generated block.
var testTime = time.Unix(1700000000, 0)

// newTestNode returns a database backed node with a maturity delay of two
// blocks.
func newTestNode(t *testing.T, txIndex bool) *Node {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ffldb")
	db, err := database.Create("ffldb", dbPath, wire.SimNet)
	if err != nil {
		t.Fatalf("unable to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	n, err := New(context.Background(), &Config{
		DB:            db,
		ChainParams:   chaincfg.SimNetParams(),
		MaturityDelay: 2,
		TxIndex:       txIndex,
		StartHeight:   1,
		Verifier:      verifier.New(),
		Metrics:       metrics.New(),
	})
	if err != nil {
		t.Fatalf("unable to create node: %v", err)
	}
	return n
}

// mine generates a block from the pool of the first node and processes it
// on every node.
func mine(t *testing.T, nodes ...*Node) *scwire.MsgBlock {
	t.Helper()

	best := nodes[0].Ledger().BestSnapshot()
	ts := testTime.Add(time.Duration(best.Height) * 150 * time.Second)
	block := nodes[0].GenerateBlock(ts)
	for _, n := range nodes {
		if err := n.ProcessBlock(block); err != nil {
			t.Fatalf("unable to process block: %v", err)
		}
	}
	return block
}

// creationTx returns a transaction creating a sidechain with an epoch length
// of two blocks.
func creationTx(value int64) (*scwire.MsgScTx, chainhash.Hash) {
	tx := scwire.NewMsgScTx()
	tx.AddScCreation(&scwire.ScCreationOutput{
		WithdrawalEpochLength: 2,
		Value:                 value,
		WCertVk:               verifier.GenerateParams("node"),
		Constant:              verifier.GenerateConstant(),
	})
	txHash := tx.TxHash()
	return tx, scwire.SidechainID(&txHash, 0)
}

// makeCert returns a certificate with a valid proof for the epoch of the
// sidechain registered with the node.
func makeCert(t *testing.T, n *Node, id chainhash.Hash, epoch int32, quality, bt int64) *scwire.MsgCert {
	t.Helper()

	sc, err := n.Ledger().FetchSidechain(&id)
	if err != nil {
		t.Fatalf("unable to fetch sidechain: %v", err)
	}
	cert := scwire.NewMsgCert(&id, epoch, quality)
	cert.EndEpochCumCommitment, err = n.Ledger().CommitmentHashForEpoch(&id, epoch)
	if err != nil {
		t.Fatalf("unable to fetch commitment: %v", err)
	}
	if bt > 0 {
		cert.AddBackwardTransfer(&scwire.BackwardTransferOutput{
			PubKeyHash: [20]byte{0x11},
			Value:      bt,
		})
	}
	cert.Proof = verifier.CreateProof(sc.WCertVk,
		sidechain.ProofInputsFromCert(cert, sc.Constant))
	return cert
}

// immature returns the immature amounts of the sidechain.
func immature(t *testing.T, n *Node, id *chainhash.Hash) []query.ImmatureAmountResult {
	t.Helper()

	info, err := n.Query().GetScInfo(id)
	if err != nil {
		t.Fatalf("GetScInfo: unexpected error: %v", err)
	}
	return info.ImmatureAmounts
}

// TestFwdMaturityReconnections ensures forward transfers mature exactly at
// their maturity height and that the immature amounts survive repeated
// disconnection and reconnection of the same blocks.
func TestFwdMaturityReconnections(t *testing.T) {
	n := newTestNode(t, false)
	mine(t, n)

	creation, id := creationTx(5e7)
	if _, err := n.SubmitTransaction(creation); err != nil {
		t.Fatalf("unable to submit creation: %v", err)
	}
	mine(t, n)
	creationHeight := n.Ledger().BestSnapshot().Height

	// The creation amount is still immature one block later.
	fwd := scwire.NewMsgScTx()
	fwd.AddFwdTransfer(&scwire.FwdTransferOutput{ScID: id, Value: 1e7})
	fwd.AddFwdTransfer(&scwire.FwdTransferOutput{ScID: id, Value: 2e7})
	if _, err := n.SubmitTransaction(fwd); err != nil {
		t.Fatalf("unable to submit forward transfers: %v", err)
	}
	mine(t, n)
	want := []query.ImmatureAmountResult{
		{MaturityHeight: creationHeight + 2, Amount: 0.5},
		{MaturityHeight: creationHeight + 3, Amount: 0.3},
	}
	if got := immature(t, n, &id); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected immature amounts: %v", spew.Sdump(got))
	}

	// Disconnect and reconnect the last two blocks three times.
	for i := 0; i < 3; i++ {
		var disconnected []*scwire.MsgBlock
		for j := 0; j < 2; j++ {
			block, err := n.DisconnectTip()
			if err != nil {
				t.Fatalf("unable to disconnect tip: %v", err)
			}
			disconnected = append(disconnected, block)
		}
		if _, err := n.Query().GetScInfo(&id); err != nil {
			t.Fatalf("pooled creation not reported: %v", err)
		}
		if n.Pool().Count() != 2 {
			t.Fatalf("unexpected pool size %d", n.Pool().Count())
		}
		for j := len(disconnected) - 1; j >= 0; j-- {
			if err := n.ProcessBlock(disconnected[j]); err != nil {
				t.Fatalf("unable to reconnect block: %v", err)
			}
		}
		if got := immature(t, n, &id); !reflect.DeepEqual(got, want) {
			t.Fatalf("reconnection %d: unexpected immature amounts: %v", i,
				spew.Sdump(got))
		}
		if n.Pool().Count() != 0 {
			t.Fatalf("unexpected pool size %d", n.Pool().Count())
		}
	}

	// The creation amount matures at exactly its maturity height.
	mine(t, n)
	info, err := n.Query().GetScInfo(&id)
	if err != nil {
		t.Fatalf("GetScInfo: unexpected error: %v", err)
	}
	if info.Balance != 0.5 || len(info.ImmatureAmounts) != 1 {
		t.Fatalf("unexpected info at maturity height: %v", spew.Sdump(info))
	}
}

// TestCertGetRaw ensures raw certificates and transactions are identical on
// nodes with and without the full history index.
func TestCertGetRaw(t *testing.T) {
	plain := newTestNode(t, false)
	indexed := newTestNode(t, true)
	nodes := []*Node{plain, indexed}
	mine(t, nodes...)

	submitTx := func(tx *scwire.MsgScTx) {
		t.Helper()
		for _, n := range nodes {
			if _, err := n.SubmitTransaction(tx); err != nil {
				t.Fatalf("unable to submit transaction: %v", err)
			}
		}
	}
	rawTx := func(n *Node, hash *chainhash.Hash) (*query.RawObjectResult, error) {
		return n.Query().GetRawTransaction(hash, true)
	}

	creation, id := creationTx(1e8)
	creationHash := creation.TxHash()
	submitTx(creation)
	pooled, err := rawTx(plain, &creationHash)
	if err != nil {
		t.Fatalf("GetRawTransaction: unexpected error: %v", err)
	}
	mine(t, nodes...)
	mine(t, nodes...)
	mine(t, nodes...)

	// Only the node with the full history index still serves the mined
	// creation since it pays no main chain outputs.
	_, err = rawTx(plain, &creationHash)
	if !errors.Is(err, query.ErrNotFound) {
		t.Fatalf("unexpected error: got %v, want %v", err, query.ErrNotFound)
	}
	confirmed, err := rawTx(indexed, &creationHash)
	if err != nil {
		t.Fatalf("GetRawTransaction: unexpected error: %v", err)
	}
	if confirmed.Hex != pooled.Hex {
		t.Fatal("confirmed transaction differs from pooled transaction")
	}

	cert := makeCert(t, plain, id, 0, 10, 2e7)
	certHash := cert.CertHash()
	for _, n := range nodes {
		if _, err := n.SubmitCertificate(cert); err != nil {
			t.Fatalf("unable to submit certificate: %v", err)
		}
	}
	pooledCert, err := plain.Query().GetRawCertificate(&certHash, true)
	if err != nil {
		t.Fatalf("GetRawCertificate: unexpected error: %v", err)
	}

	// A certificate of equal quality is stale.
	stale := makeCert(t, plain, id, 0, 10, 1e7)
	_, err = plain.SubmitCertificate(stale)
	if !errors.Is(err, sidechain.ErrStaleQuality) {
		t.Fatalf("unexpected error: got %v, want %v", err,
			sidechain.ErrStaleQuality)
	}

	mine(t, nodes...)
	for _, n := range nodes {
		got, err := n.Query().GetRawCertificate(&certHash, true)
		if err != nil {
			t.Fatalf("GetRawCertificate: unexpected error: %v", err)
		}
		if got.Hex != pooledCert.Hex ||
			!reflect.DeepEqual(got.Decoded, pooledCert.Decoded) {

			t.Fatalf("confirmed certificate differs from pooled certificate")
		}
		if got.Status.Kind != query.StatusConfirmed {
			t.Fatalf("unexpected status %v", got.Status.Kind)
		}
	}

	info, err := indexed.Query().GetScInfo(&id)
	if err != nil {
		t.Fatalf("GetScInfo: unexpected error: %v", err)
	}
	if info.LastCertificate == nil || info.LastCertificate.Hash != certHash.String() ||
		info.Balance != 0.8 {

		t.Fatalf("unexpected info after certificate: %v", spew.Sdump(info))
	}
}

// TestInvalidateTip ensures invalidated blocks are rejected until they are
// reconsidered.
func TestInvalidateTip(t *testing.T) {
	n := newTestNode(t, false)
	mine(t, n)
	block := mine(t, n)

	hash, err := n.InvalidateTip()
	if err != nil {
		t.Fatalf("InvalidateTip: unexpected error: %v", err)
	}
	if *hash != block.BlockHash() {
		t.Fatalf("invalidated %v, want %v", hash, block.BlockHash())
	}
	err = n.ProcessBlock(block)
	if !errors.Is(err, ErrBlockInvalidated) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrBlockInvalidated)
	}
	if err := n.ReconsiderBlock(hash); err != nil {
		t.Fatalf("ReconsiderBlock: unexpected error: %v", err)
	}
	if err := n.ReconsiderBlock(hash); !errors.Is(err, ErrNotInvalidated) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrNotInvalidated)
	}
	if err := n.ProcessBlock(block); err != nil {
		t.Fatalf("ProcessBlock: unexpected error: %v", err)
	}
}

// TestEpochMismatch ensures certificates for future epochs are rejected even
// when their proof verifies.
func TestEpochMismatch(t *testing.T) {
	n := newTestNode(t, false)
	creation, id := creationTx(1e8)
	if _, err := n.SubmitTransaction(creation); err != nil {
		t.Fatalf("unable to submit creation: %v", err)
	}
	for i := 0; i < 6; i++ {
		mine(t, n)
	}

	cert := makeCert(t, n, id, 1, 1, 0)
	_, err := n.SubmitCertificate(cert)
	if !errors.Is(err, sidechain.ErrEpochMismatch) {
		t.Fatalf("unexpected error: got %v, want %v", err,
			sidechain.ErrEpochMismatch)
	}
}

// TestConfirmedCertificateFinal ensures a confirmed certificate can not be
// replaced by a better one for the same epoch however long the next epoch
// stays uncertified.
func TestConfirmedCertificateFinal(t *testing.T) {
	n := newTestNode(t, false)
	creation, id := creationTx(1e9)
	if _, err := n.SubmitTransaction(creation); err != nil {
		t.Fatalf("unable to submit creation: %v", err)
	}
	for i := 0; i < 3; i++ {
		mine(t, n)
	}
	if _, err := n.SubmitCertificate(makeCert(t, n, id, 0, 1, 5e8)); err != nil {
		t.Fatalf("unable to submit certificate: %v", err)
	}
	mine(t, n)

	for i := 0; i < 20; i++ {
		mine(t, n)
	}
	_, err := n.SubmitCertificate(makeCert(t, n, id, 0, 2, 0))
	if !errors.Is(err, sidechain.ErrEpochMismatch) {
		t.Fatalf("unexpected error: got %v, want %v", err,
			sidechain.ErrEpochMismatch)
	}
	info, err := n.Query().GetScInfo(&id)
	if err != nil {
		t.Fatalf("GetScInfo: unexpected error: %v", err)
	}
	if info.Balance != 5 || info.LastCertificate == nil ||
		info.LastCertificate.Quality != 1 {

		t.Fatalf("unexpected info: %v", spew.Sdump(info))
	}
}

// TestQueriesSeeWholeBlocks ensures queries and submissions wait while a
// block is applied and that concurrent readers always find the value sent to
// a sidechain exactly once between the ledger and the pool.
func TestQueriesSeeWholeBlocks(t *testing.T) {
	n := newTestNode(t, false)
	creation, id := creationTx(5e7)
	if _, err := n.SubmitTransaction(creation); err != nil {
		t.Fatalf("unable to submit creation: %v", err)
	}
	mine(t, n)

	const numFwds = 8
	fwds := make([]*scwire.MsgScTx, 0, numFwds)
	for i := 0; i < numFwds; i++ {
		fwd := scwire.NewMsgScTx()
		fwd.Transparent.LockTime = uint32(i + 1)
		fwd.AddFwdTransfer(&scwire.FwdTransferOutput{ScID: id, Value: 1e6})
		if _, err := n.SubmitTransaction(fwd); err != nil {
			t.Fatalf("unable to submit forward transfer: %v", err)
		}
		fwds = append(fwds, fwd)
	}

	// Queries block while the state lock is held for writes.
	n.stateLock.Lock()
	done := make(chan error, 1)
	go func() {
		_, err := n.Query().GetScInfo(&id)
		done <- err
	}()
	select {
	case <-done:
		n.stateLock.Unlock()
		t.Fatal("query returned while the state was being modified")
	case <-time.After(50 * time.Millisecond):
	}
	n.stateLock.Unlock()
	if err := <-done; err != nil {
		t.Fatalf("GetScInfo: unexpected error: %v", err)
	}

	const want = 0.5 + numFwds*0.01
	stop := make(chan struct{})
	inconsistent := make(chan string, 1)
	go func() {
		defer close(inconsistent)
		for {
			select {
			case <-stop:
				return
			default:
			}
			info, err := n.Query().GetScInfo(&id)
			if err != nil {
				inconsistent <- err.Error()
				return
			}
			held := info.Balance + info.UnconfAmount
			for _, entry := range info.ImmatureAmounts {
				held += entry.Amount
			}
			if math.Abs(held-want) > 1e-9 {
				inconsistent <- spew.Sdump(info)
				return
			}
		}
	}()

	// Each block confirms a single forward transfer.
	for _, fwd := range fwds {
		best := n.Ledger().BestSnapshot()
		block := &scwire.MsgBlock{
			Header: scwire.BlockHeader{
				Version:   1,
				PrevBlock: best.Hash,
				Height:    uint32(best.Height + 1),
				Timestamp: testTime.Add(time.Duration(best.Height) * 150 * time.Second),
			},
			Transactions: []*scwire.MsgScTx{fwd},
		}
		block.Header.ScCommitment = block.CalcScCommitment()
		if err := n.ProcessBlock(block); err != nil {
			close(stop)
			t.Fatalf("unable to process block: %v", err)
		}
	}
	close(stop)
	if msg, ok := <-inconsistent; ok {
		t.Fatalf("query observed a partly applied block: %s", msg)
	}
	if n.Pool().Count() != 0 {
		t.Fatalf("unexpected pool size %d", n.Pool().Count())
	}
}
