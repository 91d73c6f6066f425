// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package node wires the sidechain ledger, the pool of unconfirmed objects,
// the indexes and the query server together.  Blocks and their
// disconnections are processed by a single writer while queries and
// submissions may run concurrently.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/database/v3"
	"github.com/decred/scledger/internal/indexers"
	"github.com/decred/scledger/internal/mempool"
	"github.com/decred/scledger/internal/metrics"
	"github.com/decred/scledger/internal/progresslog"
	"github.com/decred/scledger/internal/query"
	"github.com/decred/scledger/internal/sidechain"
	"github.com/decred/scledger/scwire"
)

// Config is a descriptor containing the node configuration.
type Config struct {
	// DB houses the ledger and its indexes.  When nil the ledger is kept in
	// memory and no indexes are maintained.
	DB database.DB

	// ChainParams identifies the main chain network.
	ChainParams *chaincfg.Params

	// MaturityDelay is the number of blocks value sent to a sidechain
	// remains immature.
	MaturityDelay int64

	// TxIndex enables the index of every confirmed object.
	TxIndex bool

	// ProofCacheSize is the number of proof verification results to
	// remember.
	ProofCacheSize uint32

	// StartHeight and StartHash identify where the ledger begins on the main
	// chain.
	StartHeight int64
	StartHash   chainhash.Hash

	// Verifier verifies certificate proofs.
	Verifier sidechain.ProofVerifier

	// Policy controls the pool.
	Policy mempool.Policy

	// Metrics, when set, is updated as the node processes objects.
	Metrics *metrics.Metrics
}

// Node owns the sidechain ledger together with everything derived from it.
type Node struct {
	// processLock serializes block processing and invalidation.
	processLock sync.Mutex
	invalidated map[chainhash.Hash]struct{}

	// stateLock is held for writes while a block is applied to or removed
	// from the ledger and the pool, and for reads by queries and
	// submissions.
	stateLock sync.RWMutex

	cfg          Config
	ledger       *sidechain.Ledger
	pool         *mempool.Pool
	indexManager *indexers.Manager
	coinIndex    *indexers.ObjectIndex
	txIndex      *indexers.ObjectIndex
	query        *query.Server
	metrics      *metrics.Metrics
	progress     *progresslog.Logger
}

// panicf is a convenience function that formats according to the given format
// specifier and arguments and then logs the result at the critical level and
// panics with it.
func panicf(format string, args ...interface{}) {
	str := fmt.Sprintf(format, args...)
	log.Critical(str)
	panic(str)
}

// New returns a node over the provided configuration.  Indexes that lag
// behind the ledger are caught up before it returns.
func New(ctx context.Context, cfg *Config) (*Node, error) {
	if cfg.ChainParams == nil {
		return nil, errors.New("node config must specify chain parameters")
	}
	n := &Node{
		invalidated: make(map[chainhash.Hash]struct{}),
		cfg:         *cfg,
		metrics:     cfg.Metrics,
		progress:    progresslog.New("Processed", log),
	}

	ledgerCfg := &sidechain.Config{
		DB:             cfg.DB,
		MaturityDelay:  cfg.MaturityDelay,
		Verifier:       cfg.Verifier,
		ProofCacheSize: cfg.ProofCacheSize,
		StartHeight:    cfg.StartHeight,
		StartHash:      cfg.StartHash,
		Notifications:  n.handleLedgerNotification,
	}
	if cfg.DB != nil {
		n.coinIndex = indexers.NewCoinIndex(cfg.DB)
		indexes := []indexers.Indexer{n.coinIndex}
		if cfg.TxIndex {
			log.Info("Transaction index is enabled")
			n.txIndex = indexers.NewTxIndex(cfg.DB)
			indexes = append(indexes, n.txIndex)
		}
		n.indexManager = indexers.NewManager(cfg.DB, indexes)
		ledgerCfg.IndexManager = n.indexManager
	}

	var err error
	n.ledger, err = sidechain.New(ledgerCfg)
	if err != nil {
		return nil, err
	}
	n.pool = mempool.New(&mempool.Config{
		Policy:   cfg.Policy,
		Chain:    n.ledger,
		OnAccept: n.onAccept,
		OnEvict:  n.onEvict,
	})
	if n.indexManager != nil {
		if err := n.indexManager.Init(ctx, n.ledger); err != nil {
			return nil, err
		}
	}

	queryCfg := &query.Config{
		Ledger:      n.ledger,
		Pool:        n.pool,
		ChainParams: cfg.ChainParams,
		ViewLock:    n.stateLock.RLocker(),
	}
	if n.coinIndex != nil {
		queryCfg.CoinIndex = n.coinIndex
	}
	if n.txIndex != nil {
		queryCfg.TxIndex = n.txIndex
	}
	n.query = query.New(queryCfg)

	best := n.ledger.BestSnapshot()
	log.Infof("Ledger state (height %d, hash %v, %d sidechains)",
		best.Height, best.Hash, best.NumSidechains)
	return n, nil
}

// handleLedgerNotification keeps the pool and the metrics in sync with the
// ledger.  It is called synchronously while the ledger processes a block, so
// the state lock is held for writes.
func (n *Node) handleLedgerNotification(ntfn *sidechain.Notification) {
	switch ntfn.Type {
	case sidechain.NTBlockConnected:
		data, ok := ntfn.Data.(*sidechain.BlockConnectedNtfnsData)
		if !ok {
			log.Warnf("Block connected notification is not " +
				"BlockConnectedNtfnsData.")
			break
		}
		n.pool.HandleConnectedBlock(data.Block)
		n.metrics.PoolSize(n.pool.Count())
		n.metrics.CertificatesConfirmed(len(data.Block.Certificates))

	case sidechain.NTBlockDisconnected:
		data, ok := ntfn.Data.(*sidechain.BlockDisconnectedNtfnsData)
		if !ok {
			log.Warnf("Block disconnected notification is not " +
				"BlockDisconnectedNtfnsData.")
			break
		}
		n.pool.HandleDisconnectedBlock(data.Block)
		n.metrics.PoolSize(n.pool.Count())
		n.metrics.BlockDisconnected(data.Height,
			n.ledger.BestSnapshot().NumSidechains)
	}
}

// onAccept is invoked by the pool after it accepted an object.
func (n *Node) onAccept(desc *mempool.ObjectDesc) {
	n.metrics.ObjectAccepted(desc.Object.Kind, n.pool.Count())
}

// onEvict is invoked by the pool, possibly with its lock held, after it
// evicted an object.
func (n *Node) onEvict(desc *mempool.ObjectDesc, reason error) {
	log.Debugf("Pool evicted %v %v: %v", desc.Object.Kind, desc.Hash, reason)
	n.metrics.ObjectEvicted(desc.Object.Kind)
}

// rejectReason returns the error kind of a pool rejection for metrics.
func rejectReason(err error) string {
	var rerr mempool.RuleError
	if errors.As(err, &rerr) && rerr.Err != nil {
		return rerr.Err.Error()
	}
	return "other"
}

// ProcessBlock connects the block to the ledger.  The pool drops the objects
// the block confirms.
//
// This function is safe for concurrent access.
func (n *Node) ProcessBlock(block *scwire.MsgBlock) error {
	n.processLock.Lock()
	defer n.processLock.Unlock()

	blockHash := block.BlockHash()
	if _, ok := n.invalidated[blockHash]; ok {
		str := fmt.Sprintf("block %v has been invalidated", blockHash)
		return nodeError(ErrBlockInvalidated, str)
	}

	start := time.Now()
	n.stateLock.Lock()
	err := n.ledger.ConnectBlock(block)
	n.stateLock.Unlock()
	if err != nil {
		return err
	}
	best := n.ledger.BestSnapshot()
	n.metrics.BlockConnected(best.Height, best.NumSidechains, time.Since(start))
	n.progress.LogProgress(block, false)
	return nil
}

// disconnectTip disconnects the ledger tip.  Ledger corruption is fatal.
//
// This function MUST be called with the process lock held.
func (n *Node) disconnectTip() (*scwire.MsgBlock, error) {
	n.stateLock.Lock()
	block, err := n.ledger.DisconnectTip()
	n.stateLock.Unlock()
	if err != nil {
		var aerr sidechain.AssertError
		if errors.As(err, &aerr) {
			panicf("Ledger is corrupted: %v", err)
		}
		return nil, err
	}
	n.progress.SetLastLogTime(time.Now())
	log.Infof("Disconnected block %v (height %d)", block.BlockHash(),
		block.Header.Height)
	return block, nil
}

// DisconnectTip disconnects the tip block from the ledger and returns it.
// Its objects re-enter the pool when they are still valid.
//
// This function is safe for concurrent access.
func (n *Node) DisconnectTip() (*scwire.MsgBlock, error) {
	n.processLock.Lock()
	defer n.processLock.Unlock()
	return n.disconnectTip()
}

// InvalidateTip disconnects the tip block and rejects it until it is
// reconsidered.
//
// This function is safe for concurrent access.
func (n *Node) InvalidateTip() (*chainhash.Hash, error) {
	n.processLock.Lock()
	defer n.processLock.Unlock()

	block, err := n.disconnectTip()
	if err != nil {
		return nil, err
	}
	blockHash := block.BlockHash()
	n.invalidated[blockHash] = struct{}{}
	log.Infof("Invalidated block %v", blockHash)
	return &blockHash, nil
}

// ReconsiderBlock allows an invalidated block to be processed again.
//
// This function is safe for concurrent access.
func (n *Node) ReconsiderBlock(hash *chainhash.Hash) error {
	n.processLock.Lock()
	defer n.processLock.Unlock()

	if _, ok := n.invalidated[*hash]; !ok {
		str := fmt.Sprintf("block %v is not invalidated", hash)
		return nodeError(ErrNotInvalidated, str)
	}
	delete(n.invalidated, *hash)
	return nil
}

// SubmitTransaction adds a transaction creating sidechains or forwarding
// value to one or more sidechains to the pool.
//
// This function is safe for concurrent access.
func (n *Node) SubmitTransaction(tx *scwire.MsgScTx) (*chainhash.Hash, error) {
	n.stateLock.RLock()
	desc, err := n.pool.MaybeAcceptTransaction(tx)
	n.stateLock.RUnlock()
	if err != nil {
		n.metrics.ObjectRejected(scwire.ObjTransaction, rejectReason(err))
		log.Debugf("Rejected transaction %v: %v", tx.TxHash(), err)
		return nil, err
	}
	hash := desc.Hash
	return &hash, nil
}

// SubmitCertificate adds a certificate to the pool.
//
// This function is safe for concurrent access.
func (n *Node) SubmitCertificate(cert *scwire.MsgCert) (*chainhash.Hash, error) {
	n.stateLock.RLock()
	desc, err := n.pool.MaybeAcceptCertificate(cert)
	n.stateLock.RUnlock()
	if err != nil {
		n.metrics.ObjectRejected(scwire.ObjCertificate, rejectReason(err))
		log.Debugf("Rejected certificate %v: %v", cert.CertHash(), err)
		return nil, err
	}
	hash := desc.Hash
	return &hash, nil
}

// GenerateBlock returns a block extending the ledger tip that holds every
// pooled object.  The block is not processed.
//
// This function is safe for concurrent access.
func (n *Node) GenerateBlock(timestamp time.Time) *scwire.MsgBlock {
	n.stateLock.RLock()
	txs, certs := n.pool.MiningObjects()
	best := n.ledger.BestSnapshot()
	n.stateLock.RUnlock()
	block := &scwire.MsgBlock{
		Header: scwire.BlockHeader{
			Version:   1,
			PrevBlock: best.Hash,
			Height:    uint32(best.Height + 1),
			Timestamp: timestamp,
		},
		Transactions: txs,
		Certificates: certs,
	}
	block.Header.ScCommitment = block.CalcScCommitment()
	return block
}

// Query returns the query server of the node.
func (n *Node) Query() *query.Server {
	return n.query
}

// Ledger returns the sidechain ledger of the node.
func (n *Node) Ledger() *sidechain.Ledger {
	return n.ledger
}

// Pool returns the pool of unconfirmed objects of the node.
func (n *Node) Pool() *mempool.Pool {
	return n.pool
}
