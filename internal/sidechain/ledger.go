// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"context"
	"fmt"
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/database/v3"
	"github.com/decred/scledger/scwire"
	"lukechampine.com/blake3"
)

// IndexManager provides a generic interface that is called when blocks are
// connected to and disconnected from the ledger so optional indexes can be
// kept in sync within the same database transaction.
type IndexManager interface {
	// ConnectBlock is invoked when a new block has been connected.
	ConnectBlock(dbTx database.Tx, block *scwire.MsgBlock, height int64) error

	// DisconnectBlock is invoked when a block has been disconnected.
	DisconnectBlock(dbTx database.Tx, block *scwire.MsgBlock, height int64) error
}

// Config is a descriptor which specifies the ledger instance configuration.
type Config struct {
	// DB defines the database which houses the ledger state.  When nil the
	// ledger keeps every block and its undo data in memory.
	DB database.DB

	// MaturityDelay is the number of blocks value sent to a sidechain
	// remains immature.  It must be at least one.
	MaturityDelay int64

	// Verifier verifies certificate proofs.
	Verifier ProofVerifier

	// ProofCacheSize is the number of proof verification results to
	// remember.  Zero selects DefaultProofCacheSize.
	ProofCacheSize uint32

	// IndexManager is notified of connected and disconnected blocks.  It
	// requires a database.
	IndexManager IndexManager

	// StartHeight is the height of the first block the ledger accepts and
	// StartHash the hash its header must reference as previous block.
	// They are only used when a new ledger is created.
	StartHeight int64
	StartHash   chainhash.Hash

	// Notifications defines a callback to which notifications will be sent
	// by the ledger.  It is called synchronously after a block has been
	// committed.
	Notifications NotificationCallback
}

// BestState houses information about the current tip of the ledger.
type BestState struct {
	Hash          chainhash.Hash
	Height        int64
	CumCommitment chainhash.Hash
	NumSidechains int
}

// chainEntry is a connected main chain block.  The block and its undo data
// are only kept in memory when the ledger has no database.
type chainEntry struct {
	hash  chainhash.Hash
	cum   chainhash.Hash
	block *scwire.MsgBlock
	undo  *blockUndo
}

// Ledger applies the sidechain effects of main chain blocks and undoes them
// on disconnection.  Blocks are processed by a single writer, serialized by
// processLock, and every block commits atomically: the staged changes only
// become visible to readers once the whole block has been validated and
// stored.
type Ledger struct {
	db            database.DB
	maturityDelay int64
	validator     *CertValidator
	indexManager  IndexManager
	notifications NotificationCallback
	startHeight   int64
	startHash     chainhash.Hash

	// processLock serializes block connection and disconnection.
	processLock sync.Mutex

	// chainLock protects the fields below.  Writers hold processLock as well
	// so they read these fields without chainLock while staging a block.
	chainLock sync.RWMutex
	registry  *Registry
	chain     []*chainEntry
	heights   map[chainhash.Hash]int64
}

// New returns a ledger instance using the provided configuration details,
// loading any existing state from the database.
func New(config *Config) (*Ledger, error) {
	if config.MaturityDelay < 1 {
		str := fmt.Sprintf("maturity delay must be at least 1, got %d",
			config.MaturityDelay)
		return nil, AssertError(str)
	}
	if config.Verifier == nil {
		return nil, AssertError("sidechain.New proof verifier is nil")
	}
	if config.IndexManager != nil && config.DB == nil {
		return nil, AssertError("sidechain.New index manager without database")
	}

	l := &Ledger{
		db:            config.DB,
		maturityDelay: config.MaturityDelay,
		validator:     NewCertValidator(config.Verifier, config.ProofCacheSize),
		indexManager:  config.IndexManager,
		notifications: config.Notifications,
		startHeight:   config.StartHeight,
		startHash:     config.StartHash,
		registry:      NewRegistry(),
		heights:       make(map[chainhash.Hash]int64),
	}
	if l.db != nil {
		if err := l.initLedgerState(); err != nil {
			return nil, err
		}
	}

	tip := l.tipHeight()
	log.Infof("Sidechain ledger at height %d with %d sidechains (maturity "+
		"delay %d)", tip, l.registry.Len(), l.maturityDelay)
	return l, nil
}

// initLedgerState creates the database buckets on first use or loads the
// stored state.
func (l *Ledger) initLedgerState() error {
	var state *dbState
	err := l.db.View(func(dbTx database.Tx) error {
		var err error
		state, err = dbFetchState(dbTx)
		return err
	})
	if err != nil {
		return err
	}

	if state == nil {
		return l.db.Update(func(dbTx database.Tx) error {
			if err := dbCreateBuckets(dbTx); err != nil {
				return err
			}
			return dbPutState(dbTx, &dbState{
				version:     currentDatabaseVersion,
				startHeight: l.startHeight,
				startHash:   l.startHash,
				height:      l.startHeight - 1,
				hash:        l.startHash,
			})
		})
	}

	if state.version > currentDatabaseVersion {
		str := fmt.Sprintf("the ledger database is version %d which is "+
			"newer than the supported version %d", state.version,
			currentDatabaseVersion)
		return ruleError(ErrDBTooNew, str)
	}
	if state.startHeight != l.startHeight {
		log.Warnf("Ledger database starts at height %d, ignoring configured "+
			"start height %d", state.startHeight, l.startHeight)
	}
	l.startHeight = state.startHeight
	l.startHash = state.startHash

	err = l.db.View(func(dbTx database.Tx) error {
		for height := l.startHeight; height <= state.height; height++ {
			hash, cum, err := dbFetchChainEntry(dbTx, height)
			if err != nil {
				return err
			}
			l.chain = append(l.chain, &chainEntry{hash: hash, cum: cum})
			l.heights[hash] = height
		}
		registry, err := dbLoadRegistry(dbTx)
		if err != nil {
			return err
		}
		l.registry = registry
		return nil
	})
	if err != nil {
		if isDeserializeErr(err) {
			return AssertError(fmt.Sprintf("corrupt ledger database: %v", err))
		}
		return err
	}
	if state.height >= l.startHeight && l.chain[len(l.chain)-1].hash != state.hash {
		return AssertError("ledger best state does not match its chain")
	}
	return nil
}

// tipHeight returns the height of the current tip.  It must be called with
// the chain lock held or by the writer.
func (l *Ledger) tipHeight() int64 {
	return l.startHeight - 1 + int64(len(l.chain))
}

// tip returns the hash, height and cumulative commitment of the current tip.
// It must be called with the chain lock held or by the writer.
func (l *Ledger) tip() (chainhash.Hash, int64, chainhash.Hash) {
	if len(l.chain) == 0 {
		return l.startHash, l.startHeight - 1, chainhash.Hash{}
	}
	entry := l.chain[len(l.chain)-1]
	return entry.hash, l.tipHeight(), entry.cum
}

// cumulativeCommitment returns the cumulative commitment at height.  The
// commitment before the first block is the zero hash.  It must be called with
// the chain lock held or by the writer.
func (l *Ledger) cumulativeCommitment(height int64) (chainhash.Hash, error) {
	if height == l.startHeight-1 {
		return chainhash.Hash{}, nil
	}
	if height < l.startHeight || height > l.tipHeight() {
		str := fmt.Sprintf("height %d is outside the ledger range [%d, %d]",
			height, l.startHeight-1, l.tipHeight())
		return chainhash.Hash{}, ruleError(ErrOutOfRange, str)
	}
	return l.chain[height-l.startHeight].cum, nil
}

// calcCumulativeCommitment chains the sidechain commitment of a block onto
// the cumulative commitment of its parent.
func calcCumulativeCommitment(prev, blockCommitment *chainhash.Hash) chainhash.Hash {
	var b [chainhash.HashSize * 2]byte
	copy(b[:], prev[:])
	copy(b[chainhash.HashSize:], blockCommitment[:])
	return chainhash.Hash(blake3.Sum256(b[:]))
}

// ledgerCommitments exposes the cumulative commitments of the ledger to the
// certificate validator.  It must only be used with the chain lock held or by
// the writer.
type ledgerCommitments struct {
	l *Ledger
}

// EpochCommitment returns the cumulative commitment at the end height of the
// provided epoch of the sidechain.
func (c ledgerCommitments) EpochCommitment(sc *Sidechain, epoch int32) (chainhash.Hash, error) {
	if epoch < 0 {
		str := fmt.Sprintf("epoch %d is negative", epoch)
		return chainhash.Hash{}, ruleError(ErrOutOfRange, str)
	}
	return c.l.cumulativeCommitment(sc.EpochEnd(epoch))
}

// checkBlockContext ensures the block extends the current tip and commits to
// its objects.
func (l *Ledger) checkBlockContext(block *scwire.MsgBlock) error {
	tipHash, tipHeight, _ := l.tip()
	header := &block.Header
	if header.PrevBlock != tipHash || int64(header.Height) != tipHeight+1 {
		str := fmt.Sprintf("block at height %d with parent %v does not "+
			"extend tip %v at height %d", header.Height, header.PrevBlock,
			tipHash, tipHeight)
		return ruleError(ErrMissingParent, str)
	}

	if commitment := block.CalcScCommitment(); commitment != header.ScCommitment {
		str := fmt.Sprintf("block commits to %v, its objects to %v",
			header.ScCommitment, commitment)
		return ruleError(ErrBadBlockCommitment, str)
	}

	seen := make(map[chainhash.Hash]struct{},
		len(block.Transactions)+len(block.Certificates))
	check := func(hash chainhash.Hash) error {
		if _, ok := seen[hash]; ok {
			str := fmt.Sprintf("block contains duplicate object %v", hash)
			return ruleError(ErrDuplicateObject, str)
		}
		seen[hash] = struct{}{}
		return nil
	}
	for _, tx := range block.Transactions {
		if err := check(tx.TxHash()); err != nil {
			return err
		}
	}
	for _, cert := range block.Certificates {
		if err := check(cert.CertHash()); err != nil {
			return err
		}
	}
	return nil
}

// checkBalances ensures the balance invariant holds for every record staged
// in the view.
func checkBalances(view *registryView) error {
	for _, sc := range view.entries {
		if sc == nil {
			continue
		}
		if err := sc.checkBalance(); err != nil {
			return err
		}
	}
	return nil
}

// ConnectBlock applies the sidechain effects of the block which must extend
// the current tip.  Value maturing at the block height is credited first,
// then sidechain creations and forward transfers are applied followed by the
// certificates, each in block order.  Either the whole block is applied or,
// on error, nothing is.
//
// This function is safe for concurrent access.
func (l *Ledger) ConnectBlock(block *scwire.MsgBlock) error {
	l.processLock.Lock()
	defer l.processLock.Unlock()

	if err := l.checkBlockContext(block); err != nil {
		return err
	}
	height := int64(block.Header.Height)
	blockHash := block.BlockHash()
	_, _, prevCum := l.tip()
	cum := calcCumulativeCommitment(&prevCum, &block.Header.ScCommitment)

	// Verify the certificate proofs in parallel before the serial pass.
	if len(block.Certificates) > 0 {
		failed := l.validator.prefetchBlockProofs(context.Background(), block,
			l.registry.Lookup)
		if failed > 0 {
			log.Debugf("%d certificate proofs of block %v do not verify",
				failed, blockHash)
		}
	}

	view := newRegistryView(l.registry)
	undo := new(blockUndo)
	applyMaturity(view, height, undo)
	for _, tx := range block.Transactions {
		err := applyTransaction(view, tx, height, l.maturityDelay, &blockHash,
			undo)
		if err != nil {
			return err
		}
	}
	commitments := ledgerCommitments{l}
	for _, cert := range block.Certificates {
		err := applyCertificate(view, l.validator, commitments, cert, height,
			undo)
		if err != nil {
			return err
		}
	}
	if err := checkBalances(view); err != nil {
		return err
	}

	entry := &chainEntry{hash: blockHash, cum: cum}
	if l.db != nil {
		err := l.db.Update(func(dbTx database.Tx) error {
			if err := dbPutSidechains(dbTx, view); err != nil {
				return err
			}
			err := dbPutBlock(dbTx, block, height, &blockHash, &cum, undo)
			if err != nil {
				return err
			}
			err = dbPutState(dbTx, &dbState{
				version:     currentDatabaseVersion,
				startHeight: l.startHeight,
				startHash:   l.startHash,
				height:      height,
				hash:        blockHash,
			})
			if err != nil {
				return err
			}
			if l.indexManager != nil {
				return l.indexManager.ConnectBlock(dbTx, block, height)
			}
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		entry.block = block
		entry.undo = undo
	}

	l.chainLock.Lock()
	l.registry.commit(view)
	l.chain = append(l.chain, entry)
	l.heights[blockHash] = height
	l.chainLock.Unlock()

	log.Debugf("Connected block %v (height %d, %d transactions, %d "+
		"certificates, %d sidechains matured)", blockHash, height,
		len(block.Transactions), len(block.Certificates), len(undo.Matured))

	l.sendNotification(NTBlockConnected, &BlockConnectedNtfnsData{
		Block:  block,
		Height: height,
	})
	return nil
}

// fetchTip returns the current tip block and its undo data.
func (l *Ledger) fetchTip() (*scwire.MsgBlock, *blockUndo, error) {
	entry := l.chain[len(l.chain)-1]
	if l.db == nil {
		return entry.block, entry.undo, nil
	}
	var block *scwire.MsgBlock
	var undo *blockUndo
	err := l.db.View(func(dbTx database.Tx) error {
		var err error
		block, err = dbFetchBlock(dbTx, &entry.hash)
		if err != nil {
			return err
		}
		undo, err = dbFetchBlockUndo(dbTx, &entry.hash)
		return err
	})
	if err != nil {
		if isDeserializeErr(err) {
			err = AssertError(fmt.Sprintf("corrupt data for block %v: %v",
				entry.hash, err))
		}
		return nil, nil, err
	}
	return block, undo, nil
}

// DisconnectTip undoes every effect of the current tip block and returns it.
// Creations are rolled back to non-existence, forward transfers are removed
// from the maturity schedule, matured value returns to it and certificates
// confirmed by the block are reverted.  An AssertError is returned when the
// stored undo data does not match the ledger state, which means the ledger is
// corrupted.
//
// This function is safe for concurrent access.
func (l *Ledger) DisconnectTip() (*scwire.MsgBlock, error) {
	l.processLock.Lock()
	defer l.processLock.Unlock()

	if len(l.chain) == 0 {
		return nil, ruleError(ErrNoBlocks, "no block to disconnect")
	}
	block, undo, err := l.fetchTip()
	if err != nil {
		return nil, err
	}
	height := l.tipHeight()
	blockHash := l.chain[len(l.chain)-1].hash
	if block.BlockHash() != blockHash {
		return nil, AssertError(fmt.Sprintf("stored block %v does not match "+
			"tip %v", block.BlockHash(), blockHash))
	}

	view := newRegistryView(l.registry)
	if err := undoBlock(view, height, undo); err != nil {
		return nil, err
	}
	if err := checkBalances(view); err != nil {
		return nil, err
	}

	if l.db != nil {
		prevHash := l.startHash
		if len(l.chain) > 1 {
			prevHash = l.chain[len(l.chain)-2].hash
		}
		err := l.db.Update(func(dbTx database.Tx) error {
			if err := dbPutSidechains(dbTx, view); err != nil {
				return err
			}
			if err := dbRemoveBlock(dbTx, height, &blockHash); err != nil {
				return err
			}
			err := dbPutState(dbTx, &dbState{
				version:     currentDatabaseVersion,
				startHeight: l.startHeight,
				startHash:   l.startHash,
				height:      height - 1,
				hash:        prevHash,
			})
			if err != nil {
				return err
			}
			if l.indexManager != nil {
				return l.indexManager.DisconnectBlock(dbTx, block, height)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	l.chainLock.Lock()
	l.registry.commit(view)
	l.chain[len(l.chain)-1] = nil
	l.chain = l.chain[:len(l.chain)-1]
	delete(l.heights, blockHash)
	l.chainLock.Unlock()

	log.Debugf("Disconnected block %v (height %d)", blockHash, height)

	l.sendNotification(NTBlockDisconnected, &BlockDisconnectedNtfnsData{
		Block:  block,
		Height: height,
	})
	return block, nil
}

// BestSnapshot returns information about the current tip.
//
// This function is safe for concurrent access.
func (l *Ledger) BestSnapshot() *BestState {
	l.chainLock.RLock()
	hash, height, cum := l.tip()
	numSidechains := l.registry.Len()
	l.chainLock.RUnlock()
	return &BestState{
		Hash:          hash,
		Height:        height,
		CumCommitment: cum,
		NumSidechains: numSidechains,
	}
}

// MaturityDelay returns the number of blocks value sent to a sidechain
// remains immature.
func (l *Ledger) MaturityDelay() int64 {
	return l.maturityDelay
}

// StartHeight returns the height of the first block of the ledger.
func (l *Ledger) StartHeight() int64 {
	return l.startHeight
}

// FetchSidechain returns a copy of the record of the sidechain with the
// provided id.  ErrUnknownSidechain is returned when it is not registered.
//
// This function is safe for concurrent access.
func (l *Ledger) FetchSidechain(id *chainhash.Hash) (*Sidechain, error) {
	l.chainLock.RLock()
	sc := l.registry.Lookup(id)
	l.chainLock.RUnlock()
	if sc == nil {
		return nil, unknownSidechainError(id)
	}
	// Registry records are replaced rather than modified on commit, so a
	// record fetched under the lock can be cloned outside of it.
	return sc.Clone(), nil
}

// SidechainExists returns whether the sidechain with the provided id is
// registered.
//
// This function is safe for concurrent access.
func (l *Ledger) SidechainExists(id *chainhash.Hash) bool {
	l.chainLock.RLock()
	exists := l.registry.Lookup(id) != nil
	l.chainLock.RUnlock()
	return exists
}

// Sidechains returns copies of the records of all registered sidechains
// ordered by creation height.
//
// This function is safe for concurrent access.
func (l *Ledger) Sidechains() []*Sidechain {
	l.chainLock.RLock()
	scs := l.registry.Sidechains()
	l.chainLock.RUnlock()
	for i, sc := range scs {
		scs[i] = sc.Clone()
	}
	return scs
}

// CumulativeCommitment returns the cumulative commitment at height.
// ErrOutOfRange is returned for heights outside the ledger.
//
// This function is safe for concurrent access.
func (l *Ledger) CumulativeCommitment(height int64) (chainhash.Hash, error) {
	l.chainLock.RLock()
	defer l.chainLock.RUnlock()
	return l.cumulativeCommitment(height)
}

// CommitmentHashForEpoch returns the cumulative commitment a certificate for
// the provided epoch of the sidechain must claim.  ErrOutOfRange is returned
// when the epoch has not ended yet.
//
// This function is safe for concurrent access.
func (l *Ledger) CommitmentHashForEpoch(id *chainhash.Hash, epoch int32) (chainhash.Hash, error) {
	l.chainLock.RLock()
	defer l.chainLock.RUnlock()
	sc := l.registry.Lookup(id)
	if sc == nil {
		return chainhash.Hash{}, unknownSidechainError(id)
	}
	return ledgerCommitments{l}.EpochCommitment(sc, epoch)
}

// CheckCertificate validates the certificate for inclusion in the block after
// the current tip.  Pending is the best unconfirmed certificate for the same
// epoch, if any.
//
// This function is safe for concurrent access.
func (l *Ledger) CheckCertificate(cert *scwire.MsgCert, pending *CertRef) (*CertVerdict, error) {
	l.chainLock.RLock()
	defer l.chainLock.RUnlock()
	sc := l.registry.Lookup(&cert.ScID)
	return l.validator.Validate(cert, sc, l.tipHeight()+1, ledgerCommitments{l},
		pending)
}

// BlockHashByHeight returns the hash of the main chain block at height.
//
// This function is safe for concurrent access.
func (l *Ledger) BlockHashByHeight(height int64) (chainhash.Hash, error) {
	l.chainLock.RLock()
	defer l.chainLock.RUnlock()
	if height < l.startHeight || height > l.tipHeight() {
		str := fmt.Sprintf("no block at height %d", height)
		return chainhash.Hash{}, ruleError(ErrOutOfRange, str)
	}
	return l.chain[height-l.startHeight].hash, nil
}

// MainChainHeight returns the height of the main chain block with the
// provided hash and whether it is part of the main chain.
//
// This function is safe for concurrent access.
func (l *Ledger) MainChainHeight(hash *chainhash.Hash) (int64, bool) {
	l.chainLock.RLock()
	height, ok := l.heights[*hash]
	l.chainLock.RUnlock()
	return height, ok
}

// BlockByHeight returns the main chain block at height.
//
// This function is safe for concurrent access.
func (l *Ledger) BlockByHeight(height int64) (*scwire.MsgBlock, error) {
	l.chainLock.RLock()
	if height < l.startHeight || height > l.tipHeight() {
		l.chainLock.RUnlock()
		str := fmt.Sprintf("no block at height %d", height)
		return nil, ruleError(ErrOutOfRange, str)
	}
	entry := l.chain[height-l.startHeight]
	l.chainLock.RUnlock()

	if entry.block != nil {
		return entry.block, nil
	}
	var block *scwire.MsgBlock
	err := l.db.View(func(dbTx database.Tx) error {
		var err error
		block, err = dbFetchBlock(dbTx, &entry.hash)
		return err
	})
	return block, err
}
