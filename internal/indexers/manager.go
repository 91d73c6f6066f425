// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package indexers

import (
	"context"
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/database/v3"
	"github.com/decred/scledger/internal/progresslog"
	"github.com/decred/scledger/internal/sidechain"
	"github.com/decred/scledger/scwire"
)

// Manager defines an index manager that manages multiple optional indexes and
// implements the sidechain.IndexManager interface so the indexes are
// seamlessly updated by the ledger.
type Manager struct {
	db             database.DB
	enabledIndexes []Indexer
}

// Ensure the Manager type implements the sidechain.IndexManager interface.
var _ sidechain.IndexManager = (*Manager)(nil)

// NewManager returns a new index manager with the provided indexes enabled.
func NewManager(db database.DB, enabledIndexes []Indexer) *Manager {
	return &Manager{
		db:             db,
		enabledIndexes: enabledIndexes,
	}
}

// Indexes returns the enabled indexes.
func (m *Manager) Indexes() []Indexer {
	return m.enabledIndexes
}

// createIndex creates the provided index if it does not exist yet.  A stored
// index with a different version is dropped and created again.
func (m *Manager) createIndex(ctx context.Context, indexer Indexer, queryer ChainQueryer) error {
	if err := finishDrop(ctx, m.db, indexer); err != nil {
		return err
	}

	exists, err := existsIndex(m.db, indexer.Key())
	if err != nil {
		return err
	}
	if exists {
		var version uint32
		err := m.db.View(func(dbTx database.Tx) error {
			version = dbFetchIndexerVersion(dbTx, indexer.Key())
			return nil
		})
		if err != nil {
			return err
		}
		if version == indexer.Version() {
			return nil
		}
		log.Infof("Upgrading %s from version %d to %d", indexer.Name(),
			version, indexer.Version())
		err = dropFlatIndex(ctx, m.db, indexer.Key(), indexer.Name())
		if err != nil {
			return err
		}
	}

	return m.db.Update(func(dbTx database.Tx) error {
		meta := dbTx.Metadata()
		if _, err := meta.CreateBucketIfNotExists(indexTipsBucketName); err != nil {
			return err
		}
		if err := dbPutIndexerVersion(dbTx, indexer.Key(), indexer.Version()); err != nil {
			return err
		}
		if err := indexer.Create(dbTx); err != nil {
			return err
		}

		// An uninitialized index has its tip just before the first ledger
		// block.
		var zeroHash chainhash.Hash
		return dbPutIndexerTip(dbTx, indexer.Key(), &zeroHash,
			queryer.StartHeight()-1)
	})
}

// indexTip returns the current tip of the provided index.
func (m *Manager) indexTip(indexer Indexer) (*chainhash.Hash, int64, error) {
	var hash *chainhash.Hash
	var height int64
	err := m.db.View(func(dbTx database.Tx) error {
		var err error
		hash, height, err = dbFetchIndexerTip(dbTx, indexer.Key())
		return err
	})
	if err != nil {
		str := fmt.Sprintf("%s: unable to fetch index tip: %v",
			indexer.Name(), err)
		return nil, 0, indexerError(ErrFetchTip, str)
	}
	return hash, height, nil
}

// syncIndex brings the provided index up to the ledger tip.  An index whose
// tip is no longer part of the main chain, which happens when it was disabled
// across a reorganization, is rebuilt from scratch.
func (m *Manager) syncIndex(ctx context.Context, indexer Indexer, queryer ChainQueryer) error {
	tipHash, tipHeight, err := m.indexTip(indexer)
	if err != nil {
		return err
	}

	best := queryer.BestSnapshot()
	if tipHeight >= queryer.StartHeight() {
		mainHash, err := queryer.BlockHashByHeight(tipHeight)
		if tipHeight > best.Height || err != nil || mainHash != *tipHash {
			log.Infof("%s: tip %d (%s) is not on the main chain, rebuilding",
				indexer.Name(), tipHeight, tipHash)
			err := dropFlatIndex(ctx, m.db, indexer.Key(), indexer.Name())
			if err != nil {
				return err
			}
			if err := m.createIndex(ctx, indexer, queryer); err != nil {
				return err
			}
			tipHeight = queryer.StartHeight() - 1
		}
	}
	if tipHeight >= best.Height {
		return nil
	}

	log.Infof("Catching up %s from height %d to tip %d", indexer.Name(),
		tipHeight+1, best.Height)
	progressLogger := progresslog.New("Indexed", log)
	for height := tipHeight + 1; height <= best.Height; height++ {
		if interruptRequested(ctx) {
			return indexerError(ErrInterruptRequested, interruptMsg)
		}
		block, err := queryer.BlockByHeight(height)
		if err != nil {
			return err
		}
		err = m.db.Update(func(dbTx database.Tx) error {
			if err := indexer.ConnectBlock(dbTx, block, height); err != nil {
				return err
			}
			hash := block.BlockHash()
			return dbPutIndexerTip(dbTx, indexer.Key(), &hash, height)
		})
		if err != nil {
			return err
		}
		progressLogger.LogProgress(block, height == best.Height)
	}
	log.Infof("Indexes caught up to height %d", best.Height)
	return nil
}

// Init creates the enabled indexes as needed and brings them up to the
// ledger tip.  It must be called before the ledger processes any block.
func (m *Manager) Init(ctx context.Context, queryer ChainQueryer) error {
	for _, indexer := range m.enabledIndexes {
		if err := m.createIndex(ctx, indexer, queryer); err != nil {
			return err
		}
		if err := m.syncIndex(ctx, indexer, queryer); err != nil {
			return err
		}
		log.Infof("%s is enabled", indexer.Name())
	}
	return nil
}

// ConnectBlock must be invoked when a block is connected to the main chain.
// It keeps track of the state of each index it is managing, performs some
// sanity checks, and invokes each indexer.
//
// This is part of the sidechain.IndexManager interface.
func (m *Manager) ConnectBlock(dbTx database.Tx, block *scwire.MsgBlock, height int64) error {
	hash := block.BlockHash()
	for _, indexer := range m.enabledIndexes {
		curTipHash, curTipHeight, err := dbFetchIndexerTip(dbTx, indexer.Key())
		if err != nil {
			return err
		}
		// The tip hash of an index that has not indexed any block yet is
		// the zero hash.
		extends := *curTipHash == block.Header.PrevBlock ||
			*curTipHash == (chainhash.Hash{})
		if curTipHeight != height-1 || !extends {

			str := fmt.Sprintf("%s: block %s at height %d does not extend "+
				"index tip %s at height %d", indexer.Name(), hash, height,
				curTipHash, curTipHeight)
			return indexerError(ErrConnectBlock, str)
		}
		if err := indexer.ConnectBlock(dbTx, block, height); err != nil {
			str := fmt.Sprintf("%s: unable to connect block %s: %v",
				indexer.Name(), hash, err)
			return indexerError(ErrConnectBlock, str)
		}
		if err := dbPutIndexerTip(dbTx, indexer.Key(), &hash, height); err != nil {
			return err
		}
	}
	return nil
}

// DisconnectBlock must be invoked when a block is disconnected from the main
// chain.  It keeps track of the state of each index it is managing, performs
// some sanity checks, and invokes each indexer to remove the index entries
// associated with the block.
//
// This is part of the sidechain.IndexManager interface.
func (m *Manager) DisconnectBlock(dbTx database.Tx, block *scwire.MsgBlock, height int64) error {
	hash := block.BlockHash()
	for _, indexer := range m.enabledIndexes {
		curTipHash, curTipHeight, err := dbFetchIndexerTip(dbTx, indexer.Key())
		if err != nil {
			return err
		}
		if curTipHeight != height || *curTipHash != hash {
			str := fmt.Sprintf("%s: block %s at height %d is not the index "+
				"tip %s at height %d", indexer.Name(), hash, height, curTipHash,
				curTipHeight)
			return indexerError(ErrDisconnectBlock, str)
		}
		if err := indexer.DisconnectBlock(dbTx, block, height); err != nil {
			str := fmt.Sprintf("%s: unable to disconnect block %s: %v",
				indexer.Name(), hash, err)
			return indexerError(ErrDisconnectBlock, str)
		}
		prevHash := block.Header.PrevBlock
		if err := dbPutIndexerTip(dbTx, indexer.Key(), &prevHash, height-1); err != nil {
			return err
		}
	}
	return nil
}
