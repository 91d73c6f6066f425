// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/database/v3"
	_ "github.com/decred/dcrd/database/v3/ffldb"
	"github.com/decred/dcrd/wire"
	"github.com/decred/scledger/internal/node"
	"github.com/decred/scledger/internal/progresslog"
	"github.com/decred/scledger/internal/sidechain"
	"github.com/decred/scledger/scwire"
)

const (
	// ledgerDbType is the database backend of the ledger.
	ledgerDbType = "ffldb"

	// ledgerDbNamePrefix is the prefix for the ledger database name.  The
	// database type is appended to this value to form the full ledger
	// database name.
	ledgerDbNamePrefix = "ledger"

	// maxImportBlockSize is the largest serialized block accepted from an
	// import file.
	maxImportBlockSize = 32 * 1024 * 1024
)

// removeRegressionDB removes the existing regression test database if running
// in regression test mode and it already exists.
func removeRegressionDB(dbPath string) error {
	// Don't do anything if not in regression test mode.
	if !cfg.RegNet {
		return nil
	}

	// Remove the old regression test database if it already exists.
	if _, err := os.Stat(dbPath); err == nil {
		scldLog.Infof("Removing regression test database from '%s'", dbPath)
		return os.RemoveAll(dbPath)
	}

	return nil
}

// ledgerDbPath returns the path to the ledger database.
func ledgerDbPath() string {
	return filepath.Join(cfg.DataDir, ledgerDbNamePrefix+"_"+ledgerDbType)
}

// loadLedgerDB opens the ledger database, creating it along with any
// intermediate directories when it does not exist yet.
func loadLedgerDB(params *chaincfg.Params) (database.DB, error) {
	dbPath := ledgerDbPath()

	// The regression test is special in that it needs a clean database for
	// each run, so remove it now if it already exists.
	if err := removeRegressionDB(dbPath); err != nil {
		return nil, err
	}

	scldLog.Infof("Loading ledger database from '%s'", dbPath)
	db, err := database.Open(ledgerDbType, dbPath, params.Net)
	if err != nil {
		// Return the error if it's not because the database doesn't exist.
		if !errors.Is(err, database.ErrDbDoesNotExist) {
			return nil, err
		}

		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, err
		}
		db, err = database.Create(ledgerDbType, dbPath, params.Net)
		if err != nil {
			return nil, err
		}
	}

	scldLog.Info("Ledger database loaded")
	return db, nil
}

// readImportBlock reads the next block from a file of serialized blocks.  Each
// block is prefixed by the network and its size, both as little endian
// uint32.  It returns io.EOF once the file is exhausted.
func readImportBlock(r io.Reader, net wire.CurrencyNet) (*scwire.MsgBlock, error) {
	var prefix [8]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.New("truncated block prefix")
		}
		return nil, err
	}
	if blockNet := wire.CurrencyNet(binary.LittleEndian.Uint32(prefix[:4])); blockNet != net {
		return nil, fmt.Errorf("block is for network %v instead of %v",
			blockNet, net)
	}
	size := binary.LittleEndian.Uint32(prefix[4:])
	if size > maxImportBlockSize {
		return nil, fmt.Errorf("block size of %d exceeds the maximum of %d",
			size, maxImportBlockSize)
	}

	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("truncated block: %w", err)
	}
	var block scwire.MsgBlock
	if err := block.FromBytes(b); err != nil {
		return nil, err
	}
	return &block, nil
}

// importBlocks processes every block of the import file.  Blocks the ledger
// already connected are skipped.
func importBlocks(ctx context.Context, n *node.Node, path string, net wire.CurrencyNet) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scldLog.Infof("Importing blocks from %q", path)
	r := bufio.NewReader(f)
	var imported, skipped int
	for !shutdownRequested(ctx) {
		block, err := readImportBlock(r, net)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("import failed after %d blocks: %w", imported,
				err)
		}

		height := int64(block.Header.Height)
		if height <= n.Ledger().BestSnapshot().Height {
			skipped++
			continue
		}
		if err := n.ProcessBlock(block); err != nil {
			return fmt.Errorf("import failed at height %d: %w", height, err)
		}
		imported++
	}

	scldLog.Infof("Imported %d blocks (%d already connected)", imported,
		skipped)
	return nil
}

// writeBlock appends the block to w in the import file format.
func writeBlock(w io.Writer, block *scwire.MsgBlock, net wire.CurrencyNet) error {
	b, err := block.Bytes()
	if err != nil {
		return err
	}
	var prefix [8]byte
	binary.LittleEndian.PutUint32(prefix[:4], uint32(net))
	binary.LittleEndian.PutUint32(prefix[4:], uint32(len(b)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// dumpBlocks writes the blocks of the ledger to the file in the import file
// format.
func dumpBlocks(l *sidechain.Ledger, path string, net wire.CurrencyNet) error {
	scldLog.Infof("Writing the ledger blocks to flat file %q.  This might "+
		"take a while...", path)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)

	progressLogger := progresslog.New("Wrote", scldLog)
	tipHeight := l.BestSnapshot().Height
	for height := l.StartHeight(); height <= tipHeight; height++ {
		block, err := l.BlockByHeight(height)
		if err != nil {
			return err
		}
		if err := writeBlock(w, block, net); err != nil {
			return err
		}
		progressLogger.LogProgress(block, height == tipHeight)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	scldLog.Infof("Successfully dumped the ledger (%d blocks) to %v",
		tipHeight-l.StartHeight()+1, path)
	return nil
}
