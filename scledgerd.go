// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/decred/scledger/internal/indexers"
	"github.com/decred/scledger/internal/mempool"
	"github.com/decred/scledger/internal/metrics"
	"github.com/decred/scledger/internal/node"
	"github.com/decred/scledger/internal/verifier"
	"github.com/decred/scledger/internal/version"
)

var cfg *config

// scledgerdMain is the real main function for scledgerd.  It is necessary to
// work around the fact that deferred functions do not run when os.Exit() is
// called.
func scledgerdMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	tcfg, _, err := loadConfig(appName)
	if err != nil {
		usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
		fmt.Fprintln(os.Stderr, err)
		var e errSuppressUsage
		if !errors.As(err, &e) {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem.
	ctx := shutdownListener()
	defer scldLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	scldLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	scldLog.Infof("Home dir: %s", cfg.HomeDir)
	if cfg.NoFileLogging {
		scldLog.Info("File logging disabled")
	}

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Load the ledger database.
	db, err := loadLedgerDB(cfg.params.Params)
	if err != nil {
		scldLog.Errorf("%v", err)
		return err
	}
	defer func() {
		// Ensure the database is sync'd and closed on shutdown.
		scldLog.Infof("Gracefully shutting down the ledger database...")
		db.Close()
	}()

	// Drop the transaction index and exit if requested.
	if cfg.DropTxIndex {
		if err := indexers.DropTxIndex(ctx, db); err != nil {
			scldLog.Errorf("%v", err)
			return err
		}
		return nil
	}

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	m := metrics.New()
	n, err := node.New(ctx, &node.Config{
		DB:             db,
		ChainParams:    cfg.params.Params,
		MaturityDelay:  cfg.ScCoinsMaturity,
		TxIndex:        cfg.TxIndex,
		ProofCacheSize: cfg.ProofCacheSize,
		StartHeight:    cfg.StartHeight,
		StartHash:      cfg.startHash,
		Verifier:       verifier.New(),
		Policy: mempool.Policy{
			MaxObjects:              cfg.MaxPoolObjects,
			RecentlyMinedFilterSize: mempool.DefaultRecentlyMinedFilterSize,
		},
		Metrics: m,
	})
	if err != nil {
		// The error is not logged when a shutdown interrupted index
		// catch up.
		if errors.Is(err, indexers.ErrInterruptRequested) {
			return nil
		}
		scldLog.Errorf("Unable to start node: %v", err)
		return err
	}

	if cfg.DumpBlocks != "" {
		err := dumpBlocks(n.Ledger(), cfg.DumpBlocks, cfg.params.Net)
		if err != nil {
			scldLog.Errorf("%v", err)
			return err
		}
		return nil
	}

	if cfg.ImportFile != "" {
		err := importBlocks(ctx, n, cfg.ImportFile, cfg.params.Net)
		if err != nil {
			scldLog.Errorf("%v", err)
			return err
		}
	}

	if cfg.MetricsListen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsListen); err != nil {
				scldLog.Errorf("Metrics server: %v", err)
				requestShutdown()
			}
		}()
	}

	best := n.Ledger().BestSnapshot()
	scldLog.Infof("Ledger ready at height %d with %d sidechains (maturity "+
		"delay %d)", best.Height, best.NumSidechains, cfg.ScCoinsMaturity)

	// Wait until the shutdown signal has been triggered.
	<-ctx.Done()
	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := scledgerdMain(); err != nil {
		os.Exit(1)
	}
}
