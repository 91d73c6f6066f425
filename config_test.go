// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// loadTestConfig loads the configuration with the provided command line
// arguments and a home directory in a temporary directory.
func loadTestConfig(t *testing.T, args ...string) (*config, error) {
	t.Helper()

	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	appData := t.TempDir()
	os.Args = append([]string{"scledgerd", "--appdata=" + appData,
		"--nofilelogging"}, args...)
	cfg, _, err := loadConfig("scledgerd")
	return cfg, err
}

// TestLoadConfigDefaults ensures the defaults are applied per network.
func TestLoadConfigDefaults(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		net      string
		maturity int64
	}{{
		name:     "mainnet",
		net:      mainNetParams.Name,
		maturity: 10,
	}, {
		name:     "testnet",
		args:     []string{"--testnet"},
		net:      testNet3Params.Name,
		maturity: 10,
	}, {
		name:     "simnet",
		args:     []string{"--simnet"},
		net:      simNetParams.Name,
		maturity: 2,
	}, {
		name:     "regnet",
		args:     []string{"--regnet"},
		net:      regNetParams.Name,
		maturity: 2,
	}, {
		name:     "simnet with maturity override",
		args:     []string{"--simnet", "--sccoinsmaturity=7"},
		net:      simNetParams.Name,
		maturity: 7,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := loadTestConfig(t, test.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.params.Name != test.net {
				t.Fatalf("unexpected network %q, want %q", cfg.params.Name,
					test.net)
			}
			if cfg.ScCoinsMaturity != test.maturity {
				t.Fatalf("unexpected maturity %d, want %d",
					cfg.ScCoinsMaturity, test.maturity)
			}
			if filepath.Base(cfg.DataDir) != test.net {
				t.Fatalf("data dir %q is not namespaced by network",
					cfg.DataDir)
			}
			if cfg.StartHeight != 1 || cfg.startHash != cfg.params.GenesisHash {
				t.Fatalf("unexpected start %d %v", cfg.StartHeight,
					cfg.startHash)
			}
		})
	}
}

// TestLoadConfigErrors ensures invalid option combinations are rejected.
func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{{
		name: "multiple networks",
		args: []string{"--testnet", "--simnet"},
		want: "can't be used together",
	}, {
		name: "negative maturity",
		args: []string{"--sccoinsmaturity=-1"},
		want: "coins maturity must be positive",
	}, {
		name: "zero start height",
		args: []string{"--startheight=0"},
		want: "start height must be at least 1",
	}, {
		name: "start height without hash",
		args: []string{"--startheight=100"},
		want: "--starthash option is required",
	}, {
		name: "malformed start hash",
		args: []string{"--startheight=100", "--starthash=xyz"},
		want: "invalid start hash",
	}, {
		name: "index kept and dropped",
		args: []string{"--txindex", "--droptxindex"},
		want: "may not be activated at the same time",
	}, {
		name: "invalid debug level",
		args: []string{"--debuglevel=loud"},
		want: "is invalid",
	}, {
		name: "invalid subsystem",
		args: []string{"--debuglevel=XXXX=debug"},
		want: "subsystem [XXXX] is invalid",
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := loadTestConfig(t, test.args...)
			if err == nil {
				t.Fatal("did not receive expected error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Fatalf("unexpected error %q, want it to contain %q", err,
					test.want)
			}
		})
	}
}

// TestLoadConfigStartHash ensures a ledger may begin after the genesis block.
func TestLoadConfigStartHash(t *testing.T) {
	const hashStr = "6f1ce1b0f8de38c0d3ec4bb1bcbd6bba07f25de83c9fda3b1ff7e2d3aca6b1c4"
	cfg, err := loadTestConfig(t, "--startheight=500", "--starthash="+hashStr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := chainhash.NewHashFromStr(hashStr)
	if cfg.StartHeight != 500 || cfg.startHash != *want {
		t.Fatalf("unexpected start %d %v", cfg.StartHeight, cfg.startHash)
	}
}

// TestLoadConfigFile ensures a default config file is created on first start
// and that options from a config file are overridden by the command line.
func TestLoadConfigFile(t *testing.T) {
	appData := t.TempDir()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"scledgerd", "--appdata=" + appData, "--nofilelogging"}
	if _, _, err := loadConfig("scledgerd"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	confFile := filepath.Join(appData, defaultConfigFilename)
	if _, err := os.Stat(confFile); err != nil {
		t.Fatalf("default config file not created: %v", err)
	}

	conf := "[Application Options]\nsimnet=1\ntxindex=1\nsccoinsmaturity=5\n"
	if err := os.WriteFile(confFile, []byte(conf), 0600); err != nil {
		t.Fatalf("unable to write config file: %v", err)
	}
	os.Args = []string{"scledgerd", "--appdata=" + appData, "--nofilelogging",
		"--sccoinsmaturity=3"}
	cfg, _, err := loadConfig("scledgerd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.SimNet || !cfg.TxIndex || cfg.ScCoinsMaturity != 3 {
		t.Fatalf("unexpected config: simnet %v, txindex %v, maturity %d",
			cfg.SimNet, cfg.TxIndex, cfg.ScCoinsMaturity)
	}
}
