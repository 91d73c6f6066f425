// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/scledger/internal/mempool"
	"github.com/decred/scledger/internal/sidechain"
	"github.com/decred/scledger/internal/version"
	"github.com/decred/scledger/sampleconfig"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "scledgerd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "scledgerd.log"
	defaultMaxLogRolls    = 3
	defaultStartHeight    = 1
	defaultProofCacheSize = sidechain.DefaultProofCacheSize
	defaultMaxPoolObjects = mempool.DefaultMaxObjects
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("scledgerd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for scledgerd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	// General application behavior.
	ShowVersion   bool   `short:"V" long:"version" description:"Display version information and exit"`
	HomeDir       string `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile    string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir       string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir        string `long:"logdir" description:"Directory to log output"`
	NoFileLogging bool   `long:"nofilelogging" description:"Disable file logging"`
	MaxLogRolls   int    `long:"maxlogrolls" description:"Maximum number of logs to keep when rotating logs"`
	DebugLevel    string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	// Network selection.
	TestNet bool `long:"testnet" description:"Use the test network"`
	SimNet  bool `long:"simnet" description:"Use the simulation test network"`
	RegNet  bool `long:"regnet" description:"Use the regression test network"`

	// Ledger settings.
	ScCoinsMaturity int64  `long:"sccoinsmaturity" description:"Number of blocks value sent to a sidechain remains immature (network default when 0)"`
	StartHeight     int64  `long:"startheight" description:"Main chain height of the first block processed by a new ledger"`
	StartHash       string `long:"starthash" description:"Hash of the main chain block preceding the start height (genesis hash when the start height is 1)"`
	ProofCacheSize  uint32 `long:"proofcachesize" description:"Number of certificate proof verification results to remember"`
	ImportFile      string `long:"importfile" description:"Process the serialized blocks in the file at startup"`
	DumpBlocks      string `long:"dumpblocks" description:"Write the blocks of the ledger to the file and exit"`

	// Indexes.
	TxIndex     bool `long:"txindex" description:"Maintain a full index of every confirmed transaction and certificate"`
	DropTxIndex bool `long:"droptxindex" description:"Deletes the transaction index from the database on start up and then exits"`

	// Pool and metrics.
	MaxPoolObjects int    `long:"maxpoolobjects" description:"Maximum number of unconfirmed objects to hold"`
	MetricsListen  string `long:"metricslisten" description:"Interface/port to serve prometheus metrics on"`

	params    *params
	startHash chainhash.Hash
}

// errSuppressUsage signifies that an error that happened during the initial
// configuration phase should suppress the usage output since it was not caused
// by the user.
type errSuppressUsage string

// Error implements the error interface.
func (e errSuppressUsage) Error() string {
	return string(e)
}

// cleanAndExpandPath expands environment variables and leading ~ in the passed
// path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser to
	// otheruser's home directory.  On Windows, both forms map to the current
	// user's home directory.
	var userName string
	if i := strings.Index(path, string(os.PathSeparator)); i != -1 {
		userName = path[1:i]
		path = path[i:]
	} else {
		userName = path[1:]
		path = ""
	}

	homeDir := ""
	var u *user.User
	var err error
	if userName == "" || runtime.GOOS == "windows" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err == nil {
		homeDir = u.HomeDir
	}
	// Fallback to CWD if user lookup fails or user has no home directory.
	if homeDir == "" {
		homeDir = "."
	}

	return filepath.Join(homeDir, path)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// createDefaultConfigFile creates the config file at the provided path with
// the commented sample contents.
func createDefaultConfigFile(destPath string) error {
	err := os.MkdirAll(filepath.Dir(destPath), 0700)
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(sampleconfig.Scledgerd()), 0600)
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in scledgerd functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig(appName string) (*config, []string, error) {
	// Default config.
	cfg := config{
		HomeDir:        defaultHomeDir,
		ConfigFile:     defaultConfigFile,
		DataDir:        defaultDataDir,
		LogDir:         defaultLogDir,
		MaxLogRolls:    defaultMaxLogRolls,
		DebugLevel:     defaultLogLevel,
		StartHeight:    defaultStartHeight,
		ProofCacheSize: defaultProofCacheSize,
		MaxPoolObjects: defaultMaxPoolObjects,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version.String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// Update the home directory for scledgerd if specified.  Since the home
	// directory is updated, other variables need to be updated to reflect
	// the new changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(cleanAndExpandPath(preCfg.HomeDir))

		if preCfg.ConfigFile == defaultConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
		} else {
			cfg.ConfigFile = cleanAndExpandPath(preCfg.ConfigFile)
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		} else {
			cfg.DataDir = cleanAndExpandPath(preCfg.DataDir)
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = cleanAndExpandPath(preCfg.LogDir)
		}
	}

	// Create a default config file when one does not exist and the user did
	// not specify an override.
	if preCfg.ConfigFile == defaultConfigFile && !fileExists(cfg.ConfigFile) {
		err := createDefaultConfigFile(cfg.ConfigFile)
		if err != nil {
			str := fmt.Sprintf("failed to create default config file: %v", err)
			return nil, nil, errSuppressUsage(str)
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cfg.ConfigFile)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			err = fmt.Errorf("error parsing config file: %w", err)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	cfg.params = &mainNetParams
	if cfg.TestNet {
		numNets++
		cfg.params = &testNet3Params
	}
	if cfg.SimNet {
		numNets++
		cfg.params = &simNetParams
	}
	if cfg.RegNet {
		numNets++
		cfg.params = &regNetParams
	}
	if numNets > 1 {
		str := "%s: the testnet, regnet, and simnet params can't be used " +
			"together -- choose one of the three"
		return nil, nil, fmt.Errorf(str, "loadConfig")
	}

	// Apply the network default maturity delay when none was specified.
	switch {
	case cfg.ScCoinsMaturity == 0:
		cfg.ScCoinsMaturity = cfg.params.scCoinsMaturity
	case cfg.ScCoinsMaturity < 0:
		str := "%s: the sidechain coins maturity must be positive -- " +
			"parsed [%d]"
		return nil, nil, fmt.Errorf(str, "loadConfig", cfg.ScCoinsMaturity)
	}

	if cfg.StartHeight < 1 {
		str := "%s: the start height must be at least 1 -- parsed [%d]"
		return nil, nil, fmt.Errorf(str, "loadConfig", cfg.StartHeight)
	}

	// The parent of the first block is the genesis block unless the ledger
	// begins later on the main chain.
	switch {
	case cfg.StartHash != "":
		hash, err := chainhash.NewHashFromStr(cfg.StartHash)
		if err != nil {
			str := "%s: invalid start hash %q: %w"
			return nil, nil, fmt.Errorf(str, "loadConfig", cfg.StartHash, err)
		}
		cfg.startHash = *hash
	case cfg.StartHeight == 1:
		cfg.startHash = cfg.params.GenesisHash
	default:
		str := "%s: the --starthash option is required with a start height " +
			"above 1"
		return nil, nil, fmt.Errorf(str, "loadConfig")
	}

	if cfg.MaxPoolObjects < 1 {
		str := "%s: the maximum number of pool objects must be positive " +
			"-- parsed [%d]"
		return nil, nil, fmt.Errorf(str, "loadConfig", cfg.MaxPoolObjects)
	}

	// The transaction index can't be dropped while it is requested.
	if cfg.DropTxIndex && cfg.TxIndex {
		str := "%s: the --txindex and --droptxindex options may not be " +
			"activated at the same time"
		return nil, nil, fmt.Errorf(str, "loadConfig")
	}

	// Append the network type to the data and log directories so they are
	// "namespaced" per network.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DataDir = filepath.Join(cfg.DataDir, cfg.params.Name)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.params.Name)
	cfg.ImportFile = cleanAndExpandPath(cfg.ImportFile)
	cfg.DumpBlocks = cleanAndExpandPath(cfg.DumpBlocks)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized, the
	// logger variables may be used.
	if !cfg.NoFileLogging {
		logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
		if err := initLogRotator(logFile, cfg.MaxLogRolls); err != nil {
			return nil, nil, errSuppressUsage(err.Error())
		}
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", "loadConfig", err)
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid options.
	if configFileError != nil {
		scldLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
