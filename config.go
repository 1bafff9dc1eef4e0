// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "poolledger.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "log"
	defaultLogFilename    = "poolledger.log"
	defaultDBFilename     = "poolledger.kv"
	defaultLogLevel       = "info"
	defaultPoolFee        = 0.01
	defaultDiffMultiplier = 2.0
	defaultDiffOffset     = 0.0
	defaultConfirmations  = 6
	defaultPollInterval   = time.Second * 30
	defaultPostgresHost   = "127.0.0.1"
	defaultPostgresPort   = 5432
	defaultPostgresUser   = "poolledger"
	defaultPostgresDBName = "poolledgerdb"
)

var (
	defaultHomeDir    = appDataDir("poolledger")
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
	defaultDBFile     = filepath.Join(defaultDataDir, defaultDBFilename)
)

// config defines the configuration options for the pool ledger.
type config struct {
	HomeDir        string        `long:"appdata" ini-name:"appdata" description:"Path to application home directory."`
	ConfigFile     string        `long:"configfile" ini-name:"configfile" description:"Path to configuration file."`
	DataDir        string        `long:"datadir" ini-name:"datadir" description:"The data directory."`
	LogDir         string        `long:"logdir" ini-name:"logdir" description:"Directory to log output."`
	DebugLevel     string        `long:"debuglevel" ini-name:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}. You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems."`
	DBFile         string        `long:"dbfile" ini-name:"dbfile" description:"Path of the bolt database file."`
	Postgres       bool          `long:"postgres" ini-name:"postgres" description:"Use postgres instead of bolt for storage."`
	PostgresHost   string        `long:"postgreshost" ini-name:"postgreshost" description:"Host of the postgres database."`
	PostgresPort   uint32        `long:"postgresport" ini-name:"postgresport" description:"Port of the postgres database."`
	PostgresUser   string        `long:"postgresuser" ini-name:"postgresuser" description:"User of the postgres database."`
	PostgresPass   string        `long:"postgrespass" ini-name:"postgrespass" description:"Pass of the postgres database."`
	PostgresDBName string        `long:"postgresdbname" ini-name:"postgresdbname" description:"Name of the postgres database."`
	NodeRPCURL     string        `long:"noderpcurl" ini-name:"noderpcurl" description:"HTTP JSON-RPC endpoint of the full node."`
	RPCUser        string        `long:"rpcuser" ini-name:"rpcuser" description:"Username for node RPC connections."`
	RPCPass        string        `long:"rpcpass" ini-name:"rpcpass" description:"Password for node RPC connections."`
	PoolInstance   string        `long:"poolinstance" ini-name:"poolinstance" description:"Identifier of this pool instance on created work units."`
	PoolFee        float64       `long:"poolfee" ini-name:"poolfee" description:"The fee charged by the pool, eg. 0.01 (1%)."`
	DiffMultiplier float64       `long:"diffmultiplier" ini-name:"diffmultiplier" description:"Multiple of the network difficulty a payout reaches back over."`
	DiffOffset     float64       `long:"diffoffset" ini-name:"diffoffset" description:"Difficulty added to the payout window after scaling."`
	AllowAged      bool          `long:"allowaged" ini-name:"allowaged" description:"Permit payouts over completed but unverified share summaries."`
	Confirmations  int64         `long:"confirmations" ini-name:"confirmations" description:"Block confirmations required before a payout is computed."`
	PollInterval   time.Duration `long:"pollinterval" ini-name:"pollinterval" description:"Period of the block confirmation poll."`
	Profile        string        `long:"profile" ini-name:"profile" description:"Enable HTTP profiling on given [addr:]port."`
	ShowVersion    bool          `short:"V" long:"version" description:"Display version information and exit."`
}

// appDataDir returns an operating system specific directory to be used for
// storing application data.
func appDataDir(appName string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, "."+appName)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = strings.Replace(path, "~", homeDir, 1)
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	_, err := os.Stat(name)
	return !os.IsNotExist(err)
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings.
//  2. Pre-parse the command line to check for an alternative config file.
//  3. Load configuration file overwriting defaults with any specified
//     options.
//  4. Parse CLI options and overwrite/add any specified options.
func loadConfig() (*config, []string, error) {
	cfg := config{
		HomeDir:        defaultHomeDir,
		ConfigFile:     defaultConfigFile,
		DataDir:        defaultDataDir,
		LogDir:         defaultLogDir,
		DBFile:         defaultDBFile,
		DebugLevel:     defaultLogLevel,
		PostgresHost:   defaultPostgresHost,
		PostgresPort:   defaultPostgresPort,
		PostgresUser:   defaultPostgresUser,
		PostgresDBName: defaultPostgresDBName,
		PoolFee:        defaultPoolFee,
		DiffMultiplier: defaultDiffMultiplier,
		DiffOffset:     defaultDiffOffset,
		Confirmations:  defaultConfirmations,
		PollInterval:   defaultPollInterval,
	}

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		return nil, nil, err
	}

	appName := filepath.Base(os.Args[0])
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s)\n", appName, version(),
			goVersion())
		os.Exit(0)
	}

	if preCfg.HomeDir != defaultHomeDir {
		cfg.HomeDir = preCfg.HomeDir
		if preCfg.ConfigFile == defaultConfigFile {
			preCfg.ConfigFile = filepath.Join(cfg.HomeDir,
				defaultConfigFilename)
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		}
		if preCfg.DBFile == defaultDBFile {
			cfg.DBFile = filepath.Join(cfg.DataDir, defaultDBFilename)
		}
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if fileExists(preCfg.ConfigFile) {
		err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error parsing config file: %v\n", err)
			return nil, nil, err
		}
	}

	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
		}
		return nil, nil, err
	}

	cfg.HomeDir = cleanAndExpandPath(cfg.HomeDir)
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.DBFile = cleanAndExpandPath(cfg.DBFile)

	const funcName = "loadConfig"
	err = os.MkdirAll(cfg.HomeDir, 0700)
	if err != nil {
		err := fmt.Errorf("%s: failed to create home directory: %v",
			funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	err = os.MkdirAll(cfg.DataDir, 0700)
	if err != nil {
		err := fmt.Errorf("%s: failed to create data directory: %v",
			funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if !validLogLevel(defaultLogLevel) {
		return nil, nil, fmt.Errorf("unknown default log level %q",
			defaultLogLevel)
	}
	err = parseAndSetDebugLevels(cfg.DebugLevel)
	if err != nil {
		err := fmt.Errorf("%s: %v", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if cfg.PoolFee < 0 || cfg.PoolFee >= 1 {
		return nil, nil, fmt.Errorf("poolfee must be in [0, 1), got %v",
			cfg.PoolFee)
	}
	if cfg.DiffMultiplier <= 0 {
		return nil, nil, fmt.Errorf("diffmultiplier must be positive, "+
			"got %v", cfg.DiffMultiplier)
	}
	if cfg.Confirmations < 1 {
		return nil, nil, fmt.Errorf("confirmations must be at least 1, "+
			"got %d", cfg.Confirmations)
	}
	if cfg.NodeRPCURL != "" {
		_, err := url.Parse(cfg.NodeRPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid noderpcurl: %v", err)
		}
	}
	if cfg.PoolInstance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "poolledger"
		}
		cfg.PoolInstance = host
	}

	return &cfg, remainingArgs, nil
}
