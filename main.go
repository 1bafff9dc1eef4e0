// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"sync"

	"github.com/ctubio/ckpool-sub002/chainrpc"
	"github.com/ctubio/ckpool-sub002/pool"
)

// realMain is the real main function for the pool ledger. It is necessary to
// work around the fact that deferred functions do not run when os.Exit is
// called.
func realMain() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	if cfg.Profile != "" {
		go func() {
			mainLog.Infof("creating profiling server listening on %s",
				cfg.Profile)
			err := http.ListenAndServe(cfg.Profile, nil)
			if err != nil {
				mainLog.Criticalf("unable to run profiler: %v", err)
			}
		}()
	}

	var db pool.Database
	if cfg.Postgres {
		db, err = pool.InitPostgresDB(cfg.PostgresHost, cfg.PostgresPort,
			cfg.PostgresUser, cfg.PostgresPass, cfg.PostgresDBName)
	} else {
		db, err = pool.InitBoltDB(cfg.DBFile)
	}
	if err != nil {
		mainLog.Errorf("failed to initialize database: %v", err)
		return err
	}
	defer func() {
		err := db.Close()
		if err != nil {
			mainLog.Errorf("failed to close database: %v", err)
		}
	}()

	oracle := chainrpc.NewClient(&chainrpc.ClientConfig{
		URL:  cfg.NodeRPCURL,
		User: cfg.RPCUser,
		Pass: cfg.RPCPass,
	})

	hub, err := pool.NewHub(&pool.HubConfig{
		DB:                 db,
		Oracle:             oracle,
		PoolInstance:       cfg.PoolInstance,
		PoolFee:            cfg.PoolFee,
		DiffMultiplier:     cfg.DiffMultiplier,
		DiffOffset:         cfg.DiffOffset,
		AllowAged:          cfg.AllowAged,
		BlockConfirmations: cfg.Confirmations,
		PollInterval:       cfg.PollInterval,
	})
	if err != nil {
		mainLog.Errorf("failed to initialize hub: %v", err)
		return err
	}

	ctx, cancel := shutdownListener()
	defer cancel()

	mainLog.Infof("version %s (Go version %s)", version(), goVersion())
	mainLog.Infof("home dir: %s", cfg.HomeDir)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		hub.Run(ctx)
		wg.Done()
	}()
	wg.Wait()
	return nil
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
