// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// shutdownListener creates a context cancelled on receipt of an interrupt or
// termination signal.
func shutdownListener() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-interrupt:
			mainLog.Infof("received signal (%s), shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(interrupt)
	}()

	return ctx, cancel
}
