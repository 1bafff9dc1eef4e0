// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// fakeOracle is a canned network view for confirmation poll tests.
type fakeOracle struct {
	hashes map[uint32]string
	confs  map[string]int64
	calls  int
}

func (o *fakeOracle) GetBlockHashAtHeight(_ context.Context, height uint32) (string, error) {
	o.calls++
	return o.hashes[height], nil
}

func (o *fakeOracle) GetBlockConfirmations(_ context.Context, blockHash string) (int64, error) {
	return o.confs[blockHash], nil
}

func (o *fakeOracle) ValidateAddress(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func TestPollBlocksIgnoredHeight(t *testing.T) {
	db, err := InitBoltDB(filepath.Join(t.TempDir(), "hub.kv"))
	if err != nil {
		t.Fatalf("unable to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	oracle := &fakeOracle{
		hashes: map[uint32]string{100: "hash"},
		confs:  map[string]int64{"hash": 1},
	}
	h, err := NewHub(&HubConfig{
		DB:                 db,
		Oracle:             oracle,
		PoolInstance:       "testpool",
		DiffMultiplier:     2,
		BlockConfirmations: 6,
		PollInterval:       time.Minute,
	})
	if err != nil {
		t.Fatalf("unable to create hub: %v", err)
	}
	_, err = h.InsertWorkUnit(1, "1d00ffff", testCoinbase(100))
	if err != nil {
		t.Fatalf("unable to insert work unit: %v", err)
	}
	_, err = h.RegisterBlock(100, "hash", 1, testReward, "a1", "w1")
	if err != nil {
		t.Fatalf("unable to register block: %v", err)
	}

	// An ignored height is never polled against the oracle.
	h.IgnoreHeight(100, true)
	h.pollBlocks(context.Background())
	if oracle.calls != 0 {
		t.Fatalf("expected no oracle calls for an ignored height, got %d",
			oracle.calls)
	}

	h.IgnoreHeight(100, false)
	h.pollBlocks(context.Background())
	if oracle.calls != 1 {
		t.Fatalf("expected 1 oracle call after unignoring, got %d",
			oracle.calls)
	}

	// One confirmation is below the threshold, so the block stays new.
	block, err := h.FindBlockAtHeight(100)
	if err != nil {
		t.Fatalf("unable to find block: %v", err)
	}
	if block.Status != BlockNew {
		t.Fatalf("expected the block to stay new, got %s", block.Status)
	}
}
