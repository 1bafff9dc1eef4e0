// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"testing"
)

func TestBlockLifecycle(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 3)

	err := l.shareMgr.RecordShare("a1", "w1", 3, 2.5, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}

	block, err := l.chain.RegisterBlock(100, "hash100", 3, 5_000_000_000,
		"a1", "w1")
	if err != nil {
		t.Fatalf("unable to register block: %v", err)
	}
	if block.Status != BlockNew {
		t.Fatalf("expected a new block, got %s", block.Status)
	}
	if block.RoundDiff != 2.5 {
		t.Fatalf("expected round difficulty 2.5, got %v", block.RoundDiff)
	}

	// Registering a block zeroes the round totals.
	accepted, _ := l.state.RoundTotals()
	if accepted != 0 {
		t.Fatalf("expected zeroed round totals, got %v", accepted)
	}

	// Below the confirmation threshold nothing happens.
	next, err := l.chain.UpdateBlock(block, "hash100", 3)
	if err != nil {
		t.Fatalf("unable to update block: %v", err)
	}
	if next != nil {
		t.Fatalf("expected no transition, got %+v", next)
	}

	confirmed, err := l.chain.UpdateBlock(block, "hash100", 6)
	if err != nil {
		t.Fatalf("unable to confirm block: %v", err)
	}
	if confirmed == nil || confirmed.Status != BlockConfirmed {
		t.Fatalf("expected a confirmed block, got %+v", confirmed)
	}
	if block.ExpiredOn == NeverExpires {
		t.Fatal("expected the old version to be expired")
	}

	deep, err := l.chain.UpdateBlock(confirmed, "hash100", DeepConfThreshold)
	if err != nil {
		t.Fatalf("unable to deep confirm block: %v", err)
	}
	if deep == nil || deep.Status != BlockDeepConfirmed {
		t.Fatalf("expected a deep confirmed block, got %+v", deep)
	}

	// Deep confirmed blocks are terminal.
	next, err = l.chain.UpdateBlock(deep, "otherhash", 0)
	if err != nil {
		t.Fatalf("unexpected error on terminal block: %v", err)
	}
	if next != nil {
		t.Fatalf("expected no transition on a terminal block, got %+v", next)
	}

	// The full version history is preserved at the height.
	versions := l.blocks.versionsAtHeight(100)
	if len(versions) != 3 {
		t.Fatalf("expected 3 block versions, got %d", len(versions))
	}
	if l.blocks.currentAtHeight(100).Status != BlockDeepConfirmed {
		t.Fatal("expected the deep confirmed version to be current")
	}
}

func TestBlockOrphaned(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 2)

	block, err := l.chain.RegisterBlock(50, "hash50", 2, 5_000_000_000,
		"a1", "w1")
	if err != nil {
		t.Fatalf("unable to register block: %v", err)
	}

	// A differing network hash orphans the block regardless of the
	// reported confirmation count.
	orphaned, err := l.chain.UpdateBlock(block, "competinghash", 10)
	if err != nil {
		t.Fatalf("unable to orphan block: %v", err)
	}
	if orphaned == nil || orphaned.Status != BlockOrphaned {
		t.Fatalf("expected an orphaned block, got %+v", orphaned)
	}

	next, err := l.chain.UpdateBlock(orphaned, "hash50", 10)
	if err != nil {
		t.Fatalf("unexpected error on terminal block: %v", err)
	}
	if next != nil {
		t.Fatalf("expected no transition on an orphaned block, got %+v", next)
	}
}

func TestBlockStatsCache(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 4)
	cache := NewBlockStatsCache(l.blocks)

	err := l.shareMgr.RecordShare("a1", "w1", 1, 0.5, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	b1, err := l.chain.RegisterBlock(10, "hash10", 1, 1, "a1", "w1")
	if err != nil {
		t.Fatalf("unable to register block: %v", err)
	}

	stats := cache.Stats()
	if stats.Found != 1 {
		t.Fatalf("expected 1 found block, got %d", stats.Found)
	}
	// Half the expected difficulty was spent, luck is 2.
	if stats.MeanLuck != 2.0 {
		t.Fatalf("expected mean luck 2.0, got %v", stats.MeanLuck)
	}
	if stats.LuckCDF <= 0 || stats.LuckCDF >= 1 {
		t.Fatalf("expected luck CDF in (0, 1), got %v", stats.LuckCDF)
	}

	// The cached statistics revalidate when block versions change.
	gen := l.blocks.generation()
	_, err = l.chain.UpdateBlock(b1, "otherhash", 0)
	if err != nil {
		t.Fatalf("unable to orphan block: %v", err)
	}
	if l.blocks.generation() == gen {
		t.Fatal("expected the index generation to advance")
	}
	stats = cache.Stats()
	if stats.Orphaned != 1 {
		t.Fatalf("expected 1 orphaned block, got %d", stats.Orphaned)
	}
	if stats.MeanLuck != 0 {
		t.Fatalf("expected no luck statistics over orphans, got %v",
			stats.MeanLuck)
	}
}
