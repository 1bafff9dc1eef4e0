// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"testing"

	"github.com/ctubio/ckpool-sub002/errors"
)

func TestRecordShare(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 3)

	// Shares against an unknown work unit are a hard error.
	err := l.shareMgr.RecordShare("a1", "w1", 9, 1.0, ShareAccepted)
	if !errors.Is(err, errors.WorkUnitNotFound) {
		t.Fatalf("expected a work unit not found error, got %v", err)
	}

	err = l.shareMgr.RecordShare("a1", "w1", 1, 1.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	err = l.shareMgr.RecordShare("a1", "w1", 1, 2.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	err = l.shareMgr.RecordShare("a1", "w1", 1, 0.5, ShareStale)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}

	summary := l.shares.fetchCurrent("a1", "w1")
	if summary == nil {
		t.Fatal("expected a current summary for a1/w1")
	}
	if summary.DiffAccepted != 3.0 {
		t.Fatalf("expected accepted difficulty 3.0, got %v",
			summary.DiffAccepted)
	}
	if summary.DiffStale != 0.5 {
		t.Fatalf("expected stale difficulty 0.5, got %v", summary.DiffStale)
	}
	if summary.ShareCount != 2 || summary.ErrorCount != 1 {
		t.Fatalf("expected 2 shares and 1 error, got %d and %d",
			summary.ShareCount, summary.ErrorCount)
	}
	if summary.LastDiff != 2.0 {
		t.Fatalf("expected last difficulty 2.0, got %v", summary.LastDiff)
	}

	// A duplicate share is accounted for but reported.
	err = l.shareMgr.RecordShare("a1", "w1", 1, 1.0, ShareDuplicate)
	if !errors.Is(err, errors.DuplicateShare) {
		t.Fatalf("expected a duplicate share error, got %v", err)
	}
	if summary.DiffDuplicate != 1.0 {
		t.Fatalf("expected duplicate difficulty 1.0, got %v",
			summary.DiffDuplicate)
	}
	if summary.RejectedTotal() != 1.5 {
		t.Fatalf("expected rejected total 1.5, got %v",
			summary.RejectedTotal())
	}

	// A share against a newer work unit retires the running summary and
	// starts a fresh one.
	err = l.shareMgr.RecordShare("a1", "w1", 2, 1.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	if summary.Status != SummaryComplete {
		t.Fatalf("expected the retired summary to be complete, got %s",
			summary.Status)
	}
	current := l.shares.fetchCurrent("a1", "w1")
	if current == nil || current.WorkUnitID != 2 {
		t.Fatal("expected a fresh current summary on work unit 2")
	}

	status := l.state.FetchWorkerStatus("a1", "w1")
	if status == nil || status.SharesShift != 3 || status.ErrorsShift != 2 {
		t.Fatalf("unexpected worker status: %+v", status)
	}
}

func TestSealCompletedUnits(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 3)

	for unit := uint64(1); unit <= 3; unit++ {
		err := l.shareMgr.RecordShare("a1", "w1", unit, 1.0, ShareAccepted)
		if err != nil {
			t.Fatalf("unable to record share: %v", err)
		}
	}

	// Sealing up to unit 3 seals the summaries of units 1 and 2, leaving
	// the live summary on unit 3 accumulating.
	sealed, err := l.shareMgr.SealCompletedUnits(3)
	if err != nil {
		t.Fatalf("unable to seal completed units: %v", err)
	}
	if sealed != 2 {
		t.Fatalf("expected 2 sealed summaries, got %d", sealed)
	}

	l.shares.rangeWorkUnits(1, 2, func(s *ShareSummary) bool {
		if s.Status != SummaryConfirmed {
			t.Fatalf("expected summary %s to be confirmed, got %s", s.UUID,
				s.Status)
		}
		return true
	})
	live := l.shares.fetchCurrent("a1", "w1")
	if live.Status != SummaryNew {
		t.Fatalf("expected the live summary to stay new, got %s",
			live.Status)
	}

	// Sealing is idempotent.
	sealed, err = l.shareMgr.SealCompletedUnits(3)
	if err != nil {
		t.Fatalf("unable to reseal: %v", err)
	}
	if sealed != 0 {
		t.Fatalf("expected no additional sealed summaries, got %d", sealed)
	}
}

func TestRecordShareProcessedUnit(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 3)

	err := l.shareMgr.RecordShare("a1", "w1", 1, 1.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	err = l.shareMgr.RecordShare("a1", "w1", 2, 1.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	_, err = l.shareMgr.SealCompletedUnits(3)
	if err != nil {
		t.Fatalf("unable to seal completed units: %v", err)
	}
	marker, err := l.workMgr.SealMarker(1, 2, "rolled")
	if err != nil {
		t.Fatalf("unable to seal marker: %v", err)
	}
	err = l.workMgr.ProcessMarker(marker.MarkerID)
	if err != nil {
		t.Fatalf("unable to process marker: %v", err)
	}

	// A straggler against a work unit already rolled into a processed
	// marker would create a summary the rollup can never account for.
	err = l.shareMgr.RecordShare("a1", "w1", 2, 1.0, ShareAccepted)
	if !errors.Is(err, errors.MarkerProcessed) {
		t.Fatalf("expected a marker processed error, got %v", err)
	}
	if l.shares.fetchCurrent("a1", "w1") != nil {
		t.Fatal("expected no current summary after the rejected straggler")
	}

	// Units above the processed range still accept shares.
	err = l.shareMgr.RecordShare("a1", "w1", 3, 1.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
}
