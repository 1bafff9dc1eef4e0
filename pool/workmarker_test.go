// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"testing"

	"github.com/ctubio/ckpool-sub002/errors"
)

func TestGenerateMarkers(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 10)

	// No marks, nothing to do.
	created, err := l.workMgr.GenerateMarkers()
	if err != nil {
		t.Fatalf("unable to generate markers: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no markers, got %d", created)
	}

	// The first mark becomes the base of the sequence without sealing a
	// marker of its own.
	_, err = l.workMgr.PlaceMark(3, "base")
	if err != nil {
		t.Fatalf("unable to place mark: %v", err)
	}
	created, err = l.workMgr.GenerateMarkers()
	if err != nil {
		t.Fatalf("unable to generate markers: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no markers from the base mark, got %d", created)
	}

	_, err = l.workMgr.PlaceMark(6, "block 100")
	if err != nil {
		t.Fatalf("unable to place mark: %v", err)
	}
	_, err = l.workMgr.PlaceMark(9, "shift change")
	if err != nil {
		t.Fatalf("unable to place mark: %v", err)
	}
	created, err = l.workMgr.GenerateMarkers()
	if err != nil {
		t.Fatalf("unable to generate markers: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 markers, got %d", created)
	}

	first := l.markers.fetchCurrent(6)
	if first == nil || first.WorkUnitIDStart != 4 || first.WorkUnitIDEnd != 6 {
		t.Fatalf("unexpected first marker: %+v", first)
	}
	second := l.markers.fetchCurrent(9)
	if second == nil || second.WorkUnitIDStart != 7 || second.WorkUnitIDEnd != 9 {
		t.Fatalf("unexpected second marker: %+v", second)
	}

	// Regeneration is idempotent.
	created, err = l.workMgr.GenerateMarkers()
	if err != nil {
		t.Fatalf("unable to regenerate markers: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no additional markers, got %d", created)
	}

	// Marks placed without a gap extend the sequence on the next run.
	_, err = l.workMgr.PlaceMark(10, "manual")
	if err != nil {
		t.Fatalf("unable to place mark: %v", err)
	}
	created, err = l.workMgr.GenerateMarkers()
	if err != nil {
		t.Fatalf("unable to generate markers: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 marker, got %d", created)
	}
	third := l.markers.fetchCurrent(10)
	if third == nil || third.WorkUnitIDStart != 10 || third.WorkUnitIDEnd != 10 {
		t.Fatalf("unexpected third marker: %+v", third)
	}
}

func TestSealMarkerOverlap(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 10)

	_, err := l.workMgr.SealMarker(1, 4, "first window")
	if err != nil {
		t.Fatalf("unable to seal marker: %v", err)
	}

	// Any intersection with a current marker is rejected.
	_, err = l.workMgr.SealMarker(3, 6, "overlapping window")
	if !errors.Is(err, errors.MarkerOverlap) {
		t.Fatalf("expected a marker overlap error, got %v", err)
	}
	_, err = l.workMgr.SealMarker(4, 4, "boundary reuse")
	if !errors.Is(err, errors.MarkerOverlap) {
		t.Fatalf("expected a marker overlap error, got %v", err)
	}

	// A marker boundary must name existing work units.
	_, err = l.workMgr.SealMarker(5, 20, "missing end")
	if !errors.Is(err, errors.WorkUnitNotFound) {
		t.Fatalf("expected a work unit not found error, got %v", err)
	}

	_, err = l.workMgr.SealMarker(5, 8, "second window")
	if err != nil {
		t.Fatalf("unable to seal adjacent marker: %v", err)
	}
}

func TestProcessMarker(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 5)

	for unit := uint64(1); unit <= 4; unit++ {
		err := l.shareMgr.RecordShare("a1", "w1", unit, 1.0, ShareAccepted)
		if err != nil {
			t.Fatalf("unable to record share: %v", err)
		}
		err = l.shareMgr.RecordShare("a2", "w1", unit, 2.0, ShareAccepted)
		if err != nil {
			t.Fatalf("unable to record share: %v", err)
		}
	}
	_, err := l.shareMgr.SealCompletedUnits(5)
	if err != nil {
		t.Fatalf("unable to seal completed units: %v", err)
	}

	marker, err := l.workMgr.SealMarker(1, 3, "first window")
	if err != nil {
		t.Fatalf("unable to seal marker: %v", err)
	}

	// Processing an unknown marker is rejected.
	err = l.workMgr.ProcessMarker(99)
	if !errors.Is(err, errors.MarkerNotFound) {
		t.Fatalf("expected a marker not found error, got %v", err)
	}

	err = l.workMgr.ProcessMarker(marker.MarkerID)
	if err != nil {
		t.Fatalf("unable to process marker: %v", err)
	}

	current := l.markers.fetchCurrent(marker.MarkerID)
	if current == nil || current.Status != MarkerProcessed {
		t.Fatalf("expected a processed current marker, got %+v", current)
	}

	// One rollup per worker stream, difficulty conserved.
	rollups := make(map[string]*MarkerSummary)
	l.msums.forMarker(marker.MarkerID, func(ms *MarkerSummary) bool {
		rollups[ms.AccountID] = ms
		return true
	})
	if len(rollups) != 2 {
		t.Fatalf("expected 2 marker summaries, got %d", len(rollups))
	}
	if rollups["a1"].DiffAccepted != 3.0 {
		t.Fatalf("expected rollup difficulty 3.0 for a1, got %v",
			rollups["a1"].DiffAccepted)
	}
	if rollups["a2"].DiffAccepted != 6.0 {
		t.Fatalf("expected rollup difficulty 6.0 for a2, got %v",
			rollups["a2"].DiffAccepted)
	}

	// The source rows are retired but retained as history.
	retained := 0
	l.shares.rangeWorkUnits(1, 3, func(s *ShareSummary) bool {
		retained++
		if s.ExpiredOn == NeverExpires {
			t.Fatalf("expected summary %s to be retired", s.UUID)
		}
		return true
	})
	if retained != 6 {
		t.Fatalf("expected 6 retained summary rows, got %d", retained)
	}

	// Rows outside the marker range stay current.
	l.shares.rangeWorkUnits(4, 4, func(s *ShareSummary) bool {
		if s.ExpiredOn != NeverExpires {
			t.Fatalf("expected summary %s to stay current", s.UUID)
		}
		return true
	})

	// A processed marker is processed exactly once.
	err = l.workMgr.ProcessMarker(marker.MarkerID)
	if !errors.Is(err, errors.MarkerProcessed) {
		t.Fatalf("expected a marker processed error, got %v", err)
	}
}
