// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"strings"
	"testing"

	"github.com/ctubio/ckpool-sub002/errors"
)

const testReward = int64(100_000_000)

// registerTestBlock registers a block solved at the provided work unit.
func registerTestBlock(t *testing.T, l *testLedger, height uint32,
	workUnitID uint64) *Block {
	t.Helper()
	block, err := l.chain.RegisterBlock(height, "hash", workUnitID,
		testReward, "a1", "w1")
	if err != nil {
		t.Fatalf("unable to register block: %v", err)
	}
	return block
}

func TestProcessBlockProportional(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 4)

	// Unit network difficulty and a multiplier of two want 2.0 difficulty
	// reaching back from unit 4. Both accounts contribute 1.0 there, so
	// the window closes inside unit 4.
	for unit := uint64(2); unit <= 4; unit++ {
		for _, account := range []string{"a1", "a2"} {
			err := l.shareMgr.RecordShare(account, "w1", unit, 1.0,
				ShareAccepted)
			if err != nil {
				t.Fatalf("unable to record share: %v", err)
			}
		}
	}
	_, err := l.shareMgr.SealCompletedUnits(5)
	if err != nil {
		t.Fatalf("unable to seal completed units: %v", err)
	}
	_, err = l.accounts.SetPayoutAddresses("a1", map[string]float64{
		"addrA": 1,
	})
	if err != nil {
		t.Fatalf("unable to set payout addresses: %v", err)
	}
	_, err = l.accounts.SetPayoutAddresses("a2", map[string]float64{
		"addrB": 3,
		"addrC": 1,
	})
	if err != nil {
		t.Fatalf("unable to set payout addresses: %v", err)
	}

	block := registerTestBlock(t, l, 100, 4)
	payout, err := l.payoutMgr.ProcessBlock(block)
	if err != nil {
		t.Fatalf("unable to process block: %v", err)
	}

	if payout.Status != PayoutGenerated {
		t.Fatalf("expected a generated payout, got %s", payout.Status)
	}
	if payout.TotalDiff != 2.0 {
		t.Fatalf("expected window difficulty 2.0, got %v", payout.TotalDiff)
	}
	if payout.DiffWanted != 2.0 {
		t.Fatalf("expected wanted difficulty 2.0, got %v", payout.DiffWanted)
	}

	miningPayouts, err := l.db.fetchMiningPayouts(payout.PayoutID)
	if err != nil {
		t.Fatalf("unable to fetch mining payouts: %v", err)
	}
	if len(miningPayouts) != 2 {
		t.Fatalf("expected 2 mining payouts, got %d", len(miningPayouts))
	}
	var distributed int64
	for _, mp := range miningPayouts {
		if mp.Amount != testReward/2 {
			t.Fatalf("expected an even split, account %s got %d",
				mp.AccountID, mp.Amount)
		}
		distributed += mp.Amount
	}
	if distributed > testReward {
		t.Fatalf("distributed %d exceeds the block reward %d", distributed,
			testReward)
	}

	payments, err := l.db.fetchPayments(payout.PayoutID)
	if err != nil {
		t.Fatalf("unable to fetch payments: %v", err)
	}
	byAddress := make(map[string]int64)
	for _, p := range payments {
		byAddress[p.Address] = p.Amount
	}
	if byAddress["addrA"] != testReward/2 {
		t.Fatalf("expected %d to addrA, got %d", testReward/2,
			byAddress["addrA"])
	}
	// a2's half fans out 3:1 with independent flooring.
	if byAddress["addrB"] != testReward/2/4*3 {
		t.Fatalf("expected %d to addrB, got %d", testReward/2/4*3,
			byAddress["addrB"])
	}
	if byAddress["addrC"] != testReward/2/4 {
		t.Fatalf("expected %d to addrC, got %d", testReward/2/4,
			byAddress["addrC"])
	}

	byBlock, err := l.payoutMgr.FetchPayoutByBlock(block.Height, block.BlockHash)
	if err != nil {
		t.Fatalf("unable to fetch payout by block: %v", err)
	}
	if byBlock.PayoutID != payout.PayoutID {
		t.Fatalf("expected payout %d for the block, got %d", payout.PayoutID,
			byBlock.PayoutID)
	}

	// The same block cannot be paid twice.
	_, err = l.payoutMgr.ProcessBlock(block)
	if !errors.Is(err, errors.PayoutExists) {
		t.Fatalf("expected a payout exists error, got %v", err)
	}

	history := 0
	for _, p := range mustListPayouts(t, l) {
		if p.PayoutID == payout.PayoutID {
			history++
		}
	}
	if history != 2 {
		t.Fatalf("expected 2 payout versions, got %d", history)
	}
}

// mustListPayouts returns all persisted payout versions.
func mustListPayouts(t *testing.T, l *testLedger) []*Payout {
	t.Helper()
	payouts, err := l.db.listPayouts()
	if err != nil {
		t.Fatalf("unable to list payouts: %v", err)
	}
	return payouts
}

func TestProcessBlockOvershoot(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 4)

	// Unit 4 carries 1.5 difficulty, short of the wanted 2.0. The walk
	// enters unit 3 and must consume it whole, overshooting to 3.5.
	err := l.shareMgr.RecordShare("a1", "w1", 3, 1.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	err = l.shareMgr.RecordShare("a2", "w1", 3, 1.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	err = l.shareMgr.RecordShare("a1", "w1", 4, 1.5, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	_, err = l.shareMgr.SealCompletedUnits(5)
	if err != nil {
		t.Fatalf("unable to seal completed units: %v", err)
	}

	block := registerTestBlock(t, l, 101, 4)
	payout, err := l.payoutMgr.ProcessBlock(block)
	if err != nil {
		t.Fatalf("unable to process block: %v", err)
	}
	if payout.TotalDiff != 3.5 {
		t.Fatalf("expected window difficulty 3.5, got %v", payout.TotalDiff)
	}
	if payout.WorkUnitIDStart != 3 || payout.WorkUnitIDEnd != 4 {
		t.Fatalf("expected window [3, 4], got [%d, %d]",
			payout.WorkUnitIDStart, payout.WorkUnitIDEnd)
	}

	miningPayouts, err := l.db.fetchMiningPayouts(payout.PayoutID)
	if err != nil {
		t.Fatalf("unable to fetch mining payouts: %v", err)
	}
	amounts := make(map[string]int64)
	for _, mp := range miningPayouts {
		amounts[mp.AccountID] = mp.Amount
	}
	// a1 contributed 2.5 of 3.5, a2 contributed 1.0 of 3.5.
	reward := float64(testReward)
	if amounts["a1"] != int64(reward*2.5/3.5) {
		t.Fatalf("unexpected amount for a1: %d", amounts["a1"])
	}
	if amounts["a2"] != int64(reward*1.0/3.5) {
		t.Fatalf("unexpected amount for a2: %d", amounts["a2"])
	}
}

func TestProcessBlockWindowBounds(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 3)

	// The accepted difficulty sits on unit 2; the later submission on unit 3
	// is stale and must advance neither the window total nor its end
	// timestamp.
	err := l.shareMgr.RecordShare("a1", "w1", 2, 2.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	err = l.shareMgr.RecordShare("a1", "w2", 3, 1.0, ShareStale)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	_, err = l.shareMgr.SealCompletedUnits(4)
	if err != nil {
		t.Fatalf("unable to seal completed units: %v", err)
	}

	block := registerTestBlock(t, l, 110, 3)
	payout, err := l.payoutMgr.ProcessBlock(block)
	if err != nil {
		t.Fatalf("unable to process block: %v", err)
	}

	if payout.WorkUnitIDStart != 2 || payout.WorkUnitIDEnd != 3 {
		t.Fatalf("expected window [2, 3], got [%d, %d]",
			payout.WorkUnitIDStart, payout.WorkUnitIDEnd)
	}

	var acceptedLast int64
	l.shares.rangeWorkUnits(2, 2, func(s *ShareSummary) bool {
		acceptedLast = s.LastShare
		return true
	})
	beginUnit := l.units.fetch(2)
	if payout.Elapsed != acceptedLast-beginUnit.CreatedOn {
		t.Fatalf("expected elapsed %d from the window start unit's "+
			"creation, got %d", acceptedLast-beginUnit.CreatedOn,
			payout.Elapsed)
	}
}

func TestProcessBlockMarkerCoversBlockUnit(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 2)

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
	marker, err := l.workMgr.SealMarker(1, 2, "rolled past the block")
	if err != nil {
		t.Fatalf("unable to seal marker: %v", err)
	}
	err = l.workMgr.ProcessMarker(marker.MarkerID)
	if err != nil {
		t.Fatalf("unable to process marker: %v", err)
	}

	// The marker's range reaches the solving unit itself, so consuming it
	// whole would double count difficulty at and above the block.
	block := registerTestBlock(t, l, 111, 2)
	_, err = l.payoutMgr.ProcessBlock(block)
	if !errors.Is(err, errors.MarkerOverlap) {
		t.Fatalf("expected a marker overlap error, got %v", err)
	}
}

func TestProcessBlockMarkerContinuation(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 4)
	l.payoutMgr.cfg.DiffMultiplier = 3

	// Units 1 and 2 are rolled into a processed marker carrying 2.0
	// difficulty; the live summaries on units 3 and 4 carry 1.0. The
	// window of 3.0 fills only by consuming the marker whole.
	err := l.shareMgr.RecordShare("a1", "w1", 1, 1.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	err = l.shareMgr.RecordShare("a1", "w1", 2, 1.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	err = l.shareMgr.RecordShare("a1", "w1", 3, 0.5, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	err = l.shareMgr.RecordShare("a1", "w1", 4, 0.5, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	_, err = l.shareMgr.SealCompletedUnits(5)
	if err != nil {
		t.Fatalf("unable to seal completed units: %v", err)
	}

	marker, err := l.workMgr.SealMarker(1, 2, "rolled window")
	if err != nil {
		t.Fatalf("unable to seal marker: %v", err)
	}
	err = l.workMgr.ProcessMarker(marker.MarkerID)
	if err != nil {
		t.Fatalf("unable to process marker: %v", err)
	}

	block := registerTestBlock(t, l, 102, 4)
	payout, err := l.payoutMgr.ProcessBlock(block)
	if err != nil {
		t.Fatalf("unable to process block: %v", err)
	}
	if payout.TotalDiff != 3.0 {
		t.Fatalf("expected window difficulty 3.0, got %v", payout.TotalDiff)
	}
	miningPayouts, err := l.db.fetchMiningPayouts(payout.PayoutID)
	if err != nil {
		t.Fatalf("unable to fetch mining payouts: %v", err)
	}
	if len(miningPayouts) != 1 || miningPayouts[0].Amount != testReward {
		t.Fatalf("expected the full reward to a1, got %+v", miningPayouts)
	}
}

func TestProcessBlockShortfall(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 2)
	l.payoutMgr.cfg.DiffMultiplier = 10

	err := l.shareMgr.RecordShare("a1", "w1", 2, 1.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	_, err = l.shareMgr.SealCompletedUnits(3)
	if err != nil {
		t.Fatalf("unable to seal completed units: %v", err)
	}

	block := registerTestBlock(t, l, 103, 2)
	_, err = l.payoutMgr.ProcessBlock(block)
	if !errors.Is(err, errors.MarkerShortfall) {
		t.Fatalf("expected a marker shortfall error, got %v", err)
	}
}

func TestProcessBlockShareNotReady(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 2)

	// The live summary is never sealed, so the payout must abort rather
	// than distribute unverified difficulty.
	err := l.shareMgr.RecordShare("a1", "w1", 2, 5.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}

	block := registerTestBlock(t, l, 104, 2)
	_, err = l.payoutMgr.ProcessBlock(block)
	if !errors.Is(err, errors.ShareNotReady) {
		t.Fatalf("expected a share not ready error, got %v", err)
	}
}

func TestProcessBlockAccountAddressFallback(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 2)
	l.validateFn = func(addr string) bool {
		return strings.HasPrefix(addr, "S")
	}

	err := l.shareMgr.RecordShare("Saccount", "w1", 2, 2.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	_, err = l.shareMgr.SealCompletedUnits(3)
	if err != nil {
		t.Fatalf("unable to seal completed units: %v", err)
	}

	block := registerTestBlock(t, l, 105, 2)
	payout, err := l.payoutMgr.ProcessBlock(block)
	if err != nil {
		t.Fatalf("unable to process block: %v", err)
	}

	payments, err := l.db.fetchPayments(payout.PayoutID)
	if err != nil {
		t.Fatalf("unable to fetch payments: %v", err)
	}
	if len(payments) != 1 || payments[0].Address != "Saccount" {
		t.Fatalf("expected a payment to the account id, got %+v", payments)
	}
	if payments[0].Amount != testReward {
		t.Fatalf("expected the full reward, got %d", payments[0].Amount)
	}
}

func TestProcessBlockPoolFee(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 2)
	l.payoutMgr.cfg.PoolFee = 0.05

	err := l.shareMgr.RecordShare("a1", "w1", 2, 2.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	_, err = l.shareMgr.SealCompletedUnits(3)
	if err != nil {
		t.Fatalf("unable to seal completed units: %v", err)
	}

	block := registerTestBlock(t, l, 106, 2)
	payout, err := l.payoutMgr.ProcessBlock(block)
	if err != nil {
		t.Fatalf("unable to process block: %v", err)
	}
	wantFee := int64(float64(testReward) * 0.05)
	if payout.PoolFee != wantFee {
		t.Fatalf("expected pool fee %d, got %d", wantFee, payout.PoolFee)
	}
	miningPayouts, err := l.db.fetchMiningPayouts(payout.PayoutID)
	if err != nil {
		t.Fatalf("unable to fetch mining payouts: %v", err)
	}
	if miningPayouts[0].Amount != testReward-wantFee {
		t.Fatalf("expected %d after fees, got %d", testReward-wantFee,
			miningPayouts[0].Amount)
	}
}

func TestAdvancePayoutStatus(t *testing.T) {
	l := newTestLedger(t)
	l.addWorkUnits(t, 1, 2)

	err := l.shareMgr.RecordShare("a1", "w1", 2, 2.0, ShareAccepted)
	if err != nil {
		t.Fatalf("unable to record share: %v", err)
	}
	_, err = l.shareMgr.SealCompletedUnits(3)
	if err != nil {
		t.Fatalf("unable to seal completed units: %v", err)
	}

	block := registerTestBlock(t, l, 107, 2)
	payout, err := l.payoutMgr.ProcessBlock(block)
	if err != nil {
		t.Fatalf("unable to process block: %v", err)
	}
	if payout.Status != PayoutGenerated {
		t.Fatalf("expected a generated payout, got %s", payout.Status)
	}

	// A released payout can still be voided when its block is orphaned.
	orphaned, err := l.payoutMgr.AdvanceStatus(payout.PayoutID, PayoutOrphaned)
	if err != nil {
		t.Fatalf("unable to void generated payout: %v", err)
	}
	if orphaned.Status != PayoutOrphaned {
		t.Fatalf("expected an orphaned payout, got %s", orphaned.Status)
	}

	// An orphaned payout is terminal.
	_, err = l.payoutMgr.AdvanceStatus(payout.PayoutID, PayoutGenerated)
	if !errors.Is(err, errors.PayoutStatus) {
		t.Fatalf("expected a payout status error, got %v", err)
	}

	last, err := l.payoutMgr.FetchLastPayout()
	if err != nil {
		t.Fatalf("unable to fetch last payout: %v", err)
	}
	if last.PayoutID != payout.PayoutID || last.Status != PayoutOrphaned {
		t.Fatalf("expected orphaned payout %d, got %d in %s",
			payout.PayoutID, last.PayoutID, last.Status)
	}
}
