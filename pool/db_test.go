// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// testLedger wires the managers of the ledger over a throwaway bolt database
// for tests.
type testLedger struct {
	db        Database
	state     *PoolState
	units     *WorkUnitIndex
	shares    *ShareSummaryIndex
	msums     *MarkerSummaryIndex
	markers   *WorkMarkerIndex
	marks     *WorkMarkIndex
	blocks    *BlockIndex
	payouts   *PayoutIndex
	addrs     *PayoutAddressIndex
	shareMgr  *ShareMgr
	workMgr   *WorkMgr
	chain     *ChainState
	accounts  *AccountMgr
	payoutMgr *PayoutMgr

	payoutLock sync.Mutex
	validateFn func(string) bool
}

// newTestLedger creates a fully wired ledger over a bolt database in a
// temporary directory.
func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	db, err := InitBoltDB(filepath.Join(t.TempDir(), "test.kv"))
	if err != nil {
		t.Fatalf("unable to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	l := &testLedger{
		db:      db,
		state:   NewPoolState(),
		units:   NewWorkUnitIndex(),
		shares:  NewShareSummaryIndex(),
		msums:   NewMarkerSummaryIndex(),
		markers: NewWorkMarkerIndex(),
		marks:   NewWorkMarkIndex(),
		blocks:  NewBlockIndex(),
		payouts: NewPayoutIndex(),
		addrs:   NewPayoutAddressIndex(),
	}
	l.validateFn = func(string) bool { return true }
	validate := func(addr string) bool { return l.validateFn(addr) }

	l.shareMgr = NewShareMgr(&ShareMgrConfig{
		DB:        db,
		State:     l.state,
		Shares:    l.shares,
		Markers:   l.markers,
		WorkUnits: l.units,
	})
	l.workMgr = NewWorkMgr(&WorkMgrConfig{
		DB:              db,
		WorkUnits:       l.units,
		Markers:         l.markers,
		Marks:           l.marks,
		MarkerSummaries: l.msums,
		Shares:          l.shares,
		Rollup:          l.shareMgr.rollupForMarker,
		PayoutLock:      &l.payoutLock,
		PoolInstance:    "testpool",
	})
	l.chain = NewChainState(&ChainStateConfig{
		DB:                 db,
		Blocks:             l.blocks,
		State:              l.state,
		WorkUnits:          l.units,
		BlockConfirmations: 6,
	})
	l.accounts = NewAccountMgr(&AccountMgrConfig{
		DB:              db,
		Addresses:       l.addrs,
		ValidateAddress: validate,
	})
	l.payoutMgr = NewPayoutMgr(&PayoutMgrConfig{
		DB:              db,
		Shares:          l.shares,
		MarkerSummaries: l.msums,
		Markers:         l.markers,
		WorkUnits:       l.units,
		Payouts:         l.payouts,
		Addresses:       l.addrs,
		PoolFee:         0,
		DiffMultiplier:  2,
		DiffOffset:      0,
		ValidateAddress: validate,
		PayoutLock:      &l.payoutLock,
	})
	return l
}

// testCoinbase returns a coinbase hex blob carrying the provided height at
// the expected offset.
func testCoinbase(height uint32) string {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("00", coinbaseHeightOffset))
	sb.WriteString("03")
	sb.WriteString(fmt.Sprintf("%02x%02x%02x", byte(height),
		byte(height>>8), byte(height>>16)))
	return sb.String()
}

// addWorkUnits inserts sequential work units with unit network difficulty.
func (l *testLedger) addWorkUnits(t *testing.T, from, to uint64) {
	t.Helper()
	for id := from; id <= to; id++ {
		_, err := l.workMgr.InsertWorkUnit(id, "1d00ffff",
			testCoinbase(uint32(id)))
		if err != nil {
			t.Fatalf("unable to insert work unit %d: %v", id, err)
		}
	}
}

func TestInitBoltDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.kv")
	db, err := InitBoltDB(path)
	if err != nil {
		t.Fatalf("unable to create db: %v", err)
	}
	err = db.Close()
	if err != nil {
		t.Fatalf("unable to close db: %v", err)
	}

	// Reopening an existing database asserts its schema version.
	db, err = InitBoltDB(path)
	if err != nil {
		t.Fatalf("unable to reopen db: %v", err)
	}
	defer db.Close()

	units, err := db.listWorkUnits()
	if err != nil {
		t.Fatalf("unable to list work units: %v", err)
	}
	if len(units) != 0 {
		t.Fatalf("expected an empty work unit bucket, got %d entries",
			len(units))
	}
}

func TestLastPayoutIDPersistence(t *testing.T) {
	l := newTestLedger(t)
	id, err := l.db.loadLastPayoutID()
	if err != nil {
		t.Fatalf("unable to load last payout id: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected no allocated payout id, got %d", id)
	}
	err = l.db.persistLastPayoutID(7)
	if err != nil {
		t.Fatalf("unable to persist last payout id: %v", err)
	}
	id, err = l.db.loadLastPayoutID()
	if err != nil {
		t.Fatalf("unable to load last payout id: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected last payout id 7, got %d", id)
	}
}
