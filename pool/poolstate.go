// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import "sync"

// WorkerStatus describes the most recent share activity of a worker.
type WorkerStatus struct {
	AccountID    string
	Worker       string
	LastShare    int64
	LastDiff     float64
	SharesShift  uint64
	ErrorsShift  uint64
}

// PoolState tracks pool-wide running share totals and per-worker status.
// It is mutated only by the share aggregation layer and the round-zeroing
// step of the block lifecycle tracker.
type PoolState struct {
	mtx sync.RWMutex

	diffAccepted   float64
	diffRejected   float64
	acceptedShares uint64
	errorShares    uint64
	workers        map[string]*WorkerStatus
}

// NewPoolState creates an empty pool state.
func NewPoolState() *PoolState {
	return &PoolState{
		workers: make(map[string]*WorkerStatus),
	}
}

// recordShare updates the running totals and the worker status cache with
// the provided share.
func (ps *PoolState) recordShare(account, worker string, difficulty float64,
	accepted bool, now int64) {
	key := account + "/" + worker
	ps.mtx.Lock()
	ws := ps.workers[key]
	if ws == nil {
		ws = &WorkerStatus{AccountID: account, Worker: worker}
		ps.workers[key] = ws
	}
	ws.LastShare = now
	if accepted {
		ws.LastDiff = difficulty
		ws.SharesShift++
		ps.diffAccepted += difficulty
		ps.acceptedShares++
	} else {
		ws.ErrorsShift++
		ps.diffRejected += difficulty
		ps.errorShares++
	}
	ps.mtx.Unlock()
}

// RoundTotals returns the accepted and rejected difficulty accumulated since
// the last round zeroing.
func (ps *PoolState) RoundTotals() (float64, float64) {
	ps.mtx.RLock()
	acc, rej := ps.diffAccepted, ps.diffRejected
	ps.mtx.RUnlock()
	return acc, rej
}

// ZeroRound resets the pool-wide running totals. Called when a new block
// found by the pool starts a fresh round.
func (ps *PoolState) ZeroRound() {
	ps.mtx.Lock()
	ps.diffAccepted = 0
	ps.diffRejected = 0
	ps.acceptedShares = 0
	ps.errorShares = 0
	for _, ws := range ps.workers {
		ws.SharesShift = 0
		ws.ErrorsShift = 0
	}
	ps.mtx.Unlock()
}

// FetchWorkerStatus returns a copy of the status of the provided worker, or
// nil if the worker has not submitted any shares.
func (ps *PoolState) FetchWorkerStatus(account, worker string) *WorkerStatus {
	ps.mtx.RLock()
	ws := ps.workers[account+"/"+worker]
	var status *WorkerStatus
	if ws != nil {
		cp := *ws
		status = &cp
	}
	ps.mtx.RUnlock()
	return status
}
