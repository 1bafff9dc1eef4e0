// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ctubio/ckpool-sub002/errors"
)

// PayoutMgrConfig contains all of the configuration values which should be
// provided when creating a new instance of PayoutMgr.
type PayoutMgrConfig struct {
	// DB represents the ledger database.
	DB Database
	// Shares represents the share summary index.
	Shares *ShareSummaryIndex
	// MarkerSummaries represents the marker summary index.
	MarkerSummaries *MarkerSummaryIndex
	// Markers represents the work marker index.
	Markers *WorkMarkerIndex
	// WorkUnits represents the work unit index.
	WorkUnits *WorkUnitIndex
	// Payouts represents the payout index.
	Payouts *PayoutIndex
	// Addresses represents the payout address index.
	Addresses *PayoutAddressIndex
	// PoolFee is the fraction of each block reward retained by the pool.
	PoolFee float64
	// DiffMultiplier scales the network difficulty into the difficulty
	// window a payout reaches back over.
	DiffMultiplier float64
	// DiffOffset is added to the scaled difficulty window.
	DiffOffset float64
	// AllowAged permits consuming completed but unverified share
	// summaries. Summaries still accumulating always abort the payout.
	AllowAged bool
	// ValidateAddress checks an address for well-formedness. An account
	// with no payout address records receives its payment at its account
	// id when the id validates as an address.
	ValidateAddress func(string) bool
	// PayoutLock serializes payout computation with marker sealing and
	// processing. It must be acquired before any per-index lock.
	PayoutLock *sync.Mutex
}

// PayoutMgr computes and durably records the reward distribution of
// confirmed blocks. Rewards are split proportionally to the difficulty each
// account contributed within a window reaching back from the solving work
// unit.
type PayoutMgr struct {
	cfg *PayoutMgrConfig

	mtx          sync.Mutex
	lastPayoutID uint64
	loadedLast   bool
}

// NewPayoutMgr creates a payout manager.
func NewPayoutMgr(pCfg *PayoutMgrConfig) *PayoutMgr {
	return &PayoutMgr{cfg: pCfg}
}

// nextPayoutID durably allocates the next payout id.
func (pm *PayoutMgr) nextPayoutID() (uint64, error) {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	if !pm.loadedLast {
		last, err := pm.cfg.DB.loadLastPayoutID()
		if err != nil {
			return 0, err
		}
		pm.lastPayoutID = last
		pm.loadedLast = true
	}
	id := pm.lastPayoutID + 1
	err := pm.cfg.DB.persistLastPayoutID(id)
	if err != nil {
		return 0, err
	}
	pm.lastPayoutID = id
	return id, nil
}

// windowTotals accumulates the consumed difficulty window of a payout.
type windowTotals struct {
	perAccount map[string]float64
	totalDiff  float64
	lastShare  int64
	lowestUnit uint64
}

// add accumulates one consumed row into the window. The window end timestamp
// only ever advances, and only from rows carrying accepted difficulty.
func (wt *windowTotals) add(account string, diff float64, last int64,
	workUnitID uint64) {
	if diff > 0 {
		wt.perAccount[account] += diff
		wt.totalDiff += diff
		if last > wt.lastShare {
			wt.lastShare = last
		}
	}
	if wt.lowestUnit == 0 || workUnitID < wt.lowestUnit {
		wt.lowestUnit = workUnitID
	}
}

// ProcessBlock computes and durably records the payout of the provided
// confirmed block. The difficulty window is the block's network difficulty
// scaled by the configured multiplier plus offset; the walk descends over
// share summaries from the solving work unit, overshooting only far enough
// to finish the last work unit it enters, then over processed markers, each
// consumed whole. The distribution is staged in one transaction and released
// in a second so that a crash between the two is recoverable.
//
// A block that already has a payout is rejected; a payout left staged by a
// crash is released instead of recomputed.
func (pm *PayoutMgr) ProcessBlock(block *Block) (*Payout, error) {
	const funcName = "ProcessBlock"
	pm.cfg.PayoutLock.Lock()
	defer pm.cfg.PayoutLock.Unlock()

	if existing := pm.cfg.Payouts.byBlock(block.Height, block.BlockHash); existing != nil {
		if existing.Status == PayoutProcessing {
			log.Warnf("%s: releasing staged payout %d for block at "+
				"height %d", funcName, existing.PayoutID, block.Height)
			return pm.advance(existing, PayoutGenerated)
		}
		desc := fmt.Sprintf("%s: payout %d already exists for block %s at "+
			"height %d", funcName, existing.PayoutID, block.BlockHash,
			block.Height)
		return nil, errors.PoolError(errors.PayoutExists, desc)
	}

	unit := pm.cfg.WorkUnits.fetch(block.WorkUnitID)
	if unit == nil {
		desc := fmt.Sprintf("%s: no work unit found with id %d", funcName,
			block.WorkUnitID)
		return nil, errors.PoolError(errors.WorkUnitNotFound, desc)
	}
	netDiff, err := unit.NetworkDifficulty()
	if err != nil {
		return nil, err
	}
	diffWanted := netDiff*pm.cfg.DiffMultiplier + pm.cfg.DiffOffset
	if diffWanted < 1 {
		desc := fmt.Sprintf("%s: degenerate difficulty window %v for "+
			"network difficulty %v", funcName, diffWanted, netDiff)
		return nil, errors.PoolError(errors.DifficultyTarget, desc)
	}

	window, err := pm.collectWindow(block.WorkUnitID, diffWanted)
	if err != nil {
		return nil, err
	}
	if window.totalDiff <= 0 {
		desc := fmt.Sprintf("%s: empty difficulty window for block at "+
			"height %d", funcName, block.Height)
		return nil, errors.PoolError(errors.DivideByZero, desc)
	}

	beginUnit := pm.cfg.WorkUnits.fetch(window.lowestUnit)
	if beginUnit == nil {
		desc := fmt.Sprintf("%s: no work unit found with id %d at the "+
			"window start", funcName, window.lowestUnit)
		return nil, errors.PoolError(errors.WorkUnitNotFound, desc)
	}

	id, err := pm.nextPayoutID()
	if err != nil {
		return nil, err
	}

	poolFee := int64(math.Floor(float64(block.MinerReward) * pm.cfg.PoolFee))
	distributable := block.MinerReward - poolFee
	elapsed := window.lastShare - beginUnit.CreatedOn
	payout := NewPayout(id, block, poolFee, window.totalDiff, diffWanted,
		window.lowestUnit, elapsed)

	miningPayouts, payments, err := pm.partition(payout, window, distributable)
	if err != nil {
		return nil, err
	}

	// Stage then release. The staged transaction already carries every
	// partition row; the release only flips the payout status.
	err = pm.cfg.DB.commitPayout(payout, miningPayouts, payments)
	if err != nil {
		return nil, err
	}
	pm.cfg.Payouts.insert(payout)
	return pm.advance(payout, PayoutGenerated)
}

// collectWindow walks the difficulty window of a payout backwards from the
// provided work unit: first over share summaries, overshooting only to the
// end of the last work unit entered, then over processed markers consumed
// whole. A summary still accumulating, or one unverified when aged rows are
// disallowed, aborts the walk. A window that cannot be filled is an error.
func (pm *PayoutMgr) collectWindow(fromWorkUnitID uint64, diffWanted float64) (*windowTotals, error) {
	const funcName = "collectWindow"
	window := &windowTotals{perAccount: make(map[string]float64)}

	var walkErr error
	var boundaryUnit uint64
	sawShares := false
	pm.cfg.Shares.descendFrom(fromWorkUnitID, func(s *ShareSummary) bool {
		if s.ExpiredOn != NeverExpires {
			return true
		}
		if window.totalDiff >= diffWanted && s.WorkUnitID != boundaryUnit {
			return false
		}
		switch s.Status {
		case SummaryConfirmed:
		case SummaryComplete:
			if !pm.cfg.AllowAged {
				desc := fmt.Sprintf("%s: summary %s of work unit %d is "+
					"not verified", funcName, s.UUID, s.WorkUnitID)
				walkErr = errors.PoolError(errors.ShareNotReady, desc)
				return false
			}
		default:
			desc := fmt.Sprintf("%s: summary %s of work unit %d is still "+
				"accumulating", funcName, s.UUID, s.WorkUnitID)
			walkErr = errors.PoolError(errors.ShareNotReady, desc)
			return false
		}
		sawShares = true
		window.add(s.AccountID, s.DiffAccepted, s.LastShare, s.WorkUnitID)
		boundaryUnit = s.WorkUnitID
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if window.totalDiff >= diffWanted {
		return window, nil
	}

	// The live summaries ran out before the window filled. Continue over
	// processed markers ending strictly below the lowest work unit consumed,
	// or below the starting unit itself when no summaries were consumed.
	// Each marker is consumed whole.
	upperBound := fromWorkUnitID - 1
	if sawShares {
		upperBound = window.lowestUnit - 1
	}
	pm.cfg.Markers.descend(func(m *WorkMarker) bool {
		if m.ExpiredOn != NeverExpires || m.Status != MarkerProcessed {
			return true
		}
		if m.WorkUnitIDStart > fromWorkUnitID {
			return true
		}
		if m.WorkUnitIDEnd > upperBound {
			// A processed marker reaching into the work units already
			// consumed means the same difficulty is recorded twice.
			desc := fmt.Sprintf("%s: processed marker %d covering "+
				"[%d, %d] overlaps the window above work unit %d",
				funcName, m.MarkerID, m.WorkUnitIDStart, m.WorkUnitIDEnd,
				upperBound+1)
			walkErr = errors.PoolError(errors.MarkerOverlap, desc)
			return false
		}
		pm.cfg.MarkerSummaries.forMarker(m.MarkerID, func(ms *MarkerSummary) bool {
			window.add(ms.AccountID, ms.DiffAccepted, ms.LastShare,
				m.WorkUnitIDStart)
			return true
		})
		return window.totalDiff < diffWanted
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if window.totalDiff < diffWanted {
		desc := fmt.Sprintf("%s: difficulty window short, wanted %v "+
			"but only %v recorded", funcName, diffWanted, window.totalDiff)
		return nil, errors.PoolError(errors.MarkerShortfall, desc)
	}
	return window, nil
}

// partition splits the distributable reward across the accounts of the
// window in proportion to contributed difficulty, then fans each account's
// amount out across its effective payout addresses by ratio. Every division
// floors independently, so sub-unit remainders are retained by the pool.
func (pm *PayoutMgr) partition(payout *Payout, window *windowTotals,
	distributable int64) ([]*MiningPayout, []*Payment, error) {
	const funcName = "partition"

	miningPayouts := make([]*MiningPayout, 0, len(window.perAccount))
	payments := make([]*Payment, 0, len(window.perAccount))
	for account, diff := range window.perAccount {
		amount := int64(math.Floor(float64(distributable) * diff /
			window.totalDiff))
		if amount <= 0 {
			continue
		}
		miningPayouts = append(miningPayouts,
			NewMiningPayout(payout.PayoutID, account, diff, amount))

		addresses := pm.cfg.Addresses.effectiveAt(account, payout.CreatedOn)
		if len(addresses) == 0 {
			// An account id that is itself a valid address receives
			// its payment directly.
			if pm.cfg.ValidateAddress != nil && pm.cfg.ValidateAddress(account) {
				payments = append(payments,
					NewPayment(payout.PayoutID, account, account, amount))
				continue
			}
			desc := fmt.Sprintf("%s: account %s has no payout address",
				funcName, account)
			return nil, nil, errors.PoolError(errors.Parse, desc)
		}

		var ratioTotal float64
		for _, a := range addresses {
			ratioTotal += a.Ratio
		}
		for _, a := range addresses {
			share := int64(math.Floor(float64(amount) * a.Ratio / ratioTotal))
			if share <= 0 {
				continue
			}
			payments = append(payments,
				NewPayment(payout.PayoutID, account, a.Address, share))
		}
	}
	return miningPayouts, payments, nil
}

// advance transitions the provided current payout version to the provided
// status via a superseding version row.
func (pm *PayoutMgr) advance(payout *Payout, status PayoutStatus) (*Payout, error) {
	now := time.Now().UnixNano()
	next := payout.supersede(status, now)
	err := pm.cfg.DB.advancePayout(payout, next)
	if err != nil {
		payout.ExpiredOn = NeverExpires
		return nil, err
	}
	pm.cfg.Payouts.insert(next)
	log.Infof("payout %d for block at height %d is now %s", payout.PayoutID,
		payout.Height, status)
	return next, nil
}

// AdvanceStatus transitions the current version of the provided payout to
// the provided status. Used to release a staged payout after crash recovery
// and to void the payout of an orphaned block, before or after release. A
// payout only ever moves forward: processing to generated or orphaned, and
// generated to orphaned.
func (pm *PayoutMgr) AdvanceStatus(id uint64, status PayoutStatus) (*Payout, error) {
	const funcName = "AdvanceStatus"
	pm.cfg.PayoutLock.Lock()
	defer pm.cfg.PayoutLock.Unlock()

	payout := pm.cfg.Payouts.fetchCurrent(id)
	if payout == nil {
		desc := fmt.Sprintf("%s: no payout found with id %d", funcName, id)
		return nil, errors.PoolError(errors.ValueNotFound, desc)
	}
	if payout.Status == status {
		return payout, nil
	}
	valid := status == PayoutOrphaned ||
		(payout.Status == PayoutProcessing && status == PayoutGenerated)
	if !valid {
		desc := fmt.Sprintf("%s: payout %d is %s and cannot transition to "+
			"%s", funcName, id, payout.Status, status)
		return nil, errors.PoolError(errors.PayoutStatus, desc)
	}
	return pm.advance(payout, status)
}

// FetchPayout returns the current version of the payout with the provided
// id.
func (pm *PayoutMgr) FetchPayout(id uint64) (*Payout, error) {
	const funcName = "FetchPayout"
	payout := pm.cfg.Payouts.fetchCurrent(id)
	if payout == nil {
		desc := fmt.Sprintf("%s: no payout found with id %d", funcName, id)
		return nil, errors.PoolError(errors.ValueNotFound, desc)
	}
	return payout, nil
}

// FetchPayoutByBlock returns the current payout computed for the provided
// block.
func (pm *PayoutMgr) FetchPayoutByBlock(height uint32, blockHash string) (*Payout, error) {
	const funcName = "FetchPayoutByBlock"
	payout := pm.cfg.Payouts.byBlock(height, blockHash)
	if payout == nil {
		desc := fmt.Sprintf("%s: no payout found for block %s at height %d",
			funcName, blockHash, height)
		return nil, errors.PoolError(errors.ValueNotFound, desc)
	}
	return payout, nil
}

// FetchLastPayout returns the current payout with the highest id.
func (pm *PayoutMgr) FetchLastPayout() (*Payout, error) {
	const funcName = "FetchLastPayout"
	payout := pm.cfg.Payouts.last()
	if payout == nil {
		desc := fmt.Sprintf("%s: no payouts recorded", funcName)
		return nil, errors.PoolError(errors.ValueNotFound, desc)
	}
	return payout, nil
}
