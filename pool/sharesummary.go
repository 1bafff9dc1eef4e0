// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ctubio/ckpool-sub002/errors"
)

// SummaryStatus is the lifecycle state of a share summary.
type SummaryStatus uint32

const (
	// SummaryNew indicates a summary still accumulating live shares.
	SummaryNew SummaryStatus = iota

	// SummaryComplete indicates a summary whose work unit has been
	// superseded and which has been durably persisted.
	SummaryComplete

	// SummaryConfirmed indicates a summary verified consistent with the
	// durable share log.
	SummaryConfirmed
)

// String returns the summary status as a human-readable name.
func (s SummaryStatus) String() string {
	switch s {
	case SummaryNew:
		return "new"
	case SummaryComplete:
		return "complete"
	case SummaryConfirmed:
		return "confirmed"
	}
	return fmt.Sprintf("unknown (%d)", uint32(s))
}

// ShareOutcome classifies a share submission.
type ShareOutcome uint32

const (
	// ShareAccepted indicates a share accepted by the pool.
	ShareAccepted ShareOutcome = iota

	// ShareStale indicates a share submitted against superseded work.
	ShareStale

	// ShareDuplicate indicates a share already accounted for.
	ShareDuplicate

	// ShareHighDiff indicates a share above the work unit's target range.
	ShareHighDiff

	// ShareRejected indicates a share rejected for any other reason.
	ShareRejected
)

// ShareSummary is the running total of share difficulty submitted by one
// worker against one work unit.
type ShareSummary struct {
	UUID          string        `json:"uuid"`
	AccountID     string        `json:"accountid"`
	Worker        string        `json:"worker"`
	WorkUnitID    uint64        `json:"workunitid"`
	DiffAccepted  float64       `json:"diffaccepted"`
	DiffStale     float64       `json:"diffstale"`
	DiffDuplicate float64       `json:"diffduplicate"`
	DiffHigh      float64       `json:"diffhigh"`
	DiffRejected  float64       `json:"diffrejected"`
	ShareCount    uint64        `json:"sharecount"`
	ErrorCount    uint64        `json:"errorcount"`
	FirstShare    int64         `json:"firstshare"`
	LastShare     int64         `json:"lastshare"`
	LastDiff      float64       `json:"lastdiff"`
	Status        SummaryStatus `json:"status"`
	CreatedOn     int64         `json:"createdon"`
	ExpiredOn     int64         `json:"expiredon"`
}

// shareSummaryID generates a unique share summary id using the provided
// details.
func shareSummaryID(workUnitID uint64, account, worker string, createdOn int64) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(uint64ToBigEndianBytes(workUnitID)))
	_, _ = buf.WriteString(hex.EncodeToString(nanoToBigEndianBytes(createdOn)))
	_, _ = buf.WriteString(account)
	_, _ = buf.WriteString("/")
	_, _ = buf.WriteString(worker)
	return buf.String()
}

// NewShareSummary creates an empty share summary for the provided stream and
// work unit.
func NewShareSummary(account, worker string, workUnitID uint64) *ShareSummary {
	now := time.Now().UnixNano()
	return &ShareSummary{
		UUID:       shareSummaryID(workUnitID, account, worker, now),
		AccountID:  account,
		Worker:     worker,
		WorkUnitID: workUnitID,
		Status:     SummaryNew,
		CreatedOn:  now,
		ExpiredOn:  NeverExpires,
	}
}

// RejectedTotal returns the total rejected difficulty across all rejection
// reasons.
func (s *ShareSummary) RejectedTotal() float64 {
	return s.DiffStale + s.DiffDuplicate + s.DiffHigh + s.DiffRejected
}

// ShareMgrConfig contains all of the configuration values which should be
// provided when creating a new instance of ShareMgr.
type ShareMgrConfig struct {
	// DB represents the ledger database.
	DB Database
	// State represents the pool-wide running totals.
	State *PoolState
	// Shares represents the share summary index.
	Shares *ShareSummaryIndex
	// Markers represents the work marker index.
	Markers *WorkMarkerIndex
	// WorkUnits represents the work unit index.
	WorkUnits *WorkUnitIndex
	// Verify checks a completed summary against the durable share log.
	// When nil, the durable persist performed by the sealing step is
	// taken as verification.
	Verify func(*ShareSummary) bool
}

// ShareMgr maintains the per-worker share summaries of the pool and rolls
// them up into marker summaries once their work units are sealed.
type ShareMgr struct {
	cfg *ShareMgrConfig
}

// NewShareMgr creates a share manager.
func NewShareMgr(sCfg *ShareMgrConfig) *ShareMgr {
	return &ShareMgr{cfg: sCfg}
}

// RecordShare locates or creates the current share summary of the provided
// worker stream and adds the share to the bucket selected by its outcome.
// When the stream's running summary belongs to a superseded work unit it is
// marked complete and a fresh summary is started for the new unit.
//
// A missing work unit reference is a hard error. Persistence failures are
// logged and the event dropped; reconciliation happens via the later sealing
// step.
func (sm *ShareMgr) RecordShare(account, worker string, workUnitID uint64,
	difficulty float64, outcome ShareOutcome) error {
	const funcName = "RecordShare"

	if sm.cfg.WorkUnits.fetch(workUnitID) == nil {
		desc := fmt.Sprintf("%s: no work unit found with id %d", funcName,
			workUnitID)
		return errors.PoolError(errors.WorkUnitNotFound, desc)
	}
	if m := sm.cfg.Markers.lastProcessed(); m != nil &&
		workUnitID <= m.WorkUnitIDEnd {
		desc := fmt.Sprintf("%s: work unit %d is inside processed marker "+
			"%d covering [%d, %d]", funcName, workUnitID, m.MarkerID,
			m.WorkUnitIDStart, m.WorkUnitIDEnd)
		return errors.PoolError(errors.MarkerProcessed, desc)
	}

	now := time.Now().UnixNano()
	summary := sm.cfg.Shares.fetchCurrent(account, worker)
	if summary != nil && summary.WorkUnitID != workUnitID {
		// The stream moved on to a new work unit. Retire the running
		// summary before starting a fresh one.
		sm.cfg.Shares.mutate(func() {
			if summary.Status == SummaryNew {
				summary.Status = SummaryComplete
			}
		})
		err := sm.cfg.DB.updateShareSummary(summary)
		if err != nil {
			log.Errorf("%s: unable to persist completed summary %s: %v",
				funcName, summary.UUID, err)
		}
		summary = nil
	}
	if summary == nil {
		summary = NewShareSummary(account, worker, workUnitID)
		sm.cfg.Shares.insert(summary)
		err := sm.cfg.DB.persistShareSummary(summary)
		if err != nil {
			log.Errorf("%s: unable to persist new summary %s: %v",
				funcName, summary.UUID, err)
		}
	}

	sm.cfg.Shares.mutate(func() {
		if summary.FirstShare == 0 {
			summary.FirstShare = now
		}
		summary.LastShare = now
		switch outcome {
		case ShareAccepted:
			summary.DiffAccepted += difficulty
			summary.LastDiff = difficulty
			summary.ShareCount++
		case ShareStale:
			summary.DiffStale += difficulty
			summary.ErrorCount++
		case ShareDuplicate:
			summary.DiffDuplicate += difficulty
			summary.ErrorCount++
		case ShareHighDiff:
			summary.DiffHigh += difficulty
			summary.ErrorCount++
		default:
			summary.DiffRejected += difficulty
			summary.ErrorCount++
		}
	})
	sm.cfg.State.recordShare(account, worker, difficulty,
		outcome == ShareAccepted, now)

	err := sm.cfg.DB.updateShareSummary(summary)
	if err != nil {
		log.Errorf("%s: unable to persist summary %s: %v", funcName,
			summary.UUID, err)
	}

	if outcome == ShareDuplicate {
		desc := fmt.Sprintf("%s: duplicate share for work unit %d by %s/%s",
			funcName, workUnitID, account, worker)
		return errors.PoolError(errors.DuplicateShare, desc)
	}
	return nil
}

// SealCompletedUnits durably seals every unconfirmed summary of the work
// units preceding the provided id. Sealed summaries transition to confirmed
// once verified against the durable share log. The number of summaries
// sealed is returned.
func (sm *ShareMgr) SealCompletedUnits(uptoWorkUnitID uint64) (int, error) {
	const funcName = "SealCompletedUnits"
	if uptoWorkUnitID == 0 {
		return 0, nil
	}

	toSeal := make([]*ShareSummary, 0)
	sm.cfg.Shares.rangeWorkUnits(0, uptoWorkUnitID-1, func(s *ShareSummary) bool {
		if s.ExpiredOn == NeverExpires && s.Status != SummaryConfirmed {
			toSeal = append(toSeal, s)
		}
		return true
	})

	sealed := 0
	for _, s := range toSeal {
		confirmed := false
		sm.cfg.Shares.mutate(func() {
			if sm.cfg.Verify == nil || sm.cfg.Verify(s) {
				s.Status = SummaryConfirmed
				confirmed = true
			} else {
				s.Status = SummaryComplete
			}
		})
		if !confirmed {
			log.Warnf("%s: summary %s failed verification against the "+
				"share log", funcName, s.UUID)
		}
		err := sm.cfg.DB.updateShareSummary(s)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist sealed summary "+
				"%s: %v", funcName, s.UUID, err)
			return sealed, errors.DBError(errors.PersistEntry, desc)
		}
		sealed++
	}
	return sealed, nil
}

// rollupForMarker aggregates every current summary inside the provided
// marker's work unit range into one marker summary per worker stream. The
// returned retired rows are snapshot copies taken under the index lock so
// the durable commit never reads a row while a concurrent submission mutates
// it; the caller commits both atomically and then expires the live rows.
func (sm *ShareMgr) rollupForMarker(m *WorkMarker) ([]*MarkerSummary, []*ShareSummary) {
	rollups := make(map[string]*MarkerSummary)
	retired := make([]*ShareSummary, 0)
	sm.cfg.Shares.rangeWorkUnits(m.WorkUnitIDStart, m.WorkUnitIDEnd,
		func(s *ShareSummary) bool {
			if s.ExpiredOn != NeverExpires {
				return true
			}
			key := s.AccountID + "/" + s.Worker
			ms := rollups[key]
			if ms == nil {
				ms = NewMarkerSummary(m.MarkerID, s.AccountID, s.Worker)
				rollups[key] = ms
			}
			ms.add(s)
			cp := *s
			retired = append(retired, &cp)
			return true
		})

	summaries := make([]*MarkerSummary, 0, len(rollups))
	for _, ms := range rollups {
		summaries = append(summaries, ms)
	}
	return summaries, retired
}
