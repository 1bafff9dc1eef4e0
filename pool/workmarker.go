// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/ctubio/ckpool-sub002/errors"
)

// MarkerStatus is the lifecycle state of a work marker.
type MarkerStatus uint32

const (
	// MarkerReady indicates a sealed marker whose rollup has not run yet.
	MarkerReady MarkerStatus = iota

	// MarkerProcessed indicates a marker whose marker summaries are the
	// authoritative replacement for the share summaries in its range.
	MarkerProcessed
)

// String returns the marker status as a human-readable name.
func (s MarkerStatus) String() string {
	switch s {
	case MarkerReady:
		return "ready"
	case MarkerProcessed:
		return "processed"
	}
	return fmt.Sprintf("unknown (%d)", uint32(s))
}

// WorkMarker names a contiguous, sealed range of work units. Ranges of
// current markers never overlap and a marker is processed exactly once.
type WorkMarker struct {
	UUID            string       `json:"uuid"`
	MarkerID        uint64       `json:"markerid"`
	WorkUnitIDStart uint64       `json:"workunitidstart"`
	WorkUnitIDEnd   uint64       `json:"workunitidend"`
	Description     string       `json:"description"`
	Status          MarkerStatus `json:"status"`
	CreatedOn       int64        `json:"createdon"`
	ExpiredOn       int64        `json:"expiredon"`
}

// workMarkerID generates a unique work marker id using the provided details.
func workMarkerID(markerID uint64, createdOn int64) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(uint64ToBigEndianBytes(markerID)))
	_, _ = buf.WriteString(hex.EncodeToString(nanoToBigEndianBytes(createdOn)))
	return buf.String()
}

// NewWorkMarker creates a ready work marker covering the provided work unit
// range. The marker id is the end work unit id, which keeps marker id order
// identical to range order.
func NewWorkMarker(start, end uint64, description string) *WorkMarker {
	now := time.Now().UnixNano()
	return &WorkMarker{
		UUID:            workMarkerID(end, now),
		MarkerID:        end,
		WorkUnitIDStart: start,
		WorkUnitIDEnd:   end,
		Description:     description,
		Status:          MarkerReady,
		CreatedOn:       now,
		ExpiredOn:       NeverExpires,
	}
}

// supersede returns a new current version of the marker with the provided
// status, expiring the receiver.
func (m *WorkMarker) supersede(status MarkerStatus, now int64) *WorkMarker {
	next := *m
	next.UUID = workMarkerID(m.MarkerID, now)
	next.Status = status
	next.CreatedOn = now
	next.ExpiredOn = NeverExpires
	m.ExpiredOn = now
	return &next
}

// MarkStatus is the lifecycle state of a boundary mark.
type MarkStatus uint32

const (
	// MarkReady indicates a boundary mark not yet covered by a marker.
	MarkReady MarkStatus = iota

	// MarkUsed indicates a boundary mark consumed by marker generation.
	MarkUsed
)

// String returns the mark status as a human-readable name.
func (s MarkStatus) String() string {
	switch s {
	case MarkReady:
		return "ready"
	case MarkUsed:
		return "used"
	}
	return fmt.Sprintf("unknown (%d)", uint32(s))
}

// WorkMark is a named boundary in the work unit sequence: a block found, a
// payout window edge, a shift change or a manual boundary. Consecutive marks
// delimit the work markers generated between them.
type WorkMark struct {
	UUID        string     `json:"uuid"`
	WorkUnitID  uint64     `json:"workunitid"`
	Description string     `json:"description"`
	Status      MarkStatus `json:"status"`
	CreatedOn   int64      `json:"createdon"`
	ExpiredOn   int64      `json:"expiredon"`
}

// workMarkID generates a unique work mark id using the provided details.
func workMarkID(workUnitID uint64, createdOn int64) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(uint64ToBigEndianBytes(workUnitID)))
	_, _ = buf.WriteString(hex.EncodeToString(nanoToBigEndianBytes(createdOn)))
	return buf.String()
}

// NewWorkMark creates a ready boundary mark at the provided work unit.
func NewWorkMark(workUnitID uint64, description string) *WorkMark {
	now := time.Now().UnixNano()
	return &WorkMark{
		UUID:        workMarkID(workUnitID, now),
		WorkUnitID:  workUnitID,
		Description: description,
		Status:      MarkReady,
		CreatedOn:   now,
		ExpiredOn:   NeverExpires,
	}
}

// supersede returns a new current version of the mark with the provided
// status, expiring the receiver.
func (m *WorkMark) supersede(status MarkStatus, now int64) *WorkMark {
	next := *m
	next.UUID = workMarkID(m.WorkUnitID, now)
	next.Status = status
	next.CreatedOn = now
	next.ExpiredOn = NeverExpires
	m.ExpiredOn = now
	return &next
}

// WorkMgrConfig contains all of the configuration values which should be
// provided when creating a new instance of WorkMgr.
type WorkMgrConfig struct {
	// DB represents the ledger database.
	DB Database
	// WorkUnits represents the work unit index.
	WorkUnits *WorkUnitIndex
	// Markers represents the work marker index.
	Markers *WorkMarkerIndex
	// Marks represents the boundary mark index.
	Marks *WorkMarkIndex
	// MarkerSummaries represents the marker summary index.
	MarkerSummaries *MarkerSummaryIndex
	// Shares represents the share summary index.
	Shares *ShareSummaryIndex
	// Rollup aggregates the share summaries inside a marker's range. The
	// returned retired rows are snapshot copies of the source rows.
	Rollup func(*WorkMarker) ([]*MarkerSummary, []*ShareSummary)
	// PayoutLock serializes marker sealing and processing with payout
	// computation. It must be acquired before any per-index lock.
	PayoutLock *sync.Mutex
	// PoolInstance identifies this pool instance on created work units.
	PoolInstance string
}

// WorkMgr orders work units, seals contiguous ranges of them into markers
// and drives the marker lifecycle.
type WorkMgr struct {
	cfg *WorkMgrConfig
}

// NewWorkMgr creates a work manager.
func NewWorkMgr(wCfg *WorkMgrConfig) *WorkMgr {
	return &WorkMgr{cfg: wCfg}
}

// InsertWorkUnit appends a new work unit to the timeline. Work unit ids are
// expected to be monotonic; an already existing id is rejected.
func (wm *WorkMgr) InsertWorkUnit(id uint64, bits, coinbase string) (*WorkUnit, error) {
	const funcName = "InsertWorkUnit"
	if wm.cfg.WorkUnits.fetch(id) != nil {
		desc := fmt.Sprintf("%s: work unit %d already exists", funcName, id)
		return nil, errors.PoolError(errors.WorkUnitExists, desc)
	}

	unit := NewWorkUnit(id, wm.cfg.PoolInstance, bits, coinbase)
	err := wm.cfg.DB.persistWorkUnit(unit)
	if err != nil {
		return nil, err
	}
	wm.cfg.WorkUnits.insert(unit)
	return unit, nil
}

// PlaceMark records a ready boundary mark at the provided work unit.
func (wm *WorkMgr) PlaceMark(workUnitID uint64, description string) (*WorkMark, error) {
	const funcName = "PlaceMark"
	if wm.cfg.WorkUnits.fetch(workUnitID) == nil {
		desc := fmt.Sprintf("%s: no work unit found with id %d", funcName,
			workUnitID)
		return nil, errors.PoolError(errors.WorkUnitNotFound, desc)
	}

	mark := NewWorkMark(workUnitID, description)
	err := wm.cfg.DB.persistWorkMark(mark)
	if err != nil {
		return nil, err
	}
	wm.cfg.Marks.insert(mark)
	return mark, nil
}

// SealMarker creates a ready work marker covering the provided contiguous
// work unit range. The range must not intersect any current marker and both
// boundary work units must exist.
func (wm *WorkMgr) SealMarker(startID, endID uint64, description string) (*WorkMarker, error) {
	const funcName = "SealMarker"
	wm.cfg.PayoutLock.Lock()
	defer wm.cfg.PayoutLock.Unlock()
	return wm.sealMarker(startID, endID, description)
}

// sealMarker is the locked portion of SealMarker. The payout lock must be
// held.
func (wm *WorkMgr) sealMarker(startID, endID uint64, description string) (*WorkMarker, error) {
	const funcName = "sealMarker"
	if startID > endID {
		desc := fmt.Sprintf("%s: inverted marker range [%d, %d]", funcName,
			startID, endID)
		return nil, errors.PoolError(errors.MarkerOverlap, desc)
	}
	if wm.cfg.WorkUnits.fetch(startID) == nil {
		desc := fmt.Sprintf("%s: no work unit found with id %d", funcName,
			startID)
		return nil, errors.PoolError(errors.WorkUnitNotFound, desc)
	}
	if wm.cfg.WorkUnits.fetch(endID) == nil {
		desc := fmt.Sprintf("%s: no work unit found with id %d", funcName,
			endID)
		return nil, errors.PoolError(errors.WorkUnitNotFound, desc)
	}
	if existing := wm.cfg.Markers.overlaps(startID, endID); existing != nil {
		desc := fmt.Sprintf("%s: range [%d, %d] intersects marker %d "+
			"covering [%d, %d]", funcName, startID, endID,
			existing.MarkerID, existing.WorkUnitIDStart,
			existing.WorkUnitIDEnd)
		return nil, errors.PoolError(errors.MarkerOverlap, desc)
	}

	marker := NewWorkMarker(startID, endID, description)
	err := wm.cfg.DB.persistWorkMarker(marker)
	if err != nil {
		return nil, err
	}
	wm.cfg.Markers.insert(marker)
	log.Debugf("sealed marker %d covering work units [%d, %d]: %s",
		marker.MarkerID, startID, endID, description)
	return marker, nil
}

// ProcessMarker transitions a ready marker to processed, atomically rolling
// the share summaries of its range up into marker summaries and retiring the
// source rows. Re-processing a processed marker is rejected.
func (wm *WorkMgr) ProcessMarker(markerID uint64) error {
	const funcName = "ProcessMarker"
	wm.cfg.PayoutLock.Lock()
	defer wm.cfg.PayoutLock.Unlock()

	marker := wm.cfg.Markers.fetchCurrent(markerID)
	if marker == nil {
		desc := fmt.Sprintf("%s: no marker found with id %d", funcName,
			markerID)
		return errors.PoolError(errors.MarkerNotFound, desc)
	}
	if marker.Status == MarkerProcessed {
		desc := fmt.Sprintf("%s: marker %d already processed", funcName,
			markerID)
		return errors.PoolError(errors.MarkerProcessed, desc)
	}

	summaries, retired := wm.cfg.Rollup(marker)
	now := time.Now().UnixNano()
	processed := marker.supersede(MarkerProcessed, now)

	// The durable transition is all or nothing: the processed marker
	// version, its rollups and the retirement of the source rows land in
	// one transaction.
	err := wm.cfg.DB.processMarker(marker, processed, summaries, retired, now)
	if err != nil {
		marker.ExpiredOn = NeverExpires
		return err
	}

	wm.cfg.Markers.insert(processed)
	for _, ms := range summaries {
		wm.cfg.MarkerSummaries.insert(ms)
	}
	wm.cfg.Shares.expireMatching(retired, now)
	log.Infof("processed marker %d: %d share summaries rolled up into %d "+
		"marker summaries", markerID, len(retired), len(summaries))
	return nil
}

// GenerateMarkers walks consecutive used/ready boundary mark pairs and seals
// the work marker covering the gap between them, stopping at the first mark
// that is not ready. The walk only ever extends forward from the last used
// mark, which makes the operation idempotent and resumable. The number of
// markers created is returned.
func (wm *WorkMgr) GenerateMarkers() (int, error) {
	const funcName = "GenerateMarkers"
	wm.cfg.PayoutLock.Lock()
	defer wm.cfg.PayoutLock.Unlock()

	marks := make([]*WorkMark, 0)
	wm.cfg.Marks.ascend(func(m *WorkMark) bool {
		if m.ExpiredOn == NeverExpires {
			marks = append(marks, m)
		}
		return true
	})
	if len(marks) == 0 {
		return 0, nil
	}

	// Resume from the last used mark. Without one the earliest mark is
	// promoted to used and becomes the base of the sequence.
	var prev *WorkMark
	next := 0
	for i := len(marks) - 1; i >= 0; i-- {
		if marks[i].Status == MarkUsed {
			prev = marks[i]
			next = i + 1
			break
		}
	}
	if prev == nil {
		used, err := wm.useMark(marks[0])
		if err != nil {
			return 0, err
		}
		log.Debugf("%s: promoted mark at work unit %d to used as the "+
			"marker sequence base", funcName, used.WorkUnitID)
		prev = used
		next = 1
	}

	created := 0
	for ; next < len(marks); next++ {
		mark := marks[next]
		if mark.Status != MarkReady {
			break
		}
		_, err := wm.sealMarker(prev.WorkUnitID+1, mark.WorkUnitID,
			mark.Description)
		if err != nil {
			return created, err
		}
		used, err := wm.useMark(mark)
		if err != nil {
			return created, err
		}
		prev = used
		created++
	}
	return created, nil
}

// useMark transitions a boundary mark to used via a superseding version row.
func (wm *WorkMgr) useMark(mark *WorkMark) (*WorkMark, error) {
	now := time.Now().UnixNano()
	used := mark.supersede(MarkUsed, now)
	err := wm.cfg.DB.supersedeWorkMark(mark, used)
	if err != nil {
		mark.ExpiredOn = NeverExpires
		return nil, err
	}
	wm.cfg.Marks.insert(used)
	return used, nil
}
