// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"sync"

	"github.com/google/btree"
)

// indexDegree is the branching factor used for all in-memory ordered indices.
const indexDegree = 16

// shareSummaryLess orders share summaries by work unit id, then account,
// worker and creation time.
func shareSummaryLess(a, b *ShareSummary) bool {
	if a.WorkUnitID != b.WorkUnitID {
		return a.WorkUnitID < b.WorkUnitID
	}
	if a.AccountID != b.AccountID {
		return a.AccountID < b.AccountID
	}
	if a.Worker != b.Worker {
		return a.Worker < b.Worker
	}
	return a.CreatedOn < b.CreatedOn
}

// ShareSummaryIndex is an ordered in-memory index of share summaries keyed by
// (work unit id, account, worker, created-on). All versions of a summary are
// retained; lookups filter on the current row.
type ShareSummaryIndex struct {
	mtx      sync.RWMutex
	tree     *btree.BTreeG[*ShareSummary]
	currents map[string]*ShareSummary
}

// NewShareSummaryIndex creates an empty share summary index.
func NewShareSummaryIndex() *ShareSummaryIndex {
	return &ShareSummaryIndex{
		tree:     btree.NewG(indexDegree, shareSummaryLess),
		currents: make(map[string]*ShareSummary),
	}
}

// insert adds the provided summary to the index and tracks it as the current
// row for its (account, worker) stream.
func (idx *ShareSummaryIndex) insert(s *ShareSummary) {
	idx.mtx.Lock()
	idx.tree.ReplaceOrInsert(s)
	if s.ExpiredOn == NeverExpires {
		idx.currents[s.AccountID+"/"+s.Worker] = s
	}
	idx.mtx.Unlock()
}

// fetchCurrent returns the current summary of the provided (account, worker)
// stream, or nil if the stream has none.
func (idx *ShareSummaryIndex) fetchCurrent(account, worker string) *ShareSummary {
	idx.mtx.RLock()
	s := idx.currents[account+"/"+worker]
	idx.mtx.RUnlock()
	if s != nil && s.ExpiredOn != NeverExpires {
		return nil
	}
	return s
}

// descendFrom walks all summaries with a work unit id less than or equal to
// the provided id, in descending work unit order. The walk is terminated when
// the provided function returns false. A read lock is held for the duration
// of the walk.
func (idx *ShareSummaryIndex) descendFrom(workUnitID uint64, f func(*ShareSummary) bool) {
	// The pivot sorts before every real row of workUnitID+1, which makes
	// the descent start exactly at the last row of workUnitID.
	pivot := &ShareSummary{WorkUnitID: workUnitID + 1}
	idx.mtx.RLock()
	idx.tree.DescendLessOrEqual(pivot, func(s *ShareSummary) bool {
		if s.WorkUnitID > workUnitID {
			return true
		}
		return f(s)
	})
	idx.mtx.RUnlock()
}

// rangeWorkUnits walks all summaries with work unit ids in [start, end], in
// ascending order, terminating when the provided function returns false.
func (idx *ShareSummaryIndex) rangeWorkUnits(start, end uint64, f func(*ShareSummary) bool) {
	lo := &ShareSummary{WorkUnitID: start}
	hi := &ShareSummary{WorkUnitID: end + 1}
	idx.mtx.RLock()
	idx.tree.AscendRange(lo, hi, f)
	idx.mtx.RUnlock()
}

// mutate runs the provided function under the index write lock. Key fields of
// indexed summaries must not be modified.
func (idx *ShareSummaryIndex) mutate(f func()) {
	idx.mtx.Lock()
	f()
	idx.mtx.Unlock()
}

// expireMatching expires the indexed summaries key-equal to the provided
// rows. Rows with no indexed counterpart are skipped.
func (idx *ShareSummaryIndex) expireMatching(rows []*ShareSummary, now int64) {
	idx.mtx.Lock()
	for _, r := range rows {
		if s, ok := idx.tree.Get(r); ok {
			s.ExpiredOn = now
		}
	}
	idx.mtx.Unlock()
}

// markerSummaryLess orders marker summaries by marker id, then account and
// worker.
func markerSummaryLess(a, b *MarkerSummary) bool {
	if a.MarkerID != b.MarkerID {
		return a.MarkerID < b.MarkerID
	}
	if a.AccountID != b.AccountID {
		return a.AccountID < b.AccountID
	}
	return a.Worker < b.Worker
}

// MarkerSummaryIndex is an ordered in-memory index of marker summaries keyed
// by (marker id, account, worker).
type MarkerSummaryIndex struct {
	mtx  sync.RWMutex
	tree *btree.BTreeG[*MarkerSummary]
}

// NewMarkerSummaryIndex creates an empty marker summary index.
func NewMarkerSummaryIndex() *MarkerSummaryIndex {
	return &MarkerSummaryIndex{tree: btree.NewG(indexDegree, markerSummaryLess)}
}

// insert adds the provided marker summary to the index.
func (idx *MarkerSummaryIndex) insert(ms *MarkerSummary) {
	idx.mtx.Lock()
	idx.tree.ReplaceOrInsert(ms)
	idx.mtx.Unlock()
}

// forMarker walks all summaries of the provided marker in ascending
// (account, worker) order, terminating when the provided function returns
// false.
func (idx *MarkerSummaryIndex) forMarker(markerID uint64, f func(*MarkerSummary) bool) {
	lo := &MarkerSummary{MarkerID: markerID}
	hi := &MarkerSummary{MarkerID: markerID + 1}
	idx.mtx.RLock()
	idx.tree.AscendRange(lo, hi, f)
	idx.mtx.RUnlock()
}

// workUnitLess orders work units by id.
func workUnitLess(a, b *WorkUnit) bool {
	return a.WorkUnitID < b.WorkUnitID
}

// WorkUnitIndex is an ordered in-memory index of work units keyed by id.
type WorkUnitIndex struct {
	mtx  sync.RWMutex
	tree *btree.BTreeG[*WorkUnit]
}

// NewWorkUnitIndex creates an empty work unit index.
func NewWorkUnitIndex() *WorkUnitIndex {
	return &WorkUnitIndex{tree: btree.NewG(indexDegree, workUnitLess)}
}

// insert adds the provided work unit to the index.
func (idx *WorkUnitIndex) insert(w *WorkUnit) {
	idx.mtx.Lock()
	idx.tree.ReplaceOrInsert(w)
	idx.mtx.Unlock()
}

// fetch returns the work unit with the provided id, or nil if it does not
// exist.
func (idx *WorkUnitIndex) fetch(workUnitID uint64) *WorkUnit {
	idx.mtx.RLock()
	w, _ := idx.tree.Get(&WorkUnit{WorkUnitID: workUnitID})
	idx.mtx.RUnlock()
	return w
}

// last returns the work unit with the highest id, or nil if the index is
// empty.
func (idx *WorkUnitIndex) last() *WorkUnit {
	idx.mtx.RLock()
	w, _ := idx.tree.Max()
	idx.mtx.RUnlock()
	return w
}

// ascendRange walks work units with ids in [start, end] in ascending order,
// terminating when the provided function returns false.
func (idx *WorkUnitIndex) ascendRange(start, end uint64, f func(*WorkUnit) bool) {
	lo := &WorkUnit{WorkUnitID: start}
	hi := &WorkUnit{WorkUnitID: end + 1}
	idx.mtx.RLock()
	idx.tree.AscendRange(lo, hi, f)
	idx.mtx.RUnlock()
}

// workMarkerLess orders work markers by id, then creation time so superseded
// versions sort before their replacements.
func workMarkerLess(a, b *WorkMarker) bool {
	if a.MarkerID != b.MarkerID {
		return a.MarkerID < b.MarkerID
	}
	return a.CreatedOn < b.CreatedOn
}

// WorkMarkerIndex is an ordered in-memory index of work markers keyed by
// (marker id, created-on). Marker ids are monotonic and marker ranges are
// contiguous, so id order is also work unit range order.
type WorkMarkerIndex struct {
	mtx  sync.RWMutex
	tree *btree.BTreeG[*WorkMarker]
}

// NewWorkMarkerIndex creates an empty work marker index.
func NewWorkMarkerIndex() *WorkMarkerIndex {
	return &WorkMarkerIndex{tree: btree.NewG(indexDegree, workMarkerLess)}
}

// insert adds the provided marker to the index.
func (idx *WorkMarkerIndex) insert(m *WorkMarker) {
	idx.mtx.Lock()
	idx.tree.ReplaceOrInsert(m)
	idx.mtx.Unlock()
}

// fetchCurrent returns the current version of the marker with the provided
// id, or nil if none exists.
func (idx *WorkMarkerIndex) fetchCurrent(markerID uint64) *WorkMarker {
	var found *WorkMarker
	lo := &WorkMarker{MarkerID: markerID}
	hi := &WorkMarker{MarkerID: markerID + 1}
	idx.mtx.RLock()
	idx.tree.AscendRange(lo, hi, func(m *WorkMarker) bool {
		if m.ExpiredOn == NeverExpires {
			found = m
			return false
		}
		return true
	})
	idx.mtx.RUnlock()
	return found
}

// descend walks all markers in descending (marker id, created-on) order,
// terminating when the provided function returns false.
func (idx *WorkMarkerIndex) descend(f func(*WorkMarker) bool) {
	idx.mtx.RLock()
	idx.tree.Descend(f)
	idx.mtx.RUnlock()
}

// overlaps returns the current marker whose work unit range intersects
// [start, end], or nil if no such marker exists.
func (idx *WorkMarkerIndex) overlaps(start, end uint64) *WorkMarker {
	var found *WorkMarker
	idx.mtx.RLock()
	idx.tree.Ascend(func(m *WorkMarker) bool {
		if m.ExpiredOn != NeverExpires {
			return true
		}
		if m.WorkUnitIDStart <= end && m.WorkUnitIDEnd >= start {
			found = m
			return false
		}
		return true
	})
	idx.mtx.RUnlock()
	return found
}

// lastProcessed returns the current PROCESSED marker with the highest id, or
// nil if none exists.
func (idx *WorkMarkerIndex) lastProcessed() *WorkMarker {
	var found *WorkMarker
	idx.mtx.RLock()
	idx.tree.Descend(func(m *WorkMarker) bool {
		if m.ExpiredOn == NeverExpires && m.Status == MarkerProcessed {
			found = m
			return false
		}
		return true
	})
	idx.mtx.RUnlock()
	return found
}

// workMarkLess orders boundary marks by work unit id, then creation time.
func workMarkLess(a, b *WorkMark) bool {
	if a.WorkUnitID != b.WorkUnitID {
		return a.WorkUnitID < b.WorkUnitID
	}
	return a.CreatedOn < b.CreatedOn
}

// WorkMarkIndex is an ordered in-memory index of boundary marks keyed by
// (work unit id, created-on).
type WorkMarkIndex struct {
	mtx  sync.RWMutex
	tree *btree.BTreeG[*WorkMark]
}

// NewWorkMarkIndex creates an empty work mark index.
func NewWorkMarkIndex() *WorkMarkIndex {
	return &WorkMarkIndex{tree: btree.NewG(indexDegree, workMarkLess)}
}

// insert adds the provided mark to the index.
func (idx *WorkMarkIndex) insert(m *WorkMark) {
	idx.mtx.Lock()
	idx.tree.ReplaceOrInsert(m)
	idx.mtx.Unlock()
}

// ascend walks all marks in ascending work unit order, terminating when the
// provided function returns false.
func (idx *WorkMarkIndex) ascend(f func(*WorkMark) bool) {
	idx.mtx.RLock()
	idx.tree.Ascend(f)
	idx.mtx.RUnlock()
}

// blockLess orders blocks by height, then creation time so superseded
// versions sort before their replacements.
func blockLess(a, b *Block) bool {
	if a.Height != b.Height {
		return a.Height < b.Height
	}
	return a.CreatedOn < b.CreatedOn
}

// BlockIndex is an ordered in-memory index of block versions keyed by
// (height, created-on).
type BlockIndex struct {
	mtx  sync.RWMutex
	tree *btree.BTreeG[*Block]
	gen  uint64
}

// NewBlockIndex creates an empty block index.
func NewBlockIndex() *BlockIndex {
	return &BlockIndex{tree: btree.NewG(indexDegree, blockLess)}
}

// insert adds the provided block version to the index and advances the
// statistics cache generation.
func (idx *BlockIndex) insert(b *Block) {
	idx.mtx.Lock()
	idx.tree.ReplaceOrInsert(b)
	idx.gen++
	idx.mtx.Unlock()
}

// generation returns the current write generation of the index. Any insert,
// including one superseding a version, advances it.
func (idx *BlockIndex) generation() uint64 {
	idx.mtx.RLock()
	gen := idx.gen
	idx.mtx.RUnlock()
	return gen
}

// currentAtHeight returns the current block version at the provided height,
// or nil if none exists.
func (idx *BlockIndex) currentAtHeight(height uint32) *Block {
	var found *Block
	lo := &Block{Height: height}
	hi := &Block{Height: height + 1}
	idx.mtx.RLock()
	idx.tree.AscendRange(lo, hi, func(b *Block) bool {
		if b.ExpiredOn == NeverExpires {
			found = b
			return false
		}
		return true
	})
	idx.mtx.RUnlock()
	return found
}

// versionsAtHeight returns every version recorded at the provided height in
// creation order.
func (idx *BlockIndex) versionsAtHeight(height uint32) []*Block {
	versions := make([]*Block, 0)
	lo := &Block{Height: height}
	hi := &Block{Height: height + 1}
	idx.mtx.RLock()
	idx.tree.AscendRange(lo, hi, func(b *Block) bool {
		versions = append(versions, b)
		return true
	})
	idx.mtx.RUnlock()
	return versions
}

// lastByStatus returns the current block version with the highest height
// whose status matches the provided status, or nil if none exists.
func (idx *BlockIndex) lastByStatus(status BlockStatus) *Block {
	var found *Block
	idx.mtx.RLock()
	idx.tree.Descend(func(b *Block) bool {
		if b.ExpiredOn == NeverExpires && b.Status == status {
			found = b
			return false
		}
		return true
	})
	idx.mtx.RUnlock()
	return found
}

// ascendCurrent walks the current version of every block in ascending height
// order, terminating when the provided function returns false.
func (idx *BlockIndex) ascendCurrent(f func(*Block) bool) {
	idx.mtx.RLock()
	idx.tree.Ascend(func(b *Block) bool {
		if b.ExpiredOn != NeverExpires {
			return true
		}
		return f(b)
	})
	idx.mtx.RUnlock()
}

// payoutLess orders payouts by id, then creation time so superseded versions
// sort before their replacements.
func payoutLess(a, b *Payout) bool {
	if a.PayoutID != b.PayoutID {
		return a.PayoutID < b.PayoutID
	}
	return a.CreatedOn < b.CreatedOn
}

// PayoutIndex is an ordered in-memory index of payout versions keyed by
// (payout id, created-on).
type PayoutIndex struct {
	mtx  sync.RWMutex
	tree *btree.BTreeG[*Payout]
}

// NewPayoutIndex creates an empty payout index.
func NewPayoutIndex() *PayoutIndex {
	return &PayoutIndex{tree: btree.NewG(indexDegree, payoutLess)}
}

// insert adds the provided payout version to the index.
func (idx *PayoutIndex) insert(p *Payout) {
	idx.mtx.Lock()
	idx.tree.ReplaceOrInsert(p)
	idx.mtx.Unlock()
}

// fetchCurrent returns the current version of the payout with the provided
// id, or nil if none exists.
func (idx *PayoutIndex) fetchCurrent(payoutID uint64) *Payout {
	var found *Payout
	lo := &Payout{PayoutID: payoutID}
	hi := &Payout{PayoutID: payoutID + 1}
	idx.mtx.RLock()
	idx.tree.AscendRange(lo, hi, func(p *Payout) bool {
		if p.ExpiredOn == NeverExpires {
			found = p
			return false
		}
		return true
	})
	idx.mtx.RUnlock()
	return found
}

// byBlock returns the current payout computed for the provided block, or nil
// if none exists.
func (idx *PayoutIndex) byBlock(height uint32, blockHash string) *Payout {
	var found *Payout
	idx.mtx.RLock()
	idx.tree.Ascend(func(p *Payout) bool {
		if p.ExpiredOn == NeverExpires && p.Height == height &&
			p.BlockHash == blockHash {
			found = p
			return false
		}
		return true
	})
	idx.mtx.RUnlock()
	return found
}

// last returns the current payout with the highest id, or nil if none exists.
func (idx *PayoutIndex) last() *Payout {
	var found *Payout
	idx.mtx.RLock()
	idx.tree.Descend(func(p *Payout) bool {
		if p.ExpiredOn == NeverExpires {
			found = p
			return false
		}
		return true
	})
	idx.mtx.RUnlock()
	return found
}

// payoutAddressLess orders payout addresses by account, then address and
// creation time.
func payoutAddressLess(a, b *PayoutAddress) bool {
	if a.AccountID != b.AccountID {
		return a.AccountID < b.AccountID
	}
	if a.Address != b.Address {
		return a.Address < b.Address
	}
	return a.CreatedOn < b.CreatedOn
}

// PayoutAddressIndex is an ordered in-memory index of payout address records
// keyed by (account, address, created-on).
type PayoutAddressIndex struct {
	mtx  sync.RWMutex
	tree *btree.BTreeG[*PayoutAddress]
}

// NewPayoutAddressIndex creates an empty payout address index.
func NewPayoutAddressIndex() *PayoutAddressIndex {
	return &PayoutAddressIndex{tree: btree.NewG(indexDegree, payoutAddressLess)}
}

// insert adds the provided address record to the index.
func (idx *PayoutAddressIndex) insert(a *PayoutAddress) {
	idx.mtx.Lock()
	idx.tree.ReplaceOrInsert(a)
	idx.mtx.Unlock()
}

// effectiveAt returns the address records of the provided account effective
// at the provided time, in address order.
func (idx *PayoutAddressIndex) effectiveAt(account string, when int64) []*PayoutAddress {
	effective := make([]*PayoutAddress, 0)
	lo := &PayoutAddress{AccountID: account}
	hi := &PayoutAddress{AccountID: account + "\x00"}
	idx.mtx.RLock()
	idx.tree.AscendRange(lo, hi, func(a *PayoutAddress) bool {
		if a.CreatedOn <= when && (a.ExpiredOn == NeverExpires || a.ExpiredOn > when) {
			effective = append(effective, a)
		}
		return true
	})
	idx.mtx.RUnlock()
	return effective
}

// forAccount walks all address records of the provided account, terminating
// when the provided function returns false.
func (idx *PayoutAddressIndex) forAccount(account string, f func(*PayoutAddress) bool) {
	lo := &PayoutAddress{AccountID: account}
	hi := &PayoutAddress{AccountID: account + "\x00"}
	idx.mtx.RLock()
	idx.tree.AscendRange(lo, hi, f)
	idx.mtx.RUnlock()
}
