// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

// Database describes all of the durable storage funcs of the ledger. Two
// implementations exist, one backed by bolt and one backed by postgres. All
// entity history is append-only; a superseded row is never deleted, only
// expired.
type Database interface {
	// Utilities.
	Close() error
	Backup(fileName string) error

	// Work units.
	persistWorkUnit(unit *WorkUnit) error
	listWorkUnits() ([]*WorkUnit, error)

	// Share summaries.
	persistShareSummary(summary *ShareSummary) error
	updateShareSummary(summary *ShareSummary) error
	listShareSummaries() ([]*ShareSummary, error)

	// Marker summaries.
	listMarkerSummaries() ([]*MarkerSummary, error)

	// Work markers and boundary marks. processMarker atomically records
	// the processed marker version, its rollups and the retirement of the
	// rolled-up share summaries.
	persistWorkMarker(marker *WorkMarker) error
	listWorkMarkers() ([]*WorkMarker, error)
	persistWorkMark(mark *WorkMark) error
	supersedeWorkMark(old, next *WorkMark) error
	listWorkMarks() ([]*WorkMark, error)
	processMarker(old, next *WorkMarker, summaries []*MarkerSummary,
		retired []*ShareSummary, now int64) error

	// Blocks. transitionBlock atomically expires the old version and
	// records its replacement.
	persistBlock(block *Block) error
	transitionBlock(old, next *Block) error
	listBlocks() ([]*Block, error)

	// Payouts. commitPayout atomically stages a payout with all of its
	// partition rows; advancePayout records a status transition.
	commitPayout(payout *Payout, miningPayouts []*MiningPayout,
		payments []*Payment) error
	advancePayout(old, next *Payout) error
	listPayouts() ([]*Payout, error)
	fetchMiningPayouts(payoutID uint64) ([]*MiningPayout, error)
	fetchPayments(payoutID uint64) ([]*Payment, error)
	loadLastPayoutID() (uint64, error)
	persistLastPayoutID(id uint64) error

	// Payout addresses.
	replacePayoutAddresses(expired, created []*PayoutAddress, now int64) error
	listPayoutAddresses() ([]*PayoutAddress, error)
}
