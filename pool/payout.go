// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"
)

// PayoutStatus is the lifecycle state of a payout.
type PayoutStatus uint32

const (
	// PayoutProcessing indicates a payout whose partitions have been
	// computed and durably staged but not yet released.
	PayoutProcessing PayoutStatus = iota

	// PayoutGenerated indicates a fully committed payout.
	PayoutGenerated

	// PayoutOrphaned indicates a payout voided because its block was
	// orphaned before release.
	PayoutOrphaned
)

// String returns the payout status as a human-readable name.
func (s PayoutStatus) String() string {
	switch s {
	case PayoutProcessing:
		return "processing"
	case PayoutGenerated:
		return "generated"
	case PayoutOrphaned:
		return "orphaned"
	}
	return fmt.Sprintf("unknown (%d)", uint32(s))
}

// Payout is the record of one reward distribution for one confirmed block.
// A payout transitions from processing to generated in two separate durable
// steps so that a crash between them is detectable and the distribution
// happens exactly once.
type Payout struct {
	UUID            string       `json:"uuid"`
	PayoutID        uint64       `json:"payoutid"`
	Height          uint32       `json:"height"`
	BlockHash       string       `json:"blockhash"`
	WorkUnitIDStart uint64       `json:"workunitidstart"`
	WorkUnitIDEnd   uint64       `json:"workunitidend"`
	MinerReward     int64        `json:"minerreward"`
	PoolFee         int64        `json:"poolfee"`
	TotalDiff       float64      `json:"totaldiff"`
	DiffWanted      float64      `json:"diffwanted"`
	Elapsed         int64        `json:"elapsed"`
	Status          PayoutStatus `json:"status"`
	CreatedOn       int64        `json:"createdon"`
	ExpiredOn       int64        `json:"expiredon"`
}

// payoutID generates a unique payout id using the provided details.
func payoutID(id uint64, createdOn int64) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(uint64ToBigEndianBytes(id)))
	_, _ = buf.WriteString(hex.EncodeToString(nanoToBigEndianBytes(createdOn)))
	return buf.String()
}

// NewPayout creates a payout in the processing state. The window bounds
// record the work unit range the distribution actually consumed, ending at
// the solving unit.
func NewPayout(id uint64, block *Block, poolFee int64, totalDiff,
	diffWanted float64, windowStart uint64, elapsed int64) *Payout {
	now := time.Now().UnixNano()
	return &Payout{
		UUID:            payoutID(id, now),
		PayoutID:        id,
		Height:          block.Height,
		BlockHash:       block.BlockHash,
		WorkUnitIDStart: windowStart,
		WorkUnitIDEnd:   block.WorkUnitID,
		MinerReward:     block.MinerReward,
		PoolFee:         poolFee,
		TotalDiff:       totalDiff,
		DiffWanted:      diffWanted,
		Elapsed:         elapsed,
		Status:          PayoutProcessing,
		CreatedOn:       now,
		ExpiredOn:       NeverExpires,
	}
}

// supersede returns a new current version of the payout with the provided
// status, expiring the receiver.
func (p *Payout) supersede(status PayoutStatus, now int64) *Payout {
	next := *p
	next.UUID = payoutID(p.PayoutID, now)
	next.Status = status
	next.CreatedOn = now
	next.ExpiredOn = NeverExpires
	p.ExpiredOn = now
	return &next
}

// MiningPayout is one account's partition of a payout, in proportion to the
// difficulty the account contributed within the payout window.
type MiningPayout struct {
	UUID      string  `json:"uuid"`
	PayoutID  uint64  `json:"payoutid"`
	AccountID string  `json:"accountid"`
	Diff      float64 `json:"diff"`
	Amount    int64   `json:"amount"`
	CreatedOn int64   `json:"createdon"`
}

// miningPayoutID generates a unique mining payout id using the provided
// details.
func miningPayoutID(payoutID uint64, account string) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(uint64ToBigEndianBytes(payoutID)))
	_, _ = buf.WriteString(account)
	return buf.String()
}

// NewMiningPayout creates an account partition of the provided payout.
func NewMiningPayout(payoutID uint64, account string, diff float64,
	amount int64) *MiningPayout {
	return &MiningPayout{
		UUID:      miningPayoutID(payoutID, account),
		PayoutID:  payoutID,
		AccountID: account,
		Diff:      diff,
		Amount:    amount,
		CreatedOn: time.Now().UnixNano(),
	}
}

// Payment is the amount owed to one destination address out of one account's
// payout partition.
type Payment struct {
	UUID      string `json:"uuid"`
	PayoutID  uint64 `json:"payoutid"`
	AccountID string `json:"accountid"`
	Address   string `json:"address"`
	Amount    int64  `json:"amount"`
	CreatedOn int64  `json:"createdon"`
}

// paymentID generates a unique payment id using the provided details.
func paymentID(payoutID uint64, account, address string) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(uint64ToBigEndianBytes(payoutID)))
	_, _ = buf.WriteString(account)
	_, _ = buf.WriteString("/")
	_, _ = buf.WriteString(address)
	return buf.String()
}

// NewPayment creates an address payment of the provided payout.
func NewPayment(payoutID uint64, account, address string, amount int64) *Payment {
	return &Payment{
		UUID:      paymentID(payoutID, account, address),
		PayoutID:  payoutID,
		AccountID: account,
		Address:   address,
		Amount:    amount,
		CreatedOn: time.Now().UnixNano(),
	}
}
