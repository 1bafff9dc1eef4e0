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

	"gonum.org/v1/gonum/stat/distuv"
)

// DeepConfThreshold is the confirmation count at which a confirmed block is
// considered irreversible for payout purposes.
const DeepConfThreshold = 42

// BlockStatus is the lifecycle state of a tracked block.
type BlockStatus uint32

const (
	// BlockNew indicates a freshly found block awaiting confirmation.
	BlockNew BlockStatus = iota

	// BlockConfirmed indicates a block accepted by the network.
	BlockConfirmed

	// BlockDeepConfirmed indicates a block buried beyond the reorg horizon.
	BlockDeepConfirmed

	// BlockOrphaned indicates a block discarded by the network.
	BlockOrphaned
)

// String returns the block status as a human-readable name.
func (s BlockStatus) String() string {
	switch s {
	case BlockNew:
		return "new"
	case BlockConfirmed:
		return "confirmed"
	case BlockDeepConfirmed:
		return "deepconfirmed"
	case BlockOrphaned:
		return "orphaned"
	}
	return fmt.Sprintf("unknown (%d)", uint32(s))
}

// Block represents a block found by the pool. Every status transition is
// recorded as a new version row, which preserves the full lifecycle history
// of each block, orphaned versions included.
type Block struct {
	UUID          string      `json:"uuid"`
	Height        uint32      `json:"height"`
	BlockHash     string      `json:"blockhash"`
	WorkUnitID    uint64      `json:"workunitid"`
	MinerReward   int64       `json:"minerreward"`
	AccountID     string      `json:"accountid"`
	Worker        string      `json:"worker"`
	Status        BlockStatus `json:"status"`
	Confirmations int64       `json:"confirmations"`
	RoundDiff     float64     `json:"rounddiff"`
	CreatedOn     int64       `json:"createdon"`
	ExpiredOn     int64       `json:"expiredon"`
}

// blockID generates a unique block id using the provided details.
func blockID(height uint32, createdOn int64) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(heightToBigEndianBytes(height)))
	_, _ = buf.WriteString(hex.EncodeToString(nanoToBigEndianBytes(createdOn)))
	return buf.String()
}

// NewBlock creates a new block in the found state.
func NewBlock(height uint32, blockHash string, workUnitID uint64,
	minerReward int64, account, worker string, roundDiff float64) *Block {
	now := time.Now().UnixNano()
	return &Block{
		UUID:        blockID(height, now),
		Height:      height,
		BlockHash:   blockHash,
		WorkUnitID:  workUnitID,
		MinerReward: minerReward,
		AccountID:   account,
		Worker:      worker,
		Status:      BlockNew,
		RoundDiff:   roundDiff,
		CreatedOn:   now,
		ExpiredOn:   NeverExpires,
	}
}

// supersede returns a new current version of the block with the provided
// status and confirmation count, expiring the receiver.
func (b *Block) supersede(status BlockStatus, confs int64, now int64) *Block {
	next := *b
	next.UUID = blockID(b.Height, now)
	next.Status = status
	next.Confirmations = confs
	next.CreatedOn = now
	next.ExpiredOn = NeverExpires
	b.ExpiredOn = now
	return &next
}

// BlockStats summarizes the pool's block finding record.
type BlockStats struct {
	// Found is the number of blocks found, orphans included.
	Found uint32
	// Orphaned is the number of blocks discarded by the network.
	Orphaned uint32
	// DeepConfirmed is the number of blocks buried beyond the reorg
	// horizon.
	DeepConfirmed uint32
	// MeanLuck is the mean ratio of expected to actual round difficulty
	// over non-orphaned blocks. Values above 1 mean rounds ran shorter
	// than expected.
	MeanLuck float64
	// LuckCDF is the probability that a pool with fair luck would have
	// needed at most the difficulty this pool actually spent. Values near
	// 0 or 1 indicate unusually lucky or unlucky runs.
	LuckCDF float64
}

// BlockStatsCache lazily computes block statistics against the block index,
// revalidating only when the index generation has advanced.
type BlockStatsCache struct {
	mtx    sync.Mutex
	blocks *BlockIndex
	gen    uint64
	stats  BlockStats
}

// NewBlockStatsCache creates a statistics cache over the provided index.
func NewBlockStatsCache(blocks *BlockIndex) *BlockStatsCache {
	return &BlockStatsCache{blocks: blocks}
}

// Stats returns the current block statistics, recomputing them if blocks
// have been inserted or transitioned since the last call.
func (c *BlockStatsCache) Stats() BlockStats {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	gen := c.blocks.generation()
	if gen == c.gen && c.stats.Found > 0 {
		return c.stats
	}

	var stats BlockStats
	var rounds int
	var spentDiff, expectedDiff float64
	c.blocks.ascendCurrent(func(b *Block) bool {
		stats.Found++
		switch b.Status {
		case BlockOrphaned:
			stats.Orphaned++
			return true
		case BlockDeepConfirmed:
			stats.DeepConfirmed++
		}
		if b.RoundDiff > 0 {
			// A solved round is one exponential sample with mean equal
			// to the network difficulty; spent difficulty is measured
			// in units of that mean.
			rounds++
			spentDiff += b.RoundDiff
			expectedDiff++
		}
		return true
	})

	if rounds > 0 && spentDiff > 0 {
		stats.MeanLuck = expectedDiff / spentDiff
		// The sum of n unit-mean exponential rounds is Gamma(n, 1).
		gamma := distuv.Gamma{Alpha: float64(rounds), Beta: 1}
		stats.LuckCDF = gamma.CDF(spentDiff)
	}

	c.gen = gen
	c.stats = stats
	return stats
}
