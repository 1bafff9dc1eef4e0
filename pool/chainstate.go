// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"fmt"
	"time"

	"github.com/ctubio/ckpool-sub002/errors"
)

// ChainStateConfig contains all of the configuration values which should be
// provided when creating a new instance of ChainState.
type ChainStateConfig struct {
	// DB represents the ledger database.
	DB Database
	// Blocks represents the block index.
	Blocks *BlockIndex
	// State represents the pool-wide running totals.
	State *PoolState
	// WorkUnits represents the work unit index.
	WorkUnits *WorkUnitIndex
	// BlockConfirmations is the confirmation count at which a new block
	// transitions to confirmed.
	BlockConfirmations int64
	// PayoutTrigger, when set, is invoked once for every block reaching
	// the confirmed state.
	PayoutTrigger func(*Block) error
}

// ChainState tracks the lifecycle of blocks found by the pool against the
// view of the network reported by the block oracle.
type ChainState struct {
	cfg *ChainStateConfig
}

// NewChainState creates a chain state tracker.
func NewChainState(cCfg *ChainStateConfig) *ChainState {
	return &ChainState{cfg: cCfg}
}

// RegisterBlock records a block found by the pool and zeroes the pool round
// totals. The round's accepted difficulty, normalized by the network
// difficulty of the solving work unit, is captured on the block for luck
// statistics.
func (cs *ChainState) RegisterBlock(height uint32, blockHash string,
	workUnitID uint64, minerReward int64, account, worker string) (*Block, error) {
	const funcName = "RegisterBlock"

	unit := cs.cfg.WorkUnits.fetch(workUnitID)
	if unit == nil {
		desc := fmt.Sprintf("%s: no work unit found with id %d", funcName,
			workUnitID)
		return nil, errors.PoolError(errors.WorkUnitNotFound, desc)
	}

	var roundDiff float64
	netDiff, err := unit.NetworkDifficulty()
	if err != nil {
		log.Errorf("%s: unable to derive network difficulty for work "+
			"unit %d: %v", funcName, workUnitID, err)
	} else if netDiff > 0 {
		accepted, _ := cs.cfg.State.RoundTotals()
		roundDiff = accepted / netDiff
	}

	block := NewBlock(height, blockHash, workUnitID, minerReward, account,
		worker, roundDiff)
	err = cs.cfg.DB.persistBlock(block)
	if err != nil {
		return nil, err
	}
	cs.cfg.Blocks.insert(block)
	cs.cfg.State.ZeroRound()
	log.Infof("block found at height %d by %s/%s, hash %s", height, account,
		worker, blockHash)
	return block, nil
}

// UpdateBlock advances the lifecycle of the provided current block version
// using the network's view of its height. A network hash differing from the
// recorded hash orphans the block regardless of its confirmation count. The
// new version is returned when a transition occurred, nil otherwise.
//
// Orphaned and deep confirmed blocks are terminal and never transition.
func (cs *ChainState) UpdateBlock(block *Block, networkHash string,
	confirmations int64) (*Block, error) {
	const funcName = "UpdateBlock"

	if block.ExpiredOn != NeverExpires {
		desc := fmt.Sprintf("%s: block %s at height %d is not the current "+
			"version", funcName, block.UUID, block.Height)
		return nil, errors.PoolError(errors.BlockConf, desc)
	}
	if block.Status == BlockOrphaned || block.Status == BlockDeepConfirmed {
		return nil, nil
	}

	var status BlockStatus
	switch {
	case networkHash != block.BlockHash:
		status = BlockOrphaned
	case confirmations >= DeepConfThreshold:
		status = BlockDeepConfirmed
	case confirmations >= cs.cfg.BlockConfirmations:
		status = BlockConfirmed
	default:
		return nil, nil
	}
	if status == block.Status {
		return nil, nil
	}

	now := time.Now().UnixNano()
	next := block.supersede(status, confirmations, now)
	err := cs.cfg.DB.transitionBlock(block, next)
	if err != nil {
		block.ExpiredOn = NeverExpires
		return nil, err
	}
	cs.cfg.Blocks.insert(next)

	switch status {
	case BlockOrphaned:
		log.Warnf("block at height %d orphaned, network hash %s does not "+
			"match recorded hash %s", block.Height, networkHash,
			block.BlockHash)
	case BlockDeepConfirmed:
		log.Infof("block at height %d deep confirmed with %d confirmations",
			block.Height, confirmations)
	case BlockConfirmed:
		log.Infof("block at height %d confirmed with %d confirmations",
			block.Height, confirmations)
		if block.Status != BlockConfirmed && cs.cfg.PayoutTrigger != nil {
			err := cs.cfg.PayoutTrigger(next)
			if err != nil {
				log.Errorf("%s: payout trigger for block at height %d "+
					"failed: %v", funcName, block.Height, err)
			}
		}
	}
	return next, nil
}
