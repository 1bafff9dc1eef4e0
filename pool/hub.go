// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ctubio/ckpool-sub002/errors"
)

// BlockOracle describes the view of the network the block lifecycle tracker
// polls against.
type BlockOracle interface {
	// GetBlockHashAtHeight returns the network's block hash at the
	// provided height.
	GetBlockHashAtHeight(ctx context.Context, height uint32) (string, error)
	// GetBlockConfirmations returns the confirmation count of the block
	// with the provided hash, negative when the block is off the main
	// chain.
	GetBlockConfirmations(ctx context.Context, blockHash string) (int64, error)
	// ValidateAddress checks an address for well-formedness.
	ValidateAddress(ctx context.Context, address string) (bool, error)
}

// HubConfig contains all of the configuration values which should be
// provided when creating a new instance of Hub.
type HubConfig struct {
	// DB represents the ledger database.
	DB Database
	// Oracle represents the network view used for block confirmation.
	Oracle BlockOracle
	// PoolInstance identifies this pool instance on created work units.
	PoolInstance string
	// PoolFee is the fraction of each block reward retained by the pool.
	PoolFee float64
	// DiffMultiplier scales the network difficulty into the payout
	// difficulty window.
	DiffMultiplier float64
	// DiffOffset is added to the scaled difficulty window.
	DiffOffset float64
	// AllowAged permits payouts over completed but unverified share
	// summaries.
	AllowAged bool
	// BlockConfirmations is the confirmation count at which a new block
	// transitions to confirmed.
	BlockConfirmations int64
	// PollInterval is the period of the block confirmation poll.
	PollInterval time.Duration
}

// Hub owns the in-memory indices of the ledger and wires the share, work,
// chain, account and payout managers together over them.
type Hub struct {
	cfg *HubConfig

	state           *PoolState
	workUnits       *WorkUnitIndex
	shares          *ShareSummaryIndex
	markerSummaries *MarkerSummaryIndex
	markers         *WorkMarkerIndex
	marks           *WorkMarkIndex
	blocks          *BlockIndex
	payouts         *PayoutIndex
	addresses       *PayoutAddressIndex
	blockStats      *BlockStatsCache

	shareMgr   *ShareMgr
	workMgr    *WorkMgr
	chainState *ChainState
	accountMgr *AccountMgr
	payoutMgr  *PayoutMgr

	payoutLock sync.Mutex

	ignoreMtx sync.Mutex
	ignored   map[uint32]struct{}
}

// NewHub creates a hub, rebuilding all in-memory indices from the ledger
// database.
func NewHub(hCfg *HubConfig) (*Hub, error) {
	h := &Hub{
		cfg:             hCfg,
		state:           NewPoolState(),
		workUnits:       NewWorkUnitIndex(),
		shares:          NewShareSummaryIndex(),
		markerSummaries: NewMarkerSummaryIndex(),
		markers:         NewWorkMarkerIndex(),
		marks:           NewWorkMarkIndex(),
		blocks:          NewBlockIndex(),
		payouts:         NewPayoutIndex(),
		addresses:       NewPayoutAddressIndex(),
		ignored:         make(map[uint32]struct{}),
	}
	h.blockStats = NewBlockStatsCache(h.blocks)

	validateAddress := func(addr string) bool {
		if hCfg.Oracle == nil {
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(),
			5*time.Second)
		defer cancel()
		ok, err := hCfg.Oracle.ValidateAddress(ctx, addr)
		if err != nil {
			log.Errorf("unable to validate address %s: %v", addr, err)
			return false
		}
		return ok
	}

	h.shareMgr = NewShareMgr(&ShareMgrConfig{
		DB:        hCfg.DB,
		State:     h.state,
		Shares:    h.shares,
		Markers:   h.markers,
		WorkUnits: h.workUnits,
	})
	h.workMgr = NewWorkMgr(&WorkMgrConfig{
		DB:              hCfg.DB,
		WorkUnits:       h.workUnits,
		Markers:         h.markers,
		Marks:           h.marks,
		MarkerSummaries: h.markerSummaries,
		Shares:          h.shares,
		Rollup:          h.shareMgr.rollupForMarker,
		PayoutLock:      &h.payoutLock,
		PoolInstance:    hCfg.PoolInstance,
	})
	h.payoutMgr = NewPayoutMgr(&PayoutMgrConfig{
		DB:              hCfg.DB,
		Shares:          h.shares,
		MarkerSummaries: h.markerSummaries,
		Markers:         h.markers,
		WorkUnits:       h.workUnits,
		Payouts:         h.payouts,
		Addresses:       h.addresses,
		PoolFee:         hCfg.PoolFee,
		DiffMultiplier:  hCfg.DiffMultiplier,
		DiffOffset:      hCfg.DiffOffset,
		AllowAged:       hCfg.AllowAged,
		ValidateAddress: validateAddress,
		PayoutLock:      &h.payoutLock,
	})
	h.chainState = NewChainState(&ChainStateConfig{
		DB:                 hCfg.DB,
		Blocks:             h.blocks,
		State:              h.state,
		WorkUnits:          h.workUnits,
		BlockConfirmations: hCfg.BlockConfirmations,
		PayoutTrigger:      h.onBlockConfirmed,
	})
	h.accountMgr = NewAccountMgr(&AccountMgrConfig{
		DB:              hCfg.DB,
		Addresses:       h.addresses,
		ValidateAddress: validateAddress,
	})

	err := h.load()
	if err != nil {
		return nil, err
	}
	return h, nil
}

// load rebuilds all in-memory indices from the ledger database.
func (h *Hub) load() error {
	units, err := h.cfg.DB.listWorkUnits()
	if err != nil {
		return err
	}
	for _, u := range units {
		h.workUnits.insert(u)
	}
	summaries, err := h.cfg.DB.listShareSummaries()
	if err != nil {
		return err
	}
	for _, s := range summaries {
		h.shares.insert(s)
	}
	markerSummaries, err := h.cfg.DB.listMarkerSummaries()
	if err != nil {
		return err
	}
	for _, ms := range markerSummaries {
		h.markerSummaries.insert(ms)
	}
	markers, err := h.cfg.DB.listWorkMarkers()
	if err != nil {
		return err
	}
	for _, m := range markers {
		h.markers.insert(m)
	}
	marks, err := h.cfg.DB.listWorkMarks()
	if err != nil {
		return err
	}
	for _, m := range marks {
		h.marks.insert(m)
	}
	blocks, err := h.cfg.DB.listBlocks()
	if err != nil {
		return err
	}
	for _, b := range blocks {
		h.blocks.insert(b)
	}
	payouts, err := h.cfg.DB.listPayouts()
	if err != nil {
		return err
	}
	for _, p := range payouts {
		h.payouts.insert(p)
	}
	addresses, err := h.cfg.DB.listPayoutAddresses()
	if err != nil {
		return err
	}
	for _, a := range addresses {
		h.addresses.insert(a)
	}
	log.Infof("ledger loaded: %d work units, %d share summaries, %d "+
		"markers, %d blocks, %d payouts", len(units), len(summaries),
		len(markers), len(blocks), len(payouts))
	return nil
}

// onBlockConfirmed computes the payout of a block reaching the confirmed
// state, unless its height has been flagged for manual handling.
func (h *Hub) onBlockConfirmed(block *Block) error {
	if h.HeightIgnored(block.Height) {
		log.Warnf("skipping payout of ignored block at height %d",
			block.Height)
		return nil
	}
	_, err := h.payoutMgr.ProcessBlock(block)
	if errors.Is(err, errors.PayoutExists) {
		return nil
	}
	return err
}

// Run polls the block oracle on the configured interval and advances the
// lifecycle of every tracked block until the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("confirmation poll done")
			return
		case <-ticker.C:
			h.pollBlocks(ctx)
		}
	}
}

// pollBlocks advances all non-terminal tracked blocks against the oracle.
func (h *Hub) pollBlocks(ctx context.Context) {
	pending := make([]*Block, 0)
	h.blocks.ascendCurrent(func(b *Block) bool {
		if b.Status == BlockNew || b.Status == BlockConfirmed {
			pending = append(pending, b)
		}
		return true
	})
	for _, b := range pending {
		if h.HeightIgnored(b.Height) {
			continue
		}
		networkHash, err := h.cfg.Oracle.GetBlockHashAtHeight(ctx, b.Height)
		if err != nil {
			log.Errorf("unable to fetch network hash at height %d: %v",
				b.Height, err)
			continue
		}
		var confs int64
		if networkHash == b.BlockHash {
			confs, err = h.cfg.Oracle.GetBlockConfirmations(ctx, b.BlockHash)
			if err != nil {
				log.Errorf("unable to fetch confirmations of %s: %v",
					b.BlockHash, err)
				continue
			}
		}
		next, err := h.chainState.UpdateBlock(b, networkHash, confs)
		if err != nil {
			log.Errorf("unable to update block at height %d: %v",
				b.Height, err)
			continue
		}
		if next != nil && next.Status == BlockOrphaned {
			h.voidPayout(next)
		}
	}
}

// voidPayout voids the payout of an orphaned block, staged or released, if
// one exists.
func (h *Hub) voidPayout(block *Block) {
	payout := h.payouts.byBlock(block.Height, block.BlockHash)
	if payout == nil || payout.Status == PayoutOrphaned {
		return
	}
	_, err := h.payoutMgr.AdvanceStatus(payout.PayoutID, PayoutOrphaned)
	if err != nil {
		log.Errorf("unable to void payout %d of orphaned block at height "+
			"%d: %v", payout.PayoutID, block.Height, err)
	}
}

// IgnoreHeight flags or unflags a block height for manual payout handling.
// The flag is not persisted and does not survive a restart.
func (h *Hub) IgnoreHeight(height uint32, ignore bool) {
	h.ignoreMtx.Lock()
	if ignore {
		h.ignored[height] = struct{}{}
	} else {
		delete(h.ignored, height)
	}
	h.ignoreMtx.Unlock()
}

// HeightIgnored returns whether the provided height is flagged for manual
// payout handling.
func (h *Hub) HeightIgnored(height uint32) bool {
	h.ignoreMtx.Lock()
	_, ok := h.ignored[height]
	h.ignoreMtx.Unlock()
	return ok
}

// InsertWorkUnit appends a new work unit to the timeline.
func (h *Hub) InsertWorkUnit(id uint64, bits, coinbase string) (*WorkUnit, error) {
	return h.workMgr.InsertWorkUnit(id, bits, coinbase)
}

// RecordShare adds a share submission to the ledger.
func (h *Hub) RecordShare(account, worker string, workUnitID uint64,
	difficulty float64, outcome ShareOutcome) error {
	return h.shareMgr.RecordShare(account, worker, workUnitID, difficulty,
		outcome)
}

// SealCompletedUnits durably seals the summaries of all work units preceding
// the provided id.
func (h *Hub) SealCompletedUnits(uptoWorkUnitID uint64) (int, error) {
	return h.shareMgr.SealCompletedUnits(uptoWorkUnitID)
}

// PlaceMark records a boundary mark at the provided work unit.
func (h *Hub) PlaceMark(workUnitID uint64, description string) (*WorkMark, error) {
	return h.workMgr.PlaceMark(workUnitID, description)
}

// GenerateMarkers seals the work markers delimited by consecutive boundary
// marks.
func (h *Hub) GenerateMarkers() (int, error) {
	return h.workMgr.GenerateMarkers()
}

// ProcessMarker rolls a ready marker's share summaries up into marker
// summaries.
func (h *Hub) ProcessMarker(markerID uint64) error {
	return h.workMgr.ProcessMarker(markerID)
}

// RegisterBlock records a block found by the pool.
func (h *Hub) RegisterBlock(height uint32, blockHash string, workUnitID uint64,
	minerReward int64, account, worker string) (*Block, error) {
	return h.chainState.RegisterBlock(height, blockHash, workUnitID,
		minerReward, account, worker)
}

// SetPayoutAddresses replaces the effective payout address set of the
// provided account.
func (h *Hub) SetPayoutAddresses(account string,
	addresses map[string]float64) ([]*PayoutAddress, error) {
	return h.accountMgr.SetPayoutAddresses(account, addresses)
}

// ProcessBlockPayout computes the payout of the provided confirmed block.
func (h *Hub) ProcessBlockPayout(height uint32) (*Payout, error) {
	const funcName = "ProcessBlockPayout"
	block := h.blocks.currentAtHeight(height)
	if block == nil {
		desc := fmt.Sprintf("%s: no block found at height %d", funcName,
			height)
		return nil, errors.PoolError(errors.BlockNotFound, desc)
	}
	if block.Status != BlockConfirmed && block.Status != BlockDeepConfirmed {
		desc := fmt.Sprintf("%s: block at height %d is %s, not confirmed",
			funcName, height, block.Status)
		return nil, errors.PoolError(errors.BlockConf, desc)
	}
	return h.payoutMgr.ProcessBlock(block)
}

// FindBlockAtHeight returns the current block version at the provided
// height.
func (h *Hub) FindBlockAtHeight(height uint32) (*Block, error) {
	const funcName = "FindBlockAtHeight"
	block := h.blocks.currentAtHeight(height)
	if block == nil {
		desc := fmt.Sprintf("%s: no block found at height %d", funcName,
			height)
		return nil, errors.PoolError(errors.BlockNotFound, desc)
	}
	return block, nil
}

// LastBlockByStatus returns the current block version with the highest
// height in the provided status.
func (h *Hub) LastBlockByStatus(status BlockStatus) (*Block, error) {
	const funcName = "LastBlockByStatus"
	block := h.blocks.lastByStatus(status)
	if block == nil {
		desc := fmt.Sprintf("%s: no block found with status %s", funcName,
			status)
		return nil, errors.PoolError(errors.BlockNotFound, desc)
	}
	return block, nil
}

// FetchPayout returns the current version of the payout with the provided
// id.
func (h *Hub) FetchPayout(id uint64) (*Payout, error) {
	return h.payoutMgr.FetchPayout(id)
}

// FetchPayoutByBlock returns the current payout computed for the provided
// block.
func (h *Hub) FetchPayoutByBlock(height uint32, blockHash string) (*Payout, error) {
	return h.payoutMgr.FetchPayoutByBlock(height, blockHash)
}

// FetchLastPayout returns the current payout with the highest id.
func (h *Hub) FetchLastPayout() (*Payout, error) {
	return h.payoutMgr.FetchLastPayout()
}

// FetchWorkerStatus returns the live status of the provided worker.
func (h *Hub) FetchWorkerStatus(account, worker string) *WorkerStatus {
	return h.state.FetchWorkerStatus(account, worker)
}

// BlockStatistics returns the pool's block finding record.
func (h *Hub) BlockStatistics() BlockStats {
	return h.blockStats.Stats()
}

// Backup writes a snapshot of the ledger database to the provided file.
func (h *Hub) Backup(fileName string) error {
	return h.cfg.DB.Backup(fileName)
}
