// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/ctubio/ckpool-sub002/errors"
)

// BoltDB is a wrapper around bolt.DB which implements the Database
// interface.
type BoltDB struct {
	DB *bolt.DB
}

// Ensure BoltDB implements the Database interface.
var _ Database = (*BoltDB)(nil)

// Close closes the bolt database.
func (db *BoltDB) Close() error {
	const funcName = "Close"
	err := db.DB.Close()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to close db: %v", funcName, err)
		return errors.DBError(errors.DBClose, desc)
	}
	return nil
}

// Backup writes a snapshot of the bolt database to the provided file.
func (db *BoltDB) Backup(fileName string) error {
	const funcName = "Backup"
	err := db.DB.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(fileName, 0600)
	})
	if err != nil {
		desc := fmt.Sprintf("%s: unable to backup db: %v", funcName, err)
		return errors.DBError(errors.Backup, desc)
	}
	return nil
}

// putEntry marshals the provided entry into the named bucket under the
// provided key within the transaction.
func putEntry(tx *bolt.Tx, bucket, key []byte, entry interface{}) error {
	const funcName = "putEntry"
	bkt, err := fetchBucket(tx, bucket)
	if err != nil {
		return err
	}
	eBytes, err := json.Marshal(entry)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to marshal entry: %v", funcName, err)
		return errors.DBError(errors.Parse, desc)
	}
	err = bkt.Put(key, eBytes)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to persist entry: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	return nil
}

// persistWorkUnit saves the work unit to the database. Returns an error if a
// work unit already exists with the same id.
func (db *BoltDB) persistWorkUnit(unit *WorkUnit) error {
	const funcName = "persistWorkUnit"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, workUnitBkt)
		if err != nil {
			return err
		}
		key := uint64ToBigEndianBytes(unit.WorkUnitID)
		if bkt.Get(key) != nil {
			desc := fmt.Sprintf("%s: work unit %d already exists", funcName,
				unit.WorkUnitID)
			return errors.DBError(errors.ValueFound, desc)
		}
		return putEntry(tx, workUnitBkt, key, unit)
	})
}

// listWorkUnits returns all work units in id order.
func (db *BoltDB) listWorkUnits() ([]*WorkUnit, error) {
	const funcName = "listWorkUnits"
	units := make([]*WorkUnit, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, workUnitBkt)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			var unit WorkUnit
			err := json.Unmarshal(v, &unit)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal work unit: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			units = append(units, &unit)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

// persistShareSummary saves the share summary to the database. Returns an
// error if a summary already exists with the same id.
func (db *BoltDB) persistShareSummary(summary *ShareSummary) error {
	const funcName = "persistShareSummary"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, shareSummaryBkt)
		if err != nil {
			return err
		}
		if bkt.Get([]byte(summary.UUID)) != nil {
			desc := fmt.Sprintf("%s: share summary %s already exists",
				funcName, summary.UUID)
			return errors.DBError(errors.ValueFound, desc)
		}
		return putEntry(tx, shareSummaryBkt, []byte(summary.UUID), summary)
	})
}

// updateShareSummary persists the updated share summary to the database.
// Returns an error if the summary is not found.
func (db *BoltDB) updateShareSummary(summary *ShareSummary) error {
	const funcName = "updateShareSummary"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, shareSummaryBkt)
		if err != nil {
			return err
		}
		if bkt.Get([]byte(summary.UUID)) == nil {
			desc := fmt.Sprintf("%s: share summary %s not found", funcName,
				summary.UUID)
			return errors.DBError(errors.ValueNotFound, desc)
		}
		return putEntry(tx, shareSummaryBkt, []byte(summary.UUID), summary)
	})
}

// listShareSummaries returns all share summary versions.
func (db *BoltDB) listShareSummaries() ([]*ShareSummary, error) {
	const funcName = "listShareSummaries"
	summaries := make([]*ShareSummary, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, shareSummaryBkt)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			var summary ShareSummary
			err := json.Unmarshal(v, &summary)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal share "+
					"summary: %v", funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			summaries = append(summaries, &summary)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// listMarkerSummaries returns all marker summaries.
func (db *BoltDB) listMarkerSummaries() ([]*MarkerSummary, error) {
	const funcName = "listMarkerSummaries"
	summaries := make([]*MarkerSummary, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, markerSummaryBkt)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			var summary MarkerSummary
			err := json.Unmarshal(v, &summary)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal marker "+
					"summary: %v", funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			summaries = append(summaries, &summary)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// persistWorkMarker saves the work marker to the database. Returns an error
// if a marker version already exists with the same id.
func (db *BoltDB) persistWorkMarker(marker *WorkMarker) error {
	const funcName = "persistWorkMarker"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, workMarkerBkt)
		if err != nil {
			return err
		}
		if bkt.Get([]byte(marker.UUID)) != nil {
			desc := fmt.Sprintf("%s: work marker %s already exists",
				funcName, marker.UUID)
			return errors.DBError(errors.ValueFound, desc)
		}
		return putEntry(tx, workMarkerBkt, []byte(marker.UUID), marker)
	})
}

// listWorkMarkers returns all work marker versions.
func (db *BoltDB) listWorkMarkers() ([]*WorkMarker, error) {
	const funcName = "listWorkMarkers"
	markers := make([]*WorkMarker, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, workMarkerBkt)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			var marker WorkMarker
			err := json.Unmarshal(v, &marker)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal work "+
					"marker: %v", funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			markers = append(markers, &marker)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return markers, nil
}

// persistWorkMark saves the boundary mark to the database. Returns an error
// if a mark version already exists with the same id.
func (db *BoltDB) persistWorkMark(mark *WorkMark) error {
	const funcName = "persistWorkMark"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, workMarkBkt)
		if err != nil {
			return err
		}
		if bkt.Get([]byte(mark.UUID)) != nil {
			desc := fmt.Sprintf("%s: work mark %s already exists", funcName,
				mark.UUID)
			return errors.DBError(errors.ValueFound, desc)
		}
		return putEntry(tx, workMarkBkt, []byte(mark.UUID), mark)
	})
}

// supersedeWorkMark atomically expires the old mark version and persists
// its replacement.
func (db *BoltDB) supersedeWorkMark(old, next *WorkMark) error {
	return db.DB.Update(func(tx *bolt.Tx) error {
		err := putEntry(tx, workMarkBkt, []byte(old.UUID), old)
		if err != nil {
			return err
		}
		return putEntry(tx, workMarkBkt, []byte(next.UUID), next)
	})
}

// listWorkMarks returns all boundary mark versions.
func (db *BoltDB) listWorkMarks() ([]*WorkMark, error) {
	const funcName = "listWorkMarks"
	marks := make([]*WorkMark, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, workMarkBkt)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			var mark WorkMark
			err := json.Unmarshal(v, &mark)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal work mark: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			marks = append(marks, &mark)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return marks, nil
}

// processMarker atomically persists the processed marker version, its
// rollups and the retirement of the rolled-up share summaries.
func (db *BoltDB) processMarker(old, next *WorkMarker,
	summaries []*MarkerSummary, retired []*ShareSummary, now int64) error {
	return db.DB.Update(func(tx *bolt.Tx) error {
		err := putEntry(tx, workMarkerBkt, []byte(old.UUID), old)
		if err != nil {
			return err
		}
		err = putEntry(tx, workMarkerBkt, []byte(next.UUID), next)
		if err != nil {
			return err
		}
		for _, ms := range summaries {
			err = putEntry(tx, markerSummaryBkt, []byte(ms.UUID), ms)
			if err != nil {
				return err
			}
		}
		for _, s := range retired {
			cp := *s
			cp.ExpiredOn = now
			err = putEntry(tx, shareSummaryBkt, []byte(cp.UUID), &cp)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// persistBlock saves the block version to the database. Returns an error if
// a block version already exists with the same id.
func (db *BoltDB) persistBlock(block *Block) error {
	const funcName = "persistBlock"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, blockBkt)
		if err != nil {
			return err
		}
		if bkt.Get([]byte(block.UUID)) != nil {
			desc := fmt.Sprintf("%s: block %s already exists", funcName,
				block.UUID)
			return errors.DBError(errors.ValueFound, desc)
		}
		return putEntry(tx, blockBkt, []byte(block.UUID), block)
	})
}

// transitionBlock atomically expires the old block version and persists its
// replacement.
func (db *BoltDB) transitionBlock(old, next *Block) error {
	return db.DB.Update(func(tx *bolt.Tx) error {
		err := putEntry(tx, blockBkt, []byte(old.UUID), old)
		if err != nil {
			return err
		}
		return putEntry(tx, blockBkt, []byte(next.UUID), next)
	})
}

// listBlocks returns all block versions.
func (db *BoltDB) listBlocks() ([]*Block, error) {
	const funcName = "listBlocks"
	blocks := make([]*Block, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, blockBkt)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			var block Block
			err := json.Unmarshal(v, &block)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal block: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			blocks = append(blocks, &block)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// commitPayout atomically stages the payout with all of its partition rows.
// Returns an error if any row already exists.
func (db *BoltDB) commitPayout(payout *Payout, miningPayouts []*MiningPayout,
	payments []*Payment) error {
	const funcName = "commitPayout"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, payoutBkt)
		if err != nil {
			return err
		}
		if bkt.Get([]byte(payout.UUID)) != nil {
			desc := fmt.Sprintf("%s: payout %s already exists", funcName,
				payout.UUID)
			return errors.DBError(errors.ValueFound, desc)
		}
		err = putEntry(tx, payoutBkt, []byte(payout.UUID), payout)
		if err != nil {
			return err
		}
		for _, mp := range miningPayouts {
			err = putEntry(tx, miningPayoutBkt, []byte(mp.UUID), mp)
			if err != nil {
				return err
			}
		}
		for _, p := range payments {
			err = putEntry(tx, paymentBkt, []byte(p.UUID), p)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// advancePayout atomically expires the old payout version and persists its
// replacement.
func (db *BoltDB) advancePayout(old, next *Payout) error {
	return db.DB.Update(func(tx *bolt.Tx) error {
		err := putEntry(tx, payoutBkt, []byte(old.UUID), old)
		if err != nil {
			return err
		}
		return putEntry(tx, payoutBkt, []byte(next.UUID), next)
	})
}

// listPayouts returns all payout versions.
func (db *BoltDB) listPayouts() ([]*Payout, error) {
	const funcName = "listPayouts"
	payouts := make([]*Payout, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, payoutBkt)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			var payout Payout
			err := json.Unmarshal(v, &payout)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal payout: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			payouts = append(payouts, &payout)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// fetchMiningPayouts returns the account partitions of the provided payout.
func (db *BoltDB) fetchMiningPayouts(payoutID uint64) ([]*MiningPayout, error) {
	const funcName = "fetchMiningPayouts"
	miningPayouts := make([]*MiningPayout, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, miningPayoutBkt)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			var mp MiningPayout
			err := json.Unmarshal(v, &mp)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal mining "+
					"payout: %v", funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			if mp.PayoutID == payoutID {
				miningPayouts = append(miningPayouts, &mp)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return miningPayouts, nil
}

// fetchPayments returns the address payments of the provided payout.
func (db *BoltDB) fetchPayments(payoutID uint64) ([]*Payment, error) {
	const funcName = "fetchPayments"
	payments := make([]*Payment, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, paymentBkt)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			var p Payment
			err := json.Unmarshal(v, &p)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal payment: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			if p.PayoutID == payoutID {
				payments = append(payments, &p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// loadLastPayoutID returns the last durably allocated payout id, zero when
// none has been allocated.
func (db *BoltDB) loadLastPayoutID() (uint64, error) {
	var id uint64
	err := db.DB.View(func(tx *bolt.Tx) error {
		pbkt, err := fetchPoolBucket(tx)
		if err != nil {
			return err
		}
		v := pbkt.Get(lastPayoutIDK)
		if v != nil {
			id = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// persistLastPayoutID durably records the last allocated payout id.
func (db *BoltDB) persistLastPayoutID(id uint64) error {
	const funcName = "persistLastPayoutID"
	return db.DB.Update(func(tx *bolt.Tx) error {
		pbkt, err := fetchPoolBucket(tx)
		if err != nil {
			return err
		}
		err = pbkt.Put(lastPayoutIDK, uint64ToBigEndianBytes(id))
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist last payout id: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
		return nil
	})
}

// replacePayoutAddresses atomically expires the provided current address
// records and persists their replacements.
func (db *BoltDB) replacePayoutAddresses(expired, created []*PayoutAddress,
	now int64) error {
	return db.DB.Update(func(tx *bolt.Tx) error {
		for _, a := range expired {
			cp := *a
			cp.ExpiredOn = now
			err := putEntry(tx, payoutAddressBkt, []byte(cp.UUID), &cp)
			if err != nil {
				return err
			}
		}
		for _, a := range created {
			err := putEntry(tx, payoutAddressBkt, []byte(a.UUID), a)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// listPayoutAddresses returns all payout address record versions.
func (db *BoltDB) listPayoutAddresses() ([]*PayoutAddress, error) {
	const funcName = "listPayoutAddresses"
	addresses := make([]*PayoutAddress, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, payoutAddressBkt)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			var a PayoutAddress
			err := json.Unmarshal(v, &a)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal payout "+
					"address: %v", funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			addresses = append(addresses, &a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return addresses, nil
}
