// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ctubio/ckpool-sub002/errors"
)

// NeverExpires is the expiry sentinel of a current row. A row is the current
// version of its entity iff its expiry equals this value; superseding a row
// sets its expiry to the supersession time and inserts a replacement row.
const NeverExpires int64 = math.MaxInt64

// LedgerDBVersion is the version of the database schema created by this
// package.
const LedgerDBVersion = 1

var (
	// poolBkt is the main bucket of the ledger, all other buckets are
	// nested within it.
	poolBkt = []byte("poolbkt")
	// workUnitBkt stores all work units issued by the pool.
	workUnitBkt = []byte("workunitbkt")
	// shareSummaryBkt stores all share summary versions.
	shareSummaryBkt = []byte("sharesummarybkt")
	// markerSummaryBkt stores marker rollups of retired share summaries.
	markerSummaryBkt = []byte("markersummarybkt")
	// workMarkerBkt stores all work marker versions.
	workMarkerBkt = []byte("workmarkerbkt")
	// workMarkBkt stores all boundary mark versions.
	workMarkBkt = []byte("workmarkbkt")
	// blockBkt stores all block versions, orphans included.
	blockBkt = []byte("blockbkt")
	// payoutBkt stores all payout versions.
	payoutBkt = []byte("payoutbkt")
	// miningPayoutBkt stores per-account payout rows.
	miningPayoutBkt = []byte("miningpayoutbkt")
	// paymentBkt stores per-address payment rows.
	paymentBkt = []byte("paymentbkt")
	// payoutAddressBkt stores payout address record versions.
	payoutAddressBkt = []byte("payoutaddressbkt")
	// versionK is the key of the current version of the database.
	versionK = []byte("version")
	// lastPayoutIDK is the key of the last allocated payout id.
	lastPayoutIDK = []byte("lastpayoutid")
)

// nanoToBigEndianBytes returns an 8-byte big endian representation of the
// provided nanosecond time.
func nanoToBigEndianBytes(nano int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(nano))
	return b
}

// uint64ToBigEndianBytes returns an 8-byte big endian representation of the
// provided unsigned integer.
func uint64ToBigEndianBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// heightToBigEndianBytes returns a 4-byte big endian representation of the
// provided block height.
func heightToBigEndianBytes(height uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, height)
	return b
}

// openBoltDB creates a connection to the provided bolt storage, the returned
// connection storage should always be closed after use.
func openBoltDB(storage string) (*BoltDB, error) {
	const funcName = "openBoltDB"
	db, err := bolt.Open(storage, 0600,
		&bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		desc := fmt.Sprintf("%s: unable to open db file: %v", funcName, err)
		return nil, errors.DBError(errors.DBOpen, desc)
	}
	return &BoltDB{DB: db}, nil
}

// createNestedBucket creates a nested child bucket of the provided parent.
func createNestedBucket(parent *bolt.Bucket, child []byte) error {
	const funcName = "createNestedBucket"
	_, err := parent.CreateBucketIfNotExists(child)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to create %s bucket: %v",
			funcName, string(child), err)
		return errors.DBError(errors.CreateStorage, desc)
	}
	return nil
}

// createBuckets creates all storage buckets of the ledger.
func createBuckets(db *BoltDB) error {
	const funcName = "createBuckets"
	return db.DB.Update(func(tx *bolt.Tx) error {
		var err error
		pbkt := tx.Bucket(poolBkt)
		if pbkt == nil {
			pbkt, err = tx.CreateBucketIfNotExists(poolBkt)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to create %s bucket: %v",
					funcName, string(poolBkt), err)
				return errors.DBError(errors.CreateStorage, desc)
			}
			vbytes := make([]byte, 4)
			binary.LittleEndian.PutUint32(vbytes, uint32(LedgerDBVersion))
			err = pbkt.Put(versionK, vbytes)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to persist version: %v",
					funcName, err)
				return errors.DBError(errors.PersistEntry, desc)
			}
		}

		for _, child := range [][]byte{workUnitBkt, shareSummaryBkt,
			markerSummaryBkt, workMarkerBkt, workMarkBkt, blockBkt,
			payoutBkt, miningPayoutBkt, paymentBkt, payoutAddressBkt} {
			err = createNestedBucket(pbkt, child)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// checkDBVersion asserts the database schema version is supported.
func checkDBVersion(db *BoltDB) error {
	const funcName = "checkDBVersion"
	return db.DB.View(func(tx *bolt.Tx) error {
		pbkt := tx.Bucket(poolBkt)
		if pbkt == nil {
			desc := fmt.Sprintf("%s: bucket %s not found", funcName,
				string(poolBkt))
			return errors.DBError(errors.BucketNotFound, desc)
		}
		v := pbkt.Get(versionK)
		if v == nil {
			desc := fmt.Sprintf("%s: db version not set", funcName)
			return errors.DBError(errors.DBVersion, desc)
		}
		version := binary.LittleEndian.Uint32(v)
		if version != LedgerDBVersion {
			desc := fmt.Sprintf("%s: unsupported db version %d, expected %d",
				funcName, version, LedgerDBVersion)
			return errors.DBError(errors.DBVersion, desc)
		}
		return nil
	})
}

// InitBoltDB handles the creation and version assertion of the bolt-backed
// ledger database.
func InitBoltDB(dbFile string) (*BoltDB, error) {
	db, err := openBoltDB(dbFile)
	if err != nil {
		return nil, err
	}
	err = createBuckets(db)
	if err != nil {
		return nil, err
	}
	err = checkDBVersion(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// fetchBucket is a helper function for getting the named bucket below the
// main pool bucket.
func fetchBucket(tx *bolt.Tx, bucketID []byte) (*bolt.Bucket, error) {
	const funcName = "fetchBucket"
	pbkt, err := fetchPoolBucket(tx)
	if err != nil {
		return nil, err
	}
	bkt := pbkt.Bucket(bucketID)
	if bkt == nil {
		desc := fmt.Sprintf("%s: bucket %s not found", funcName,
			string(bucketID))
		return nil, errors.DBError(errors.BucketNotFound, desc)
	}
	return bkt, nil
}

// fetchPoolBucket is a helper function for getting the pool bucket.
func fetchPoolBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	const funcName = "fetchPoolBucket"
	pbkt := tx.Bucket(poolBkt)
	if pbkt == nil {
		desc := fmt.Sprintf("%s: bucket %s not found", funcName,
			string(poolBkt))
		return nil, errors.DBError(errors.BucketNotFound, desc)
	}
	return pbkt, nil
}
