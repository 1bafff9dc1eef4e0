// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/ctubio/ckpool-sub002/errors"
)

const (
	// coinbaseHeightOffset is the offset into the coinbase blob of the
	// length-prefixed little-endian block height push.
	coinbaseHeightOffset = 42
)

// WorkUnit represents a discrete unit of mining work issued by the pool,
// corresponding to one job template. Work units are immutable once created
// except for an expiry marker when superseded.
type WorkUnit struct {
	UUID         string `json:"uuid"`
	WorkUnitID   uint64 `json:"workunitid"`
	PoolInstance string `json:"poolinstance"`
	Bits         string `json:"bits"`
	Coinbase     string `json:"coinbase"`
	CreatedOn    int64  `json:"createdon"`
	ExpiredOn    int64  `json:"expiredon"`
}

// workUnitID generates a unique work unit id.
func workUnitID(id uint64) string {
	return hex.EncodeToString(uint64ToBigEndianBytes(id))
}

// NewWorkUnit creates a work unit with the provided details.
func NewWorkUnit(id uint64, poolInstance, bits, coinbase string) *WorkUnit {
	return &WorkUnit{
		UUID:         workUnitID(id),
		WorkUnitID:   id,
		PoolInstance: poolInstance,
		Bits:         bits,
		Coinbase:     coinbase,
		CreatedOn:    time.Now().UnixNano(),
		ExpiredOn:    NeverExpires,
	}
}

// Height recovers the candidate block height embedded in the work unit's
// coinbase blob. The height is a length-prefixed little-endian integer at a
// fixed offset and serves as a display and consistency hint only.
func (w *WorkUnit) Height() (uint32, error) {
	const funcName = "WorkUnit.Height"
	coinbase, err := hex.DecodeString(w.Coinbase)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode coinbase of work unit "+
			"%d: %v", funcName, w.WorkUnitID, err)
		return 0, errors.PoolError(errors.Coinbase, desc)
	}
	if len(coinbase) <= coinbaseHeightOffset {
		desc := fmt.Sprintf("%s: coinbase of work unit %d is %d bytes, "+
			"too short for a height push", funcName, w.WorkUnitID,
			len(coinbase))
		return 0, errors.PoolError(errors.Coinbase, desc)
	}

	pushLen := int(coinbase[coinbaseHeightOffset])
	if pushLen < 1 || pushLen > 4 ||
		len(coinbase) < coinbaseHeightOffset+1+pushLen {
		desc := fmt.Sprintf("%s: invalid height push length %d in work "+
			"unit %d", funcName, pushLen, w.WorkUnitID)
		return 0, errors.PoolError(errors.Coinbase, desc)
	}

	var height uint32
	for i := 0; i < pushLen; i++ {
		height |= uint32(coinbase[coinbaseHeightOffset+1+i]) << (8 * i)
	}
	return height, nil
}

// NetworkDifficulty derives the network difficulty of the work unit from its
// compact bits encoding.
func (w *WorkUnit) NetworkDifficulty() (float64, error) {
	const funcName = "WorkUnit.NetworkDifficulty"
	bits, err := hex.DecodeString(w.Bits)
	if err != nil || len(bits) != 4 {
		desc := fmt.Sprintf("%s: unable to decode bits %q of work unit "+
			"%d: %v", funcName, w.Bits, w.WorkUnitID, err)
		return 0, errors.PoolError(errors.Decode, desc)
	}

	compact := binary.BigEndian.Uint32(bits)
	exponent := compact >> 24
	mantissa := float64(compact & 0x00ffffff)
	if mantissa == 0 {
		desc := fmt.Sprintf("%s: zero mantissa in bits %q of work unit %d",
			funcName, w.Bits, w.WorkUnitID)
		return 0, errors.PoolError(errors.Decode, desc)
	}

	// Difficulty is the ratio of the maximum target (0x1d00ffff) to the
	// target encoded by the compact bits.
	diff := (float64(0x00ffff) / mantissa) *
		math.Pow(256, float64(0x1d)-float64(exponent))
	return diff, nil
}
