// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"bytes"
	"encoding/hex"
	"time"
)

// MarkerSummary is the rollup of every share summary of one worker stream
// across a marker's work unit range. Marker summaries are immutable once
// their marker is processed.
type MarkerSummary struct {
	UUID          string  `json:"uuid"`
	MarkerID      uint64  `json:"markerid"`
	AccountID     string  `json:"accountid"`
	Worker        string  `json:"worker"`
	DiffAccepted  float64 `json:"diffaccepted"`
	DiffStale     float64 `json:"diffstale"`
	DiffDuplicate float64 `json:"diffduplicate"`
	DiffHigh      float64 `json:"diffhigh"`
	DiffRejected  float64 `json:"diffrejected"`
	ShareCount    uint64  `json:"sharecount"`
	ErrorCount    uint64  `json:"errorcount"`
	FirstShare    int64   `json:"firstshare"`
	LastShare     int64   `json:"lastshare"`
	CreatedOn     int64   `json:"createdon"`
	ExpiredOn     int64   `json:"expiredon"`
}

// markerSummaryID generates a unique marker summary id using the provided
// details.
func markerSummaryID(markerID uint64, account, worker string) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(uint64ToBigEndianBytes(markerID)))
	_, _ = buf.WriteString(account)
	_, _ = buf.WriteString("/")
	_, _ = buf.WriteString(worker)
	return buf.String()
}

// NewMarkerSummary creates an empty marker summary for the provided marker
// and worker stream.
func NewMarkerSummary(markerID uint64, account, worker string) *MarkerSummary {
	return &MarkerSummary{
		UUID:      markerSummaryID(markerID, account, worker),
		MarkerID:  markerID,
		AccountID: account,
		Worker:    worker,
		CreatedOn: time.Now().UnixNano(),
		ExpiredOn: NeverExpires,
	}
}

// add sums the provided share summary into the rollup.
func (ms *MarkerSummary) add(s *ShareSummary) {
	ms.DiffAccepted += s.DiffAccepted
	ms.DiffStale += s.DiffStale
	ms.DiffDuplicate += s.DiffDuplicate
	ms.DiffHigh += s.DiffHigh
	ms.DiffRejected += s.DiffRejected
	ms.ShareCount += s.ShareCount
	ms.ErrorCount += s.ErrorCount
	if ms.FirstShare == 0 || (s.FirstShare != 0 && s.FirstShare < ms.FirstShare) {
		ms.FirstShare = s.FirstShare
	}
	if s.LastShare > ms.LastShare {
		ms.LastShare = s.LastShare
	}
}
