// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ctubio/ckpool-sub002/errors"
)

// PayoutAddress maps an account to a destination address with a fan-out
// weight. An account may carry several concurrent records; block rewards are
// split across them in proportion to their ratios.
type PayoutAddress struct {
	UUID      string  `json:"uuid"`
	AccountID string  `json:"accountid"`
	Address   string  `json:"address"`
	Ratio     float64 `json:"ratio"`
	CreatedOn int64   `json:"createdon"`
	ExpiredOn int64   `json:"expiredon"`
}

// payoutAddressID generates a unique payout address record id using the
// provided details.
func payoutAddressID(account, address string, createdOn int64) string {
	var buf bytes.Buffer
	_, _ = buf.WriteString(hex.EncodeToString(nanoToBigEndianBytes(createdOn)))
	_, _ = buf.WriteString(account)
	_, _ = buf.WriteString("/")
	_, _ = buf.WriteString(address)
	return buf.String()
}

// NewPayoutAddress creates a payout address record.
func NewPayoutAddress(account, address string, ratio float64) *PayoutAddress {
	now := time.Now().UnixNano()
	return &PayoutAddress{
		UUID:      payoutAddressID(account, address, now),
		AccountID: account,
		Address:   address,
		Ratio:     ratio,
		CreatedOn: now,
		ExpiredOn: NeverExpires,
	}
}

// AccountMgrConfig contains all of the configuration values which should be
// provided when creating a new instance of AccountMgr.
type AccountMgrConfig struct {
	// DB represents the ledger database.
	DB Database
	// Addresses represents the payout address index.
	Addresses *PayoutAddressIndex
	// ValidateAddress checks an address for well-formedness, when set.
	ValidateAddress func(string) bool
}

// AccountMgr maintains the payout address records of pool accounts.
type AccountMgr struct {
	cfg *AccountMgrConfig
}

// NewAccountMgr creates an account manager.
func NewAccountMgr(aCfg *AccountMgrConfig) *AccountMgr {
	return &AccountMgr{cfg: aCfg}
}

// SetPayoutAddresses replaces the effective address set of the provided
// account. Existing current records are expired and a new record created per
// provided (address, ratio) pair. Ratios must be positive; addresses are
// validated when a validator is configured. Past payouts are unaffected since
// the old records are retained as history.
func (am *AccountMgr) SetPayoutAddresses(account string,
	addresses map[string]float64) ([]*PayoutAddress, error) {
	const funcName = "SetPayoutAddresses"

	if len(addresses) == 0 {
		desc := fmt.Sprintf("%s: no addresses provided for account %s",
			funcName, account)
		return nil, errors.PoolError(errors.Parse, desc)
	}
	for addr, ratio := range addresses {
		if ratio <= 0 {
			desc := fmt.Sprintf("%s: non-positive ratio %v for address %s "+
				"of account %s", funcName, ratio, addr, account)
			return nil, errors.PoolError(errors.Parse, desc)
		}
		if am.cfg.ValidateAddress != nil && !am.cfg.ValidateAddress(addr) {
			desc := fmt.Sprintf("%s: invalid address %s for account %s",
				funcName, addr, account)
			return nil, errors.PoolError(errors.Parse, desc)
		}
	}

	now := time.Now().UnixNano()
	expired := make([]*PayoutAddress, 0)
	am.cfg.Addresses.forAccount(account, func(a *PayoutAddress) bool {
		if a.ExpiredOn == NeverExpires {
			expired = append(expired, a)
		}
		return true
	})
	created := make([]*PayoutAddress, 0, len(addresses))
	for addr, ratio := range addresses {
		created = append(created, NewPayoutAddress(account, addr, ratio))
	}

	err := am.cfg.DB.replacePayoutAddresses(expired, created, now)
	if err != nil {
		return nil, err
	}
	for _, a := range expired {
		a.ExpiredOn = now
	}
	for _, a := range created {
		am.cfg.Addresses.insert(a)
	}
	return created, nil
}

// FetchPayoutAddresses returns the address records of the provided account
// effective at the provided time.
func (am *AccountMgr) FetchPayoutAddresses(account string, when int64) []*PayoutAddress {
	return am.cfg.Addresses.effectiveAt(account, when)
}
