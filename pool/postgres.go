// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"

	"github.com/ctubio/ckpool-sub002/errors"
)

// PostgresDB is a wrapper around sql.DB which implements the Database
// interface backed by a postgres database.
type PostgresDB struct {
	DB *sql.DB
}

// Ensure PostgresDB implements the Database interface.
var _ Database = (*PostgresDB)(nil)

// InitPostgresDB connects to the specified database and creates all tables
// required by the ledger.
func InitPostgresDB(host string, port uint32, user, pass, dbName string) (*PostgresDB, error) {
	const funcName = "InitPostgresDB"
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s "+
		"sslmode=disable", host, port, user, pass, dbName)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to open postgres: %v", funcName, err)
		return nil, errors.DBError(errors.DBOpen, desc)
	}
	err = db.Ping()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to contact postgres: %v", funcName, err)
		return nil, errors.DBError(errors.DBOpen, desc)
	}

	pdb := &PostgresDB{DB: db}
	for _, stmt := range []string{createTableMetadata, createTableWorkUnits,
		createTableShareSummaries, createTableMarkerSummaries,
		createTableWorkMarkers, createTableWorkMarks, createTableBlocks,
		createTablePayouts, createTableMiningPayouts, createTablePayments,
		createTablePayoutAddresses} {
		_, err = db.Exec(stmt)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to create table: %v", funcName, err)
			return nil, errors.DBError(errors.CreateStorage, desc)
		}
	}

	_, err = db.Exec(insertDBVersion, strconv.Itoa(LedgerDBVersion))
	if err != nil {
		desc := fmt.Sprintf("%s: unable to persist version: %v", funcName, err)
		return nil, errors.DBError(errors.PersistEntry, desc)
	}
	var version string
	err = db.QueryRow(selectDBVersion).Scan(&version)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch version: %v", funcName, err)
		return nil, errors.DBError(errors.DBVersion, desc)
	}
	if version != strconv.Itoa(LedgerDBVersion) {
		desc := fmt.Sprintf("%s: unsupported db version %s, expected %d",
			funcName, version, LedgerDBVersion)
		return nil, errors.DBError(errors.DBVersion, desc)
	}
	return pdb, nil
}

// Close closes the postgres database connection.
func (db *PostgresDB) Close() error {
	const funcName = "Close"
	err := db.DB.Close()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to close db: %v", funcName, err)
		return errors.DBError(errors.DBClose, desc)
	}
	return nil
}

// Backup is unsupported for the postgres backend, backups are expected to be
// handled with the postgres tooling.
func (db *PostgresDB) Backup(fileName string) error {
	return errors.DBError(errors.Unsupported,
		"backup is unsupported for the postgres backend")
}

// execWith runs the provided statement with the provided args, wrapping any
// failure in a persist error.
func (db *PostgresDB) execWith(funcName, stmt string, args ...interface{}) error {
	_, err := db.DB.Exec(stmt, args...)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to persist entry: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	return nil
}

// persistWorkUnit saves the work unit to the database.
func (db *PostgresDB) persistWorkUnit(unit *WorkUnit) error {
	const funcName = "persistWorkUnit"
	return db.execWith(funcName, insertWorkUnit, unit.UUID,
		int64(unit.WorkUnitID), unit.PoolInstance, unit.Bits, unit.Coinbase,
		unit.CreatedOn, unit.ExpiredOn)
}

// listWorkUnits returns all work units in id order.
func (db *PostgresDB) listWorkUnits() ([]*WorkUnit, error) {
	const funcName = "listWorkUnits"
	rows, err := db.DB.Query(selectWorkUnits)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch work units: %v", funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}
	return decodeWorkUnitRows(rows)
}

// decodeWorkUnitRows decodes the provided rows into work units.
func decodeWorkUnitRows(rows *sql.Rows) ([]*WorkUnit, error) {
	const funcName = "decodeWorkUnitRows"
	defer rows.Close()
	units := make([]*WorkUnit, 0)
	for rows.Next() {
		var unit WorkUnit
		var id int64
		err := rows.Scan(&unit.UUID, &id, &unit.PoolInstance, &unit.Bits,
			&unit.Coinbase, &unit.CreatedOn, &unit.ExpiredOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to scan work unit: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}
		unit.WorkUnitID = uint64(id)
		units = append(units, &unit)
	}
	err := rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode work units: %v",
			funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}
	return units, nil
}

// persistShareSummary saves the share summary to the database.
func (db *PostgresDB) persistShareSummary(summary *ShareSummary) error {
	const funcName = "persistShareSummary"
	return db.execWith(funcName, insertShareSummary, summary.UUID,
		summary.AccountID, summary.Worker, int64(summary.WorkUnitID),
		summary.DiffAccepted, summary.DiffStale, summary.DiffDuplicate,
		summary.DiffHigh, summary.DiffRejected, int64(summary.ShareCount),
		int64(summary.ErrorCount), summary.FirstShare, summary.LastShare,
		summary.LastDiff, int32(summary.Status), summary.CreatedOn,
		summary.ExpiredOn)
}

// updateShareSummary persists the updated share summary to the database.
func (db *PostgresDB) updateShareSummary(summary *ShareSummary) error {
	const funcName = "updateShareSummary"
	return db.execWith(funcName, updateShareSummary, summary.UUID,
		summary.DiffAccepted, summary.DiffStale, summary.DiffDuplicate,
		summary.DiffHigh, summary.DiffRejected, int64(summary.ShareCount),
		int64(summary.ErrorCount), summary.FirstShare, summary.LastShare,
		summary.LastDiff, int32(summary.Status), summary.ExpiredOn)
}

// listShareSummaries returns all share summary versions.
func (db *PostgresDB) listShareSummaries() ([]*ShareSummary, error) {
	const funcName = "listShareSummaries"
	rows, err := db.DB.Query(selectShareSummaries)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch share summaries: %v",
			funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}
	return decodeShareSummaryRows(rows)
}

// decodeShareSummaryRows decodes the provided rows into share summaries.
func decodeShareSummaryRows(rows *sql.Rows) ([]*ShareSummary, error) {
	const funcName = "decodeShareSummaryRows"
	defer rows.Close()
	summaries := make([]*ShareSummary, 0)
	for rows.Next() {
		var summary ShareSummary
		var unitID, shareCount, errorCount int64
		var status int32
		err := rows.Scan(&summary.UUID, &summary.AccountID, &summary.Worker,
			&unitID, &summary.DiffAccepted, &summary.DiffStale,
			&summary.DiffDuplicate, &summary.DiffHigh, &summary.DiffRejected,
			&shareCount, &errorCount, &summary.FirstShare, &summary.LastShare,
			&summary.LastDiff, &status, &summary.CreatedOn, &summary.ExpiredOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to scan share summary: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}
		summary.WorkUnitID = uint64(unitID)
		summary.ShareCount = uint64(shareCount)
		summary.ErrorCount = uint64(errorCount)
		summary.Status = SummaryStatus(status)
		summaries = append(summaries, &summary)
	}
	err := rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode share summaries: %v",
			funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}
	return summaries, nil
}

// listMarkerSummaries returns all marker summaries.
func (db *PostgresDB) listMarkerSummaries() ([]*MarkerSummary, error) {
	const funcName = "listMarkerSummaries"
	rows, err := db.DB.Query(selectMarkerSummaries)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch marker summaries: %v",
			funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}
	return decodeMarkerSummaryRows(rows)
}

// decodeMarkerSummaryRows decodes the provided rows into marker summaries.
func decodeMarkerSummaryRows(rows *sql.Rows) ([]*MarkerSummary, error) {
	const funcName = "decodeMarkerSummaryRows"
	defer rows.Close()
	summaries := make([]*MarkerSummary, 0)
	for rows.Next() {
		var summary MarkerSummary
		var markerID, shareCount, errorCount int64
		err := rows.Scan(&summary.UUID, &markerID, &summary.AccountID,
			&summary.Worker, &summary.DiffAccepted, &summary.DiffStale,
			&summary.DiffDuplicate, &summary.DiffHigh, &summary.DiffRejected,
			&shareCount, &errorCount, &summary.FirstShare, &summary.LastShare,
			&summary.CreatedOn, &summary.ExpiredOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to scan marker summary: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}
		summary.MarkerID = uint64(markerID)
		summary.ShareCount = uint64(shareCount)
		summary.ErrorCount = uint64(errorCount)
		summaries = append(summaries, &summary)
	}
	err := rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode marker summaries: %v",
			funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}
	return summaries, nil
}

// persistWorkMarker saves the work marker to the database.
func (db *PostgresDB) persistWorkMarker(marker *WorkMarker) error {
	const funcName = "persistWorkMarker"
	return db.execWith(funcName, insertWorkMarker, marker.UUID,
		int64(marker.MarkerID), int64(marker.WorkUnitIDStart),
		int64(marker.WorkUnitIDEnd), marker.Description,
		int32(marker.Status), marker.CreatedOn, marker.ExpiredOn)
}

// listWorkMarkers returns all work marker versions.
func (db *PostgresDB) listWorkMarkers() ([]*WorkMarker, error) {
	const funcName = "listWorkMarkers"
	rows, err := db.DB.Query(selectWorkMarkers)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch work markers: %v",
			funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}
	return decodeWorkMarkerRows(rows)
}

// decodeWorkMarkerRows decodes the provided rows into work markers.
func decodeWorkMarkerRows(rows *sql.Rows) ([]*WorkMarker, error) {
	const funcName = "decodeWorkMarkerRows"
	defer rows.Close()
	markers := make([]*WorkMarker, 0)
	for rows.Next() {
		var marker WorkMarker
		var markerID, start, end int64
		var status int32
		err := rows.Scan(&marker.UUID, &markerID, &start, &end,
			&marker.Description, &status, &marker.CreatedOn,
			&marker.ExpiredOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to scan work marker: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}
		marker.MarkerID = uint64(markerID)
		marker.WorkUnitIDStart = uint64(start)
		marker.WorkUnitIDEnd = uint64(end)
		marker.Status = MarkerStatus(status)
		markers = append(markers, &marker)
	}
	err := rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode work markers: %v",
			funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}
	return markers, nil
}

// persistWorkMark saves the boundary mark to the database.
func (db *PostgresDB) persistWorkMark(mark *WorkMark) error {
	const funcName = "persistWorkMark"
	return db.execWith(funcName, insertWorkMark, mark.UUID,
		int64(mark.WorkUnitID), mark.Description, int32(mark.Status),
		mark.CreatedOn, mark.ExpiredOn)
}

// supersedeWorkMark atomically expires the old mark version and persists
// its replacement.
func (db *PostgresDB) supersedeWorkMark(old, next *WorkMark) error {
	const funcName = "supersedeWorkMark"
	tx, err := db.DB.Begin()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to begin tx: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	_, err = tx.Exec(expireWorkMark, old.UUID, old.ExpiredOn)
	if err == nil {
		_, err = tx.Exec(insertWorkMark, next.UUID, int64(next.WorkUnitID),
			next.Description, int32(next.Status), next.CreatedOn,
			next.ExpiredOn)
	}
	if err != nil {
		_ = tx.Rollback()
		desc := fmt.Sprintf("%s: unable to persist entry: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	return tx.Commit()
}

// listWorkMarks returns all boundary mark versions.
func (db *PostgresDB) listWorkMarks() ([]*WorkMark, error) {
	const funcName = "listWorkMarks"
	rows, err := db.DB.Query(selectWorkMarks)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch work marks: %v",
			funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}
	return decodeWorkMarkRows(rows)
}

// decodeWorkMarkRows decodes the provided rows into boundary marks.
func decodeWorkMarkRows(rows *sql.Rows) ([]*WorkMark, error) {
	const funcName = "decodeWorkMarkRows"
	defer rows.Close()
	marks := make([]*WorkMark, 0)
	for rows.Next() {
		var mark WorkMark
		var unitID int64
		var status int32
		err := rows.Scan(&mark.UUID, &unitID, &mark.Description, &status,
			&mark.CreatedOn, &mark.ExpiredOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to scan work mark: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}
		mark.WorkUnitID = uint64(unitID)
		mark.Status = MarkStatus(status)
		marks = append(marks, &mark)
	}
	err := rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode work marks: %v",
			funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}
	return marks, nil
}

// processMarker atomically persists the processed marker version, its
// rollups and the retirement of the rolled-up share summaries.
func (db *PostgresDB) processMarker(old, next *WorkMarker,
	summaries []*MarkerSummary, retired []*ShareSummary, now int64) error {
	const funcName = "processMarker"
	tx, err := db.DB.Begin()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to begin tx: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	fail := func(err error) error {
		_ = tx.Rollback()
		desc := fmt.Sprintf("%s: unable to persist entry: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}

	_, err = tx.Exec(expireWorkMarker, old.UUID, old.ExpiredOn)
	if err != nil {
		return fail(err)
	}
	_, err = tx.Exec(insertWorkMarker, next.UUID, int64(next.MarkerID),
		int64(next.WorkUnitIDStart), int64(next.WorkUnitIDEnd),
		next.Description, int32(next.Status), next.CreatedOn, next.ExpiredOn)
	if err != nil {
		return fail(err)
	}
	for _, ms := range summaries {
		_, err = tx.Exec(insertMarkerSummary, ms.UUID, int64(ms.MarkerID),
			ms.AccountID, ms.Worker, ms.DiffAccepted, ms.DiffStale,
			ms.DiffDuplicate, ms.DiffHigh, ms.DiffRejected,
			int64(ms.ShareCount), int64(ms.ErrorCount), ms.FirstShare,
			ms.LastShare, ms.CreatedOn, ms.ExpiredOn)
		if err != nil {
			return fail(err)
		}
	}
	for _, s := range retired {
		_, err = tx.Exec(expireShareSummary, s.UUID, now)
		if err != nil {
			return fail(err)
		}
	}
	return tx.Commit()
}

// persistBlock saves the block version to the database.
func (db *PostgresDB) persistBlock(block *Block) error {
	const funcName = "persistBlock"
	return db.execWith(funcName, insertBlock, block.UUID,
		int64(block.Height), block.BlockHash, int64(block.WorkUnitID),
		block.MinerReward, block.AccountID, block.Worker,
		int32(block.Status), block.Confirmations, block.RoundDiff,
		block.CreatedOn, block.ExpiredOn)
}

// transitionBlock atomically expires the old block version and persists its
// replacement.
func (db *PostgresDB) transitionBlock(old, next *Block) error {
	const funcName = "transitionBlock"
	tx, err := db.DB.Begin()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to begin tx: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	_, err = tx.Exec(expireBlock, old.UUID, old.ExpiredOn)
	if err == nil {
		_, err = tx.Exec(insertBlock, next.UUID, int64(next.Height),
			next.BlockHash, int64(next.WorkUnitID), next.MinerReward,
			next.AccountID, next.Worker, int32(next.Status),
			next.Confirmations, next.RoundDiff, next.CreatedOn,
			next.ExpiredOn)
	}
	if err != nil {
		_ = tx.Rollback()
		desc := fmt.Sprintf("%s: unable to persist entry: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	return tx.Commit()
}

// listBlocks returns all block versions.
func (db *PostgresDB) listBlocks() ([]*Block, error) {
	const funcName = "listBlocks"
	rows, err := db.DB.Query(selectBlocks)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch blocks: %v", funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}
	return decodeBlockRows(rows)
}

// decodeBlockRows decodes the provided rows into blocks.
func decodeBlockRows(rows *sql.Rows) ([]*Block, error) {
	const funcName = "decodeBlockRows"
	defer rows.Close()
	blocks := make([]*Block, 0)
	for rows.Next() {
		var block Block
		var height, unitID int64
		var status int32
		err := rows.Scan(&block.UUID, &height, &block.BlockHash, &unitID,
			&block.MinerReward, &block.AccountID, &block.Worker, &status,
			&block.Confirmations, &block.RoundDiff, &block.CreatedOn,
			&block.ExpiredOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to scan block: %v", funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}
		block.Height = uint32(height)
		block.WorkUnitID = uint64(unitID)
		block.Status = BlockStatus(status)
		blocks = append(blocks, &block)
	}
	err := rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode blocks: %v", funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}
	return blocks, nil
}

// commitPayout atomically stages the payout with all of its partition rows.
func (db *PostgresDB) commitPayout(payout *Payout,
	miningPayouts []*MiningPayout, payments []*Payment) error {
	const funcName = "commitPayout"
	tx, err := db.DB.Begin()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to begin tx: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	fail := func(err error) error {
		_ = tx.Rollback()
		desc := fmt.Sprintf("%s: unable to persist entry: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}

	_, err = tx.Exec(insertPayout, payout.UUID, int64(payout.PayoutID),
		int64(payout.Height), payout.BlockHash,
		int64(payout.WorkUnitIDStart), int64(payout.WorkUnitIDEnd),
		payout.MinerReward, payout.PoolFee, payout.TotalDiff,
		payout.DiffWanted, payout.Elapsed, int32(payout.Status),
		payout.CreatedOn, payout.ExpiredOn)
	if err != nil {
		return fail(err)
	}
	for _, mp := range miningPayouts {
		_, err = tx.Exec(insertMiningPayout, mp.UUID, int64(mp.PayoutID),
			mp.AccountID, mp.Diff, mp.Amount, mp.CreatedOn)
		if err != nil {
			return fail(err)
		}
	}
	for _, p := range payments {
		_, err = tx.Exec(insertPayment, p.UUID, int64(p.PayoutID),
			p.AccountID, p.Address, p.Amount, p.CreatedOn)
		if err != nil {
			return fail(err)
		}
	}
	return tx.Commit()
}

// advancePayout atomically expires the old payout version and persists its
// replacement.
func (db *PostgresDB) advancePayout(old, next *Payout) error {
	const funcName = "advancePayout"
	tx, err := db.DB.Begin()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to begin tx: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	_, err = tx.Exec(expirePayout, old.UUID, old.ExpiredOn)
	if err == nil {
		_, err = tx.Exec(insertPayout, next.UUID, int64(next.PayoutID),
			int64(next.Height), next.BlockHash,
			int64(next.WorkUnitIDStart), int64(next.WorkUnitIDEnd),
			next.MinerReward, next.PoolFee, next.TotalDiff, next.DiffWanted,
			next.Elapsed, int32(next.Status), next.CreatedOn, next.ExpiredOn)
	}
	if err != nil {
		_ = tx.Rollback()
		desc := fmt.Sprintf("%s: unable to persist entry: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	return tx.Commit()
}

// listPayouts returns all payout versions.
func (db *PostgresDB) listPayouts() ([]*Payout, error) {
	const funcName = "listPayouts"
	rows, err := db.DB.Query(selectPayouts)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch payouts: %v", funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}
	return decodePayoutRows(rows)
}

// decodePayoutRows decodes the provided rows into payouts.
func decodePayoutRows(rows *sql.Rows) ([]*Payout, error) {
	const funcName = "decodePayoutRows"
	defer rows.Close()
	payouts := make([]*Payout, 0)
	for rows.Next() {
		var payout Payout
		var id, height, unitStart, unitEnd int64
		var status int32
		err := rows.Scan(&payout.UUID, &id, &height, &payout.BlockHash,
			&unitStart, &unitEnd, &payout.MinerReward, &payout.PoolFee,
			&payout.TotalDiff, &payout.DiffWanted, &payout.Elapsed, &status,
			&payout.CreatedOn, &payout.ExpiredOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to scan payout: %v", funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}
		payout.PayoutID = uint64(id)
		payout.Height = uint32(height)
		payout.WorkUnitIDStart = uint64(unitStart)
		payout.WorkUnitIDEnd = uint64(unitEnd)
		payout.Status = PayoutStatus(status)
		payouts = append(payouts, &payout)
	}
	err := rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode payouts: %v", funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}
	return payouts, nil
}

// fetchMiningPayouts returns the account partitions of the provided payout.
func (db *PostgresDB) fetchMiningPayouts(payoutID uint64) ([]*MiningPayout, error) {
	const funcName = "fetchMiningPayouts"
	rows, err := db.DB.Query(selectMiningPayoutsByPayout, int64(payoutID))
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch mining payouts: %v",
			funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}
	defer rows.Close()
	miningPayouts := make([]*MiningPayout, 0)
	for rows.Next() {
		var mp MiningPayout
		var id int64
		err := rows.Scan(&mp.UUID, &id, &mp.AccountID, &mp.Diff, &mp.Amount,
			&mp.CreatedOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to scan mining payout: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}
		mp.PayoutID = uint64(id)
		miningPayouts = append(miningPayouts, &mp)
	}
	err = rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode mining payouts: %v",
			funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}
	return miningPayouts, nil
}

// fetchPayments returns the address payments of the provided payout.
func (db *PostgresDB) fetchPayments(payoutID uint64) ([]*Payment, error) {
	const funcName = "fetchPayments"
	rows, err := db.DB.Query(selectPaymentsByPayout, int64(payoutID))
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch payments: %v", funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}
	defer rows.Close()
	payments := make([]*Payment, 0)
	for rows.Next() {
		var p Payment
		var id int64
		err := rows.Scan(&p.UUID, &id, &p.AccountID, &p.Address, &p.Amount,
			&p.CreatedOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to scan payment: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}
		p.PayoutID = uint64(id)
		payments = append(payments, &p)
	}
	err = rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode payments: %v",
			funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}
	return payments, nil
}

// loadLastPayoutID returns the last durably allocated payout id, zero when
// none has been allocated.
func (db *PostgresDB) loadLastPayoutID() (uint64, error) {
	const funcName = "loadLastPayoutID"
	var value string
	err := db.DB.QueryRow(selectLastPayoutID).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch last payout id: %v",
			funcName, err)
		return 0, errors.DBError(errors.FetchEntry, desc)
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to parse last payout id: %v",
			funcName, err)
		return 0, errors.DBError(errors.Parse, desc)
	}
	return id, nil
}

// persistLastPayoutID durably records the last allocated payout id.
func (db *PostgresDB) persistLastPayoutID(id uint64) error {
	const funcName = "persistLastPayoutID"
	return db.execWith(funcName, upsertLastPayoutID,
		strconv.FormatUint(id, 10))
}

// replacePayoutAddresses atomically expires the provided current address
// records and persists their replacements.
func (db *PostgresDB) replacePayoutAddresses(expired, created []*PayoutAddress,
	now int64) error {
	const funcName = "replacePayoutAddresses"
	tx, err := db.DB.Begin()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to begin tx: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	fail := func(err error) error {
		_ = tx.Rollback()
		desc := fmt.Sprintf("%s: unable to persist entry: %v", funcName, err)
		return errors.DBError(errors.PersistEntry, desc)
	}
	for _, a := range expired {
		_, err = tx.Exec(expirePayoutAddress, a.UUID, now)
		if err != nil {
			return fail(err)
		}
	}
	for _, a := range created {
		_, err = tx.Exec(insertPayoutAddress, a.UUID, a.AccountID, a.Address,
			a.Ratio, a.CreatedOn, a.ExpiredOn)
		if err != nil {
			return fail(err)
		}
	}
	return tx.Commit()
}

// listPayoutAddresses returns all payout address record versions.
func (db *PostgresDB) listPayoutAddresses() ([]*PayoutAddress, error) {
	const funcName = "listPayoutAddresses"
	rows, err := db.DB.Query(selectPayoutAddresses)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to fetch payout addresses: %v",
			funcName, err)
		return nil, errors.DBError(errors.FetchEntry, desc)
	}
	defer rows.Close()
	addresses := make([]*PayoutAddress, 0)
	for rows.Next() {
		var a PayoutAddress
		err := rows.Scan(&a.UUID, &a.AccountID, &a.Address, &a.Ratio,
			&a.CreatedOn, &a.ExpiredOn)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to scan payout address: %v",
				funcName, err)
			return nil, errors.DBError(errors.Decode, desc)
		}
		addresses = append(addresses, &a)
	}
	err = rows.Err()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode payout addresses: %v",
			funcName, err)
		return nil, errors.DBError(errors.Decode, desc)
	}
	return addresses, nil
}
