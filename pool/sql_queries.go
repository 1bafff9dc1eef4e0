// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

const (
	createTableMetadata = `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`

	createTableWorkUnits = `
		CREATE TABLE IF NOT EXISTS workunits (
			uuid TEXT PRIMARY KEY,
			workunitid BIGINT UNIQUE NOT NULL,
			poolinstance TEXT NOT NULL,
			bits TEXT NOT NULL,
			coinbase TEXT NOT NULL,
			createdon BIGINT NOT NULL,
			expiredon BIGINT NOT NULL
		);`

	createTableShareSummaries = `
		CREATE TABLE IF NOT EXISTS sharesummaries (
			uuid TEXT PRIMARY KEY,
			accountid TEXT NOT NULL,
			worker TEXT NOT NULL,
			workunitid BIGINT NOT NULL,
			diffaccepted DOUBLE PRECISION NOT NULL,
			diffstale DOUBLE PRECISION NOT NULL,
			diffduplicate DOUBLE PRECISION NOT NULL,
			diffhigh DOUBLE PRECISION NOT NULL,
			diffrejected DOUBLE PRECISION NOT NULL,
			sharecount BIGINT NOT NULL,
			errorcount BIGINT NOT NULL,
			firstshare BIGINT NOT NULL,
			lastshare BIGINT NOT NULL,
			lastdiff DOUBLE PRECISION NOT NULL,
			status INT NOT NULL,
			createdon BIGINT NOT NULL,
			expiredon BIGINT NOT NULL
		);`

	createTableMarkerSummaries = `
		CREATE TABLE IF NOT EXISTS markersummaries (
			uuid TEXT PRIMARY KEY,
			markerid BIGINT NOT NULL,
			accountid TEXT NOT NULL,
			worker TEXT NOT NULL,
			diffaccepted DOUBLE PRECISION NOT NULL,
			diffstale DOUBLE PRECISION NOT NULL,
			diffduplicate DOUBLE PRECISION NOT NULL,
			diffhigh DOUBLE PRECISION NOT NULL,
			diffrejected DOUBLE PRECISION NOT NULL,
			sharecount BIGINT NOT NULL,
			errorcount BIGINT NOT NULL,
			firstshare BIGINT NOT NULL,
			lastshare BIGINT NOT NULL,
			createdon BIGINT NOT NULL,
			expiredon BIGINT NOT NULL
		);`

	createTableWorkMarkers = `
		CREATE TABLE IF NOT EXISTS workmarkers (
			uuid TEXT PRIMARY KEY,
			markerid BIGINT NOT NULL,
			workunitidstart BIGINT NOT NULL,
			workunitidend BIGINT NOT NULL,
			description TEXT NOT NULL,
			status INT NOT NULL,
			createdon BIGINT NOT NULL,
			expiredon BIGINT NOT NULL
		);`

	createTableWorkMarks = `
		CREATE TABLE IF NOT EXISTS workmarks (
			uuid TEXT PRIMARY KEY,
			workunitid BIGINT NOT NULL,
			description TEXT NOT NULL,
			status INT NOT NULL,
			createdon BIGINT NOT NULL,
			expiredon BIGINT NOT NULL
		);`

	createTableBlocks = `
		CREATE TABLE IF NOT EXISTS blocks (
			uuid TEXT PRIMARY KEY,
			height BIGINT NOT NULL,
			blockhash TEXT NOT NULL,
			workunitid BIGINT NOT NULL,
			minerreward BIGINT NOT NULL,
			accountid TEXT NOT NULL,
			worker TEXT NOT NULL,
			status INT NOT NULL,
			confirmations BIGINT NOT NULL,
			rounddiff DOUBLE PRECISION NOT NULL,
			createdon BIGINT NOT NULL,
			expiredon BIGINT NOT NULL
		);`

	createTablePayouts = `
		CREATE TABLE IF NOT EXISTS payouts (
			uuid TEXT PRIMARY KEY,
			payoutid BIGINT NOT NULL,
			height BIGINT NOT NULL,
			blockhash TEXT NOT NULL,
			workunitidstart BIGINT NOT NULL,
			workunitidend BIGINT NOT NULL,
			minerreward BIGINT NOT NULL,
			poolfee BIGINT NOT NULL,
			totaldiff DOUBLE PRECISION NOT NULL,
			diffwanted DOUBLE PRECISION NOT NULL,
			elapsed BIGINT NOT NULL,
			status INT NOT NULL,
			createdon BIGINT NOT NULL,
			expiredon BIGINT NOT NULL
		);`

	createTableMiningPayouts = `
		CREATE TABLE IF NOT EXISTS miningpayouts (
			uuid TEXT PRIMARY KEY,
			payoutid BIGINT NOT NULL,
			accountid TEXT NOT NULL,
			diff DOUBLE PRECISION NOT NULL,
			amount BIGINT NOT NULL,
			createdon BIGINT NOT NULL
		);`

	createTablePayments = `
		CREATE TABLE IF NOT EXISTS payments (
			uuid TEXT PRIMARY KEY,
			payoutid BIGINT NOT NULL,
			accountid TEXT NOT NULL,
			address TEXT NOT NULL,
			amount BIGINT NOT NULL,
			createdon BIGINT NOT NULL
		);`

	createTablePayoutAddresses = `
		CREATE TABLE IF NOT EXISTS payoutaddresses (
			uuid TEXT PRIMARY KEY,
			accountid TEXT NOT NULL,
			address TEXT NOT NULL,
			ratio DOUBLE PRECISION NOT NULL,
			createdon BIGINT NOT NULL,
			expiredon BIGINT NOT NULL
		);`

	selectDBVersion = `SELECT value FROM metadata WHERE key='version';`

	insertDBVersion = `INSERT INTO metadata(key, value)
		VALUES ('version', $1) ON CONFLICT (key) DO NOTHING;`

	selectLastPayoutID = `SELECT value FROM metadata WHERE key='lastpayoutid';`

	upsertLastPayoutID = `INSERT INTO metadata(key, value)
		VALUES ('lastpayoutid', $1)
		ON CONFLICT (key) DO UPDATE SET value=$1;`

	insertWorkUnit = `INSERT INTO workunits(
		uuid, workunitid, poolinstance, bits, coinbase, createdon, expiredon)
		VALUES ($1,$2,$3,$4,$5,$6,$7);`

	selectWorkUnits = `SELECT uuid, workunitid, poolinstance, bits, coinbase,
		createdon, expiredon FROM workunits ORDER BY workunitid;`

	insertShareSummary = `INSERT INTO sharesummaries(
		uuid, accountid, worker, workunitid, diffaccepted, diffstale,
		diffduplicate, diffhigh, diffrejected, sharecount, errorcount,
		firstshare, lastshare, lastdiff, status, createdon, expiredon)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);`

	updateShareSummary = `UPDATE sharesummaries SET
		diffaccepted=$2, diffstale=$3, diffduplicate=$4, diffhigh=$5,
		diffrejected=$6, sharecount=$7, errorcount=$8, firstshare=$9,
		lastshare=$10, lastdiff=$11, status=$12, expiredon=$13
		WHERE uuid=$1;`

	expireShareSummary = `UPDATE sharesummaries SET expiredon=$2 WHERE uuid=$1;`

	selectShareSummaries = `SELECT uuid, accountid, worker, workunitid,
		diffaccepted, diffstale, diffduplicate, diffhigh, diffrejected,
		sharecount, errorcount, firstshare, lastshare, lastdiff, status,
		createdon, expiredon FROM sharesummaries
		ORDER BY workunitid, accountid, worker, createdon;`

	insertMarkerSummary = `INSERT INTO markersummaries(
		uuid, markerid, accountid, worker, diffaccepted, diffstale,
		diffduplicate, diffhigh, diffrejected, sharecount, errorcount,
		firstshare, lastshare, createdon, expiredon)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`

	selectMarkerSummaries = `SELECT uuid, markerid, accountid, worker,
		diffaccepted, diffstale, diffduplicate, diffhigh, diffrejected,
		sharecount, errorcount, firstshare, lastshare, createdon, expiredon
		FROM markersummaries ORDER BY markerid, accountid, worker;`

	insertWorkMarker = `INSERT INTO workmarkers(
		uuid, markerid, workunitidstart, workunitidend, description, status,
		createdon, expiredon) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	expireWorkMarker = `UPDATE workmarkers SET expiredon=$2 WHERE uuid=$1;`

	selectWorkMarkers = `SELECT uuid, markerid, workunitidstart,
		workunitidend, description, status, createdon, expiredon
		FROM workmarkers ORDER BY markerid, createdon;`

	insertWorkMark = `INSERT INTO workmarks(
		uuid, workunitid, description, status, createdon, expiredon)
		VALUES ($1,$2,$3,$4,$5,$6);`

	expireWorkMark = `UPDATE workmarks SET expiredon=$2 WHERE uuid=$1;`

	selectWorkMarks = `SELECT uuid, workunitid, description, status,
		createdon, expiredon FROM workmarks ORDER BY workunitid, createdon;`

	insertBlock = `INSERT INTO blocks(
		uuid, height, blockhash, workunitid, minerreward, accountid, worker,
		status, confirmations, rounddiff, createdon, expiredon)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`

	expireBlock = `UPDATE blocks SET expiredon=$2 WHERE uuid=$1;`

	selectBlocks = `SELECT uuid, height, blockhash, workunitid, minerreward,
		accountid, worker, status, confirmations, rounddiff, createdon,
		expiredon FROM blocks ORDER BY height, createdon;`

	insertPayout = `INSERT INTO payouts(
		uuid, payoutid, height, blockhash, workunitidstart, workunitidend,
		minerreward, poolfee, totaldiff, diffwanted, elapsed, status,
		createdon, expiredon)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`

	expirePayout = `UPDATE payouts SET expiredon=$2 WHERE uuid=$1;`

	selectPayouts = `SELECT uuid, payoutid, height, blockhash,
		workunitidstart, workunitidend, minerreward, poolfee, totaldiff,
		diffwanted, elapsed, status, createdon, expiredon FROM payouts
		ORDER BY payoutid, createdon;`

	insertMiningPayout = `INSERT INTO miningpayouts(
		uuid, payoutid, accountid, diff, amount, createdon)
		VALUES ($1,$2,$3,$4,$5,$6);`

	selectMiningPayoutsByPayout = `SELECT uuid, payoutid, accountid, diff,
		amount, createdon FROM miningpayouts WHERE payoutid=$1
		ORDER BY accountid;`

	insertPayment = `INSERT INTO payments(
		uuid, payoutid, accountid, address, amount, createdon)
		VALUES ($1,$2,$3,$4,$5,$6);`

	selectPaymentsByPayout = `SELECT uuid, payoutid, accountid, address,
		amount, createdon FROM payments WHERE payoutid=$1
		ORDER BY accountid, address;`

	insertPayoutAddress = `INSERT INTO payoutaddresses(
		uuid, accountid, address, ratio, createdon, expiredon)
		VALUES ($1,$2,$3,$4,$5,$6);`

	expirePayoutAddress = `UPDATE payoutaddresses SET expiredon=$2 WHERE uuid=$1;`

	selectPayoutAddresses = `SELECT uuid, accountid, address, ratio,
		createdon, expiredon FROM payoutaddresses
		ORDER BY accountid, address, createdon;`
)
