// Copyright (c) 2019-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package errors

import "errors"

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific error.
const (
	// ------------------------------------------
	// Errors related to database operations.
	// ------------------------------------------

	// ValueNotFound indicates no value found.
	ValueNotFound = ErrorKind("ValueNotFound")

	// ValueFound indicates an unexpected value found.
	ValueFound = ErrorKind("ValueFound")

	// BucketNotFound indicates a missing bucket.
	BucketNotFound = ErrorKind("BucketNotFound")

	// CreateStorage indicates a storage creation error.
	CreateStorage = ErrorKind("CreateStorage")

	// DBOpen indicates a database open error.
	DBOpen = ErrorKind("DBOpen")

	// DBClose indicates a database close error.
	DBClose = ErrorKind("DBClose")

	// DBVersion indicates an unsupported database version.
	DBVersion = ErrorKind("DBVersion")

	// PersistEntry indicates a database persistence error.
	PersistEntry = ErrorKind("PersistEntry")

	// DeleteEntry indicates a database entry delete error.
	DeleteEntry = ErrorKind("DeleteEntry")

	// FetchEntry indicates a database entry fetching error.
	FetchEntry = ErrorKind("FetchEntry")

	// Backup indicates database backup error.
	Backup = ErrorKind("Backup")

	// Parse indicates a parsing error.
	Parse = ErrorKind("Parse")

	// Decode indicates a decoding error.
	Decode = ErrorKind("Decode")

	// Unsupported indicates unsupported functionality.
	Unsupported = ErrorKind("Unsupported")

	// ------------------------------------------
	// Errors related to ledger operations.
	// ------------------------------------------

	// WorkUnitNotFound indicates a referenced work unit does not exist.
	WorkUnitNotFound = ErrorKind("WorkUnitNotFound")

	// WorkUnitExists indicates an already existing work unit.
	WorkUnitExists = ErrorKind("WorkUnitExists")

	// MarkerNotFound indicates a referenced work marker does not exist.
	MarkerNotFound = ErrorKind("MarkerNotFound")

	// MarkerOverlap indicates a work marker range intersecting an
	// existing marker.
	MarkerOverlap = ErrorKind("MarkerOverlap")

	// MarkerProcessed indicates an attempt to re-process an already
	// processed work marker.
	MarkerProcessed = ErrorKind("MarkerProcessed")

	// MarkerShortfall indicates the sealed marker history is insufficient
	// to satisfy a payout difficulty target.
	MarkerShortfall = ErrorKind("MarkerShortfall")

	// BlockNotFound indicates a block not found error.
	BlockNotFound = ErrorKind("BlockNotFound")

	// BlockConf indicates a block confirmation error.
	BlockConf = ErrorKind("BlockConf")

	// ShareNotReady indicates share summary data within a payout window
	// that has not been verified durable.
	ShareNotReady = ErrorKind("ShareNotReady")

	// DuplicateShare indicates a share submission already accounted for.
	DuplicateShare = ErrorKind("DuplicateShare")

	// PayoutExists indicates a block that already has a payout computed.
	PayoutExists = ErrorKind("PayoutExists")

	// PayoutStatus indicates an invalid payout status transition.
	PayoutStatus = ErrorKind("PayoutStatus")

	// DifficultyTarget indicates an invalid payout difficulty target.
	DifficultyTarget = ErrorKind("DifficultyTarget")

	// DivideByZero indicates a division by zero error.
	DivideByZero = ErrorKind("DivideByZero")

	// Coinbase indicates a coinbase related error.
	Coinbase = ErrorKind("Coinbase")

	// Disconnected indicates a disconnected resource.
	Disconnected = ErrorKind("Disconnected")

	// ContextCancelled indicates a context cancellation related error.
	ContextCancelled = ErrorKind("ContextCancelled")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error. It has full support for errors.Is and
// errors.As, so the caller can ascertain the specific reason for
// the error by checking the underlying error.
type Error struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// PoolError creates an Error given a set of arguments. This should only be
// used when creating errors related to the ledger and its processes.
func PoolError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// DBError creates an Error given a set of arguments. This should only be
// used when creating errors related to the database.
func DBError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// MsgError creates an Error given a set of arguments. This should only be
// used when creating errors related to sending, receiving and processing
// messages.
func MsgError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// Is delegates to the standard library's errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to the standard library's errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New delegates to the standard library's errors.New.
func New(text string) error {
	return errors.New(text)
}
