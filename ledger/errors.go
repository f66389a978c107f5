package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransaction indicates a transaction that is malformed, such as
	// a deposit without an amount or an unrecognized transaction type.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrInsufficientFunds indicates a withdrawal of more than the client's
	// available funds.
	ErrInsufficientFunds = errors.New("insufficient available funds")

	// ErrAccountLocked indicates an attempt to change a locked account.
	ErrAccountLocked = errors.New("account is locked")

	// ErrUnknownReference indicates a dispute, resolution or chargeback that
	// refers to a transaction that was never accepted for the client.
	ErrUnknownReference = errors.New("partner information error: referenced transaction is unknown")
)

// StorageError indicates a failure to read or write account state.
//
// Unlike the other errors in this package it describes the health of the
// store rather than a single transaction, and is therefore fatal to a replay.
type StorageError struct {
	Op     string
	Client ClientID
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("unable to %s account of client %d: %s", e.Op, e.Client, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError returns true if err is, or wraps, a [*StorageError].
func IsStorageError(err error) bool {
	var e *StorageError
	return errors.As(err, &e)
}
