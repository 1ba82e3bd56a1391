/**
 * @description
 * This file defines the typed error taxonomy for the wallet-service. Every
 * failure the engine or the stores can produce is one of these values, so
 * callers can branch with errors.Is/errors.As instead of parsing messages.
 *
 * The first six are deterministic given committed state and are never
 * retried. StorageError is the only transient kind; a caller may retry the
 * whole operation after one, ideally with an idempotency key.
 */

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfTransfer rejects a transfer whose source and destination are
	// the same account.
	ErrSelfTransfer = errors.New("source and destination are the same account")
	// ErrInvalidAmount rejects a non-positive or over-precise amount.
	ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")
	// ErrSourceNotFound means the transfer source account does not exist.
	ErrSourceNotFound = errors.New("source account not found")
	// ErrDestinationNotFound means the transfer destination account does not exist.
	ErrDestinationNotFound = errors.New("destination account not found")
	// ErrInsufficientFunds means the debited account balance would go negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAccountNotFound is returned by single-account lookups and adjustments.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTransferNotFound is returned by single-transfer lookups.
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrUsernameTaken is returned when registration hits the unique username constraint.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidCredentials is returned on failed login attempts.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// StorageError wraps a transient storage-level failure (lost connection,
// lock timeout, failed commit). The unit of work that produced it was rolled
// back; no partial state is visible.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err unless it is already typed domain state, so
// deterministic errors are never misreported as transient.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is (or wraps) a transient StorageError.
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}
