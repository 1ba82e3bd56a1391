/**
 * @description
 * This file defines the storage contracts consumed by the application layer.
 * Splitting the contract into AccountStore (key→balance mapping), LedgerStore
 * (append-only transfer history reads) and the transactional UnitOfWork keeps
 * the business logic decoupled from PostgreSQL and testable against an
 * in-memory fake.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/shopspring/decimal: Fixed-point monetary values.
 * - internal/domain: Domain models and the typed error taxonomy.
 */

package store

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/walletcore/wallet-service/internal/domain"
)

// UnitOfWork exposes the writes that must happen inside one atomic
// commit/abort boundary. Implementations are only valid within a WithinTx
// callback; every method participates in that single transaction.
type UnitOfWork interface {
	// LockBalance acquires the exclusive row lock for the account and returns
	// its current balance. found is false when the account does not exist.
	// The call blocks until the lock is obtainable or the storage layer
	// times out.
	LockBalance(ctx context.Context, accountID int64) (balance decimal.Decimal, found bool, err error)

	// SetBalance writes a new balance for the account. It must only be
	// called while the row lock from LockBalance is held.
	SetBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error

	// AppendTransfer inserts the ledger record and returns it with the
	// assigned id and creation timestamp populated.
	AppendTransfer(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error)

	// TransferByIdempotencyKey looks up a previously committed transfer by
	// its caller-supplied idempotency key.
	TransferByIdempotencyKey(ctx context.Context, key string) (*domain.Transfer, bool, error)
}

// AccountStore is the durable account mapping consumed outside the engine's
// unit of work: registration and point reads.
type AccountStore interface {
	CreateAccount(ctx context.Context, username, passwordHash string, initialBalance decimal.Decimal) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error)
	FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
	// CredentialByUsername returns the account id and password hash used for
	// login verification.
	CredentialByUsername(ctx context.Context, username string) (accountID int64, passwordHash string, err error)
	// GetBalance is the plain (non-locking) read of a committed balance.
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
}

// LedgerStore is the read path over the append-only transfer history.
type LedgerStore interface {
	ListTransfers(ctx context.Context, accountID int64, opts domain.TransferListOptions) ([]domain.TransferView, error)
	FindTransferView(ctx context.Context, transferID int64) (*domain.TransferView, error)
}

// Store is the full storage handle handed to the application layer. WithinTx
// opens one unit of work, runs fn inside it, and commits only when fn
// returns nil; any error aborts with all writes discarded.
type Store interface {
	AccountStore
	LedgerStore
	WithinTx(ctx context.Context, fn func(UnitOfWork) error) error
}
