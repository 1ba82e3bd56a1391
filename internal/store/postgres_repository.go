/**
 * @description
 * This file provides the PostgreSQL implementation of the storage contracts.
 * It contains all SQL for the `accounts` and `transfers` tables, the
 * FOR UPDATE row locks used by the engine, and the unit-of-work runner that
 * guarantees a definite commit-or-abort outcome on every exit path.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - github.com/shopspring/decimal: Fixed-point monetary values.
 * - internal/domain: Domain models and the typed error taxonomy.
 */

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/walletcore/wallet-service/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

// PostgresStore is the concrete Store implementation backed by a pgx pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore around an open pool. The pool
// lifecycle (open/close) belongs to the caller.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// WithinTx opens one database transaction, passes a UnitOfWork scoped to it
// into fn, and commits only if fn returns nil. The deferred rollback makes
// the abort path unconditional: once fn has returned a non-nil error, or the
// commit itself fails, no write of this unit of work is visible to anyone.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(UnitOfWork) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.NewStorageError("begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgxUnitOfWork{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.NewStorageError("commit", err)
	}
	return nil
}

// pgxUnitOfWork implements UnitOfWork on top of one open pgx transaction.
type pgxUnitOfWork struct {
	tx pgx.Tx
}

// LockBalance takes the exclusive row lock and returns the balance as read
// under that lock. This is the only balance read the engine may validate
// against; earlier non-locked reads can be stale.
func (u *pgxUnitOfWork) LockBalance(ctx context.Context, accountID int64) (decimal.Decimal, bool, error) {
	var balance decimal.Decimal
	err := u.tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, false, nil
		}
		return decimal.Decimal{}, false, domain.NewStorageError("lock balance", err)
	}
	return balance, true, nil
}

func (u *pgxUnitOfWork) SetBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	tag, err := u.tx.Exec(ctx, "UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1", accountID, balance)
	if err != nil {
		return domain.NewStorageError("set balance", err)
	}
	if tag.RowsAffected() == 0 {
		// Unreachable while the caller holds the row lock; a zero count here
		// means the discipline was broken upstream.
		return domain.ErrAccountNotFound
	}
	return nil
}

func (u *pgxUnitOfWork) AppendTransfer(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error) {
	query := `
		INSERT INTO transfers (from_account_id, to_account_id, amount, description, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	record := *transfer
	err := u.tx.QueryRow(ctx, query,
		transfer.SourceID,
		transfer.DestinationID,
		transfer.Amount,
		transfer.Description,
		transfer.IdempotencyKey,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, domain.NewStorageError("append transfer", err)
	}
	return &record, nil
}

func (u *pgxUnitOfWork) TransferByIdempotencyKey(ctx context.Context, key string) (*domain.Transfer, bool, error) {
	query := `
		SELECT id, from_account_id, to_account_id, amount, description, idempotency_key, created_at
		FROM transfers
		WHERE idempotency_key = $1
	`
	var transfer domain.Transfer
	err := u.tx.QueryRow(ctx, query, key).Scan(
		&transfer.ID,
		&transfer.SourceID,
		&transfer.DestinationID,
		&transfer.Amount,
		&transfer.Description,
		&transfer.IdempotencyKey,
		&transfer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, domain.NewStorageError("idempotency lookup", err)
	}
	return &transfer, true, nil
}

// CreateAccount inserts a new account row and returns the stored snapshot.
func (s *PostgresStore) CreateAccount(ctx context.Context, username, passwordHash string, initialBalance decimal.Decimal) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (username, password_hash, balance)
		VALUES ($1, $2, $3)
		RETURNING id, username, balance, created_at, updated_at
	`
	var account domain.Account
	err := s.db.QueryRow(ctx, query, username, passwordHash, initialBalance).Scan(
		&account.ID,
		&account.Username,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrUsernameTaken
		}
		return nil, domain.NewStorageError("create account", err)
	}
	return &account, nil
}

func (s *PostgresStore) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	query := `SELECT id, username, balance, created_at, updated_at FROM accounts WHERE id = $1`
	var account domain.Account
	err := s.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID,
		&account.Username,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.NewStorageError("find account", err)
	}
	return &account, nil
}

func (s *PostgresStore) FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT id, username, balance, created_at, updated_at FROM accounts WHERE username = $1`
	var account domain.Account
	err := s.db.QueryRow(ctx, query, username).Scan(
		&account.ID,
		&account.Username,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.NewStorageError("find account", err)
	}
	return &account, nil
}

// CredentialByUsername returns what login verification needs and nothing
// more; the password hash never rides on the Account model.
func (s *PostgresStore) CredentialByUsername(ctx context.Context, username string) (int64, string, error) {
	var accountID int64
	var passwordHash string
	err := s.db.QueryRow(ctx, "SELECT id, password_hash FROM accounts WHERE username = $1", username).
		Scan(&accountID, &passwordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", domain.ErrAccountNotFound
		}
		return 0, "", domain.NewStorageError("credential lookup", err)
	}
	return accountID, passwordHash, nil
}

// GetBalance reads the committed balance without locking the row.
func (s *PostgresStore) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1", accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, domain.ErrAccountNotFound
		}
		return decimal.Decimal{}, domain.NewStorageError("get balance", err)
	}
	return balance, nil
}

// ListTransfers returns the account's sent and received transfers, newest
// first, each joined with both party usernames.
func (s *PostgresStore) ListTransfers(ctx context.Context, accountID int64, opts domain.TransferListOptions) ([]domain.TransferView, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT
			t.id,
			sender.username AS from_username,
			receiver.username AS to_username,
			t.amount,
			t.description,
			t.created_at
		FROM transfers t
		JOIN accounts sender ON t.from_account_id = sender.id
		JOIN accounts receiver ON t.to_account_id = receiver.id
		WHERE t.from_account_id = $1 OR t.to_account_id = $1
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, domain.NewStorageError("list transfers", err)
	}
	defer rows.Close()

	transfers := make([]domain.TransferView, 0, limit)
	for rows.Next() {
		var view domain.TransferView
		if err := rows.Scan(
			&view.ID,
			&view.FromUsername,
			&view.ToUsername,
			&view.Amount,
			&view.Description,
			&view.CreatedAt,
		); err != nil {
			return nil, domain.NewStorageError("list transfers", err)
		}
		transfers = append(transfers, view)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list transfers", err)
	}
	return transfers, nil
}

func (s *PostgresStore) FindTransferView(ctx context.Context, transferID int64) (*domain.TransferView, error) {
	query := `
		SELECT
			t.id,
			sender.username AS from_username,
			receiver.username AS to_username,
			t.amount,
			t.description,
			t.created_at
		FROM transfers t
		JOIN accounts sender ON t.from_account_id = sender.id
		JOIN accounts receiver ON t.to_account_id = receiver.id
		WHERE t.id = $1
	`
	var view domain.TransferView
	err := s.db.QueryRow(ctx, query, transferID).Scan(
		&view.ID,
		&view.FromUsername,
		&view.ToUsername,
		&view.Amount,
		&view.Description,
		&view.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, domain.NewStorageError("find transfer", err)
	}
	return &view, nil
}
