/**
 * @description
 * This file contains the core business logic for the wallet-service: the
 * transfer engine and the balance query service. The `Service` struct
 * orchestrates money movement against the storage layer and publishes
 * completion events to the message broker.
 *
 * Key properties:
 * - Every transfer runs inside one unit of work with exclusive row locks on
 *   both accounts, so no interleaving of concurrent transfers can observe a
 *   stale balance or lose an update.
 * - Row locks are always requested in ascending account-id order, never in
 *   transfer direction. Two opposite-direction transfers between the same
 *   pair therefore request locks in the same global order and cannot
 *   deadlock each other.
 * - Precondition failures abort the unit of work; the ledger and both
 *   balances are untouched and the caller gets one of the typed errors from
 *   internal/domain.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Fixed-point monetary values.
 * - golang.org/x/crypto/bcrypt: Credential verification.
 * - internal/domain, internal/store: Domain models and storage contracts.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/walletcore/wallet-service/internal/domain"
	"github.com/walletcore/wallet-service/internal/store"
	"github.com/walletcore/wallet-service/pkg/rabbitmq"
)

// EventsExchange is the topic exchange all wallet events are published to.
const EventsExchange = "wallet.events"

// Service provides the transfer engine and the balance query operations.
type Service struct {
	repo     store.Store
	producer rabbitmq.Publisher
}

// NewService creates a new wallet service instance.
func NewService(repo store.Store, producer rabbitmq.Publisher) *Service {
	return &Service{repo: repo, producer: producer}
}

// ExecuteTransfer moves amount from the source account to the destination
// account and records the ledger entry, all within one atomic unit of work.
// idempotencyKey is optional; when non-empty and a transfer with that key
// already committed, the original record is returned instead of applying the
// transfer again.
func (s *Service) ExecuteTransfer(ctx context.Context, sourceID, destID int64, amount decimal.Decimal, description *string, idempotencyKey string) (*domain.Transfer, error) {
	if sourceID == destID {
		return nil, domain.ErrSelfTransfer
	}
	// Handlers validate amounts before we are called; re-checked here as an
	// engine invariant.
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	var result *domain.Transfer
	var replayed bool
	err := s.repo.WithinTx(ctx, func(uow store.UnitOfWork) error {
		if idempotencyKey != "" {
			prior, found, err := uow.TransferByIdempotencyKey(ctx, idempotencyKey)
			if err != nil {
				return err
			}
			if found {
				result = prior
				replayed = true
				return nil
			}
		}

		// Lock both rows in ascending id order before reading either balance.
		lowID, highID := sourceID, destID
		if lowID > highID {
			lowID, highID = highID, lowID
		}

		balances := make(map[int64]decimal.Decimal, 2)
		missing := make(map[int64]bool, 2)
		for _, accountID := range []int64{lowID, highID} {
			balance, found, err := uow.LockBalance(ctx, accountID)
			if err != nil {
				return err
			}
			if !found {
				missing[accountID] = true
				continue
			}
			balances[accountID] = balance
		}

		// Missing rows are reported in precondition order, independent of
		// which row was locked first.
		if missing[sourceID] {
			return domain.ErrSourceNotFound
		}
		if missing[destID] {
			return domain.ErrDestinationNotFound
		}

		sourceBalance := balances[sourceID]
		if sourceBalance.LessThan(amount) {
			return domain.ErrInsufficientFunds
		}

		if err := uow.SetBalance(ctx, sourceID, sourceBalance.Sub(amount)); err != nil {
			return err
		}
		if err := uow.SetBalance(ctx, destID, balances[destID].Add(amount)); err != nil {
			return err
		}

		record := &domain.Transfer{
			SourceID:      sourceID,
			DestinationID: destID,
			Amount:        amount,
			Description:   description,
		}
		if idempotencyKey != "" {
			record.IdempotencyKey = &idempotencyKey
		}

		committed, err := uow.AppendTransfer(ctx, record)
		if err != nil {
			return err
		}
		result = committed
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Replays return the original record without emitting a second event.
	if !replayed {
		s.publishTransferCompleted(ctx, result)
	}
	return result, nil
}

// GetBalance returns the committed balance for the account.
func (s *Service) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return s.repo.GetBalance(ctx, accountID)
}

// AdjustBalance applies delta to a single account under its row lock.
// Deposits pass a positive delta, withdrawals a negative one. When
// requireNonNegativeResult is set and the computed balance is negative, the
// unit of work aborts with ErrInsufficientFunds and nothing is written.
// Only one row is ever locked, so no lock-ordering protocol applies here.
func (s *Service) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal, requireNonNegativeResult bool) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := s.repo.WithinTx(ctx, func(uow store.UnitOfWork) error {
		current, found, err := uow.LockBalance(ctx, accountID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrAccountNotFound
		}

		next := current.Add(delta)
		if requireNonNegativeResult && next.IsNegative() {
			return domain.ErrInsufficientFunds
		}

		if err := uow.SetBalance(ctx, accountID, next); err != nil {
			return err
		}
		newBalance = next
		return nil
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	s.publishBalanceAdjusted(ctx, accountID, delta, newBalance)
	return newBalance, nil
}

// FindAccountByID returns the account snapshot for the profile read path.
func (s *Service) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	return s.repo.FindAccountByID(ctx, accountID)
}

// FindAccountByUsername resolves a counterparty for the transfer facade.
func (s *Service) FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return s.repo.FindAccountByUsername(ctx, username)
}

// CreateAccount registers a new account with an already-hashed password and
// an opening balance.
func (s *Service) CreateAccount(ctx context.Context, username, passwordHash string, initialBalance decimal.Decimal) (*domain.Account, error) {
	return s.repo.CreateAccount(ctx, username, passwordHash, initialBalance)
}

// VerifyCredentials checks a username/password pair and returns the account id
// on success. Unknown usernames and wrong passwords are indistinguishable to
// the caller.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (int64, error) {
	accountID, hash, err := s.repo.CredentialByUsername(ctx, username)
	if err != nil {
		if domain.IsStorageError(err) {
			return 0, err
		}
		return 0, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return 0, domain.ErrInvalidCredentials
	}
	return accountID, nil
}

// ListTransfers returns the account's transfer history, newest first.
func (s *Service) ListTransfers(ctx context.Context, accountID int64, opts domain.TransferListOptions) ([]domain.TransferView, error) {
	return s.repo.ListTransfers(ctx, accountID, opts)
}

// GetTransfer returns one ledger record, visible only to a participant.
func (s *Service) GetTransfer(ctx context.Context, accountID, transferID int64) (*domain.TransferView, error) {
	view, err := s.repo.FindTransferView(ctx, transferID)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if view.FromUsername != account.Username && view.ToUsername != account.Username {
		return nil, domain.ErrTransferNotFound
	}
	return view, nil
}

func (s *Service) publishTransferCompleted(ctx context.Context, transfer *domain.Transfer) {
	if s.producer == nil {
		return
	}
	event := domain.TransferCompletedEvent{
		TransferID:    transfer.ID,
		SourceID:      transfer.SourceID,
		DestinationID: transfer.DestinationID,
		Amount:        transfer.Amount,
		Timestamp:     transfer.CreatedAt,
	}
	if err := s.producer.Publish(ctx, EventsExchange, "transfer.completed", event); err != nil {
		log.Printf("level=warn component=service msg=\"transfer event publish failed\" transfer_id=%d err=%v", transfer.ID, err)
	}
}

func (s *Service) publishBalanceAdjusted(ctx context.Context, accountID int64, delta, newBalance decimal.Decimal) {
	if s.producer == nil {
		return
	}
	event := domain.BalanceAdjustedEvent{
		AccountID:  accountID,
		Delta:      delta,
		NewBalance: newBalance,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, EventsExchange, "balance.adjusted", event); err != nil {
		log.Printf("level=warn component=service msg=\"balance event publish failed\" account_id=%d err=%v", accountID, err)
	}
}
