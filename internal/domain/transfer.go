/**
 * @description
 * This file defines the transfer (ledger) domain model and the DTOs for the
 * transfer API surface. A Transfer is the immutable, append-only audit record
 * of one committed money movement between two accounts.
 *
 * @notes
 * - Transfer ids are monotonic and assigned by the database at commit time.
 *   A transfer that fails validation never receives an id.
 * - Amounts are `decimal.Decimal` with scale 2, invariant amount > 0.
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxDescriptionLength bounds the optional free-text description attached to
// a transfer or ledger-visible adjustment.
const MaxDescriptionLength = 255

// Transfer is the central ledger record. It maps directly to the `transfers`
// table and is never updated or deleted once written.
type Transfer struct {
	ID             int64           `json:"id"`
	SourceID       int64           `json:"source_account_id"`
	DestinationID  int64           `json:"destination_account_id"`
	Amount         decimal.Decimal `json:"amount"`
	Description    *string         `json:"description,omitempty"`
	IdempotencyKey *string         `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TransferRequest is the DTO for incoming transfer creation requests. The
// destination is addressed by username, mirroring how account holders refer
// to each other.
type TransferRequest struct {
	ToUsername  string          `json:"to_username"`
	Amount      decimal.Decimal `json:"amount"`
	Description *string         `json:"description,omitempty"`
}

// TransferView is the read-model row returned by the transfer history
// endpoints: the ledger record joined with both party usernames.
type TransferView struct {
	ID           int64           `json:"id"`
	FromUsername string          `json:"from_username"`
	ToUsername   string          `json:"to_username"`
	Amount       decimal.Decimal `json:"amount"`
	Description  *string         `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TransferListOptions carries pagination for transfer history reads.
type TransferListOptions struct {
	Limit  int
	Offset int
}
