/**
 * @description
 * This file defines the account domain model and the request/response DTOs
 * for the account-facing API surface (registration, login, profile, balance
 * operations).
 *
 * @notes
 * - Monetary values are `decimal.Decimal` with scale 2 everywhere. Balances
 *   are never represented as binary floating point at any layer.
 * - Account ids are monotonic integers assigned by the database at creation.
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents one wallet account. It maps directly to the `accounts`
// table. The persisted balance is owned by the store; callers only ever hold
// a snapshot copy.
type Account struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RegisterRequest is the DTO for incoming account registration requests.
type RegisterRequest struct {
	Username       string           `json:"username"`
	Password       string           `json:"password"`
	InitialBalance *decimal.Decimal `json:"initial_balance,omitempty"`
}

// LoginRequest is the DTO for incoming login requests.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// BalanceAdjustmentRequest is the DTO shared by the deposit and withdraw
// endpoints. The handler decides the sign of the delta.
type BalanceAdjustmentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// BalanceResponse carries a committed balance snapshot back to the caller.
type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}
