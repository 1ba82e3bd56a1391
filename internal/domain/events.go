/**
 * @description
 * Event payloads published to the message broker after money movement
 * commits. Events are advisory: downstream consumers (notifications,
 * analytics) react to them, but a publish failure never fails the
 * already-committed operation.
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferCompletedEvent is published after a transfer commits.
type TransferCompletedEvent struct {
	TransferID    int64           `json:"transfer_id"`
	SourceID      int64           `json:"source_account_id"`
	DestinationID int64           `json:"destination_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
}

// BalanceAdjustedEvent is published after a deposit or withdrawal commits.
type BalanceAdjustedEvent struct {
	AccountID  int64           `json:"account_id"`
	Delta      decimal.Decimal `json:"delta"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Timestamp  time.Time       `json:"timestamp"`
}
