package models

import (
	"time"
)

type LedgerKind string

const (
	LedgerKindDepositAck   LedgerKind = "deposit_ack"
	LedgerKindWinnerPayout LedgerKind = "winner_payout"
	LedgerKindPlatformFee  LedgerKind = "platform_fee"
	LedgerKindDrawRefund   LedgerKind = "draw_refund"
	LedgerKindCancelRefund LedgerKind = "cancel_refund"
)

type LedgerStatus string

const (
	LedgerStatusConfirmed LedgerStatus = "confirmed"
	LedgerStatusFailed    LedgerStatus = "failed"
)

// LedgerEntry is an append-only money-movement record. Confirmed rows are never
// updated; failed attempts stay in the table next to their later confirmed retry.
type LedgerEntry struct {
	ID             string       `gorm:"primaryKey;type:varchar(26)" json:"id"` // ULID, sorts by creation time
	WagerID        string       `gorm:"type:uuid;not null;index" json:"wager_id"`
	Kind           LedgerKind   `gorm:"type:varchar(16);not null" json:"kind"`
	Identity       string       `gorm:"type:varchar(64);not null;index" json:"identity"`
	AmountLamports int64        `gorm:"not null" json:"amount_lamports"`
	ExternalTxRef  *string      `gorm:"type:varchar(128)" json:"external_tx_ref,omitempty"`
	Status         LedgerStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	ErrorMessage   *string      `gorm:"type:text" json:"error_message,omitempty"`

	// SettlementKey deduplicates confirmed rows; NULL for failed attempts.
	SettlementKey *string `gorm:"type:varchar(200);uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
