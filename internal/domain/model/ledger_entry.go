package model

import (
	"time"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/enums"
)

// LedgerEntry is append-only: rows are inserted in the same transaction as the
// purchase transition they account for and never mutated afterwards.
// Credits are positive, debits negative.
type LedgerEntry struct {
	ID             string                `json:"id"`
	ReferenceID    string                `json:"reference_id"`
	OwnerAccountID string                `json:"owner_account_id"`
	Type           enums.LedgerEntryType `json:"type"`
	AmountCents    int64                 `json:"amount_cents"`
	CreatedAt      time.Time             `json:"created_at"`
}
