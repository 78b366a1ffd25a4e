package dto

import "time"

type LedgerEntryResponse struct {
	ID             string    `json:"id"`
	ReferenceID    string    `json:"reference_id"`
	OwnerAccountID string    `json:"owner_account_id"`
	EntryType      string    `json:"entry_type"`
	AmountCents    int64     `json:"amount_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

type LedgerEntriesResponse struct {
	Entries []LedgerEntryResponse `json:"entries"`
}
