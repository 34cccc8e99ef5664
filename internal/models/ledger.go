package models

import (
	"time"
)

// Entry types for ledger rows. A transfer always writes one of each.
const (
	EntryDebit  = "DEBIT"
	EntryCredit = "CREDIT"
)

// LedgerEntry is one side of a points transfer. Rows are append-only and
// never mutated; the two rows sharing a TransferRef sum to zero.
type LedgerEntry struct {
	ID          int64     `json:"id" db:"id"`
	TransferRef string    `json:"transfer_ref" db:"transfer_ref"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Amount      int64     `json:"amount" db:"amount"` // signed: negative for DEBIT, positive for CREDIT
	EntryType   string    `json:"entry_type" db:"entry_type"`
	Balance     int64     `json:"balance" db:"balance"` // points balance after this entry
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TransferResult reports the committed balances of both parties.
type TransferResult struct {
	TransferRef      string `json:"transfer_ref"`
	SenderID         int64  `json:"sender_id"`
	RecipientID      int64  `json:"recipient_id"`
	Amount           int64  `json:"amount"`
	SenderBalance    int64  `json:"sender_balance"`
	RecipientBalance int64  `json:"recipient_balance"`
}
