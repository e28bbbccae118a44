package models

import "github.com/mmynk/zehem/internal/storage"

// Action names the reason for a balance change.
type Action string

const (
	ActionPostCreated    Action = "post_created"
	ActionPostDeleted    Action = "post_deleted"
	ActionCommentCreated Action = "comment_created"
	ActionCommentDeleted Action = "comment_deleted"
	ActionGroupCreated   Action = "group_created"
	ActionGroupDeleted   Action = "group_deleted"
	ActionCoinsBought    Action = "coins_bought"
	ActionCoinsSold      Action = "coins_sold"
	ActionAdjustment     Action = "adjustment"
)

// LedgerEntry records one balance mutation.
type LedgerEntry struct {
	// ID is the unique identifier for the entry (UUID format).
	ID string

	AccountID string
	Action    Action

	// Requested is the delta the caller asked for.
	Requested int64

	// Applied is the delta actually applied. It differs from Requested only
	// when a debit was clamped at zero.
	Applied int64

	// BalanceAfter is the balance once Applied was added.
	BalanceAfter int64

	// CreatedAt is the Unix millisecond timestamp when the entry was written.
	CreatedAt int64
}

// Clamped reports whether part of the requested debit was discarded.
func (e *LedgerEntry) Clamped() bool {
	return e.Requested != e.Applied
}

// LedgerEntryFromRow builds a LedgerEntry from a ledger_entries row.
func LedgerEntryFromRow(r storage.Row) *LedgerEntry {
	return &LedgerEntry{
		ID:           r.String("id"),
		AccountID:    r.String("account_id"),
		Action:       Action(r.String("action")),
		Requested:    r.Int("requested"),
		Applied:      r.Int("applied"),
		BalanceAfter: r.Int("balance_after"),
		CreatedAt:    r.Int("created_at"),
	}
}
