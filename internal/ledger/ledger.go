// Package ledger owns account coin balances.
//
// Balances never go below zero. Social-action reversals clamp at zero
// instead of failing: a debit larger than the balance empties the account
// and the entry records both the requested and the applied amount. Coin
// sales are the one strict debit and fail with errs.ErrInsufficientFunds.
//
// Every mutation reads and writes the balance inside one store transaction
// and writes a LedgerEntry. The entry insert is what balance watchers are
// notified about.
package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/metrics"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/storage"
)

// ExchangeAmount is the number of coins moved by one buy or sell.
const ExchangeAmount = 10

// rewards maps social actions to their fixed balance change.
var rewards = map[models.Action]int64{
	models.ActionPostCreated:    1,
	models.ActionPostDeleted:    -1,
	models.ActionCommentCreated: 1,
	models.ActionCommentDeleted: -1,
	models.ActionGroupCreated:   1,
	models.ActionGroupDeleted:   -1,
}

// RewardFor returns the balance change for a social action.
func RewardFor(action models.Action) (int64, bool) {
	amount, ok := rewards[action]
	return amount, ok
}

// Side is the direction of a coin exchange.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Ledger applies balance changes through a store.
type Ledger struct {
	store storage.Store
}

// New creates a Ledger backed by store.
func New(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

// ApplyDelta adds amount to the account balance, clamping the result at
// zero. Over-deduction is not an error.
func (l *Ledger) ApplyDelta(ctx context.Context, accountID string, amount int64, action models.Action) (*models.LedgerEntry, error) {
	if action == "" {
		action = models.ActionAdjustment
	}
	return l.apply(ctx, accountID, amount, action, false)
}

// Reward applies the fixed amount for a social action.
func (l *Ledger) Reward(ctx context.Context, accountID string, action models.Action) (*models.LedgerEntry, error) {
	amount, ok := rewards[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a rewarded action", errs.ErrInvalidArgument, action)
	}
	return l.apply(ctx, accountID, amount, action, false)
}

// Exchange buys or sells ExchangeAmount coins. Selling requires a balance of
// at least ExchangeAmount.
func (l *Ledger) Exchange(ctx context.Context, accountID string, side Side) (*models.LedgerEntry, error) {
	switch side {
	case Buy:
		return l.apply(ctx, accountID, ExchangeAmount, models.ActionCoinsBought, false)
	case Sell:
		return l.apply(ctx, accountID, -ExchangeAmount, models.ActionCoinsSold, true)
	default:
		return nil, fmt.Errorf("%w: unknown exchange side %q", errs.ErrInvalidArgument, side)
	}
}

func (l *Ledger) apply(ctx context.Context, accountID string, amount int64, action models.Action, strict bool) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := l.store.Atomically(ctx, func(tx storage.Tx) error {
		rows, err := tx.Query(ctx, storage.Accounts, storage.Query{
			Where:     storage.Filter{"id": accountID},
			ForUpdate: true,
		})
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("account %s: %w", accountID, errs.ErrNotFound)
		}

		old := rows[0].Int("coins")
		if amount > 0 && old > math.MaxInt64-amount {
			return fmt.Errorf("%w: crediting %d to balance %d overflows", errs.ErrInvalidArgument, amount, old)
		}
		balance := max(0, old+amount)
		if strict && old+amount < 0 {
			return fmt.Errorf("balance %d cannot cover %d: %w", old, -amount, errs.ErrInsufficientFunds)
		}

		if balance != old {
			if _, err := tx.Update(ctx, storage.Accounts, storage.Filter{"id": accountID}, storage.Row{"coins": balance}); err != nil {
				return fmt.Errorf("failed to write balance: %w", err)
			}
		}

		row, err := tx.Insert(ctx, storage.LedgerEntries, storage.Row{
			"id":            uuid.NewString(),
			"account_id":    accountID,
			"action":        string(action),
			"requested":     amount,
			"applied":       balance - old,
			"balance_after": balance,
			"created_at":    time.Now().UnixMilli(),
		})
		if err != nil {
			return fmt.Errorf("failed to record ledger entry: %w", err)
		}
		entry = models.LedgerEntryFromRow(row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordLedger(string(action), entry.Clamped())
	return entry, nil
}

// Balance returns the current balance of an account.
func (l *Ledger) Balance(ctx context.Context, accountID string) (int64, error) {
	rows, err := l.store.Query(ctx, storage.Accounts, storage.Query{
		Where: storage.Filter{"id": accountID},
		Limit: 1,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("account %s: %w", accountID, errs.ErrNotFound)
	}
	return rows[0].Int("coins"), nil
}

// Entries returns the most recent ledger entries of an account, newest
// first. A limit of zero returns all of them.
func (l *Ledger) Entries(ctx context.Context, accountID string, limit int) ([]*models.LedgerEntry, error) {
	rows, err := l.store.Query(ctx, storage.LedgerEntries, storage.Query{
		Where:   storage.Filter{"account_id": accountID},
		OrderBy: []storage.Order{{Column: "created_at", Desc: true}},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	entries := make([]*models.LedgerEntry, len(rows))
	for i, r := range rows {
		entries[i] = models.LedgerEntryFromRow(r)
	}
	return entries, nil
}

// Watch calls fn with every ledger entry committed for the account until
// the subscription is cancelled or ctx ends. fn must not block.
func (l *Ledger) Watch(ctx context.Context, accountID string, fn func(*models.LedgerEntry)) (storage.Subscription, error) {
	return l.store.Subscribe(ctx, storage.LedgerEntries, storage.Filter{"account_id": accountID}, func(r storage.Row) {
		fn(models.LedgerEntryFromRow(r))
	})
}
