// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
)

// Collection names understood by every Store implementation.
const (
	Accounts      = "accounts"
	Groups        = "groups"
	Memberships   = "memberships"
	Messages      = "messages"
	Mentions      = "mentions"
	LedgerEntries = "ledger_entries"
)

// Filter selects rows by column. A scalar value is an equality match and a
// slice value ([]string, []any) is a membership match. An empty slice matches
// nothing.
type Filter map[string]any

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a read against one collection.
type Query struct {
	Where   Filter
	OrderBy []Order
	// Limit caps the number of rows returned. Zero means no limit.
	Limit int
	// ForUpdate asks the store to lock the selected rows until the enclosing
	// transaction ends. Stores with a single writer may ignore it.
	ForUpdate bool
}

// Querier is the row-level contract shared by a Store and a transaction.
type Querier interface {
	// Query returns the rows of collection matching q, in q.OrderBy order.
	Query(ctx context.Context, collection string, q Query) ([]Row, error)

	// Insert persists record and returns it with store-assigned columns
	// (sequence numbers, defaults) filled in.
	Insert(ctx context.Context, collection string, record Row) (Row, error)

	// Update applies patch to every row matching filter and returns the
	// number of rows affected.
	Update(ctx context.Context, collection string, filter Filter, patch Row) (int64, error)

	// Delete removes every row matching filter and returns the number of rows
	// affected.
	Delete(ctx context.Context, collection string, filter Filter) (int64, error)
}

// Tx is a unit of work opened by Store.Atomically.
type Tx interface {
	Querier
}

// Subscription is an active realtime registration.
type Subscription interface {
	// Cancel stops delivery. It is safe to call more than once.
	Cancel()
}

// Store defines the interface for the backing data store.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the domain packages.
type Store interface {
	Querier

	// Atomically runs fn inside a single transaction. If fn returns an error
	// the transaction is rolled back and the error is returned unchanged.
	// Rows inserted by fn are published to subscribers only after commit.
	Atomically(ctx context.Context, fn func(tx Tx) error) error

	// Subscribe calls onInsert for every row inserted into collection that
	// matches filter, until the subscription is cancelled or ctx is done.
	// onInsert runs on the committing goroutine and must not block.
	Subscribe(ctx context.Context, collection string, filter Filter, onInsert func(Row)) (Subscription, error)

	// Close releases any resources held by the store.
	Close() error
}
