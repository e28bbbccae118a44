// Package sqlstore implements storage.Store on top of a SQL database.
//
// The SQLite and Postgres packages open the driver, run their schema and
// hand the connection to New together with a Dialect describing what the
// driver supports.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/realtime"
	"github.com/mmynk/zehem/internal/storage"
)

// Dialect captures the driver differences the engine cares about.
type Dialect struct {
	// Name is used in error messages.
	Name string

	// RowLocks enables SELECT ... FOR UPDATE for storage.Query.ForUpdate.
	RowLocks bool

	// IsConflict reports whether err is a unique or primary key violation.
	IsConflict func(error) bool
}

// Ensure DB implements storage.Store
var _ storage.Store = (*DB)(nil)

// DB implements storage.Store over a sqlx connection pool.
type DB struct {
	db      *sqlx.DB
	dialect Dialect
	broker  *realtime.Broker

	// commitMu orders commit+publish so subscribers see inserts in commit order.
	commitMu sync.Mutex
}

// New wraps db. broker may be nil, in which case a private broker is used.
func New(db *sqlx.DB, dialect Dialect, broker *realtime.Broker) *DB {
	if broker == nil {
		broker = realtime.NewBroker()
	}
	if dialect.IsConflict == nil {
		dialect.IsConflict = func(error) bool { return false }
	}
	return &DB{db: db, dialect: dialect, broker: broker}
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// Broker returns the broker inserts are published on.
func (s *DB) Broker() *realtime.Broker {
	return s.broker
}

// Query reads rows outside of any transaction.
func (s *DB) Query(ctx context.Context, collection string, q storage.Query) ([]storage.Row, error) {
	return queryRows(ctx, s.db, s.dialect, collection, q)
}

// Insert persists one record in its own transaction.
func (s *DB) Insert(ctx context.Context, collection string, record storage.Row) (storage.Row, error) {
	var out storage.Row
	err := s.Atomically(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.Insert(ctx, collection, record)
		return err
	})
	return out, err
}

// Update patches matching rows in its own transaction.
func (s *DB) Update(ctx context.Context, collection string, filter storage.Filter, patch storage.Row) (int64, error) {
	var n int64
	err := s.Atomically(ctx, func(tx storage.Tx) error {
		var err error
		n, err = tx.Update(ctx, collection, filter, patch)
		return err
	})
	return n, err
}

// Delete removes matching rows in its own transaction.
func (s *DB) Delete(ctx context.Context, collection string, filter storage.Filter) (int64, error) {
	var n int64
	err := s.Atomically(ctx, func(tx storage.Tx) error {
		var err error
		n, err = tx.Delete(ctx, collection, filter)
		return err
	})
	return n, err
}

// Atomically runs fn in one transaction and publishes its inserts after commit.
func (s *DB) Atomically(ctx context.Context, fn func(tx storage.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.unavailable("begin transaction", err)
	}
	defer sqlTx.Rollback()

	tx := &txQuerier{tx: sqlTx, store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if err := sqlTx.Commit(); err != nil {
		return s.unavailable("commit transaction", err)
	}
	if len(tx.inserted) > 0 {
		s.broker.Publish(tx.inserted...)
	}
	return nil
}

// Subscribe registers onInsert with the broker until cancelled or ctx ends.
func (s *DB) Subscribe(ctx context.Context, collection string, filter storage.Filter, onInsert func(storage.Row)) (storage.Subscription, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	for col := range filter {
		if err := checkColumn(collection, col); err != nil {
			return nil, err
		}
	}

	sub := s.broker.Subscribe(collection, filter, onInsert)
	stop := context.AfterFunc(ctx, sub.Cancel)
	return &subscription{sub: sub, stop: stop}, nil
}

type subscription struct {
	sub  *realtime.Subscription
	stop func() bool
}

func (s *subscription) Cancel() {
	s.stop()
	s.sub.Cancel()
}

// unavailable wraps a driver failure as errs.ErrStoreUnavailable, except for
// constraint conflicts which surface as errs.ErrAlreadyExists.
func (s *DB) unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: failed to %s: %w", errs.ErrStoreUnavailable, op, err)
	}
	if s.dialect.IsConflict(err) {
		return fmt.Errorf("%w: failed to %s: %v", errs.ErrAlreadyExists, op, err)
	}
	return fmt.Errorf("%w: %s failed to %s: %v", errs.ErrStoreUnavailable, s.dialect.Name, op, err)
}

// txQuerier runs statements inside one transaction and remembers inserted
// rows until commit.
type txQuerier struct {
	tx       *sqlx.Tx
	store    *DB
	inserted []realtime.Event
}

func (t *txQuerier) Query(ctx context.Context, collection string, q storage.Query) ([]storage.Row, error) {
	return queryRows(ctx, t.tx, t.store.dialect, collection, q)
}

func (t *txQuerier) Insert(ctx context.Context, collection string, record storage.Row) (storage.Row, error) {
	query, args, err := buildInsert(collection, record)
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryxContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return nil, t.store.unavailable("insert into "+collection, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, t.store.unavailable("insert into "+collection, err)
		}
		return nil, t.store.unavailable("insert into "+collection, sql.ErrNoRows)
	}
	out := storage.Row{}
	if err := rows.MapScan(out); err != nil {
		return nil, t.store.unavailable("scan inserted "+collection, err)
	}
	if err := rows.Close(); err != nil {
		return nil, t.store.unavailable("insert into "+collection, err)
	}

	t.inserted = append(t.inserted, realtime.Event{Collection: collection, Row: out.Clone()})
	return out, nil
}

func (t *txQuerier) Update(ctx context.Context, collection string, filter storage.Filter, patch storage.Row) (int64, error) {
	query, args, err := buildUpdate(collection, filter, patch)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return 0, t.store.unavailable("update "+collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, t.store.unavailable("update "+collection, err)
	}
	return n, nil
}

func (t *txQuerier) Delete(ctx context.Context, collection string, filter storage.Filter) (int64, error) {
	query, args, err := buildDelete(collection, filter)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return 0, t.store.unavailable("delete from "+collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, t.store.unavailable("delete from "+collection, err)
	}
	return n, nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	Rebind(query string) string
}

func queryRows(ctx context.Context, q queryer, dialect Dialect, collection string, query storage.Query) ([]storage.Row, error) {
	stmt, args, err := buildSelect(collection, query, dialect.RowLocks)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryxContext(ctx, q.Rebind(stmt), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s failed to query %s: %v", errs.ErrStoreUnavailable, dialect.Name, collection, err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		row := storage.Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("%w: failed to scan %s: %v", errs.ErrStoreUnavailable, collection, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate %s: %v", errs.ErrStoreUnavailable, collection, err)
	}
	return out, nil
}
