// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface for deployments on a hosted relational backend.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mmynk/zehem/internal/realtime"
	"github.com/mmynk/zehem/internal/storage"
	"github.com/mmynk/zehem/internal/storage/sqlstore"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	*sqlstore.DB
}

// Open connects to dsn, applies the schema and returns a Store.
func Open(ctx context.Context, dsn string, broker *realtime.Broker) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return New(db, broker), nil
}

// New wraps an already migrated connection.
func New(db *sqlx.DB, broker *realtime.Broker) *Store {
	return &Store{DB: sqlstore.New(db, dialect, broker)}
}

var dialect = sqlstore.Dialect{
	Name:       "postgres",
	RowLocks:   true,
	IsConflict: isConflict,
}

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func isConflict(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
