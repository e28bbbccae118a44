// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	moderncsqlite "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mmynk/zehem/internal/realtime"
	"github.com/mmynk/zehem/internal/storage"
	"github.com/mmynk/zehem/internal/storage/sqlstore"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Store implements storage.Store using SQLite.
type Store struct {
	*sqlstore.DB
}

// New creates a new Store with the given database path.
// It creates the parent directories and runs migrations automatically.
// Inserts are published on broker; nil gives the store a private broker.
func New(dbPath string, broker *realtime.Broker) (*Store, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection makes SQLite the one writer every transaction
	// queues behind, which is what serializes read-then-write sequences.
	db.SetMaxOpenConns(1)

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{DB: sqlstore.New(db, dialect, broker)}, nil
}

var dialect = sqlstore.Dialect{
	Name:       "sqlite",
	RowLocks:   false,
	IsConflict: isConflict,
}

func isConflict(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
