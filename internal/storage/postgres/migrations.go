package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migrations run in order on startup. Each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL UNIQUE,
    coins BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
    created_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    owner_id TEXT NOT NULL REFERENCES accounts(id),
    visibility TEXT NOT NULL DEFAULT 'public',
    created_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS memberships (
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    account_id TEXT NOT NULL REFERENCES accounts(id),
    role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'member')),
    joined_at BIGINT NOT NULL,
    PRIMARY KEY (group_id, account_id)
)`,
	`CREATE TABLE IF NOT EXISTS messages (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    author_id TEXT NOT NULL,
    body TEXT NOT NULL,
    mention_all BOOLEAN NOT NULL DEFAULT FALSE,
    created_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS mentions (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    account_id TEXT NOT NULL,
    read BOOLEAN NOT NULL DEFAULT FALSE,
    created_at BIGINT NOT NULL,
    UNIQUE (message_id, account_id)
)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts(id),
    action TEXT NOT NULL,
    requested BIGINT NOT NULL,
    applied BIGINT NOT NULL,
    balance_after BIGINT NOT NULL CHECK (balance_after >= 0),
    created_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_account_id ON memberships(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_group_id ON messages(group_id, created_at, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_mentions_group_account ON mentions(group_id, account_id, read)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_id ON ledger_entries(account_id, created_at)`,
}

// Migrate applies every migration statement in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
