package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/storage"
)

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name     string
		q        storage.Query
		rowLocks bool
		want     string
		args     []any
	}{
		{
			name: "no filter",
			q:    storage.Query{},
			want: `SELECT "id", "account_id", "action", "requested", "applied", "balance_after", "created_at" FROM "ledger_entries"`,
		},
		{
			name: "filter, order and limit",
			q: storage.Query{
				Where:   storage.Filter{"account_id": "a1", "action": "post_created"},
				OrderBy: []storage.Order{{Column: "created_at", Desc: true}},
				Limit:   5,
			},
			want: `SELECT "id", "account_id", "action", "requested", "applied", "balance_after", "created_at" FROM "ledger_entries" WHERE "account_id" = ? AND "action" = ? ORDER BY "created_at" DESC LIMIT 5`,
			args: []any{"a1", "post_created"},
		},
		{
			name:     "row locks honored",
			q:        storage.Query{Where: storage.Filter{"id": "e1"}, ForUpdate: true},
			rowLocks: true,
			want:     `SELECT "id", "account_id", "action", "requested", "applied", "balance_after", "created_at" FROM "ledger_entries" WHERE "id" = ? FOR UPDATE`,
			args:     []any{"e1"},
		},
		{
			name: "row locks ignored without support",
			q:    storage.Query{Where: storage.Filter{"id": "e1"}, ForUpdate: true},
			want: `SELECT "id", "account_id", "action", "requested", "applied", "balance_after", "created_at" FROM "ledger_entries" WHERE "id" = ?`,
			args: []any{"e1"},
		},
		{
			name: "empty set matches nothing",
			q:    storage.Query{Where: storage.Filter{"id": []any{}}},
			want: `SELECT "id", "account_id", "action", "requested", "applied", "balance_after", "created_at" FROM "ledger_entries" WHERE 1 = 0`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args, err := buildSelect(storage.LedgerEntries, tt.q, tt.rowLocks)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestBuildInsert(t *testing.T) {
	got, args, err := buildInsert(storage.Mentions, storage.Row{
		"id": "m1", "message_id": "msg", "group_id": "g1", "account_id": "a1", "created_at": int64(7),
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "mentions" ("account_id", "created_at", "group_id", "id", "message_id") VALUES (?, ?, ?, ?, ?) RETURNING "id", "group_id", "message_id", "account_id", "read", "created_at"`,
		got)
	assert.Equal(t, []any{"a1", int64(7), "g1", "m1", "msg"}, args)
}

func TestBuildUpdate(t *testing.T) {
	got, args, err := buildUpdate(storage.Mentions,
		storage.Filter{"group_id": "g1", "account_id": "a1", "read": false},
		storage.Row{"read": true})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "mentions" SET "read" = ? WHERE "account_id" = ? AND "group_id" = ? AND "read" = ?`, got)
	assert.Equal(t, []any{true, "a1", "g1", false}, args)
}

func TestBuildDelete(t *testing.T) {
	got, args, err := buildDelete(storage.Messages, storage.Filter{"group_id": "g1"})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "messages" WHERE "group_id" = ?`, got)
	assert.Equal(t, []any{"g1"}, args)
}

func TestBuildRejects(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"unknown collection", func() error {
			_, _, err := buildSelect("users", storage.Query{}, false)
			return err
		}},
		{"unknown filter column", func() error {
			_, _, err := buildSelect(storage.Groups, storage.Query{Where: storage.Filter{"name; DROP": "x"}}, false)
			return err
		}},
		{"unknown order column", func() error {
			_, _, err := buildSelect(storage.Groups, storage.Query{OrderBy: []storage.Order{{Column: "rank"}}}, false)
			return err
		}},
		{"empty insert", func() error {
			_, _, err := buildInsert(storage.Groups, storage.Row{})
			return err
		}},
		{"empty patch", func() error {
			_, _, err := buildUpdate(storage.Groups, storage.Filter{"id": "g1"}, nil)
			return err
		}},
		{"unfiltered update", func() error {
			_, _, err := buildUpdate(storage.Groups, nil, storage.Row{"name": "x"})
			return err
		}},
		{"unfiltered delete", func() error {
			_, _, err := buildDelete(storage.Groups, storage.Filter{})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.fn(), errs.ErrInvalidArgument)
		})
	}
}
