package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(sqlx.NewDb(db, "postgres"), nil), mock
}

func TestMigrateExecutesAllStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range migrations {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Migrate(context.Background(), sqlx.NewDb(db, "postgres")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryForUpdateLocksRows(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "id", "display_name", "coins", "created_at" FROM "accounts" WHERE "id" = $1 FOR UPDATE`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "coins", "created_at"}).
			AddRow("a1", "alice", int64(3), int64(1700000000000)))
	mock.ExpectExec(`UPDATE "accounts" SET "coins" = $1 WHERE "id" = $2`).
		WithArgs(int64(4), "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Atomically(ctx, func(tx storage.Tx) error {
		rows, err := tx.Query(ctx, storage.Accounts, storage.Query{
			Where:     storage.Filter{"id": "a1"},
			ForUpdate: true,
		})
		if err != nil {
			return err
		}
		require.Len(t, rows, 1)
		require.Equal(t, "alice", rows[0].String("display_name"))

		_, err = tx.Update(ctx, storage.Accounts, storage.Filter{"id": "a1"}, storage.Row{"coins": rows[0].Int("coins") + 1})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRendersInAndOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT "group_id", "account_id", "role", "joined_at" FROM "memberships" WHERE "group_id" = $1 AND "role" IN ($2, $3) ORDER BY "joined_at" ASC LIMIT 20`).
		WithArgs("g1", "owner", "admin").
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "account_id", "role", "joined_at"}))

	rows, err := store.Query(context.Background(), storage.Memberships, storage.Query{
		Where:   storage.Filter{"group_id": "g1", "role": []string{"owner", "admin"}},
		OrderBy: []storage.Order{{Column: "joined_at"}},
		Limit:   20,
	})
	require.NoError(t, err)
	require.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertConflictIsAlreadyExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "memberships" ("account_id", "group_id", "joined_at", "role") VALUES ($1, $2, $3, $4) RETURNING "group_id", "account_id", "role", "joined_at"`).
		WithArgs("a1", "g1", int64(1), "member").
		WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	_, err := store.Insert(context.Background(), storage.Memberships, storage.Row{
		"group_id": "g1", "account_id": "a1", "role": "member", "joined_at": int64(1),
	})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryFailureIsStoreUnavailable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT "id", "name", "description", "owner_id", "visibility", "created_at" FROM "groups"`).
		WillReturnError(pq.ErrSSLNotSupported)

	_, err := store.Query(context.Background(), storage.Groups, storage.Query{})
	require.ErrorIs(t, err, errs.ErrStoreUnavailable)
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	store, err := Open(ctx, dsn, nil)
	require.NoError(t, err)
	defer store.Close()

	row, err := store.Insert(ctx, storage.Accounts, storage.Row{
		"id": "it-" + t.Name(), "display_name": "it_" + t.Name(), "created_at": int64(1),
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), row.Int("coins"))

	_, err = store.Delete(ctx, storage.Accounts, storage.Filter{"id": row.String("id")})
	require.NoError(t, err)
}
