package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgresStoreMocks(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare(regexp.QuoteMeta(getSQL)).WillReturnCloseError(nil)
	mock.ExpectPrepare(regexp.QuoteMeta(keysSQL)).WillReturnCloseError(nil)
	mock.ExpectPrepare(regexp.QuoteMeta(deleteSQL)).WillReturnCloseError(nil)
}

func newMockedStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	setupPostgresStoreMocks(mock)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	return store, mock, func() { db.Close() }
}

func TestNewPostgresStore(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		store, mock, cleanup := newMockedStore(t)
		defer cleanup()

		assert.NotNil(t, store)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails_when_prepare_get_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(getSQL)).WillReturnError(errors.New("prepare failed"))

		store, err := NewPostgresStore(db)
		require.Error(t, err)
		assert.Nil(t, store)
		assert.Contains(t, err.Error(), "failed to prepare get statement")
	})

	t.Run("fails_when_prepare_delete_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(getSQL))
		mock.ExpectPrepare(regexp.QuoteMeta(keysSQL))
		mock.ExpectPrepare(regexp.QuoteMeta(deleteSQL)).WillReturnError(errors.New("prepare failed"))

		_, err = NewPostgresStore(db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to prepare delete statement")
	})
}

func TestPostgresStore_Get(t *testing.T) {
	t.Run("existing_key", func(t *testing.T) {
		store, mock, cleanup := newMockedStore(t)
		defer cleanup()

		mock.ExpectQuery(regexp.QuoteMeta(getSQL)).
			WithArgs("access_token").
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("abc"))

		value, ok, err := store.Get(context.Background(), "access_token")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "abc", value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing_key", func(t *testing.T) {
		store, mock, cleanup := newMockedStore(t)
		defer cleanup()

		mock.ExpectQuery(regexp.QuoteMeta(getSQL)).
			WithArgs("refresh_token").
			WillReturnError(sql.ErrNoRows)

		value, ok, err := store.Get(context.Background(), "refresh_token")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, value)
	})

	t.Run("database_error", func(t *testing.T) {
		store, mock, cleanup := newMockedStore(t)
		defer cleanup()

		mock.ExpectQuery(regexp.QuoteMeta(getSQL)).
			WithArgs("access_token").
			WillReturnError(sql.ErrConnDone)

		_, _, err := store.Get(context.Background(), "access_token")
		require.Error(t, err)
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})
}

func TestPostgresStore_SetMany(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("writes_all_keys_in_one_transaction", func(t *testing.T) {
		store, mock, cleanup := newMockedStore(t)
		defer cleanup()
		store.now = func() time.Time { return fixed }

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
			WithArgs("access_token", "a", fixed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
			WithArgs("refresh_token", "r", fixed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.SetMany(context.Background(), map[string]string{
			"refresh_token": "r",
			"access_token":  "a",
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls_back_on_partial_failure", func(t *testing.T) {
		store, mock, cleanup := newMockedStore(t)
		defer cleanup()
		store.now = func() time.Time { return fixed }

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
			WithArgs("access_token", "a", fixed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
			WithArgs("refresh_token", "r", fixed).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := store.SetMany(context.Background(), map[string]string{
			"access_token":  "a",
			"refresh_token": "r",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to write refresh_token")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty_input_is_noop", func(t *testing.T) {
		store, mock, cleanup := newMockedStore(t)
		defer cleanup()

		require.NoError(t, store.SetMany(context.Background(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_DeleteMany(t *testing.T) {
	t.Run("single_statement", func(t *testing.T) {
		store, mock, cleanup := newMockedStore(t)
		defer cleanup()

		mock.ExpectExec(regexp.QuoteMeta(deleteSQL)).
			WithArgs(pq.Array([]string{"access_token", "refresh_token"})).
			WillReturnResult(sqlmock.NewResult(0, 2))

		err := store.DeleteMany(context.Background(), "access_token", "refresh_token")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no_keys_is_noop", func(t *testing.T) {
		store, mock, cleanup := newMockedStore(t)
		defer cleanup()

		require.NoError(t, store.DeleteMany(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Keys(t *testing.T) {
	store, mock, cleanup := newMockedStore(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(keysSQL)).
		WithArgs(`currentProfileId\_%`).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).
			AddRow("currentProfileId_1").
			AddRow("currentProfileId_2"))

	keys, err := store.Keys(context.Background(), "currentProfileId_")
	require.NoError(t, err)
	assert.Equal(t, []string{"currentProfileId_1", "currentProfileId_2"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(schemaSQL)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
