package sqlkv_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/sqlkv"
	"github.com/xraph/credits/store/storetest"
)

func openSQLite(t *testing.T) *sqlkv.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	s := sqlkv.New(db, sqlkv.SQLite)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openSQLite(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestPostgresPlaceholders(t *testing.T) {
	db, mock := newMock(t)
	s := sqlkv.New(db, sqlkv.Postgres)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value, version, updated_at FROM credits_kv WHERE key = $1")).
		WithArgs("account/a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"value", "version", "updated_at"}).AddRow(`{}`, int64(3), int64(0)))

	rec, err := s.Get(context.Background(), "account/a@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Version)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE credits_kv SET value = $1, version = version + 1, updated_at = $2 WHERE key = $3 AND version = $4")).
		WithArgs(`{"x":1}`, sqlmock.AnyArg(), "account/a@example.com", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	v, err := s.Put(context.Background(), "account/a@example.com", []byte(`{"x":1}`), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutZeroRowsIsConflict(t *testing.T) {
	db, mock := newMock(t)
	s := sqlkv.New(db, sqlkv.SQLite, sqlkv.WithTable("kv"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE kv SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.Put(context.Background(), "k", []byte("v"), 2)
	require.ErrorIs(t, err, store.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverErrorsAreWrapped(t *testing.T) {
	db, mock := newMock(t)
	s := sqlkv.New(db, sqlkv.SQLite)
	boom := errors.New("disk I/O error")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value")).WillReturnError(boom)
	_, err := s.Get(context.Background(), "k")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credits_kv")).WillReturnError(boom)
	_, err = s.Put(context.Background(), "k", []byte("v"), 0)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, store.ErrVersionConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}
