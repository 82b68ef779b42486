// Package sqlite implements store.Store on SQLite via Grove ORM. Versions
// are checked in the WHERE clause of the UPDATE, so a lost race shows up as
// zero affected rows.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/credits/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the credits_kv table using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("credits/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("credits/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (*store.Record, error) {
	m := new(recordModel)
	err := s.sdb.NewSelect(m).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("credits/sqlite: get %s: %w", key, err)
	}
	return fromRecordModel(m), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	t := now()
	if expectedVersion == 0 {
		m := &recordModel{Key: key, Value: string(value), Version: 1, CreatedAt: t, UpdatedAt: t}
		res, err := s.sdb.NewInsert(m).
			OnConflict("(key) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("credits/sqlite: insert %s: %w", key, err)
		}
		if err := affectedOne(res); err != nil {
			return 0, err
		}
		return 1, nil
	}

	res, err := s.sdb.NewUpdate((*recordModel)(nil)).
		Set("value = ?", string(value)).
		Set("version = ?", expectedVersion+1).
		Set("updated_at = ?", t).
		Where("key = ?", key).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("credits/sqlite: update %s: %w", key, err)
	}
	if err := affectedOne(res); err != nil {
		return 0, err
	}
	return expectedVersion + 1, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.sdb.NewDelete((*recordModel)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/sqlite: delete %s: %w", key, err)
	}
	return nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

// affectedOne maps a write that touched no row to a version conflict.
func affectedOne(res rowsAffected) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrVersionConflict
	}
	return nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
