// Package postgres implements store.Store on PostgreSQL via Grove ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/credits/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the credits_kv table using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("credits/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("credits/postgres: migration failed: %w", err)
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
	err := s.pg.NewSelect(m).
		Where("key = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("credits/postgres: get %s: %w", key, err)
	}
	return fromRecordModel(m), nil
}

// Put inserts with ON CONFLICT DO NOTHING for new keys and otherwise
// updates only the row still at expectedVersion.
func (s *Store) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	t := now()
	if expectedVersion == 0 {
		m := &recordModel{Key: key, Value: string(value), Version: 1, CreatedAt: t, UpdatedAt: t}
		res, err := s.pg.NewInsert(m).
			OnConflict("(key) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("credits/postgres: insert %s: %w", key, err)
		}
		if err := affectedOne(res); err != nil {
			return 0, err
		}
		return 1, nil
	}

	res, err := s.pg.NewUpdate((*recordModel)(nil)).
		Set("value = $1", string(value)).
		Set("version = $2", expectedVersion+1).
		Set("updated_at = $3", t).
		Where("key = $4", key).
		Where("version = $5", expectedVersion).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("credits/postgres: update %s: %w", key, err)
	}
	if err := affectedOne(res); err != nil {
		return 0, err
	}
	return expectedVersion + 1, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.pg.NewDelete((*recordModel)(nil)).
		Where("key = $1", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/postgres: delete %s: %w", key, err)
	}
	return nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

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

func now() time.Time {
	return time.Now().UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
