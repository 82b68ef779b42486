// Package sqlkv implements store.Store on a plain *sql.DB. It serves
// callers that already own a database/sql handle (modernc SQLite, pgx
// stdlib) instead of a grove.DB.
package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/credits/store"
)

// Dialect selects placeholder style and DDL.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DefaultTable is the table Migrate creates.
const DefaultTable = "credits_kv"

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// Option configures a Store.
type Option func(*Store)

// WithTable overrides DefaultTable.
func WithTable(name string) Option {
	return func(s *Store) { s.table = name }
}

// New wraps db. Close closes it.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) Migrate(ctx context.Context) error {
	valueType, intType := "TEXT", "INTEGER"
	if s.dialect == Postgres {
		intType = "BIGINT"
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    key         TEXT PRIMARY KEY,
    value       %s NOT NULL,
    version     %s NOT NULL,
    updated_at  %s NOT NULL
)`, s.table, valueType, intType, intType)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("credits/sqlkv: migrate: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*store.Record, error) {
	q := s.rebind("SELECT value, version, updated_at FROM " + s.table + " WHERE key = ?")

	var (
		value   string
		version int64
		updated int64
	)
	err := s.db.QueryRowContext(ctx, q, key).Scan(&value, &version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("credits/sqlkv: get %s: %w", key, err)
	}
	return &store.Record{
		Key:       key,
		Value:     []byte(value),
		Version:   version,
		UpdatedAt: time.Unix(0, updated).UTC(),
	}, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	stamp := time.Now().UnixNano()

	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		q := s.rebind("INSERT INTO " + s.table + " (key, value, version, updated_at) VALUES (?, ?, 1, ?) ON CONFLICT (key) DO NOTHING")
		res, err = s.db.ExecContext(ctx, q, key, string(value), stamp)
	} else {
		q := s.rebind("UPDATE " + s.table + " SET value = ?, version = version + 1, updated_at = ? WHERE key = ? AND version = ?")
		res, err = s.db.ExecContext(ctx, q, string(value), stamp, key, expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("credits/sqlkv: put %s: %w", key, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("credits/sqlkv: put %s: %w", key, err)
	}
	if rows == 0 {
		return 0, store.ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	q := s.rebind("DELETE FROM " + s.table + " WHERE key = ?")
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("credits/sqlkv: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
