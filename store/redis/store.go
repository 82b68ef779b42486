// Package redis implements store.Store on Redis. Each key is a hash holding
// the value, its version and the update time; Put is an optimistic
// WATCH/MULTI transaction on that hash.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/credits/store"
)

const (
	fieldValue   = "value"
	fieldVersion = "version"
	fieldUpdated = "updated_at"

	// DefaultPrefix namespaces every key.
	DefaultPrefix = "credits:"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	client redis.UniversalClient
	prefix string
}

// Option configures the redis store.
type Option func(*Store)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New wraps an existing client. Close closes it.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying client for direct access.
func (s *Store) Client() redis.UniversalClient { return s.client }

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) (*store.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("credits/redis: get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	return decode(key, fields)
}

func decode(key string, fields map[string]string) (*store.Record, error) {
	version, err := strconv.ParseInt(fields[fieldVersion], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("credits/redis: %s: bad version %q: %w", key, fields[fieldVersion], err)
	}
	rec := &store.Record{Key: key, Value: []byte(fields[fieldValue]), Version: version}
	if nanos, err := strconv.ParseInt(fields[fieldUpdated], 10, 64); err == nil {
		rec.UpdatedAt = time.Unix(0, nanos).UTC()
	}
	return rec, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	k := s.key(key)
	var next int64

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var cur int64
		raw, err := tx.HGet(ctx, k, fieldVersion).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if cur, err = strconv.ParseInt(raw, 10, 64); err != nil {
				return fmt.Errorf("bad version %q: %w", raw, err)
			}
		}
		if cur != expectedVersion {
			return store.ErrVersionConflict
		}

		next = cur + 1
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k,
				fieldValue, value,
				fieldVersion, next,
				fieldUpdated, time.Now().UnixNano(),
			)
			return nil
		})
		return err
	}, k)

	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		return 0, store.ErrVersionConflict
	default:
		return 0, fmt.Errorf("credits/redis: put %s: %w", key, err)
	}
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("credits/redis: delete %s: %w", key, err)
	}
	return nil
}

// Migrate is a no-op; hashes need no schema.
func (s *Store) Migrate(context.Context) error { return nil }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
