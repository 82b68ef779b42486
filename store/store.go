// Package store defines the key-value persistence contract of the ledger.
//
// Values are opaque bytes (the ledger writes JSON). Every record carries a
// version that starts at 1 and grows by one on each successful Put, which
// lets several ledger instances share one backend without double-spending:
// a Put against a stale version fails with ErrVersionConflict and the caller
// re-reads and re-applies its change.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("store: key not found")
	ErrVersionConflict = errors.New("store: version conflict")
)

// Record is a stored value with its version.
type Record struct {
	Key       string
	Value     []byte
	Version   int64
	UpdatedAt time.Time
}

// Store is the unified storage interface. Backends must be safe for
// concurrent use.
type Store interface {
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) (*Record, error)

	// Put writes value when the stored version equals expectedVersion and
	// returns the new version. expectedVersion 0 means the key must not exist.
	Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// maxOverwriteAttempts bounds Overwrite under heavy contention.
const maxOverwriteAttempts = 8

// Overwrite stores value regardless of the current version.
func Overwrite(ctx context.Context, s Store, key string, value []byte) (int64, error) {
	var err error
	for range maxOverwriteAttempts {
		var expected int64
		rec, getErr := s.Get(ctx, key)
		switch {
		case getErr == nil:
			expected = rec.Version
		case errors.Is(getErr, ErrNotFound):
		default:
			return 0, getErr
		}

		var v int64
		v, err = s.Put(ctx, key, value, expected)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return 0, err
		}
	}
	return 0, err
}

// AccountKey is the key of the account record for a normalized email.
func AccountKey(email string) string { return "account/" + email }

// SessionKey is the key of the session pointer of a profile.
func SessionKey(profile string) string { return "session/" + profile }
