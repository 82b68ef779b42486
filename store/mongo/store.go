// Package mongo implements store.Store on MongoDB via Grove ORM. The record
// key is the document _id; a versioned update only matches the document
// while it still carries the expected version.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/credits/store"
)

const colRecords = "credits_kv"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the record indexes.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "_id", Value: 1}, {Key: "version", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}, Options: options.Index().SetSparse(true)},
	}
	if _, err := s.mdb.Collection(colRecords).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("credits/mongo: migrate %s indexes: %w", colRecords, err)
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
	var m recordModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get %s: %w", key, err)
	}
	return fromRecordModel(&m), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	t := now()
	if expectedVersion == 0 {
		m := &recordModel{Key: key, Value: string(value), Version: 1, CreatedAt: t, UpdatedAt: t}
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return 0, store.ErrVersionConflict
			}
			return 0, fmt.Errorf("credits/mongo: insert %s: %w", key, err)
		}
		return 1, nil
	}

	res, err := s.mdb.NewUpdate((*recordModel)(nil)).
		Filter(bson.M{"_id": key, "version": expectedVersion}).
		Set("value", string(value)).
		Set("version", expectedVersion+1).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("credits/mongo: update %s: %w", key, err)
	}
	if res.MatchedCount() == 0 {
		return 0, store.ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.mdb.NewDelete((*recordModel)(nil)).
		Filter(bson.M{"_id": key}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: delete %s: %w", key, err)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
