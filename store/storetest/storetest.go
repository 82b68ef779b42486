// Package storetest is the behavioural suite every store.Store backend runs.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/store"
)

// Factory returns an empty, migrated store.
type Factory func(t *testing.T) store.Store

// Run exercises the store.Store contract against fresh stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "account/nobody@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("CreateThenUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v, err := s.Put(ctx, "k", []byte(`{"n":1}`), 0)
		require.NoError(t, err)
		require.Equal(t, int64(1), v)

		rec, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"n":1}`), rec.Value)
		assert.Equal(t, int64(1), rec.Version)

		v, err = s.Put(ctx, "k", []byte(`{"n":2}`), 1)
		require.NoError(t, err)
		require.Equal(t, int64(2), v)

		rec, err = s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"n":2}`), rec.Value)
	})

	t.Run("Conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Put(ctx, "k", []byte("a"), 0)
		require.NoError(t, err)

		_, err = s.Put(ctx, "k", []byte("b"), 0)
		require.ErrorIs(t, err, store.ErrVersionConflict, "create over an existing key")

		_, err = s.Put(ctx, "k", []byte("b"), 7)
		require.ErrorIs(t, err, store.ErrVersionConflict, "stale version")

		_, err = s.Put(ctx, "other", []byte("b"), 3)
		require.ErrorIs(t, err, store.ErrVersionConflict, "update of a missing key")

		rec, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), rec.Value)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Put(ctx, "k", []byte("a"), 0)
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "k"))
		require.NoError(t, s.Delete(ctx, "k"))

		_, err = s.Get(ctx, "k")
		require.ErrorIs(t, err, store.ErrNotFound)

		v, err := s.Put(ctx, "k", []byte("again"), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v, err := store.Overwrite(ctx, s, store.SessionKey("default"), []byte("x"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		v, err = store.Overwrite(ctx, s, store.SessionKey("default"), []byte("y"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)
	})

	t.Run("ConcurrentIncrements", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const workers = 8

		_, err := s.Put(ctx, "counter", []byte("0"), 0)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- increment(ctx, s, "counter")
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		rec, err := s.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(workers), string(rec.Value))
		assert.Equal(t, int64(workers+1), rec.Version)
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})
}

func increment(ctx context.Context, s store.Store, key string) error {
	for {
		rec, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(string(rec.Value))
		if err != nil {
			return err
		}
		_, err = s.Put(ctx, key, []byte(strconv.Itoa(n+1)), rec.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		return err
	}
}
