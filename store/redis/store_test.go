package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/store"
	credisstore "github.com/xraph/credits/store/redis"
	"github.com/xraph/credits/store/storetest"
)

func newStore(t *testing.T) (*credisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := credisstore.New(client, credisstore.WithPrefix("test:"))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newStore(t)
		return s
	})
}

func TestRedisLayout(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, store.AccountKey("ada@example.com"), []byte(`{}`), 0)
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:account/ada@example.com"))
	assert.Equal(t, "1", mr.HGet("test:account/ada@example.com", "version"))
	assert.Equal(t, "{}", mr.HGet("test:account/ada@example.com", "value"))
}

func TestRedisUnavailable(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	_, err = s.Put(context.Background(), "k", []byte("v"), 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrVersionConflict)
}
