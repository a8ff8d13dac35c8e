package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeysNormalizeIdentifiers(t *testing.T) {
	assert.Equal(t, LoginCacheKey("alice"), LoginCacheKey(" Alice "))
	assert.Equal(t, EmailCacheKey("alice@openinstitute.org"), EmailCacheKey("ALICE@openinstitute.org\t"))
	assert.NotEqual(t, LoginCacheKey("alice"), EmailCacheKey("alice"))
}

func TestInvalidatorSkipsStaleFill(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryUserCache()
	inv := newInvalidator(cache)
	key := LoginCacheKey("alice")

	// a reader loads the row, then a writer commits and evicts before the
	// reader fills the cache
	gen := inv.generation()
	inv.flush(ctx, key)
	inv.setIfFresh(ctx, key, &User{Login: "alice"}, gen)

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	gen = inv.generation()
	inv.setIfFresh(ctx, key, &User{Login: "alice"}, gen)
	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Login)
}

func TestInvalidatorDefersEvictionInsideTransaction(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryUserCache()
	inv := newInvalidator(cache)
	key := LoginCacheKey("alice")
	cache.Set(ctx, key, &User{Login: "alice"})

	effects := &txEffects{}
	inv.evict(context.WithValue(ctx, txEffectsKey{}, effects), key)
	assert.Equal(t, 1, cache.Len(), "eviction waits for the transaction to end")

	keys, _ := effects.drain()
	inv.flush(ctx, keys...)
	assert.Zero(t, cache.Len())
}
