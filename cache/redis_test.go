package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failGet error
	failDel error
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return redis.NewStringResult("", f.failGet)
	}
	val, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDel != nil {
		return redis.NewIntResult(0, f.failDel)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisCacheRoundTripKeepsHiddenFields(t *testing.T) {
	client := newFakeClient()
	c := cache.New(client, cache.WithPrefix("test:"), cache.WithTTL(time.Minute))

	key := "activation"
	reset := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := &accounts.User{
		ID:            uuid.New(),
		Login:         "alice",
		Email:         "alice@openinstitute.org",
		PasswordHash:  "$2a$hash",
		ActivationKey: &key,
		ResetDate:     &reset,
		Authorities:   []string{accounts.AuthorityUser},
		LicenseType:   accounts.LicenseAcademic,
	}

	cacheKey := accounts.LoginCacheKey("alice")
	c.Set(context.Background(), cacheKey, user)
	assert.Contains(t, client.data, "test:"+cacheKey)
	assert.Equal(t, time.Minute, client.ttls["test:"+cacheKey])

	got, ok := c.Get(context.Background(), cacheKey)
	require.True(t, ok)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "$2a$hash", got.PasswordHash)
	require.NotNil(t, got.ActivationKey)
	assert.Equal(t, "activation", *got.ActivationKey)
	assert.True(t, got.ResetDate.Equal(reset))
	assert.Equal(t, accounts.StatePendingVerification, accounts.StateOf(got))
}

func TestRedisCacheMissAndEvict(t *testing.T) {
	client := newFakeClient()
	c := cache.New(client)

	_, ok := c.Get(context.Background(), "missing")
	assert.False(t, ok)

	c.Set(context.Background(), "a", &accounts.User{Login: "a"})
	c.Set(context.Background(), "b", &accounts.User{Login: "b"})
	c.Evict(context.Background(), "a", "b")
	c.Evict(context.Background())
	assert.Empty(t, client.data)
}

func TestRedisCacheFailuresAreMisses(t *testing.T) {
	client := newFakeClient()
	c := cache.New(client)

	client.data["accounts:corrupt"] = "{not json"
	_, ok := c.Get(context.Background(), "corrupt")
	assert.False(t, ok)

	client.failGet = errors.New("connection refused")
	_, ok = c.Get(context.Background(), "corrupt")
	assert.False(t, ok)

	client.failDel = errors.New("connection refused")
	assert.NotPanics(t, func() {
		c.Evict(context.Background(), "corrupt")
	})
}
