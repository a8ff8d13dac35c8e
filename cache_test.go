package accounts_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserCacheClonesValues(t *testing.T) {
	cache := accounts.NewMemoryUserCache()
	key := "k"
	user := &accounts.User{Login: "alice", Authorities: []string{accounts.AuthorityUser}, ActivationKey: &key}

	cache.Set(context.Background(), accounts.LoginCacheKey("alice"), user)
	user.Authorities[0] = accounts.AuthorityAdmin
	key = "changed"

	got, ok := cache.Get(context.Background(), accounts.LoginCacheKey("ALICE"))
	require.True(t, ok)
	assert.Equal(t, []string{accounts.AuthorityUser}, got.Authorities)
	assert.Equal(t, "k", *got.ActivationKey)

	cache.Evict(context.Background(), accounts.LoginCacheKey("alice"))
	_, ok = cache.Get(context.Background(), accounts.LoginCacheKey("alice"))
	assert.False(t, ok)
}

func TestUserCacheEvictedOnSave(t *testing.T) {
	f := newFixture(t, whitelistPolicy("openinstitute.org"))
	user := f.register(t, "alice", "alice@openinstitute.org", accounts.LicenseAcademic)

	cached, err := f.lifecycle.UserByLogin(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, cached.Activated)
	_, err = f.lifecycle.UserByEmail(context.Background(), "alice@openinstitute.org")
	require.NoError(t, err)
	assert.Equal(t, 2, f.cache.Len())

	_, err = f.lifecycle.Activate(context.Background(), *user.ActivationKey)
	require.NoError(t, err)
	assert.Zero(t, f.cache.Len())

	fresh, err := f.lifecycle.UserByLogin(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, fresh.Activated)
}

func TestUserCacheKeptOnRollback(t *testing.T) {
	f := newFixture(t, whitelistPolicy("openinstitute.org"))
	user := activeUser(t, f, "alice", "alice@openinstitute.org")
	_, details, err := f.lifecycle.InitiateTrial(context.Background(), "alice")
	require.NoError(t, err)
	_, err = f.lifecycle.FinishTrial(context.Background(), details.TrialAccount.Activation.Key)
	require.NoError(t, err)

	regenerated, err := f.lifecycle.RegenerateActivationKey(context.Background(), "alice")
	require.NoError(t, err)

	_, err = f.lifecycle.UserByLogin(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.Len())

	_, err = f.lifecycle.Activate(context.Background(), *regenerated.ActivationKey)
	require.Error(t, err)

	cached, err := f.lifecycle.UserByLogin(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, cached.ID)
	assert.Equal(t, accounts.StateReverificationPending, accounts.StateOf(cached))
}

func TestUserCacheEvictedOnDelete(t *testing.T) {
	f := newFixture(t, accounts.DefaultPolicy())
	f.register(t, "bob", "bob@acme.com", accounts.LicenseCommercial)

	_, err := f.lifecycle.UserByLogin(context.Background(), "bob")
	require.NoError(t, err)

	require.NoError(t, f.lifecycle.DeleteUser(context.Background(), "bob"))

	_, err = f.lifecycle.UserByLogin(context.Background(), "bob")
	assert.True(t, accounts.IsNotFound(err))
}

func TestUserCacheEvictsUnnormalizedLogins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, whitelistPolicy("openinstitute.org"))
	activeUser(t, f, "alice", "alice@openinstitute.org")

	_, err := f.lifecycle.Authenticate(ctx, "Alice ", "secret-password")
	require.NoError(t, err)

	require.NoError(t, f.lifecycle.ChangePassword(ctx, "alice", "secret-password", "another-password"))

	_, err = f.lifecycle.Authenticate(ctx, "Alice ", "secret-password")
	assert.True(t, accounts.IsInvalidCredentials(err), "old password must not survive in the cache")
	_, err = f.lifecycle.Authenticate(ctx, "Alice ", "another-password")
	require.NoError(t, err)

	require.NoError(t, f.lifecycle.DeleteUser(ctx, "alice"))
	_, err = f.lifecycle.Authenticate(ctx, "Alice ", "another-password")
	assert.True(t, accounts.IsInvalidCredentials(err), "deleted users must not be served from the cache")
}
