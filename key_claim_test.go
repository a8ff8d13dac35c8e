package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-accounts"
)

// consumeAfter loads the holder of key, lets a competing writer clear
// the key column, then tries to consume the key with the stale row.
func consumeAfter(t *testing.T, f *fixture, column string, load func(context.Context, bun.Tx) (*accounts.User, error), claim accounts.KeyClaim) error {
	t.Helper()
	return f.store.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := load(ctx, tx)
		require.NoError(t, err)

		_, err = tx.NewUpdate().
			Model((*accounts.User)(nil)).
			Set("? = NULL", bun.Ident(column)).
			Where("id = ?", user.ID).
			Exec(ctx)
		require.NoError(t, err)

		user.Activated = true
		_, err = f.store.Users().ConsumeKeyTx(ctx, tx, user, claim)
		return err
	})
}

func TestConsumeActivationKeyLosesToEarlierClaim(t *testing.T) {
	f := newFixture(t, whitelistPolicy("openinstitute.org"))
	user := f.register(t, "alice", "alice@openinstitute.org", accounts.LicenseAcademic)
	key := *user.ActivationKey

	err := consumeAfter(t, f, "activation_key", func(ctx context.Context, tx bun.Tx) (*accounts.User, error) {
		return f.store.Users().GetByActivationKeyTx(ctx, tx, key)
	}, accounts.ActivationKeyClaim(key))
	assert.True(t, accounts.IsNotFound(err))

	assert.False(t, f.reload(t, user).Activated, "the losing claim is rolled back")
}

func TestConsumeResetKeyLosesToEarlierClaim(t *testing.T) {
	f := newFixture(t, whitelistPolicy("openinstitute.org"))
	activeUser(t, f, "alice", "alice@openinstitute.org")
	withKey, err := f.lifecycle.GenerateResetKey(context.Background(), "alice@openinstitute.org")
	require.NoError(t, err)
	key := *withKey.ResetKey

	err = consumeAfter(t, f, "reset_key", func(ctx context.Context, tx bun.Tx) (*accounts.User, error) {
		return f.store.Users().GetByResetKeyTx(ctx, tx, key)
	}, accounts.ResetKeyClaim(key))
	assert.True(t, accounts.IsNotFound(err))
}

func TestConsumeKeyClaimsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, whitelistPolicy("openinstitute.org"))
	user := f.register(t, "alice", "alice@openinstitute.org", accounts.LicenseAcademic)
	key := *user.ActivationKey

	consume := func() error {
		return f.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			found, err := f.store.Users().GetByIDTx(ctx, tx, user.ID)
			if err != nil {
				return err
			}
			found.ActivationKey = nil
			_, err = f.store.Users().ConsumeKeyTx(ctx, tx, found, accounts.ActivationKeyClaim(key))
			return err
		})
	}
	require.NoError(t, consume())
	assert.True(t, accounts.IsNotFound(consume()))
	assert.True(t, accounts.IsNotFound(f.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := f.store.Users().ConsumeKeyTx(ctx, tx, user, accounts.KeyClaim{})
		return err
	})))
}

func TestConsumeTrialKeyLosesToEarlierClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, whitelistPolicy("openinstitute.org"))
	activeUser(t, f, "alice", "alice@openinstitute.org")
	_, started, err := f.lifecycle.InitiateTrial(ctx, "alice")
	require.NoError(t, err)
	key := started.TrialAccount.Activation.Key
	require.NotEmpty(t, key)

	err = f.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		details, err := f.store.Details().GetByTrialKeyTx(ctx, tx, key)
		require.NoError(t, err)

		_, err = tx.NewUpdate().
			Model((*accounts.UserDetails)(nil)).
			Set("trial_activation_key = NULL").
			Where("id = ?", details.ID).
			Exec(ctx)
		require.NoError(t, err)

		_, err = f.store.Details().ConsumeTrialKeyTx(ctx, tx, details, key)
		return err
	})
	assert.True(t, accounts.IsNotFound(err))

	_, err = f.lifecycle.FinishTrial(ctx, key)
	require.NoError(t, err, "the key is still claimable after the rollback")
	_, err = f.lifecycle.FinishTrial(ctx, key)
	assert.True(t, accounts.IsNotFound(err))
}
