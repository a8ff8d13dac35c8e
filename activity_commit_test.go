package accounts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-accounts"
)

// brokenTrialStore fails the final write of a trial activation
type brokenTrialStore struct {
	accounts.CredentialStore
}

func (s brokenTrialStore) Details() accounts.Details {
	return brokenDetails{s.CredentialStore.Details()}
}

type brokenDetails struct {
	accounts.Details
}

func (brokenDetails) ConsumeTrialKeyTx(context.Context, bun.IDB, *accounts.UserDetails, string) (*accounts.UserDetails, error) {
	return nil, errors.New("disk full")
}

func TestActivityDroppedOnRollback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, whitelistPolicy("openinstitute.org"))
	user := activeUser(t, f, "alice", "alice@openinstitute.org")
	_, started, err := f.lifecycle.InitiateTrial(ctx, "alice")
	require.NoError(t, err)
	key := started.TrialAccount.Activation.Key
	before := f.tokensOf(t, "alice")
	state := accounts.StateOf(f.reload(t, user))

	sink := &recordingSink{}
	broken := accounts.NewLifecycle(brokenTrialStore{f.store},
		accounts.WithClock(f.clock.Now),
		accounts.WithPolicy(whitelistPolicy("openinstitute.org")),
		accounts.WithPasswordHasher(accounts.NewBcryptHasher(bcrypt.MinCost)),
		accounts.WithNoticeDispatcher(accounts.SyncDispatcher{Notifier: f.notifier}),
		accounts.WithActivitySink(sink),
	)

	_, err = broken.FinishTrial(ctx, key)
	require.Error(t, err)

	assert.Empty(t, sink.Types(), "rolled back transitions and token writes are not reported")
	assert.Equal(t, before, f.tokensOf(t, "alice"))
	assert.Equal(t, state, accounts.StateOf(f.reload(t, user)))

	_, err = f.lifecycle.FinishTrial(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, f.sink.Types(), accounts.ActivityEventTrialActivated)
}
