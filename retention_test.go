package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveNotActivatedUsers(t *testing.T) {
	f := newFixture(t, whitelistPolicy("openinstitute.org"))

	stale := f.register(t, "stale", "stale@acme.com", accounts.LicenseCommercial)
	reviewed := f.register(t, "bob", "bob@acme.com", accounts.LicenseCommercial)
	_, err := f.lifecycle.Activate(context.Background(), *reviewed.ActivationKey)
	require.NoError(t, err)
	activeUser(t, f, "alice", "alice@openinstitute.org")

	f.clock.Advance(20 * 24 * time.Hour)
	fresh := f.register(t, "fresh", "fresh@acme.com", accounts.LicenseCommercial)

	f.clock.Advance(11 * 24 * time.Hour)
	removed, err := f.lifecycle.RemoveNotActivatedUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = f.lifecycle.UserByID(context.Background(), stale.ID)
	assert.True(t, accounts.IsNotFound(err))

	for _, kept := range []string{"bob", "alice", fresh.Login} {
		_, err := f.lifecycle.UserByLogin(context.Background(), kept)
		assert.NoError(t, err, kept)
	}
	assert.Contains(t, f.sink.Types(), accounts.ActivityEventSwept)

	removed, err = f.lifecycle.RemoveNotActivatedUsers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRetentionSweeperStopsWithContext(t *testing.T) {
	f := newFixture(t, accounts.DefaultPolicy())
	stale := f.register(t, "stale", "stale@acme.com", accounts.LicenseCommercial)
	f.clock.Advance(31 * 24 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := accounts.NewRetentionSweeper(f.lifecycle, time.Hour)

	done := make(chan error, 1)
	go func() {
		done <- sweeper.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, err := f.lifecycle.UserByID(context.Background(), stale.ID)
		return accounts.IsNotFound(err)
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
