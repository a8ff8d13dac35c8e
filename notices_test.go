package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoticeDeliverRoutesByKind(t *testing.T) {
	user := &accounts.User{Login: "alice"}
	exp := testNow.AddDate(0, 0, 90)
	notifier := &recordingNotifier{}

	notices := []accounts.Notice{
		{Kind: accounts.NoticeActivationEmail, User: user},
		{Kind: accounts.NoticePasswordReset, User: user},
		{Kind: accounts.NoticeApproved, User: user},
		{Kind: accounts.NoticeLicenseAutoCorrected, User: user, OriginalLicense: accounts.LicenseHospital},
		{Kind: accounts.NoticeTrialAccepted, User: user, TrialExpiration: exp},
		{Kind: accounts.NoticeManualReview, User: user, Flags: accounts.ReviewFlags{Embargoed: true}},
		{Kind: accounts.NoticeTrialActivationLink, User: user},
		{Kind: accounts.NoticeAccountCreated, User: user},
		{Kind: accounts.NoticeVerifyEmail, User: user},
	}
	for _, n := range notices {
		require.NoError(t, n.Deliver(context.Background(), notifier))
	}

	sent := notifier.Sent()
	require.Len(t, sent, len(notices))
	for i, n := range notices {
		assert.Equal(t, n.Kind, sent[i].Kind)
	}
	assert.Equal(t, accounts.LicenseHospital, sent[3].OriginalLicense)
	assert.Equal(t, exp, sent[4].TrialExpiration)
	assert.True(t, sent[5].Flags.Embargoed)

	err := accounts.Notice{Kind: "carrier_pigeon", User: user}.Deliver(context.Background(), notifier)
	assert.Error(t, err)
}

func TestAsyncDispatcherDelivers(t *testing.T) {
	notifier := &recordingNotifier{}
	dispatcher := accounts.NewAsyncDispatcher(notifier, nil)

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Dispatch(ctx, []accounts.Notice{
		{Kind: accounts.NoticeApproved, User: &accounts.User{Login: "alice"}},
		{Kind: accounts.NoticeAccountCreated, User: &accounts.User{Login: "erin"}},
	})
	cancel()
	dispatcher.Dispatch(ctx, nil)
	dispatcher.Wait()

	assert.Equal(t, []accounts.NoticeKind{
		accounts.NoticeApproved,
		accounts.NoticeAccountCreated,
	}, notifier.Kinds())
}

func TestLifecycleWithAsyncDispatcher(t *testing.T) {
	notifier := &recordingNotifier{}
	dispatcher := accounts.NewAsyncDispatcher(notifier, nil)
	f := newFixture(t, accounts.DefaultPolicy(), accounts.WithNoticeDispatcher(dispatcher))

	f.register(t, "bob", "bob@acme.com", accounts.LicenseCommercial)
	dispatcher.Wait()

	assert.Equal(t, []accounts.NoticeKind{accounts.NoticeActivationEmail}, notifier.Kinds())
}

func TestFailedOperationSendsNoNotice(t *testing.T) {
	f := newFixture(t, accounts.DefaultPolicy())
	f.register(t, "bob", "bob@acme.com", accounts.LicenseCommercial)
	before := len(f.notifier.Sent())

	_, err := f.lifecycle.Register(context.Background(), accounts.RegisterUserMessage{
		Login:       "bob",
		Email:       "robert@acme.com",
		Password:    "secret-password",
		LicenseType: accounts.LicenseCommercial,
	})
	require.Error(t, err)
	assert.Len(t, f.notifier.Sent(), before)
}

func TestLogNotifierNeverFails(t *testing.T) {
	n := accounts.LogNotifier{}
	user := &accounts.User{Login: "alice"}

	assert.NoError(t, n.SendTrialAcceptanceConfirmation(context.Background(), user, time.Now()))
	assert.NoError(t, n.SendManualReviewNotice(context.Background(), nil, nil, accounts.ReviewFlags{}))
}
