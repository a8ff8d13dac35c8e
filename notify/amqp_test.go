package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/notify"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func decode(t *testing.T, p amqp.Publishing) notify.Message {
	t.Helper()
	var msg notify.Message
	require.NoError(t, json.Unmarshal(p.Body, &msg))
	return msg
}

func TestActivationEmailCarriesKey(t *testing.T) {
	pub := &MockPublisher{}
	var published amqp.Publishing
	pub.On("PublishWithContext", mock.Anything, notify.DefaultExchange, "activation_email", false, false, mock.Anything).
		Run(func(args mock.Arguments) {
			published = args.Get(5).(amqp.Publishing)
		}).
		Return(nil).Once()

	key := "activation-key"
	user := &accounts.User{
		ID:            uuid.New(),
		Login:         "alice",
		Email:         "alice@openinstitute.org",
		LangKey:       "en",
		ActivationKey: &key,
	}

	require.NoError(t, notify.New(pub).SendActivationEmail(context.Background(), user))
	pub.AssertExpectations(t)

	assert.Equal(t, "application/json", published.ContentType)
	assert.Equal(t, amqp.Persistent, published.DeliveryMode)
	assert.Equal(t, "activation_email", published.Type)
	assert.NotEmpty(t, published.MessageId)

	msg := decode(t, published)
	assert.Equal(t, user.ID.String(), msg.UserID)
	assert.Equal(t, "alice@openinstitute.org", msg.Email)
	assert.Equal(t, "activation-key", msg.ActivationKey)
}

func TestManualReviewCarriesFlagsAndDetails(t *testing.T) {
	pub := &MockPublisher{}
	var published amqp.Publishing
	pub.On("PublishWithContext", mock.Anything, "custom", "manual_review", false, false, mock.Anything).
		Run(func(args mock.Arguments) {
			published = args.Get(5).(amqp.Publishing)
		}).
		Return(nil).Once()

	n := notify.New(pub, notify.WithExchange("custom"), notify.WithAppID("accountsd"))
	details := &accounts.UserDetails{Company: "Acme", Country: "Atlantis"}
	flags := accounts.ReviewFlags{
		TrialInitiated: true,
		Clarification:  accounts.ClarifyAcademicForProfit,
		Embargoed:      true,
	}

	require.NoError(t, n.SendManualReviewNotice(context.Background(), &accounts.User{Login: "bob"}, details, flags))
	pub.AssertExpectations(t)

	assert.Equal(t, "accountsd", published.AppId)
	msg := decode(t, published)
	require.NotNil(t, msg.Review)
	assert.True(t, msg.Review.TrialInitiated)
	assert.True(t, msg.Review.Embargoed)
	assert.Equal(t, accounts.ClarifyAcademicForProfit, msg.Review.Clarification)
	assert.Equal(t, "Acme", msg.Company)
}

func TestTrialNotices(t *testing.T) {
	pub := &MockPublisher{}
	var bodies []amqp.Publishing
	pub.On("PublishWithContext", mock.Anything, notify.DefaultExchange, mock.Anything, false, false, mock.Anything).
		Run(func(args mock.Arguments) {
			bodies = append(bodies, args.Get(5).(amqp.Publishing))
		}).
		Return(nil).Twice()

	n := notify.New(pub)
	user := &accounts.User{Login: "carol"}
	exp := time.Date(2024, 8, 30, 12, 0, 0, 0, time.UTC)
	details := &accounts.UserDetails{TrialAccount: &accounts.TrialAccount{
		Activation: accounts.TrialActivation{Key: "trial-key"},
	}}

	require.NoError(t, n.SendTrialActivationLink(context.Background(), user, details))
	require.NoError(t, n.SendTrialAcceptanceConfirmation(context.Background(), user, exp))
	require.Len(t, bodies, 2)

	assert.Equal(t, "trial-key", decode(t, bodies[0]).TrialKey)
	accepted := decode(t, bodies[1])
	require.NotNil(t, accepted.TrialExpiration)
	assert.True(t, accepted.TrialExpiration.Equal(exp))
}

func TestPublishFailureIsReported(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, false, false, mock.Anything).
		Return(errors.New("channel closed")).Once()

	err := notify.New(pub).SendApprovalNotice(context.Background(), &accounts.User{Login: "bob"})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryOperation, richErr.Category)
}

func TestNotifierThroughDispatcher(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("PublishWithContext", mock.Anything, notify.DefaultExchange, "license_auto_corrected", false, false, mock.Anything).
		Return(nil).Once()

	dispatcher := accounts.SyncDispatcher{Notifier: notify.New(pub)}
	dispatcher.Dispatch(context.Background(), []accounts.Notice{{
		Kind:            accounts.NoticeLicenseAutoCorrected,
		User:            &accounts.User{Login: "dave"},
		OriginalLicense: accounts.LicenseCommercial,
	}})
	pub.AssertExpectations(t)
}
