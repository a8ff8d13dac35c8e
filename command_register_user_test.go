package accounts_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCreatesPendingUser(t *testing.T) {
	f := newFixture(t, whitelistPolicy("openinstitute.org"))

	user, err := f.lifecycle.Register(context.Background(), accounts.RegisterUserMessage{
		Login:       "Alice",
		Email:       "Alice@OpenInstitute.org",
		Password:    "secret-password",
		LicenseType: accounts.LicenseAcademic,
		ProfileFields: accounts.ProfileFields{
			FirstName: "Alice",
			Company:   "Open Institute",
			Country:   "Norway",
			Phone:     "+1 650 253 0000",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", user.Login)
	assert.Equal(t, "alice@openinstitute.org", user.Email)
	assert.False(t, user.Activated)
	require.NotNil(t, user.ActivationKey)
	assert.NotEmpty(t, *user.ActivationKey)
	assert.Equal(t, []string{accounts.AuthorityUser}, user.Authorities)
	assert.Equal(t, accounts.DefaultLanguage, user.LangKey)
	assert.Equal(t, accounts.StatePendingVerification, accounts.StateOf(user))
	assert.NotEqual(t, "secret-password", user.PasswordHash)
	assert.True(t, user.CreatedAt.Equal(testNow))

	details := f.details(t, user)
	require.NotNil(t, details)
	assert.Equal(t, "Open Institute", details.Company)
	assert.Equal(t, "+16502530000", details.Phone)

	assert.Equal(t, []accounts.NoticeKind{accounts.NoticeActivationEmail}, f.notifier.Kinds())
	assert.Contains(t, f.sink.Types(), accounts.ActivityEventRegistered)
	assert.Empty(t, f.tokensOf(t, "alice"))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := newFixture(t, accounts.DefaultPolicy())
	f.register(t, "alice", "alice@openinstitute.org", accounts.LicenseAcademic)

	_, err := f.lifecycle.Register(context.Background(), accounts.RegisterUserMessage{
		Login:       "someone",
		Email:       "ALICE@openinstitute.org",
		Password:    "secret-password",
		LicenseType: accounts.LicenseAcademic,
	})
	require.Error(t, err)
	assert.True(t, accounts.IsDuplicateEmail(err))

	_, err = f.lifecycle.Register(context.Background(), accounts.RegisterUserMessage{
		Login:       "ALICE",
		Email:       "other@openinstitute.org",
		Password:    "secret-password",
		LicenseType: accounts.LicenseAcademic,
	})
	require.Error(t, err)
	assert.True(t, accounts.IsDuplicateLogin(err))

	assert.Len(t, f.notifier.Sent(), 1)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, accounts.DefaultPolicy())

	tests := []struct {
		name string
		msg  accounts.RegisterUserMessage
	}{
		{
			name: "bad email",
			msg:  accounts.RegisterUserMessage{Login: "bob", Email: "not-an-email", Password: "secret", LicenseType: accounts.LicenseAcademic},
		},
		{
			name: "short password",
			msg:  accounts.RegisterUserMessage{Login: "bob", Email: "bob@acme.com", Password: "abc", LicenseType: accounts.LicenseAcademic},
		},
		{
			name: "unknown license",
			msg:  accounts.RegisterUserMessage{Login: "bob", Email: "bob@acme.com", Password: "secret", LicenseType: "FREE"},
		},
		{
			name: "login with spaces",
			msg:  accounts.RegisterUserMessage{Login: "bob smith", Email: "bob@acme.com", Password: "secret", LicenseType: accounts.LicenseAcademic},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.lifecycle.Register(context.Background(), tt.msg)
			require.Error(t, err)
			assert.True(t, accounts.IsValidationError(err))
		})
	}
	assert.Empty(t, f.notifier.Sent())
}

func TestRegisterRejectsInvalidPhone(t *testing.T) {
	f := newFixture(t, accounts.DefaultPolicy())

	_, err := f.lifecycle.Register(context.Background(), accounts.RegisterUserMessage{
		Login:         "bob",
		Email:         "bob@acme.com",
		Password:      "secret",
		LicenseType:   accounts.LicenseCommercial,
		ProfileFields: accounts.ProfileFields{Phone: "12"},
	})
	require.Error(t, err)
	assert.True(t, accounts.IsValidationError(err))

	_, err = f.lifecycle.UserByLogin(context.Background(), "bob")
	assert.True(t, accounts.IsNotFound(err))
}

func TestRegisterWithHashidUserIDs(t *testing.T) {
	f := newFixture(t, accounts.DefaultPolicy(), accounts.WithHashidUserIDs(true))

	first := f.register(t, "alice", "alice@openinstitute.org", accounts.LicenseAcademic)
	require.NoError(t, f.lifecycle.DeleteUser(context.Background(), "alice"))
	second := f.register(t, "alice", "alice@openinstitute.org", accounts.LicenseAcademic)

	assert.Equal(t, first.ID, second.ID)
}
