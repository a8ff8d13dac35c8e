package accounts_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentNotice struct {
	Kind            accounts.NoticeKind
	Login           string
	OriginalLicense accounts.LicenseType
	TrialExpiration time.Time
	Flags           accounts.ReviewFlags
	Details         *accounts.UserDetails
}

// recordingNotifier implements accounts.Notifier
type recordingNotifier struct {
	mu      sync.Mutex
	notices []sentNotice
}

func (r *recordingNotifier) add(n sentNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

func (r *recordingNotifier) Sent() []sentNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentNotice(nil), r.notices...)
}

func (r *recordingNotifier) Kinds() []accounts.NoticeKind {
	var kinds []accounts.NoticeKind
	for _, n := range r.Sent() {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func (r *recordingNotifier) Last() sentNotice {
	sent := r.Sent()
	if len(sent) == 0 {
		return sentNotice{}
	}
	return sent[len(sent)-1]
}

func (r *recordingNotifier) SendActivationEmail(_ context.Context, u *accounts.User) error {
	return r.add(sentNotice{Kind: accounts.NoticeActivationEmail, Login: u.Login})
}

func (r *recordingNotifier) SendPasswordResetEmail(_ context.Context, u *accounts.User) error {
	return r.add(sentNotice{Kind: accounts.NoticePasswordReset, Login: u.Login})
}

func (r *recordingNotifier) SendApprovalNotice(_ context.Context, u *accounts.User) error {
	return r.add(sentNotice{Kind: accounts.NoticeApproved, Login: u.Login})
}

func (r *recordingNotifier) SendAutoCorrectedLicenseNotice(_ context.Context, u *accounts.User, original accounts.LicenseType) error {
	return r.add(sentNotice{Kind: accounts.NoticeLicenseAutoCorrected, Login: u.Login, OriginalLicense: original})
}

func (r *recordingNotifier) SendTrialAcceptanceConfirmation(_ context.Context, u *accounts.User, exp time.Time) error {
	return r.add(sentNotice{Kind: accounts.NoticeTrialAccepted, Login: u.Login, TrialExpiration: exp})
}

func (r *recordingNotifier) SendManualReviewNotice(_ context.Context, u *accounts.User, d *accounts.UserDetails, flags accounts.ReviewFlags) error {
	return r.add(sentNotice{Kind: accounts.NoticeManualReview, Login: u.Login, Details: d, Flags: flags})
}

func (r *recordingNotifier) SendTrialActivationLink(_ context.Context, u *accounts.User, d *accounts.UserDetails) error {
	return r.add(sentNotice{Kind: accounts.NoticeTrialActivationLink, Login: u.Login, Details: d})
}

func (r *recordingNotifier) SendAccountCreated(_ context.Context, u *accounts.User) error {
	return r.add(sentNotice{Kind: accounts.NoticeAccountCreated, Login: u.Login})
}

func (r *recordingNotifier) SendVerifyEmail(_ context.Context, u *accounts.User) error {
	return r.add(sentNotice{Kind: accounts.NoticeVerifyEmail, Login: u.Login})
}

// MockActivitySink implements accounts.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event accounts.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type recordingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, e accounts.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Types() []accounts.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	db        *bun.DB
	store     accounts.CredentialStore
	cache     *accounts.MemoryUserCache
	clock     *fakeClock
	notifier  *recordingNotifier
	sink      *recordingSink
	lifecycle *accounts.Lifecycle
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, accounts.CreateSchema(context.Background(), db))

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func newFixture(t *testing.T, policy accounts.Policy, opts ...accounts.Option) *fixture {
	t.Helper()

	f := &fixture{
		db:       newTestDB(t),
		cache:    accounts.NewMemoryUserCache(),
		clock:    newFakeClock(testNow),
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
	}
	f.store = accounts.NewCredentialStore(f.db, accounts.WithUserCache(f.cache))

	base := []accounts.Option{
		accounts.WithClock(f.clock.Now),
		accounts.WithPolicy(policy),
		accounts.WithPasswordHasher(accounts.NewBcryptHasher(bcrypt.MinCost)),
		accounts.WithNoticeDispatcher(accounts.SyncDispatcher{Notifier: f.notifier}),
		accounts.WithActivitySink(f.sink),
	}
	f.lifecycle = accounts.NewLifecycle(f.store, append(base, opts...)...)
	return f
}

func whitelistPolicy(domains ...string) accounts.Policy {
	p := accounts.DefaultPolicy()
	p.ApprovalDomains = domains
	return p
}

func (f *fixture) register(t *testing.T, login, email string, license accounts.LicenseType) *accounts.User {
	t.Helper()
	user, err := f.lifecycle.Register(context.Background(), accounts.RegisterUserMessage{
		Login:       login,
		Email:       email,
		Password:    "secret-password",
		LicenseType: license,
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) tokensOf(t *testing.T, login string) []*accounts.Token {
	t.Helper()
	tokens, err := f.lifecycle.Tokens().ListForUser(context.Background(), login)
	require.NoError(t, err)
	return tokens
}

func (f *fixture) details(t *testing.T, user *accounts.User) *accounts.UserDetails {
	t.Helper()
	_, details, err := f.lifecycle.UserWithDetails(context.Background(), user.ID)
	require.NoError(t, err)
	return details
}

func (f *fixture) reload(t *testing.T, user *accounts.User) *accounts.User {
	t.Helper()
	fresh, _, err := f.lifecycle.UserWithDetails(context.Background(), user.ID)
	require.NoError(t, err)
	return fresh
}

func ptr[T any](v T) *T {
	return &v
}
