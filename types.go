package accounts

import (
	"context"
	"log/slog"
	"time"
)

// Logger is the logging contract used across the package. Arguments after
// msg are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock returns the current time
type Clock func() time.Time

// KeyGenerator produces unguessable single-use keys and throwaway passwords.
type KeyGenerator interface {
	ActivationKey() string
	ResetKey() string
	Password() string
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Notifier delivers account notices (email, chat review channel).
// Implementations are invoked after the owning transaction commits and
// their failures never roll back lifecycle changes.
type Notifier interface {
	SendActivationEmail(ctx context.Context, user *User) error
	SendPasswordResetEmail(ctx context.Context, user *User) error
	SendApprovalNotice(ctx context.Context, user *User) error
	SendAutoCorrectedLicenseNotice(ctx context.Context, user *User, original LicenseType) error
	SendTrialAcceptanceConfirmation(ctx context.Context, user *User, trialExpiration time.Time) error
	SendManualReviewNotice(ctx context.Context, user *User, details *UserDetails, flags ReviewFlags) error
	SendTrialActivationLink(ctx context.Context, user *User, details *UserDetails) error
	SendAccountCreated(ctx context.Context, user *User) error
	SendVerifyEmail(ctx context.Context, user *User) error
}

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

var systemActor = ActorRef{Type: "system"}

func userActor(u *User) ActorRef {
	if u == nil {
		return systemActor
	}
	return ActorRef{ID: u.ID.String(), Type: "user"}
}

type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger adapts a slog.Logger to Logger
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{logger: l}
}

func (s slogLogger) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s slogLogger) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s slogLogger) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s slogLogger) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

func defLogger() Logger {
	return NewSlogLogger(slog.Default().With("component", "accounts"))
}

func systemClock() time.Time {
	return time.Now().UTC()
}
