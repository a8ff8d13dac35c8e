package accounts

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// NoticeKind names a notification the lifecycle emits
type NoticeKind string

const (
	NoticeActivationEmail      NoticeKind = "activation_email"
	NoticePasswordReset        NoticeKind = "password_reset"
	NoticeApproved             NoticeKind = "approved"
	NoticeLicenseAutoCorrected NoticeKind = "license_auto_corrected"
	NoticeTrialAccepted        NoticeKind = "trial_accepted"
	NoticeManualReview         NoticeKind = "manual_review"
	NoticeTrialActivationLink  NoticeKind = "trial_activation_link"
	NoticeAccountCreated       NoticeKind = "account_created"
	NoticeVerifyEmail          NoticeKind = "verify_email"
)

// Notice is an outbox entry delivered once the owning transaction commits
type Notice struct {
	Kind            NoticeKind   `json:"kind"`
	User            *User        `json:"user"`
	Details         *UserDetails `json:"details,omitempty"`
	OriginalLicense LicenseType  `json:"original_license,omitempty"`
	TrialExpiration time.Time    `json:"trial_expiration,omitempty"`
	Flags           ReviewFlags  `json:"flags"`
}

// Deliver routes the notice to the matching Notifier method
func (n Notice) Deliver(ctx context.Context, notifier Notifier) error {
	switch n.Kind {
	case NoticeActivationEmail:
		return notifier.SendActivationEmail(ctx, n.User)
	case NoticePasswordReset:
		return notifier.SendPasswordResetEmail(ctx, n.User)
	case NoticeApproved:
		return notifier.SendApprovalNotice(ctx, n.User)
	case NoticeLicenseAutoCorrected:
		return notifier.SendAutoCorrectedLicenseNotice(ctx, n.User, n.OriginalLicense)
	case NoticeTrialAccepted:
		return notifier.SendTrialAcceptanceConfirmation(ctx, n.User, n.TrialExpiration)
	case NoticeManualReview:
		return notifier.SendManualReviewNotice(ctx, n.User, n.Details, n.Flags)
	case NoticeTrialActivationLink:
		return notifier.SendTrialActivationLink(ctx, n.User, n.Details)
	case NoticeAccountCreated:
		return notifier.SendAccountCreated(ctx, n.User)
	case NoticeVerifyEmail:
		return notifier.SendVerifyEmail(ctx, n.User)
	default:
		return fmt.Errorf("unknown notice kind %q", n.Kind)
	}
}

// NoticeDispatcher delivers committed notices
type NoticeDispatcher interface {
	Dispatch(ctx context.Context, notices []Notice)
}

// SyncDispatcher delivers notices in the calling goroutine
type SyncDispatcher struct {
	Notifier Notifier
	Logger   Logger
}

// Dispatch implements NoticeDispatcher. Failures are logged.
func (d SyncDispatcher) Dispatch(ctx context.Context, notices []Notice) {
	logger := d.Logger
	if logger == nil {
		logger = defLogger()
	}
	for _, n := range notices {
		if err := n.Deliver(ctx, d.Notifier); err != nil {
			logger.Error("notice delivery failed", "kind", n.Kind, "login", loginOf(n.User), "error", err)
		}
	}
}

// AsyncDispatcher delivers notices on a background goroutine
type AsyncDispatcher struct {
	notifier Notifier
	logger   Logger
	wg       sync.WaitGroup
}

// NewAsyncDispatcher returns a dispatcher that never blocks the caller
func NewAsyncDispatcher(notifier Notifier, logger Logger) *AsyncDispatcher {
	if logger == nil {
		logger = defLogger()
	}
	return &AsyncDispatcher{notifier: notifier, logger: logger}
}

// Dispatch implements NoticeDispatcher
func (d *AsyncDispatcher) Dispatch(ctx context.Context, notices []Notice) {
	if len(notices) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		SyncDispatcher{Notifier: d.notifier, Logger: d.logger}.Dispatch(ctx, notices)
	}()
}

// Wait blocks until every dispatched notice was handed to the notifier
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}

// LogNotifier logs notices instead of delivering them
type LogNotifier struct {
	Logger Logger
}

func (n LogNotifier) log(kind NoticeKind, user *User, args ...any) error {
	logger := n.Logger
	if logger == nil {
		logger = defLogger()
	}
	logger.Info("account notice", append([]any{"kind", kind, "login", loginOf(user)}, args...)...)
	return nil
}

func (n LogNotifier) SendActivationEmail(_ context.Context, u *User) error {
	return n.log(NoticeActivationEmail, u)
}

func (n LogNotifier) SendPasswordResetEmail(_ context.Context, u *User) error {
	return n.log(NoticePasswordReset, u)
}

func (n LogNotifier) SendApprovalNotice(_ context.Context, u *User) error {
	return n.log(NoticeApproved, u)
}

func (n LogNotifier) SendAutoCorrectedLicenseNotice(_ context.Context, u *User, original LicenseType) error {
	return n.log(NoticeLicenseAutoCorrected, u, "original_license", original)
}

func (n LogNotifier) SendTrialAcceptanceConfirmation(_ context.Context, u *User, exp time.Time) error {
	return n.log(NoticeTrialAccepted, u, "trial_expiration", exp)
}

func (n LogNotifier) SendManualReviewNotice(_ context.Context, u *User, _ *UserDetails, flags ReviewFlags) error {
	return n.log(NoticeManualReview, u,
		"trial_activated", flags.TrialActivated,
		"trial_initiated", flags.TrialInitiated,
		"clarification", flags.Clarification,
		"embargoed", flags.Embargoed,
	)
}

func (n LogNotifier) SendTrialActivationLink(_ context.Context, u *User, _ *UserDetails) error {
	return n.log(NoticeTrialActivationLink, u)
}

func (n LogNotifier) SendAccountCreated(_ context.Context, u *User) error {
	return n.log(NoticeAccountCreated, u)
}

func (n LogNotifier) SendVerifyEmail(_ context.Context, u *User) error {
	return n.log(NoticeVerifyEmail, u)
}

func loginOf(u *User) string {
	if u == nil {
		return ""
	}
	return u.Login
}
