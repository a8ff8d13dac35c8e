package accounts

import (
	"context"

	"github.com/uptrace/bun"
)

// InitiateTrial starts (or restarts) a trial for login with a fresh key
// and an unaccepted trial license agreement.
func (l *Lifecycle) InitiateTrial(ctx context.Context, login string) (*User, *UserDetails, error) {
	var (
		user    *User
		details *UserDetails
	)
	err := l.run(ctx, "trial initiation failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		found, err := l.store.Users().GetByLoginTx(ctx, tx, login)
		if err != nil {
			return err
		}

		d, err := l.store.Details().GetByUserIDTx(ctx, tx, found.ID)
		switch {
		case IsNotFound(err):
			d = &UserDetails{UserID: found.ID}
		case err != nil:
			return err
		}

		d.SetTrialAccount(&TrialAccount{
			Activation: TrialActivation{
				InitiationDate: l.now(),
				Key:            l.keys.ActivationKey(),
			},
			LicenseAgreement: LicenseAgreement{
				Name:    l.policy.TrialAgreementName,
				Version: l.policy.TrialAgreementVersion,
			},
		})
		if d, err = l.store.Details().UpsertTx(ctx, tx, d); err != nil {
			return err
		}

		ob.notify(Notice{Kind: NoticeTrialActivationLink, User: found, Details: d})
		ob.record(newEvent(ActivityEventTrialInitiated, userActor(found), found, nil))
		user, details = found, d
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return user, details, nil
}

// FinishTrial accepts the trial agreement behind key: the user is
// activated and every token becomes a non-renewable trial token.
func (l *Lifecycle) FinishTrial(ctx context.Context, key string) (*User, error) {
	var user *User
	err := l.run(ctx, "trial activation failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		details, err := l.store.Details().GetByTrialKeyTx(ctx, tx, key)
		if err != nil {
			return err
		}
		trial := details.TrialAccount
		if trial == nil || trial.Activation.Key == "" || trial.Activation.Key != key {
			return ErrInvalidKey
		}

		found, err := l.store.Users().GetByIDTx(ctx, tx, details.UserID)
		if err != nil {
			return err
		}

		if _, err := l.states.Transition(ctx, userActor(found), found, activatedState(found),
			WithTransitionReason("trial license accepted"),
		); err != nil {
			return err
		}
		if _, err := l.store.Users().SaveTx(ctx, tx, found); err != nil {
			return err
		}

		if _, err := l.tokens.IssueOrOverwrite(ctx, tx, found, l.policy.TrialPeriodDays, false); err != nil {
			return err
		}

		now := l.now()
		trial.Activation.ActivationDate = &now
		trial.Activation.Key = ""
		trial.LicenseAgreement.AcceptanceDate = &now
		details.SetTrialAccount(trial)
		if _, err := l.store.Details().ConsumeTrialKeyTx(ctx, tx, details, key); err != nil {
			return err
		}

		ob.notify(Notice{
			Kind:            NoticeTrialAccepted,
			User:            found,
			TrialExpiration: now.AddDate(0, 0, l.policy.TrialPeriodDays),
		})
		ob.record(newEvent(ActivityEventTrialActivated, userActor(found), found, nil))
		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// TrialInfo returns the user and details of a pending trial key
func (l *Lifecycle) TrialInfo(ctx context.Context, key string) (*User, *UserDetails, error) {
	var (
		user    *User
		details *UserDetails
	)
	err := l.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if details, err = l.store.Details().GetByTrialKeyTx(ctx, tx, key); err != nil {
			return err
		}
		user, err = l.store.Users().GetByIDTx(ctx, tx, details.UserID)
		return err
	})
	if err != nil {
		return nil, nil, richOrInternal(err, "failed to load trial")
	}
	return user, details, nil
}

// TrialAccountInitiated reports whether a trial was ever started
func TrialAccountInitiated(details *UserDetails) bool {
	if details == nil || details.TrialAccount == nil {
		return false
	}
	activation := details.TrialAccount.Activation
	return activation.Key != "" || activation.ActivationDate != nil
}

// TrialAccountActivated reports whether user holds a non-renewable token,
// which is only ever issued by trial activation.
func (l *Lifecycle) TrialAccountActivated(ctx context.Context, user *User) (bool, error) {
	var activated bool
	err := l.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		activated, err = l.tokens.HasNonRenewableTx(ctx, tx, user)
		return err
	})
	if err != nil {
		return false, richOrInternal(err, "failed to check trial tokens")
	}
	return activated, nil
}

// ConvertTrialToRegular activates login if needed and turns every token
// into a renewable token valid for the regular window.
func (l *Lifecycle) ConvertTrialToRegular(ctx context.Context, login string) (*User, error) {
	var user *User
	err := l.run(ctx, "trial conversion failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		found, err := l.store.Users().GetByLoginTx(ctx, tx, login)
		if err != nil {
			return err
		}
		if !found.Activated {
			if _, err := l.states.Transition(ctx, systemActor, found, activatedState(found),
				WithTransitionReason("trial converted to regular"),
			); err != nil {
				return err
			}
			if _, err := l.store.Users().SaveTx(ctx, tx, found); err != nil {
				return err
			}
		}

		tokens, err := l.tokens.ConvertToRegular(ctx, tx, found)
		if err != nil {
			return err
		}
		ob.record(newEvent(ActivityEventUpdated, systemActor, found, map[string]any{
			"converted_tokens": len(tokens),
		}))
		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
