package accounts

import (
	"context"

	"github.com/uptrace/bun"
)

// ResendVerification queues the activation email again when login and
// password match. Anything else is silently ignored.
func (l *Lifecycle) ResendVerification(ctx context.Context, login, password string) error {
	user, err := l.store.Users().GetByLogin(ctx, login)
	if err != nil {
		if IsNotFound(err) {
			l.logger.Debug("resend verification for unknown login", "login", login)
			return nil
		}
		return err
	}
	if err := l.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		l.logger.Debug("resend verification with bad credentials", "login", login)
		return nil
	}
	if user.ActivationKey == nil {
		return nil
	}
	l.dispatcher.Dispatch(ctx, []Notice{{Kind: NoticeActivationEmail, User: user}})
	return nil
}

// RegenerateActivationKey issues a new activation key for login. An active
// user moves to reverification_pending until the key is used.
func (l *Lifecycle) RegenerateActivationKey(ctx context.Context, login string) (*User, error) {
	var user *User
	err := l.run(ctx, "activation key regeneration failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		found, err := l.store.Users().GetByLoginTx(ctx, tx, login)
		if err != nil {
			return err
		}

		target := StatePendingVerification
		if found.Activated {
			target = StateReverificationPending
		}
		if _, err := l.states.Transition(ctx, systemActor, found, target,
			WithActivationKey(l.keys.ActivationKey()),
			WithTransitionReason("activation key regenerated"),
		); err != nil {
			return err
		}
		if _, err := l.store.Users().SaveTx(ctx, tx, found); err != nil {
			return err
		}

		ob.notify(Notice{Kind: NoticeVerifyEmail, User: found})
		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
