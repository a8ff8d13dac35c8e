package accounts

import (
	"context"

	"github.com/uptrace/bun"
)

// RequestPasswordReset opens a reset window for an activated user and
// queues the reset email. Unknown and unactivated emails both yield
// ErrNotFound so callers can answer identically.
func (l *Lifecycle) RequestPasswordReset(ctx context.Context, email string) (*User, error) {
	return l.openResetWindow(ctx, email, true)
}

// GenerateResetKey opens a reset window without notifying the user
func (l *Lifecycle) GenerateResetKey(ctx context.Context, email string) (*User, error) {
	return l.openResetWindow(ctx, email, false)
}

func (l *Lifecycle) openResetWindow(ctx context.Context, email string, notify bool) (*User, error) {
	var user *User
	err := l.run(ctx, "password reset request failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		found, err := l.store.Users().GetByEmailTx(ctx, tx, email)
		if err != nil {
			return err
		}
		if !found.Activated {
			return ErrNotFound
		}

		now := l.now()
		key := l.keys.ResetKey()
		found.ResetKey = &key
		found.ResetDate = &now
		found.UpdatedAt = now
		if _, err := l.store.Users().SaveTx(ctx, tx, found); err != nil {
			return err
		}

		if notify {
			ob.notify(Notice{Kind: NoticePasswordReset, User: found})
		}
		ob.record(newEvent(ActivityEventPasswordResetRequested, userActor(found), found, nil))
		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CompletePasswordReset sets a new password for the holder of a reset key
// and closes the reset window.
func (l *Lifecycle) CompletePasswordReset(ctx context.Context, newPassword, key string) (*User, error) {
	if err := ValidatePassword(newPassword); err != nil {
		return nil, validationError(err, "invalid password")
	}

	var user *User
	err := l.run(ctx, "password reset completion failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		found, err := l.store.Users().GetByResetKeyTx(ctx, tx, key)
		if err != nil {
			return err
		}

		hash, err := l.hasher.HashPassword(newPassword)
		if err != nil {
			return err
		}
		found.PasswordHash = hash
		found.ResetKey = nil
		found.ResetDate = nil
		found.UpdatedAt = l.now()
		if _, err := l.store.Users().ConsumeKeyTx(ctx, tx, found, ResetKeyClaim(key)); err != nil {
			return err
		}

		ob.record(newEvent(ActivityEventPasswordReset, userActor(found), found, nil))
		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the password of login after checking the current one
func (l *Lifecycle) ChangePassword(ctx context.Context, login, current, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return validationError(err, "invalid password")
	}

	return l.run(ctx, "password change failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		user, err := l.store.Users().GetByLoginTx(ctx, tx, login)
		if err != nil {
			return err
		}
		if err := l.hasher.ComparePasswordAndHash(current, user.PasswordHash); err != nil {
			return err
		}

		hash, err := l.hasher.HashPassword(newPassword)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
		user.UpdatedAt = l.now()
		if _, err := l.store.Users().SaveTx(ctx, tx, user); err != nil {
			return err
		}

		ob.record(newEvent(ActivityEventPasswordChanged, userActor(user), user, nil))
		return nil
	})
}
