package accounts

import (
	"context"

	"github.com/uptrace/bun"
)

var adminActor = ActorRef{Type: "admin"}

// CreateUser creates an activated account on behalf of an administrator.
// The user gets a throwaway password and an open reset window, so the
// first login goes through a password reset.
func (l *Lifecycle) CreateUser(ctx context.Context, msg CreateUserMessage) (*User, error) {
	if err := msg.Validate(); err != nil {
		return nil, validationError(err, "invalid user")
	}

	phone, err := NormalizePhone(msg.Phone, l.policy.DefaultPhoneRegion)
	if err != nil {
		return nil, err
	}

	hash, err := l.hasher.HashPassword(l.keys.Password())
	if err != nil {
		return nil, err
	}

	authorities := resolveAuthorities(msg.Authorities)
	if len(authorities) == 0 {
		authorities = []string{AuthorityUser}
	}

	var user *User
	err = l.run(ctx, "user creation failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		if err := l.ensureAvailable(ctx, tx, msg.Login, msg.Email, nil); err != nil {
			return err
		}

		now := l.now()
		resetKey := l.keys.ResetKey()
		created, err := l.store.Users().CreateTx(ctx, tx, &User{
			ID:           l.newUserID(msg.Email),
			Login:        msg.Login,
			Email:        msg.Email,
			PasswordHash: hash,
			FirstName:    msg.FirstName,
			LastName:     msg.LastName,
			ImageURL:     msg.ImageURL,
			LangKey:      l.langOr(msg.LangKey),
			Activated:    true,
			ResetKey:     &resetKey,
			ResetDate:    &now,
			Authorities:  authorities,
			LicenseType:  msg.LicenseType,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}

		details := &UserDetails{UserID: created.ID}
		applyProfile(details, msg.ProfileFields, phone)
		if _, err := l.store.Details().UpsertTx(ctx, tx, details); err != nil {
			return err
		}

		if _, err := l.tokens.IssueIfAbsent(ctx, tx, created, msg.TokenValidDays, msg.TokenRenewable); err != nil {
			return err
		}

		ob.notify(Notice{Kind: NoticeAccountCreated, User: created})
		ob.record(newEvent(ActivityEventCreated, actorFrom(ctx, adminActor), created, nil))
		user = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser applies an administrative edit: profile fields, license,
// authorities (replaced wholesale) and the activated flag. A token is
// issued when the user has none.
func (l *Lifecycle) UpdateUser(ctx context.Context, msg UpdateUserMessage) (*User, *UserDetails, error) {
	return l.update(ctx, msg, false)
}

// ApproveUser is UpdateUser with the account forced to activated
func (l *Lifecycle) ApproveUser(ctx context.Context, msg UpdateUserMessage) (*User, *UserDetails, error) {
	msg.Activated = true
	return l.update(ctx, msg, true)
}

func (l *Lifecycle) update(ctx context.Context, msg UpdateUserMessage, approve bool) (*User, *UserDetails, error) {
	if err := msg.Validate(); err != nil {
		return nil, nil, validationError(err, "invalid user")
	}

	phone, err := NormalizePhone(msg.Phone, l.policy.DefaultPhoneRegion)
	if err != nil {
		return nil, nil, err
	}

	var (
		user    *User
		details *UserDetails
	)
	err = l.run(ctx, "user update failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		found, err := l.store.Users().GetByIDTx(ctx, tx, msg.ID)
		if err != nil {
			return err
		}
		if err := l.ensureAvailable(ctx, tx, msg.Login, msg.Email, found); err != nil {
			return err
		}

		wasActivated := found.Activated
		found.Login = msg.Login
		found.Email = msg.Email
		found.FirstName = msg.FirstName
		found.LastName = msg.LastName
		found.ImageURL = msg.ImageURL
		found.LangKey = l.langOr(msg.LangKey)
		found.LicenseType = msg.LicenseType
		found.Authorities = resolveAuthorities(msg.Authorities)

		target := deactivatedState(found)
		if msg.Activated {
			target = activatedState(found)
		}
		if _, err := l.states.Transition(ctx, actorFrom(ctx, adminActor), found, target,
			WithTransitionReason("updated by administrator"),
		); err != nil {
			return err
		}
		found.UpdatedAt = l.now()
		if _, err := l.store.Users().SaveTx(ctx, tx, found); err != nil {
			return err
		}

		d, err := l.store.Details().GetByUserIDTx(ctx, tx, found.ID)
		switch {
		case IsNotFound(err):
			d = &UserDetails{UserID: found.ID}
		case err != nil:
			return err
		}
		applyProfile(d, msg.ProfileFields, phone)
		if d, err = l.store.Details().UpsertTx(ctx, tx, d); err != nil {
			return err
		}

		if _, err := l.tokens.IssueIfAbsent(ctx, tx, found, nil, nil); err != nil {
			return err
		}

		if approve && !wasActivated {
			ob.notify(Notice{Kind: NoticeApproved, User: found})
		}
		ob.record(newEvent(ActivityEventUpdated, actorFrom(ctx, adminActor), found, map[string]any{
			"approved": approve,
		}))
		user, details = found, d
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return user, details, nil
}

// DeleteUser removes login together with its details and tokens
func (l *Lifecycle) DeleteUser(ctx context.Context, login string) error {
	return l.run(ctx, "user deletion failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		user, err := l.store.Users().GetByLoginTx(ctx, tx, login)
		if err != nil {
			return err
		}
		if err := l.removeUser(ctx, tx, user); err != nil {
			return err
		}
		ob.record(newEvent(ActivityEventDeleted, actorFrom(ctx, adminActor), user, nil))
		return nil
	})
}

func (l *Lifecycle) removeUser(ctx context.Context, tx bun.IDB, user *User) error {
	if err := l.store.Tokens().DeleteByUserIDTx(ctx, tx, user.ID); err != nil {
		return err
	}
	if err := l.store.Details().DeleteByUserIDTx(ctx, tx, user.ID); err != nil {
		return err
	}
	return l.store.Users().DeleteTx(ctx, tx, user)
}
