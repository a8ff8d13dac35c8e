package accounts

import (
	"context"

	"github.com/uptrace/bun"
)

// SaveAccount applies a profile edit made by the owner of login. The new
// email must not belong to another account.
func (l *Lifecycle) SaveAccount(ctx context.Context, login string, msg SaveAccountMessage) (*User, *UserDetails, error) {
	if err := msg.Validate(); err != nil {
		return nil, nil, validationError(err, "invalid account")
	}

	phone, err := NormalizePhone(msg.Phone, l.policy.DefaultPhoneRegion)
	if err != nil {
		return nil, nil, err
	}

	var (
		user    *User
		details *UserDetails
	)
	err = l.run(ctx, "account update failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		found, err := l.store.Users().GetByLoginTx(ctx, tx, login)
		if err != nil {
			return err
		}
		if err := l.ensureAvailable(ctx, tx, found.Login, msg.Email, found); err != nil {
			return err
		}

		found.Email = msg.Email
		found.FirstName = msg.FirstName
		found.LastName = msg.LastName
		found.ImageURL = msg.ImageURL
		found.LangKey = l.langOr(msg.LangKey)
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

		ob.record(newEvent(ActivityEventProfileSaved, userActor(found), found, nil))
		user, details = found, d
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return user, details, nil
}
