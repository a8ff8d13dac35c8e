package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Register creates an unactivated account with a fresh activation key and
// queues the activation email.
func (l *Lifecycle) Register(ctx context.Context, msg RegisterUserMessage) (*User, error) {
	if err := msg.Validate(); err != nil {
		return nil, validationError(err, "invalid registration")
	}

	phone, err := NormalizePhone(msg.Phone, l.policy.DefaultPhoneRegion)
	if err != nil {
		return nil, err
	}

	hash, err := l.hasher.HashPassword(msg.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	var user *User
	err = l.run(ctx, "user registration transaction failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		if err := l.ensureAvailable(ctx, tx, msg.Login, msg.Email, nil); err != nil {
			return err
		}

		now := l.now()
		key := l.keys.ActivationKey()
		created, err := l.store.Users().CreateTx(ctx, tx, &User{
			ID:            l.newUserID(msg.Email),
			Login:         msg.Login,
			Email:         msg.Email,
			PasswordHash:  hash,
			FirstName:     msg.FirstName,
			LastName:      msg.LastName,
			ImageURL:      msg.ImageURL,
			LangKey:       l.langOr(msg.LangKey),
			Activated:     false,
			ActivationKey: &key,
			Authorities:   []string{AuthorityUser},
			LicenseType:   msg.LicenseType,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return err
		}

		details := &UserDetails{UserID: created.ID}
		applyProfile(details, msg.ProfileFields, phone)
		if _, err := l.store.Details().UpsertTx(ctx, tx, details); err != nil {
			return err
		}

		ob.notify(Notice{Kind: NoticeActivationEmail, User: created})
		ob.record(newEvent(ActivityEventRegistered, userActor(created), created, map[string]any{
			"license_type": created.LicenseType,
		}))
		user = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ensureAvailable fails when login or email belong to a user other than self
func (l *Lifecycle) ensureAvailable(ctx context.Context, tx bun.IDB, login, email string, self *User) error {
	existing, err := l.store.Users().GetByEmailTx(ctx, tx, email)
	switch {
	case err == nil && (self == nil || existing.ID != self.ID):
		return ErrDuplicateEmail
	case err != nil && !IsNotFound(err):
		return err
	}

	existing, err = l.store.Users().GetByLoginTx(ctx, tx, login)
	switch {
	case err == nil && (self == nil || existing.ID != self.ID):
		return ErrDuplicateLogin
	case err != nil && !IsNotFound(err):
		return err
	}
	return nil
}

func applyProfile(details *UserDetails, p ProfileFields, phone string) {
	details.JobTitle = p.JobTitle
	details.Company = p.Company
	details.City = p.City
	details.Country = p.Country
	details.Phone = phone
}
