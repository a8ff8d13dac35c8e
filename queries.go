package accounts

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserByLogin returns the user behind login, served from the user cache when possible
func (l *Lifecycle) UserByLogin(ctx context.Context, login string) (*User, error) {
	return l.store.Users().GetByLogin(ctx, login)
}

// UserByEmail returns the user behind email, served from the user cache when possible
func (l *Lifecycle) UserByEmail(ctx context.Context, email string) (*User, error) {
	return l.store.Users().GetByEmail(ctx, email)
}

// UserWithDetails loads a user and its details by id. Details are nil when
// the user has none.
func (l *Lifecycle) UserWithDetails(ctx context.Context, id uuid.UUID) (*User, *UserDetails, error) {
	var (
		user    *User
		details *UserDetails
	)
	err := l.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if user, err = l.store.Users().GetByIDTx(ctx, tx, id); err != nil {
			return err
		}
		details, err = l.store.Details().GetByUserIDTx(ctx, tx, id)
		if IsNotFound(err) {
			details, err = nil, nil
		}
		return err
	})
	if err != nil {
		return nil, nil, richOrInternal(err, "failed to load user")
	}
	return user, details, nil
}

// ActivatedUsersWithoutTokens lists activated users that hold no token
func (l *Lifecycle) ActivatedUsersWithoutTokens(ctx context.Context) ([]*User, error) {
	return l.store.Users().ListActivatedWithoutTokens(ctx)
}

// UserByID returns the user with id
func (l *Lifecycle) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return l.store.Users().GetByID(ctx, id)
}

// Authenticate returns the activated user behind login when password
// matches. Unknown logins, bad passwords and unactivated accounts all yield
// ErrInvalidCredentials.
func (l *Lifecycle) Authenticate(ctx context.Context, login, password string) (*User, error) {
	user, err := l.store.Users().GetByLogin(ctx, login)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := l.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return nil, err
	}
	if !user.Activated {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
