package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users persists accounts. Methods without the Tx suffix run against the
// database directly; login and email lookups on that path go through the
// user cache.
type Users interface {
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	SaveTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	ConsumeKeyTx(ctx context.Context, tx bun.IDB, user *User, claim KeyClaim) (*User, error)
	DeleteTx(ctx context.Context, tx bun.IDB, user *User) error

	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByLogin(ctx context.Context, login string) (*User, error)
	GetByLoginTx(ctx context.Context, tx bun.IDB, login string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByActivationKeyTx(ctx context.Context, tx bun.IDB, key string) (*User, error)
	GetByResetKeyTx(ctx context.Context, tx bun.IDB, key string) (*User, error)

	ListUnactivatedCreatedBeforeTx(ctx context.Context, tx bun.IDB, cutoff time.Time) ([]*User, error)
	ListActivatedWithoutTokens(ctx context.Context) ([]*User, error)
}

type users struct {
	repo  repository.Repository[*User]
	db    *bun.DB
	cache UserCache
	inv   *invalidator
}

var _ Users = (*users)(nil)

// NewUsersRepository returns the bun backed Users repository
func NewUsersRepository(db *bun.DB, cache UserCache) Users {
	return newUsersRepository(db, newInvalidator(cache))
}

func newUsersRepository(db *bun.DB, inv *invalidator) *users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "login"
		},
	})
	return &users{
		repo:  repo,
		db:    db,
		cache: inv.cache,
		inv:   inv,
	}
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	normalizeUser(user)
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	created, err := a.repo.CreateTx(ctx, tx, user)
	if err != nil {
		return nil, richOrInternal(err, "failed to create user")
	}
	a.inv.evict(ctx, userCacheKeys(created)...)
	return created, nil
}

// KeyClaim names a single-use key a write consumes
type KeyClaim struct {
	column string
	key    string
}

// ActivationKeyClaim claims the activation key the user was loaded by
func ActivationKeyClaim(key string) KeyClaim {
	return KeyClaim{column: "activation_key", key: key}
}

// ResetKeyClaim claims the reset key the user was loaded by
func ResetKeyClaim(key string) KeyClaim {
	return KeyClaim{column: "reset_key", key: key}
}

// SaveTx writes every column of user. Cache entries for both the stored
// and the new login/email are evicted.
func (a *users) SaveTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.save(ctx, tx, user, nil)
}

// ConsumeKeyTx is SaveTx restricted to the row that still holds the
// claimed key. When a concurrent operation consumed the key first no row
// matches and ErrNotFound is returned.
func (a *users) ConsumeKeyTx(ctx context.Context, tx bun.IDB, user *User, claim KeyClaim) (*User, error) {
	if claim.column == "" || claim.key == "" {
		return nil, ErrNotFound
	}
	return a.save(ctx, tx, user, &claim)
}

func (a *users) save(ctx context.Context, tx bun.IDB, user *User, claim *KeyClaim) (*User, error) {
	normalizeUser(user)

	prev := new(User)
	err := tx.NewSelect().
		Model(prev).
		Column("login", "email").
		Where("?TableAlias.id = ?", user.ID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "failed to load user before save")
	}

	q := tx.NewUpdate().Model(user).WherePK()
	if claim != nil {
		q = q.Where("? = ?", bun.Ident(claim.column), claim.key)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return nil, richOrInternal(err, "failed to save user")
	}
	if claim != nil {
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return nil, ErrNotFound
		}
	}

	a.inv.evict(ctx, append(userCacheKeys(prev), userCacheKeys(user)...)...)
	return user, nil
}

func (a *users) DeleteTx(ctx context.Context, tx bun.IDB, user *User) error {
	if user == nil {
		return ErrNotFound
	}
	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", user.ID).
		Exec(ctx)
	if err != nil {
		return richOrInternal(err, "failed to delete user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	a.inv.evict(ctx, userCacheKeys(user)...)
	return nil
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := a.repo.GetByID(ctx, id.String())
	if err != nil {
		return nil, notFoundOr(err, "failed to get user by id")
	}
	return user, nil
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.getBy(ctx, tx, "id", id)
}

func (a *users) GetByLogin(ctx context.Context, login string) (*User, error) {
	return a.cached(ctx, LoginCacheKey(login), func() (*User, error) {
		return a.GetByLoginTx(ctx, a.db, login)
	})
}

func (a *users) GetByLoginTx(ctx context.Context, tx bun.IDB, login string) (*User, error) {
	return a.getBy(ctx, tx, "login", normalizeIdentifier(login))
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.cached(ctx, EmailCacheKey(email), func() (*User, error) {
		return a.GetByEmailTx(ctx, a.db, email)
	})
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.getBy(ctx, tx, "email", normalizeIdentifier(email))
}

func (a *users) GetByActivationKeyTx(ctx context.Context, tx bun.IDB, key string) (*User, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	return a.getBy(ctx, tx, "activation_key", key)
}

func (a *users) GetByResetKeyTx(ctx context.Context, tx bun.IDB, key string) (*User, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	return a.getBy(ctx, tx, "reset_key", key)
}

// ListUnactivatedCreatedBeforeTx lists users that never verified their
// email and were created before cutoff.
func (a *users) ListUnactivatedCreatedBeforeTx(ctx context.Context, tx bun.IDB, cutoff time.Time) ([]*User, error) {
	var records []*User
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.activated = ?", false).
		Where("?TableAlias.activation_key IS NOT NULL").
		Where("?TableAlias.created_at < ?", cutoff.UTC()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, richOrInternal(err, "failed to list unactivated users")
	}
	return records, nil
}

func (a *users) ListActivatedWithoutTokens(ctx context.Context) ([]*User, error) {
	var records []*User
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.activated = ?", true).
		Where("NOT EXISTS (SELECT 1 FROM tokens AS tok WHERE tok.user_id = ?TableAlias.id)").
		Order("login ASC").
		Scan(ctx)
	if err != nil {
		return nil, richOrInternal(err, "failed to list users without tokens")
	}
	return records, nil
}

func (a *users) getBy(ctx context.Context, tx bun.IDB, column string, value any) (*User, error) {
	user := new(User)
	err := tx.NewSelect().
		Model(user).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "failed to get user by "+column)
	}
	return user, nil
}

// cached serves key from the cache. A loaded user is only stored when no
// eviction ran while it was being read, so a save committed in between
// cannot be shadowed by the older row.
func (a *users) cached(ctx context.Context, key string, load func() (*User, error)) (*User, error) {
	if user, ok := a.cache.Get(ctx, key); ok {
		return user, nil
	}
	generation := a.inv.generation()
	user, err := load()
	if err != nil {
		return nil, err
	}
	a.inv.setIfFresh(ctx, key, user, generation)
	return user, nil
}

func normalizeUser(u *User) {
	u.Login = normalizeIdentifier(u.Login)
	u.Email = normalizeIdentifier(u.Email)
	if u.Authorities == nil {
		u.Authorities = []string{}
	}
}
