package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Details persists user profile records
type Details interface {
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*UserDetails, error)
	GetByTrialKeyTx(ctx context.Context, tx bun.IDB, key string) (*UserDetails, error)
	UpsertTx(ctx context.Context, tx bun.IDB, details *UserDetails) (*UserDetails, error)
	ConsumeTrialKeyTx(ctx context.Context, tx bun.IDB, details *UserDetails, key string) (*UserDetails, error)
	DeleteByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
}

type details struct {
	repo repository.Repository[*UserDetails]
}

var _ Details = (*details)(nil)

// NewDetailsRepository returns the bun backed Details repository
func NewDetailsRepository(db *bun.DB) Details {
	return &details{
		repo: repository.NewRepository[*UserDetails](db, repository.ModelHandlers[*UserDetails]{
			NewRecord: func() *UserDetails { return &UserDetails{} },
			GetID: func(d *UserDetails) uuid.UUID {
				if d == nil {
					return uuid.Nil
				}
				return d.ID
			},
			SetID: func(d *UserDetails, id uuid.UUID) {
				if d != nil {
					d.ID = id
				}
			},
			GetIdentifier: func() string {
				return "user_id"
			},
		}),
	}
}

func (d *details) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*UserDetails, error) {
	return d.getBy(ctx, tx, "user_id", userID)
}

func (d *details) GetByTrialKeyTx(ctx context.Context, tx bun.IDB, key string) (*UserDetails, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	return d.getBy(ctx, tx, "trial_activation_key", key)
}

// UpsertTx inserts details for a user without any, otherwise rewrites the
// stored record.
func (d *details) UpsertTx(ctx context.Context, tx bun.IDB, rec *UserDetails) (*UserDetails, error) {
	rec.syncTrialKey()

	existing, err := d.GetByUserIDTx(ctx, tx, rec.UserID)
	switch {
	case IsNotFound(err):
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		created, err := d.repo.CreateTx(ctx, tx, rec)
		if err != nil {
			return nil, richOrInternal(err, "failed to create user details")
		}
		return created, nil
	case err != nil:
		return nil, err
	}

	rec.ID = existing.ID
	if _, err := tx.NewUpdate().Model(rec).WherePK().Exec(ctx); err != nil {
		return nil, richOrInternal(err, "failed to update user details")
	}
	return rec, nil
}

// ConsumeTrialKeyTx rewrites details only while the stored record still
// holds the trial key. ErrNotFound means another operation consumed it.
func (d *details) ConsumeTrialKeyTx(ctx context.Context, tx bun.IDB, rec *UserDetails, key string) (*UserDetails, error) {
	if key == "" || rec.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	rec.syncTrialKey()

	res, err := tx.NewUpdate().
		Model(rec).
		WherePK().
		Where("trial_activation_key = ?", key).
		Exec(ctx)
	if err != nil {
		return nil, richOrInternal(err, "failed to update user details")
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (d *details) DeleteByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*UserDetails)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return richOrInternal(err, "failed to delete user details")
}

func (d *details) getBy(ctx context.Context, tx bun.IDB, column string, value any) (*UserDetails, error) {
	rec := new(UserDetails)
	err := tx.NewSelect().
		Model(rec).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "failed to get user details by "+column)
	}
	return rec, nil
}
