package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tokens persists API tokens
type Tokens interface {
	CreateTx(ctx context.Context, tx bun.IDB, token *Token) (*Token, error)
	SaveTx(ctx context.Context, tx bun.IDB, token *Token) (*Token, error)
	GetByValueTx(ctx context.Context, tx bun.IDB, value uuid.UUID) (*Token, error)
	ListByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*Token, error)
	ListExpiringBeforeTx(ctx context.Context, tx bun.IDB, t time.Time) ([]*Token, error)
	AddUsageTx(ctx context.Context, tx bun.IDB, value uuid.UUID, n int) error
	DeleteByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
}

type tokens struct {
	repo repository.Repository[*Token]
}

var _ Tokens = (*tokens)(nil)

// NewTokensRepository returns the bun backed Tokens repository
func NewTokensRepository(db *bun.DB) Tokens {
	return &tokens{
		repo: repository.NewRepository[*Token](db, repository.ModelHandlers[*Token]{
			NewRecord: func() *Token { return &Token{} },
			GetID: func(t *Token) uuid.UUID {
				if t == nil {
					return uuid.Nil
				}
				return t.ID
			},
			SetID: func(t *Token, id uuid.UUID) {
				if t != nil {
					t.ID = id
				}
			},
			GetIdentifier: func() string {
				return "value"
			},
		}),
	}
}

func (t *tokens) CreateTx(ctx context.Context, tx bun.IDB, token *Token) (*Token, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.Value == uuid.Nil {
		token.Value = uuid.New()
	}
	created, err := t.repo.CreateTx(ctx, tx, token)
	if err != nil {
		return nil, richOrInternal(err, "failed to create token")
	}
	return created, nil
}

func (t *tokens) SaveTx(ctx context.Context, tx bun.IDB, token *Token) (*Token, error) {
	res, err := tx.NewUpdate().Model(token).WherePK().Exec(ctx)
	if err != nil {
		return nil, richOrInternal(err, "failed to save token")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return token, nil
}

func (t *tokens) GetByValueTx(ctx context.Context, tx bun.IDB, value uuid.UUID) (*Token, error) {
	rec := new(Token)
	err := tx.NewSelect().
		Model(rec).
		Where("?TableAlias.value = ?", value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "failed to get token")
	}
	return rec, nil
}

func (t *tokens) ListByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*Token, error) {
	var records []*Token
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, richOrInternal(err, "failed to list tokens")
	}
	return records, nil
}

func (t *tokens) ListExpiringBeforeTx(ctx context.Context, tx bun.IDB, before time.Time) ([]*Token, error) {
	var records []*Token
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.expiration < ?", before.UTC()).
		Order("expiration ASC").
		Scan(ctx)
	if err != nil {
		return nil, richOrInternal(err, "failed to list tokens")
	}
	return records, nil
}

func (t *tokens) AddUsageTx(ctx context.Context, tx bun.IDB, value uuid.UUID, n int) error {
	res, err := tx.NewUpdate().
		Model((*Token)(nil)).
		Set("usage_count = usage_count + ?", n).
		Where("value = ?", value).
		Exec(ctx)
	if err != nil {
		return richOrInternal(err, "failed to record token usage")
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *tokens) DeleteByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Token)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return richOrInternal(err, "failed to delete tokens")
}
