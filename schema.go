package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// CreateSchema creates the account tables and lookup indexes when missing
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*User)(nil),
		(*UserDetails)(nil),
		(*Token)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table")
		}
	}

	indexes := []struct {
		model  any
		name   string
		column string
	}{
		{(*User)(nil), "users_activation_key_idx", "activation_key"},
		{(*User)(nil), "users_reset_key_idx", "reset_key"},
		{(*UserDetails)(nil), "user_details_trial_key_idx", "trial_activation_key"},
		{(*Token)(nil), "tokens_user_id_idx", "user_id"},
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.column).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create index "+idx.name)
		}
	}
	return nil
}
