// Package persistence opens the bun database used by the account store.
package persistence

import (
	"context"
	"database/sql"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config describes the database connection
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	Debug        bool
}

// Open connects to the configured database, pings it and wraps it in bun
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, goerrors.New("database dsn is required", goerrors.CategoryValidation).
			WithTextCode("DSN_REQUIRED")
	}

	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite, "sqlite3":
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite")
		}
		// sqlite serialises writers; one connection keeps in-memory databases shared
		if cfg.MaxOpenConns <= 0 {
			sqldb.SetMaxOpenConns(1)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres, "postgresql", "pgx":
		sqldb, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, goerrors.New("unsupported database driver", goerrors.CategoryValidation).
			WithTextCode("UNSUPPORTED_DRIVER").
			WithMetadata(map[string]any{"driver": cfg.Driver})
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "database is not reachable")
	}
	return db, nil
}
