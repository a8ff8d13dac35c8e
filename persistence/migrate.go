package persistence

import (
	"context"
	"embed"
	"io/fs"
	"time"

	goerrors "github.com/goliatone/go-errors"
	bunpersist "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/goliatone/go-accounts"
)

const migrationsDir = "data/sql/migrations"

//go:embed data/sql/migrations
var migrationsFS embed.FS

// MigrationsFS returns the dialect migrations rooted at the dialect folders
func MigrationsFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, migrationsDir)
}

func init() {
	bunpersist.RegisterModel((*accounts.User)(nil))
	bunpersist.RegisterModel((*accounts.UserDetails)(nil))
	bunpersist.RegisterModel((*accounts.Token)(nil))
}

// clientConfig adapts Config to the persistence client configuration
type clientConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c clientConfig) GetDebug() bool                { return c.debug }
func (c clientConfig) GetDriver() string             { return c.driver }
func (c clientConfig) GetServer() string             { return c.dsn }
func (c clientConfig) GetDSN() string                { return c.dsn }
func (c clientConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c clientConfig) GetOtelIdentifier() string     { return "accounts" }

// NewClient wraps db in a persistence client with the account migrations
// registered for both supported dialects.
func NewClient(db *bun.DB, cfg Config) (*bunpersist.Client, error) {
	cfg.Driver = driverOf(db)
	client, err := bunpersist.New(clientConfig{
		driver: cfg.Driver,
		dsn:    cfg.DSN,
		debug:  cfg.Debug,
	}, db.DB, db.Dialect())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create persistence client")
	}

	migrations, err := MigrationsFS()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load migrations")
	}
	client.RegisterDialectMigrations(
		migrations,
		bunpersist.WithDialectSourceLabel(migrationsDir),
		bunpersist.WithValidationTargets(DriverPostgres, DriverSQLite),
	)
	return client, nil
}

// Migrate applies the pending account migrations for the dialect of db
func Migrate(ctx context.Context, db *bun.DB) error {
	client, err := NewClient(db, Config{})
	if err != nil {
		return err
	}
	if err := client.ValidateDialects(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid dialect migrations").
			WithTextCode("INVALID_MIGRATIONS")
	}
	if err := client.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to migrate database")
	}
	return nil
}

func driverOf(db *bun.DB) string {
	if db.Dialect().Name() == dialect.PG {
		return DriverPostgres
	}
	return DriverSQLite
}
