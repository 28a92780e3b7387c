// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/migrations"
)

// Supported dialects.
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// Up runs all pending migrations of dialect against db.
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate %s: %w", dialect, err)
	}
	return nil
}

// UpPostgres runs pending Postgres migrations over a short-lived connection.
// An unreachable database is reported as errs.ErrUnavailable.
func UpPostgres(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	return Up(ctx, db, Postgres)
}

// Version reports the latest applied migration version.
func Version(ctx context.Context, db *sql.DB, dialect string) (int64, error) {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func newProvider(db *sql.DB, dialect string) (*goose.Provider, error) {
	var d goose.Dialect
	switch dialect {
	case Postgres:
		d = goose.DialectPostgres
	case SQLite:
		d = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("migrate: unsupported dialect %q", dialect)
	}
	fsys, err := fs.Sub(migrations.FS, dialect)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(d, db, fsys)
}
