package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedded embed.FS

// Apply runs every embedded migration for the driver. Workstation installs
// ship without the migration directory, so the binary carries its own copy.
func Apply(ctx context.Context, db *sql.DB, driver string) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("db is required")
	}

	sub := "migrations/postgres"
	dialect := goose.DialectPostgres
	if DialectFor(driver) == "sqlite3" {
		sub = "migrations/sqlite"
		dialect = goose.DialectSQLite3
	}

	fsys, err := fs.Sub(embedded, sub)
	if err != nil {
		return 0, fmt.Errorf("open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("goose up: %w", err)
	}
	return len(results), nil
}
