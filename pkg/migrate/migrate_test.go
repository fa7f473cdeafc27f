package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fastrepair/fastrepair-backend/pkg/migrate"
)

func TestPostgresLedgerMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "postgres", "*_create_ledger_tables.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS cash_accounts",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_cash_accounts_shop_id ON cash_accounts (shop_id)",
		"FOREIGN KEY (cash_account_id) REFERENCES cash_accounts(id)",
		"CHECK (amount > 0)",
		"balance numeric(12,2) NOT NULL DEFAULT 0",
		"DROP TABLE IF EXISTS movements",
	}
	for _, sub := range checks {
		assert.Contains(t, content, sub)
	}
}

func TestPostgresLegacyMigrationMapsLiterals(t *testing.T) {
	content := readMigration(t, "postgres", "*_normalize_legacy_literals.sql")

	for _, sub := range []string{
		"WHEN 'ajout de fonds' THEN 'deposit'",
		"WHEN 'prêt' THEN 'withdrawal'",
		"WHEN 'terminée' THEN 'completed'",
		"CHECK (kind IN ('deposit', 'withdrawal'))",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, migrate.ValidateDir(filepath.Join("migrations", "postgres")))
	require.NoError(t, migrate.ValidateDir(filepath.Join("migrations", "sqlite")))
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Register Notes!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_register_notes.sql"))
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}

func TestApplySQLiteCreatesSchema(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_apply?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	applied, err := migrate.Apply(context.Background(), sqlDB, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	for _, table := range []string{"shops", "cash_accounts", "movements", "repairs", "outbox_events", "outbox_dlq"} {
		assert.True(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}

	applied, err = migrate.Apply(context.Background(), sqlDB, "sqlite")
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, "sqlite3", migrate.DialectFor("SQLite"))
	assert.Equal(t, "postgres", migrate.DialectFor("postgres"))
	assert.Equal(t, migrate.SQLiteDir, migrate.DirFor("sqlite"))
	assert.Equal(t, migrate.DefaultDir, migrate.DirFor(""))
}

func readMigration(t *testing.T, dialect, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", dialect, pattern))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matching %s", pattern)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}
