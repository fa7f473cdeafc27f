package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpExtractsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_cash_accounts_shop_id", TableName: "cash_accounts", Message: "duplicate key value"}
	err := Wrap(CodeConflict, fmt.Errorf("insert cash account: %w", pgErr), "cash account already exists")

	d := Dump(err)
	assert.Equal(t, CodeConflict, d.Code)
	assert.False(t, d.Retryable)
	assert.Equal(t, "23505", d.PGCode)
	assert.Equal(t, "ux_cash_accounts_shop_id", d.PGConstraint)
	assert.Equal(t, "cash_accounts", d.PGTable)
	require.Len(t, d.Chain, 3)
}

func TestDumpExtractsSQLiteCodes(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	d := Dump(Wrap(CodeDependency, busy, "record movement"))
	assert.Equal(t, CodeDependency, d.Code)
	assert.True(t, d.Retryable)
	assert.Equal(t, int(sqlite3.ErrBusy), d.SQLiteCode)
	assert.Empty(t, d.PGCode)
}

func TestDumpNil(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
