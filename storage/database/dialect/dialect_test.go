package dialect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestRebind_Postgres(t *testing.T) {
	d := New("postgres")
	got := d.Rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)")
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", got)
}

func TestRebind_NoChangeForSQLite(t *testing.T) {
	orig := "DELETE FROM t WHERE id = ? AND name = ?"
	assert.Equal(t, orig, New("sqlite").Rebind(orig))
	assert.Equal(t, orig, New("unknown").Rebind(orig))
}

func TestNameAndDriver(t *testing.T) {
	assert.Equal(t, NamePostgres, New("PostgreSQL").Name())
	assert.Equal(t, "pgx", New("postgres").DriverName())
	assert.Equal(t, "sqlite", New("sqlite3").DriverName())
	assert.Equal(t, NameUnknown, New("mysql").Name())
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"public"."domain_events"`, New("postgres").QuoteIdentifier("public.domain_events"))
	assert.Equal(t, `"domain_events"`, New("sqlite").QuoteIdentifier("domain_events"))
	assert.Equal(t, "domain_events", New("").QuoteIdentifier("domain_events"))
}

func TestIsUniqueViolation(t *testing.T) {
	sqlite := New("sqlite")
	assert.True(t, sqlite.IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: domain_events.stream_id, domain_events.version (2067)")))
	assert.False(t, sqlite.IsUniqueViolation(errors.New("database is locked")))
	assert.False(t, sqlite.IsUniqueViolation(nil))

	pg := New("postgres")
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, pg.IsUniqueViolation(wrapped))
	assert.False(t, pg.IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
}
