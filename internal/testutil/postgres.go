package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"tessera/internal/database"
)

// testDBLockID serialises test packages that share one database.
const testDBLockID int64 = 801234569

// OpenPostgres connects to TEST_DATABASE_URL, migrates and truncates it.
// The test is skipped when the variable is unset or the server is down.
func OpenPostgres(t *testing.T, lockTimeout time.Duration) *database.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Open(dsn, lockTimeout)
	if err != nil {
		t.Skipf("skipping Postgres tests: %v", err)
	}
	db.SetMaxOpenConns(8)
	t.Cleanup(func() { db.Close() })

	lockTestDB(t, db)

	if err := db.RunMigrations(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE revocations, redemptions, sales, cards, tariffs, events, persons CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

func lockTestDB(t *testing.T, db *database.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, testDBLockID); err != nil {
		conn.Close()
		t.Fatalf("acquire test lock: %v", err)
	}

	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, testDBLockID)
		conn.Close()
	})
}

// Exec runs a fixture statement outside any unit.
func Exec(t *testing.T, db *sql.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
