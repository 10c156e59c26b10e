// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

var seq atomic.Int64

// Open returns a fresh in-memory sqlite database with the schema applied.
// It is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:dbtest%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", seq.Add(1))
	h, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}
