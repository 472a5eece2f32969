package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"
)

var testDB *TestDB

// TestMain starts a single postgres container shared by every test in the
// package. Run with -short to skip the container-backed tests entirely.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	db, err := SetupTestDatabase(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up test database: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	teardownCtx, teardownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	_ = testDB.Teardown(teardownCtx)
	teardownCancel()

	os.Exit(code)
}

// resetTables truncates every table and fails the test on error
func resetTables(t *testing.T) {
	t.Helper()
	if err := testDB.CleanupTables(context.Background()); err != nil {
		t.Fatalf("failed to clean tables: %v", err)
	}
}
