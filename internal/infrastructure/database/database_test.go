package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenCreatesFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lumen.db")

	db := mustOpen(t, dbPath)
	defer db.Close() //nolint:errcheck // test cleanup

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
	}
}

func TestOpenCreatesParentDirs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "var", "lib", "lumen", "lumen.db")

	db := mustOpen(t, dbPath)
	defer db.Close() //nolint:errcheck // test cleanup

	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Error("database directory was not created")
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// Close on a nil handle must not panic or error.
	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestExecAndQuery(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		CREATE TABLE scratch_nodes (
			node_index INTEGER PRIMARY KEY,
			serial TEXT NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("ExecContext() CREATE error = %v", err)
	}

	result, err := db.ExecContext(ctx,
		"INSERT INTO scratch_nodes (serial) VALUES (?)", "SN100")
	if err != nil {
		t.Fatalf("ExecContext() INSERT error = %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("LastInsertId() error = %v", err)
	}
	if id != 1 {
		t.Errorf("LastInsertId() = %v, want 1", id)
	}

	var serial string
	err = db.QueryRowContext(ctx,
		"SELECT serial FROM scratch_nodes WHERE node_index = ?", id).Scan(&serial)
	if err != nil {
		t.Fatalf("QueryRowContext() error = %v", err)
	}
	if serial != "SN100" {
		t.Errorf("serial = %q, want %q", serial, "SN100")
	}
}

func TestTransactions(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()
	_, err := db.ExecContext(ctx,
		"CREATE TABLE tx_scratch (id INTEGER PRIMARY KEY, value TEXT)")
	if err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	insert := func(t *testing.T, value string, commit bool) {
		t.Helper()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tx_scratch (value) VALUES (?)", value); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
		if commit {
			err = tx.Commit()
		} else {
			err = tx.Rollback()
		}
		if err != nil {
			t.Fatalf("finishing tx: %v", err)
		}
	}

	count := func(t *testing.T, value string) int {
		t.Helper()
		var n int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM tx_scratch WHERE value = ?", value).Scan(&n)
		if err != nil {
			t.Fatalf("SELECT error = %v", err)
		}
		return n
	}

	t.Run("commit persists", func(t *testing.T) {
		insert(t, "committed", true)
		if got := count(t, "committed"); got != 1 {
			t.Errorf("expected 1 row, got %d", got)
		}
	})

	t.Run("rollback discards", func(t *testing.T) {
		insert(t, "rolled_back", false)
		if got := count(t, "rolled_back"); got != 0 {
			t.Errorf("expected 0 rows, got %d", got)
		}
	})
}

func TestSingleWriterPool(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // test cleanup

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %v, want 1", got)
	}
}

func mustOpen(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(Config{
		Path:        path,
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}

// openTestDB creates a throwaway database in a temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	return mustOpen(t, filepath.Join(t.TempDir(), "test.db"))
}
