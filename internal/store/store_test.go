package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/HerbHall/netsweep/pkg/plugin"
)

func tempDB(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New(%q): %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_creates_database(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestNew_invalid_path(t *testing.T) {
	if _, err := New("/nonexistent/path/to/db"); err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestNew_foreign_keys_enabled(t *testing.T) {
	s := tempDB(t)
	var on int
	if err := s.DB().QueryRow("PRAGMA foreign_keys").Scan(&on); err != nil {
		t.Fatalf("query pragma: %v", err)
	}
	if on != 1 {
		t.Errorf("foreign_keys = %d, want 1", on)
	}
}

func TestTx_commit_and_rollback(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	if _, err := s.DB().ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t (id, name) VALUES (1, 'core-1')")
		return err
	})
	if err != nil {
		t.Fatalf("Tx commit: %v", err)
	}

	boom := errors.New("boom")
	err = s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (id, name) VALUES (2, 'edge-1')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Tx rollback error = %v, want %v", err, boom)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d rows, want 1", count)
	}
}

func createTable(name string) func(tx *sql.Tx) error {
	return func(tx *sql.Tx) error {
		_, err := tx.Exec("CREATE TABLE " + name + " (id INTEGER PRIMARY KEY)")
		return err
	}
}

func TestMigrate_applies_once(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	migs := []plugin.Migration{
		{Version: 1, Description: "a", Up: createTable("a")},
		{Version: 2, Description: "b", Up: createTable("b")},
	}

	if err := s.Migrate(ctx, "discovery", migs); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	// CREATE TABLE would fail on a second application.
	if err := s.Migrate(ctx, "discovery", migs); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	v, err := s.AppliedVersion(ctx, "discovery")
	if err != nil {
		t.Fatalf("AppliedVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("AppliedVersion = %d, want 2", v)
	}
	if v, _ := s.AppliedVersion(ctx, "snapshot"); v != 0 {
		t.Errorf("AppliedVersion(snapshot) = %d, want 0", v)
	}
}

func TestMigrate_failure_rolls_back(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	migs := []plugin.Migration{
		{Version: 1, Description: "bad", Up: func(tx *sql.Tx) error {
			if err := createTable("half")(tx); err != nil {
				return err
			}
			return errors.New("fail")
		}},
	}
	if err := s.Migrate(ctx, "discovery", migs); err == nil {
		t.Fatal("expected migration error")
	}
	var n int
	_ = s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'half'").Scan(&n)
	if n != 0 {
		t.Error("table from failed migration should not exist")
	}
}

func TestMigrate_out_of_order(t *testing.T) {
	s := tempDB(t)
	migs := []plugin.Migration{
		{Version: 2, Description: "b", Up: createTable("b")},
		{Version: 1, Description: "a", Up: createTable("a")},
	}
	if err := s.Migrate(context.Background(), "discovery", migs); err == nil {
		t.Fatal("expected ordering error")
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		current string
		wantErr error
	}{
		{"first run", "", "1.0.0", nil},
		{"same", "1.0.0", "1.0.0", nil},
		{"upgrade", "1.0.0", "1.2.0", nil},
		{"downgrade", "1.2.0", "1.0.0", ErrNewerSchema},
		{"dev binary", "2.0.0", "dev", nil},
		{"dev database", "dev", "0.1.0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tempDB(t)
			ctx := context.Background()
			if tt.stored != "" {
				if err := s.CheckVersion(ctx, tt.stored); err != nil {
					t.Fatalf("seed CheckVersion(%q): %v", tt.stored, err)
				}
			}
			err := s.CheckVersion(ctx, tt.current)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckVersion(%q) error = %v, want %v", tt.current, err, tt.wantErr)
			}
		})
	}
}
