package sqlitedb

import (
	"context"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestOpen_AppliesSchema(t *testing.T) {
	pool, err := Open(Config{Path: filepath.Join(t.TempDir(), "app.db"), PoolSize: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	defer pool.Put(conn)

	var tables []string
	err = sqlitex.Execute(conn,
		"SELECT name FROM sqlite_master WHERE type='table' ORDER BY name",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tables = append(tables, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	if len(tables) != 2 || tables[0] != "documents" || tables[1] != "users" {
		t.Fatalf("tables = %v, want [documents users]", tables)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}
