package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/codec"
	"github.com/codelits/invoice-manager/internal/sqlitedb"
)

// SQLiteStore keeps documents in the documents table. Writes are
// serialised in process so snapshots are published in commit order.
type SQLiteStore struct {
	pool    *sqlitedb.Pool
	clock   clock.Clock
	hub     *hub
	writeMu sync.Mutex
}

// NewSQLiteStore creates a store on pool.
func NewSQLiteStore(pool *sqlitedb.Pool, clk clock.Clock) *SQLiteStore {
	return &SQLiteStore{pool: pool, clock: clock.OrReal(clk), hub: newHub()}
}

func (s *SQLiteStore) Subscribe(ctx context.Context, collection string) (<-chan Snapshot, error) {
	if err := checkAuth(ctx); err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	records, err := s.list(ctx, collection)
	if err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, collection, Snapshot{Collection: collection, Records: records}), nil
}

func (s *SQLiteStore) Add(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection, id string, doc any) error {
	if err := checkAuth(ctx); err != nil {
		return err
	}
	data, err := codec.Marshal(doc)
	if err != nil {
		return err
	}
	return s.write(ctx, collection, func(conn *sqlite.Conn) error {
		now := s.clock.Now().UnixNano()
		return sqlitex.Execute(conn,
			`INSERT INTO documents (collection, id, data, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{Args: []any{collection, id, data, now, now}})
	})
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if err := checkAuth(ctx); err != nil {
		return err
	}
	return s.write(ctx, collection, func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endTransaction(&err)

		current, found, err := getRecord(conn, collection, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		merged, err := codec.Merge(current.Data, partial)
		if err != nil {
			return err
		}
		return sqlitex.Execute(conn,
			`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
			&sqlitex.ExecOptions{Args: []any{merged, s.clock.Now().UnixNano(), collection, id}})
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if err := checkAuth(ctx); err != nil {
		return err
	}
	return s.write(ctx, collection, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn,
			`DELETE FROM documents WHERE collection = ? AND id = ?`,
			&sqlitex.ExecOptions{Args: []any{collection, id}}); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Record, error) {
	if err := checkAuth(ctx); err != nil {
		return Record{}, err
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, err
	}
	defer s.pool.Put(conn)

	rec, found, err := getRecord(conn, collection, id)
	if err != nil {
		return Record{}, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context, collection string) ([]Record, error) {
	if err := checkAuth(ctx); err != nil {
		return nil, err
	}
	return s.list(ctx, collection)
}

// write runs fn on a pooled connection and publishes the resulting
// snapshot while still holding the write lock.
func (s *SQLiteStore) write(ctx context.Context, collection string, fn func(conn *sqlite.Conn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	err = fn(conn)
	s.pool.Put(conn)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("docstore: write %s: %w", collection, err)
	}

	if s.hub.subscribers(collection) == 0 {
		return nil
	}
	// The write is committed; the snapshot must not fail with the caller.
	records, err := s.list(context.WithoutCancel(ctx), collection)
	if err != nil {
		return fmt.Errorf("docstore: snapshot %s: %w", collection, err)
	}
	s.hub.publish(Snapshot{Collection: collection, Records: records})
	return nil
}

func (s *SQLiteStore) list(ctx context.Context, collection string) ([]Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	records := []Record{}
	err = sqlitex.Execute(conn,
		`SELECT id, data, created_at, updated_at FROM documents
		 WHERE collection = ? ORDER BY created_at, id`,
		&sqlitex.ExecOptions{
			Args: []any{collection},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				records = append(records, scanRecord(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("docstore: list %s: %w", collection, err)
	}
	return records, nil
}

func getRecord(conn *sqlite.Conn, collection, id string) (Record, bool, error) {
	var rec Record
	found := false
	err := sqlitex.Execute(conn,
		`SELECT id, data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{collection, id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rec = scanRecord(stmt)
				found = true
				return nil
			},
		})
	return rec, found, err
}

func scanRecord(stmt *sqlite.Stmt) Record {
	data := make([]byte, stmt.ColumnLen(1))
	stmt.ColumnBytes(1, data)
	return Record{
		ID:        stmt.ColumnText(0),
		Data:      data,
		CreatedAt: time.Unix(0, stmt.ColumnInt64(2)).UTC(),
		UpdatedAt: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
	}
}
