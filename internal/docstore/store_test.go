package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/sqlitedb"
)

type note struct {
	ID    string  `json:"id,omitempty"`
	Title string  `json:"title"`
	Total float64 `json:"total"`
}

func signedIn() context.Context {
	return auth.ContextWithIdentity(context.Background(), &auth.Identity{UID: "u1", Email: "a@b.com"})
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	pool, err := sqlitedb.Open(sqlitedb.Config{Path: filepath.Join(t.TempDir(), "docs.db"), PoolSize: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(clk),
		"sqlite": NewSQLiteStore(pool, clk),
	}
}

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestStore_RequiresAuthentication(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.Add(ctx, Invoices, note{Title: "x"}); !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("Add() error = %v", err)
			}
			if _, err := s.List(ctx, Invoices); !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("List() error = %v", err)
			}
			if _, err := s.Subscribe(ctx, Invoices); !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("Subscribe() error = %v", err)
			}
			if err := s.Update(ctx, Invoices, "x", map[string]any{"a": 1}); !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("Update() error = %v", err)
			}
			if err := s.Delete(ctx, Invoices, "x"); !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("Delete() error = %v", err)
			}
			if _, err := s.Add(auth.WithSystem(ctx), Invitations, note{Title: "sys"}); err != nil {
				t.Errorf("system Add() error = %v", err)
			}
		})
	}
}

func TestStore_CRUD(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := signedIn()
			id, err := s.Add(ctx, Clients, note{Title: "Acme", Total: 10})
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}

			if err := s.Update(ctx, Clients, id, map[string]any{"total": 25.5}); err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			rec, err := s.Get(ctx, Clients, id)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			var got note
			if err := rec.Decode(&got); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.Title != "Acme" || got.Total != 25.5 {
				t.Fatalf("got %+v", got)
			}

			if err := s.Set(ctx, Clients, id, note{Title: "Acme Ltd"}); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			list, err := s.List(ctx, Clients)
			if err != nil || len(list) != 1 {
				t.Fatalf("List() = %d records, %v", len(list), err)
			}

			if err := s.Delete(ctx, Clients, id); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := s.Get(ctx, Clients, id); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() after delete error = %v", err)
			}
			if err := s.Delete(ctx, Clients, id); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Delete() error = %v", err)
			}
			if err := s.Update(ctx, Clients, "missing", map[string]any{"x": 1}); !errors.Is(err, ErrNotFound) {
				t.Errorf("Update() missing error = %v", err)
			}
		})
	}
}

func TestStore_SubscribeDeliversFullSnapshots(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(signedIn())
			defer cancel()

			ch, err := s.Subscribe(ctx, Invoices)
			if err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			if snap := receive(t, ch); len(snap.Records) != 0 {
				t.Fatalf("initial snapshot has %d records", len(snap.Records))
			}

			if _, err := s.Add(ctx, Invoices, note{Title: "one"}); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if snap := receive(t, ch); len(snap.Records) != 1 || snap.Collection != Invoices {
				t.Fatalf("snapshot = %+v", snap)
			}

			// Writes to another collection are not delivered here.
			if _, err := s.Add(ctx, Clients, note{Title: "c"}); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if _, err := s.Add(ctx, Invoices, note{Title: "two"}); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			snap := receive(t, ch)
			if snap.Collection != Invoices || len(snap.Records) != 2 {
				t.Fatalf("snapshot = %+v", snap)
			}
		})
	}
}

func TestStore_SlowSubscriberSeesLatest(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(signedIn())
			defer cancel()

			ch, err := s.Subscribe(ctx, Invoices)
			if err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			for i := 0; i < 5; i++ {
				if _, err := s.Add(ctx, Invoices, note{Title: "n"}); err != nil {
					t.Fatalf("Add() error = %v", err)
				}
			}
			if snap := receive(t, ch); len(snap.Records) != 5 {
				t.Fatalf("latest snapshot has %d records, want 5", len(snap.Records))
			}
		})
	}
}

func TestStore_SubscriptionClosesOnCancel(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(signedIn())
			ch, err := s.Subscribe(ctx, Settings)
			if err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			receive(t, ch)
			cancel()

			select {
			case _, ok := <-ch:
				if ok {
					// A snapshot may race the close; the next read must see it closed.
					if _, ok := <-ch; ok {
						t.Fatal("channel still open after cancel")
					}
				}
			case <-time.After(2 * time.Second):
				t.Fatal("channel not closed after cancel")
			}
		})
	}
}

func TestDecodeAll(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := signedIn()
	id, _ := s.Add(ctx, Clients, note{Title: "Acme"})
	records, _ := s.List(ctx, Clients)
	notes, err := DecodeAll(records, func(n *note, id string) { n.ID = id })
	if err != nil {
		t.Fatalf("DecodeAll() error = %v", err)
	}
	if len(notes) != 1 || notes[0].ID != id || notes[0].Title != "Acme" {
		t.Fatalf("notes = %+v", notes)
	}
}

func TestRecord_DecodeErrorShowsDocument(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := signedIn()
	id, _ := s.Add(ctx, Clients, note{Title: "Acme"})
	rec, err := s.Get(ctx, Clients, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var n int
	err = rec.Decode(&n)
	if err == nil {
		t.Fatal("Decode() into int should fail")
	}
	if !strings.Contains(err.Error(), id) || !strings.Contains(err.Error(), `"Acme"`) {
		t.Errorf("Decode() error = %v, want the id and document", err)
	}
}

func TestSQLiteStore_CommittedWriteSurvivesCancel(t *testing.T) {
	pool, err := sqlitedb.Open(sqlitedb.Config{Path: filepath.Join(t.TempDir(), "docs.db"), PoolSize: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	s := NewSQLiteStore(pool, nil)

	subCtx, stop := context.WithCancel(signedIn())
	defer stop()
	ch, err := s.Subscribe(subCtx, Invoices)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	receive(t, ch)

	ctx, cancel := context.WithCancel(signedIn())
	err = s.write(ctx, Invoices, func(*sqlite.Conn) error {
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("write() error = %v after the write committed", err)
	}
	receive(t, ch)
}
