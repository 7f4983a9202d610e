// Package docstore is the document persistence collaborator. Documents
// live in named collections, are encoded with the codec package and can
// be observed through live subscriptions that always deliver the whole
// collection.
//
// Every operation requires an authenticated context (see auth.Authenticated);
// anonymous callers get ErrUnauthenticated.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codelits/invoice-manager/internal/auth"
	"github.com/codelits/invoice-manager/internal/codec"
)

// Collection names.
const (
	Invoices    = "invoices"
	Clients     = "clients"
	Settings    = "settings"
	Invitations = "invitations"
)

var (
	ErrUnauthenticated = errors.New("docstore: not authenticated")
	ErrNotFound        = errors.New("docstore: document not found")
)

// Record is one stored document.
type Record struct {
	ID        string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// maxDiagnostic bounds the document dump attached to decode errors.
const maxDiagnostic = 256

// Decode unmarshals the document into v. A failure carries the document
// in diagnostic notation.
func (r Record) Decode(v any) error {
	err := codec.Unmarshal(r.Data, v)
	if err == nil {
		return nil
	}
	diag, derr := codec.Diagnose(r.Data)
	if derr != nil {
		return fmt.Errorf("docstore: decode %s: %w", r.ID, err)
	}
	if len(diag) > maxDiagnostic {
		diag = diag[:maxDiagnostic] + "..."
	}
	return fmt.Errorf("docstore: decode %s: %w (document %s)", r.ID, err, diag)
}

// Snapshot is the full content of a collection at one point in time,
// ordered by creation time.
type Snapshot struct {
	Collection string
	Records    []Record
}

// Store is implemented by MemoryStore and SQLiteStore.
type Store interface {
	// Subscribe delivers the current snapshot immediately and a new one
	// after every write to collection. A slow consumer only sees the
	// latest snapshot. The channel is closed when ctx is done.
	Subscribe(ctx context.Context, collection string) (<-chan Snapshot, error)
	// Add stores doc under a generated id and returns the id.
	Add(ctx context.Context, collection string, doc any) (string, error)
	// Set creates or replaces the document id.
	Set(ctx context.Context, collection, id string, doc any) error
	// Update overlays the top-level fields of partial onto document id.
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	// Delete removes document id.
	Delete(ctx context.Context, collection, id string) error
	// Get returns document id or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Record, error)
	// List returns every document in collection.
	List(ctx context.Context, collection string) ([]Record, error)
}

func checkAuth(ctx context.Context) error {
	if !auth.Authenticated(ctx) {
		return ErrUnauthenticated
	}
	return ctx.Err()
}

// DecodeAll decodes every record of a snapshot or listing into a slice of
// T, calling setID so the document carries its storage id.
func DecodeAll[T any](records []Record, setID func(*T, string)) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		var v T
		if err := rec.Decode(&v); err != nil {
			return nil, err
		}
		if setID != nil {
			setID(&v, rec.ID)
		}
		out = append(out, v)
	}
	return out, nil
}
