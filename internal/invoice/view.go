package invoice

import (
	"context"
	"sync"

	"github.com/codelits/invoice-manager/internal/docstore"
)

// View is a live, read-only copy of the invoices collection. Every
// snapshot pushed by the store replaces the whole list. The view stops
// following the store when the context passed to Watch is done.
type View struct {
	mu       sync.RWMutex
	invoices []Invoice
	loaded   bool
	err      error

	changed chan struct{}
	done    chan struct{}
}

// Watch subscribes to the invoices collection.
func Watch(ctx context.Context, store docstore.Store) (*View, error) {
	snaps, err := store.Subscribe(ctx, docstore.Invoices)
	if err != nil {
		return nil, err
	}
	v := &View{
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go v.follow(snaps)
	return v, nil
}

func (v *View) follow(snaps <-chan docstore.Snapshot) {
	defer close(v.done)
	for snap := range snaps {
		list, err := decodeInvoices(snap.Records)
		v.mu.Lock()
		if err != nil {
			v.err = err
		} else {
			v.invoices, v.err = list, nil
		}
		v.loaded = true
		v.mu.Unlock()

		select {
		case v.changed <- struct{}{}:
		default:
		}
	}
}

// Changed receives a value after each snapshot has been applied. Bursts
// coalesce into one notification.
func (v *View) Changed() <-chan struct{} { return v.changed }

// Done is closed once the subscription has ended.
func (v *View) Done() <-chan struct{} { return v.done }

// Loaded reports whether the first snapshot has arrived.
func (v *View) Loaded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loaded
}

// Err is the decode error of the latest snapshot, if any. The previous
// list is kept when a snapshot cannot be decoded.
func (v *View) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// Invoices returns the current list, most recent issue date first.
func (v *View) Invoices() []Invoice {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Invoice, len(v.invoices))
	copy(out, v.invoices)
	return out
}

// Lookup finds an invoice in the current list.
func (v *View) Lookup(identifier string, by LookupKey) (Invoice, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return lookup(v.invoices, identifier, by)
}

// DistinctPriorDescriptions returns the unique line-item descriptions of
// the current list.
func (v *View) DistinctPriorDescriptions() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return distinctDescriptions(v.invoices)
}
