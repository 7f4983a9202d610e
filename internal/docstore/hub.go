package docstore

import (
	"context"
	"sync"
)

// hub fans snapshots out to subscribers. Each subscriber channel has a
// buffer of one; publishing replaces an unread snapshot so the consumer
// always observes the latest state and the writer never blocks.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Snapshot]struct{}
}

func newHub() *hub {
	return &hub{subs: map[string]map[chan Snapshot]struct{}{}}
}

// subscribe registers a channel primed with initial and closes it when
// ctx is done.
func (h *hub) subscribe(ctx context.Context, collection string, initial Snapshot) <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	ch <- initial

	h.mu.Lock()
	if h.subs[collection] == nil {
		h.subs[collection] = map[chan Snapshot]struct{}{}
	}
	h.subs[collection][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[collection], ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

func (h *hub) publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[snap.Collection] {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (h *hub) subscribers(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}
