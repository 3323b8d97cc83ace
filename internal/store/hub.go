package store

import (
	"context"
	"log"
	"sync"

	"git.sr.ht/~jakintosh/studydesk/internal/domain"
)

type fetchFunc func(ctx context.Context, collection string) ([]domain.Document, error)

// hub fans change notifications out to live subscriptions. Each
// subscription owns one goroutine that re-reads the whole collection when
// woken, so a burst of writes collapses into a single snapshot.
type hub struct {
	mu    sync.Mutex
	subs  map[string]map[*subscription]struct{}
	fetch fetchFunc
}

func newHub(fetch fetchFunc) *hub {
	return &hub{
		subs:  make(map[string]map[*subscription]struct{}),
		fetch: fetch,
	}
}

type subscription struct {
	collection string
	fn         domain.SnapshotFunc
	wake       chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}
	once       sync.Once
}

func (h *hub) subscribe(ctx context.Context, collection string, fn domain.SnapshotFunc) domain.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		collection: collection,
		fn:         fn,
		wake:       make(chan struct{}, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	// initial snapshot
	sub.wake <- struct{}{}

	h.mu.Lock()
	if h.subs[collection] == nil {
		h.subs[collection] = make(map[*subscription]struct{})
	}
	h.subs[collection][sub] = struct{}{}
	h.mu.Unlock()

	go h.run(ctx, sub)

	return func() {
		sub.once.Do(func() {
			sub.cancel()
			<-sub.done
		})
	}
}

func (h *hub) run(ctx context.Context, sub *subscription) {
	defer close(sub.done)
	defer h.remove(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.wake:
		}

		docs, err := h.fetch(ctx, sub.collection)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("snapshot %s: %v", sub.collection, err)
			continue
		}

		if ctx.Err() != nil {
			return
		}
		sub.fn(docs)
	}
}

func (h *hub) remove(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sub.collection], sub)
	if len(h.subs[sub.collection]) == 0 {
		delete(h.subs, sub.collection)
	}
}

// notify wakes every subscription on collection.
func (h *hub) notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[collection] {
		wakeUp(sub)
	}
}

// notifyAll wakes every subscription, used when the source of a change is
// unknown.
func (h *hub) notifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.subs {
		for sub := range subs {
			wakeUp(sub)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	var all []*subscription
	for _, subs := range h.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.cancel()
	}
}

func (h *hub) count(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}

func wakeUp(sub *subscription) {
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}
