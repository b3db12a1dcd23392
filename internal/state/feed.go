// Package state holds the shared mutable resources of the client: the
// application state container and the change feed that keeps independent
// views in sync without manual reloads.
package state

import "sync"

// ChangeKind classifies a change published on the feed. Subscribers declare
// exactly which kind they care about.
type ChangeKind string

const (
	ChangeVideoHistory ChangeKind = "history.video"
	ChangeImageHistory ChangeKind = "history.image"
	ChangeBalance      ChangeKind = "balance"
)

// Change describes one mutation of a shared resource. AccountKey is the
// partition that changed; it is empty for account-independent changes.
type Change struct {
	Kind       ChangeKind
	AccountKey string
}

// Handler receives published changes. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(Change)

// Feed is a typed publish/subscribe channel. Delivery is last-write-wins:
// handlers observe changes in publish order and there is no merging or
// replay.
type Feed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[ChangeKind]map[int]Handler
}

// NewFeed constructs an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[ChangeKind]map[int]Handler)}
}

// Subscribe registers a handler for one change kind and returns an
// unsubscribe func.
func (f *Feed) Subscribe(kind ChangeKind, h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	if f.subs[kind] == nil {
		f.subs[kind] = make(map[int]Handler)
	}
	f.subs[kind][id] = h

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[kind], id)
	}
}

// Publish delivers the change to every subscriber of its kind.
func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	handlers := make([]Handler, 0, len(f.subs[c.Kind]))
	for _, h := range f.subs[c.Kind] {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		h(c)
	}
}
