// Package bridge fans sealed table states out to consumers: the
// WebSocket server, loggers, bot adapters. Delivery is synchronous and
// in subscription order so a consumer never sees states out of order;
// a panicking consumer is isolated and logged, never fatal.
package bridge

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tablesight/tablesight/internal/state"
	"github.com/tablesight/tablesight/internal/syncx"
)

// Handler receives each published state.
type Handler func(state.TableState)

// Filter decides whether a subscriber receives a state. A nil filter
// receives everything.
type Filter func(state.TableState) bool

// StageFilter passes only states on the given street.
func StageFilter(stage state.Stage) Filter {
	return func(s state.TableState) bool { return s.Stage == stage }
}

// MinConfidenceFilter passes only states at or above the floor.
func MinConfidenceFilter(floor float64) Filter {
	return func(s state.TableState) bool { return s.Confidence >= floor }
}

type subscriber struct {
	id      string
	handler Handler
	filter  Filter
}

// Bridge is the publication hub between the capture engine and its
// consumers.
type Bridge struct {
	mu        sync.RWMutex
	subs      []subscriber
	latest    *syncx.Cell[state.TableState]
	hasLatest *syncx.Cell[bool]
	published *syncx.Cell[uint64]
}

// New creates an empty bridge.
func New() *Bridge {
	return &Bridge{
		latest:    syncx.NewCell(state.TableState{}),
		hasLatest: syncx.NewCell(false),
		published: syncx.NewCell(uint64(0)),
	}
}

// Subscribe registers a handler and returns its subscription id.
// filter may be nil to receive every state.
func (b *Bridge) Subscribe(fn Handler, filter Filter) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.subs = append(b.subs, subscriber{id: id, handler: fn, filter: filter})
	b.mu.Unlock()
	slog.Debug("bridge subscriber added", "id", id)
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bridge) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish records a sealed state as the latest and delivers it to every
// matching subscriber in subscription order. Latest is updated first so
// a subscriber reading it inside its callback sees the state it was
// handed, not the previous one.
func (b *Bridge) Publish(s state.TableState) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	b.latest.Store(s)
	b.hasLatest.Store(true)
	b.published.Update(func(n *uint64) { *n++ })

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(s) {
			continue
		}
		deliver(sub, s)
	}
}

func deliver(sub subscriber, s state.TableState) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("subscriber panicked", "id", sub.id, "panic", r)
		}
	}()
	sub.handler(s)
}

// Latest returns the most recently published state. ok is false before
// the first publication.
func (b *Bridge) Latest() (state.TableState, bool) {
	return b.latest.Load(), b.hasLatest.Load()
}

// Published reports how many states have been published.
func (b *Bridge) Published() uint64 {
	return b.published.Load()
}

// Subscribers reports the current subscription count.
func (b *Bridge) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
