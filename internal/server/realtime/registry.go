// Package realtime keeps the open live-event streams of logged-in users.
// The Registry is created by the app and handed to whoever publishes or
// subscribes; there is no package-level instance.
package realtime

import (
	"sync"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/server/metrics"
)

type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// Subscription is one open stream. Events arrives closed once the
// subscription is removed or the registry shuts down.
type Subscription struct {
	UserID string
	Events <-chan Event

	ch chan Event
}

type Registry struct {
	mu     sync.Mutex
	buffer int
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

func NewRegistry(buffer int) *Registry {
	if buffer <= 0 {
		buffer = 1
	}
	return &Registry{buffer: buffer, subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe opens a stream for userID. On a closed registry the returned
// subscription's channel is already closed.
func (r *Registry) Subscribe(userID string) *Subscription {
	ch := make(chan Event, r.buffer)
	sub := &Subscription{UserID: userID, Events: ch, ch: ch}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		close(ch)
		return sub
	}
	set, ok := r.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[userID] = set
	}
	set[sub] = struct{}{}
	metrics.RealtimeConnections.Inc()
	return sub
}

// Unsubscribe is safe to call more than once.
func (r *Registry) Unsubscribe(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[sub.UserID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, sub.UserID)
	}
	close(sub.ch)
	metrics.RealtimeConnections.Dec()
}

// Publish delivers ev to every stream of userID and returns how many
// received it. Full buffers drop the event instead of blocking.
func (r *Registry) Publish(userID string, ev Event) int {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for sub := range r.subs[userID] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, set := range r.subs {
		n += len(set)
	}
	return n
}

// Close ends every stream. Later subscriptions are closed immediately.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for userID, set := range r.subs {
		for sub := range set {
			close(sub.ch)
			metrics.RealtimeConnections.Dec()
		}
		delete(r.subs, userID)
	}
}
