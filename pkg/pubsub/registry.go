// Package pubsub delivers order status updates to live listeners.
//
// The Registry maps order ids to listener handles. The Publisher accepts
// updates from the pipeline onto a buffered channel and a single fanout task
// drains it into the Registry, so per-order delivery order matches publish
// order and the pipeline never waits on listeners.
package pubsub

import "sync"

// Handle is a listener attached to an order. Implementations must be
// comparable and Deliver must not block: a slow listener drops messages
// rather than delaying others.
type Handle interface {
	// Deliver hands msg to the listener and reports whether it was accepted.
	Deliver(msg []byte) bool
}

// Registry is a concurrency-safe orderID -> set of handles mapping.
// It holds no ownership of the handles.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]map[Handle]struct{}
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]map[Handle]struct{})}
}

// Subscribe attaches h to orderID. Late subscribers only see future updates.
func (r *Registry) Subscribe(orderID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[orderID]
	if !ok {
		set = make(map[Handle]struct{})
		r.subs[orderID] = set
	}
	set[h] = struct{}{}
}

// Unsubscribe detaches h. The order's entry is dropped with its last handle.
// Once Unsubscribe returns, h receives nothing further for orderID.
func (r *Registry) Unsubscribe(orderID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[orderID]
	if !ok {
		return
	}
	delete(set, h)
	if len(set) == 0 {
		delete(r.subs, orderID)
	}
}

// Fanout delivers msg to every handle subscribed to orderID and returns how
// many accepted it. It iterates a snapshot: handles added meanwhile may miss
// msg, handles removed meanwhile never receive it.
func (r *Registry) Fanout(orderID string, msg []byte) int {
	snapshot := r.snapshot(orderID)
	delivered := 0
	for _, h := range snapshot {
		if r.deliverIfSubscribed(orderID, h, msg) {
			delivered++
		}
	}
	return delivered
}

// Count returns the number of handles attached to orderID.
func (r *Registry) Count(orderID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[orderID])
}

// Orders returns the number of orders with at least one handle.
func (r *Registry) Orders() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) snapshot(orderID string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.subs[orderID]
	if len(set) == 0 {
		return nil
	}
	out := make([]Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

// deliverIfSubscribed holds the read lock across the membership check and
// the (non-blocking) delivery so it cannot interleave with Unsubscribe.
func (r *Registry) deliverIfSubscribed(orderID string, h Handle, msg []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.subs[orderID][h]; !ok {
		return false
	}
	return h.Deliver(msg)
}
