package session

import (
	"slices"
	"sync"

	"github.com/relaymq/relay-go/pkg/subscription"
)

// routingTable maps topics to delivery sinks. Only the daemon goroutine
// mutates it; the lock lets other goroutines take snapshots.
type routingTable struct {
	mu    sync.RWMutex
	sinks map[string]*subscription.Sink
}

func newRoutingTable() *routingTable {
	return &routingTable{sinks: make(map[string]*subscription.Sink)}
}

// insert routes topic to sink and returns the sink it replaced, if any.
func (r *routingTable) insert(topic string, sink *subscription.Sink) *subscription.Sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.sinks[topic]
	r.sinks[topic] = sink
	return old
}

func (r *routingTable) get(topic string) (*subscription.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[topic]
	return sink, ok
}

func (r *routingTable) remove(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, topic)
}

// topics returns the routed topics in sorted order.
func (r *routingTable) topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sinks))
	for t := range r.sinks {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (r *routingTable) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// closeAll closes and removes every sink.
func (r *routingTable) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, sink := range r.sinks {
		sink.Close()
		delete(r.sinks, t)
	}
}
