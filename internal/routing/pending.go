// Package routing implements the two-level (SSRC, PayloadType) routing
// table and the FIFO pending-sink matcher described in spec.md §4.5
// and §4.6.
package routing

import (
	"sync"

	"github.com/gammazero/deque"

	"github.com/bbc/gst-roq/pkg/roq"
)

// PendingMatcher is a FIFO queue of pre-registered downstream request
// sinks awaiting caps-matching assignment to a future (SSRC, PT) pair,
// per spec.md §4.6. It is safe for concurrent use through its own
// mutex. Table.LookupOrCreate calls Match with the Table's lock held;
// Table.RegisterPendingSink calls Register without taking that lock.
//
// The teacher's twcc.go reaches for gammazero/deque as a sliding
// window of send records; here the same structure backs a FIFO of
// pending sinks instead.
type PendingMatcher struct {
	mu    sync.Mutex
	queue deque.Deque[roq.Output]
}

// NewPendingMatcher returns an empty matcher.
func NewPendingMatcher() *PendingMatcher {
	return &PendingMatcher{}
}

// Register enqueues a pre-allocated sink awaiting a matching (SSRC,
// PT) pair.
func (m *PendingMatcher) Register(sink roq.Output) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue.PushBack(sink)
}

// Match scans the queue in FIFO order for the first sink whose
// accepted caps intersect caps, removing and returning it.
func (m *PendingMatcher) Match(caps roq.Caps) (roq.Output, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < m.queue.Len(); i++ {
		sink := m.queue.At(i)
		if sink.Caps() != nil && caps != nil && sink.Caps().Intersects(caps) {
			m.queue.Remove(i)
			return sink, true
		}
	}
	return nil, false
}

// Len reports the number of sinks currently pending.
func (m *PendingMatcher) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}
