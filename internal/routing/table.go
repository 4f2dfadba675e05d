package routing

import (
	"sync"

	"github.com/go-logr/logr"

	"github.com/bbc/gst-roq/internal/metrics"
	"github.com/bbc/gst-roq/pkg/roq"
)

// NewOutputFunc requests a brand new output sink from the surrounding
// framework for a never-before-seen (SSRC, PT) pair (spec.md §4.5
// step 5).
type NewOutputFunc func(ssrc uint32, pt uint8, caps roq.Caps) (roq.Output, error)

// Entry is a Routing Entry per spec.md §3: a lazily-created output
// handle plus the small amount of per-(SSRC,PT) state the core
// tracks alongside it.
type Entry struct {
	Output      roq.Output
	ClockOffset int64
	LastFlags   roq.BufferFlags
}

// Table is the two-level (SSRC -> PayloadType -> Entry) routing table
// of spec.md §4.5, symmetrical at sender (tracking per-flow state) and
// receiver (dispatching). It is deliberately generic over "what caps
// look like" via the roq.Caps interface — the hosting framework
// supplies concrete caps and the NewOutputFunc that creates outputs.
type Table struct {
	mu      sync.Mutex
	entries map[uint32]map[uint8]*Entry
	pending *PendingMatcher
	newOut  NewOutputFunc
	logger  logr.Logger
	label   string
}

// NewTable returns an empty routing table. newOut may be nil if the
// caller never needs lazy output creation (e.g. a sender-side table
// used only for bookkeeping). label ("rtp"/"rtcp") identifies this
// table in the internal/metrics gauge.
func NewTable(newOut NewOutputFunc, logger logr.Logger, label string) *Table {
	if logger == (logr.Logger{}) {
		logger = roq.Logger
	}
	return &Table{
		entries: make(map[uint32]map[uint8]*Entry),
		pending: NewPendingMatcher(),
		newOut:  newOut,
		logger:  logger,
		label:   label,
	}
}

// RegisterPendingSink registers a pre-allocated downstream sink for
// future caps-matching (spec.md §4.6).
func (t *Table) RegisterPendingSink(sink roq.Output) {
	t.pending.Register(sink)
}

// Lookup returns the cached entry for (ssrc, pt), if any, without
// creating one.
func (t *Table) Lookup(ssrc uint32, pt uint8) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byPT, ok := t.entries[ssrc]
	if !ok {
		return nil, false
	}
	e, ok := byPT[pt]
	return e, ok
}

// LookupOrCreate implements spec.md §4.5's lookup_or_create: return the
// cached output if present; otherwise try to bind a pending sink by
// caps intersection; otherwise request a new output from the
// framework. Output creation happens under the table lock per the
// teacher's recursive-mutex pattern (sfu.SFU embeds sync.RWMutex and
// holds it across session creation) — callers push data on the
// returned Entry's Output after releasing any other locks of their
// own, per spec.md §5 ("downstream emits must happen without holding
// per-stream locks").
func (t *Table) LookupOrCreate(ssrc uint32, pt uint8, caps roq.Caps) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byPT, ok := t.entries[ssrc]
	if !ok {
		byPT = make(map[uint8]*Entry)
		t.entries[ssrc] = byPT
	}
	if e, ok := byPT[pt]; ok {
		return e, nil
	}

	var out roq.Output
	if sink, ok := t.pending.Match(caps); ok {
		out = sink
		_ = out.SendEvent(roq.Event{Type: roq.EventStreamStart})
	} else {
		if t.newOut == nil {
			return nil, roq.ErrFatal
		}
		created, err := t.newOut(ssrc, pt, caps)
		if err != nil {
			return nil, err
		}
		out = created
	}

	entry := &Entry{Output: out}
	byPT[pt] = entry
	metrics.RoutingEntries.WithLabelValues(t.label).Inc()
	t.logger.V(1).Info("routing entry created", "ssrc", ssrc, "pt", pt)
	return entry, nil
}

// Remove deletes the (ssrc, pt) entry, if present, and returns it so
// the caller can close its output outside the table lock.
func (t *Table) Remove(ssrc uint32, pt uint8) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byPT, ok := t.entries[ssrc]
	if !ok {
		return nil, false
	}
	e, ok := byPT[pt]
	if !ok {
		return nil, false
	}
	delete(byPT, pt)
	if len(byPT) == 0 {
		delete(t.entries, ssrc)
	}
	metrics.RoutingEntries.WithLabelValues(t.label).Dec()
	return e, true
}

// ForEach visits every entry currently in the table, e.g. to propagate
// EOS (spec.md §5 "Cancellation").
func (t *Table) ForEach(fn func(ssrc uint32, pt uint8, e *Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ssrc, byPT := range t.entries {
		for pt, e := range byPT {
			fn(ssrc, pt, e)
		}
	}
}

// Len reports the number of distinct (ssrc, pt) entries, used by
// internal/metrics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, byPT := range t.entries {
		n += len(byPT)
	}
	return n
}
