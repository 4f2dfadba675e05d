package buffer

import (
	"sync/atomic"

	"github.com/bbc/gst-roq/pkg/roq"
)

// Sink is a minimal roq.Output: a callback-driven packet sink. It keeps
// no list of sticky events; SendEvent only forwards to the OnEvent
// callback. Adapted from the teacher's RTCPReader
// (pkg/buffer/rtcpreader.go), which played the same "deliver bytes,
// notify via callback, track closed state" role for inbound RTCP. Here
// it plays the role of a bound output in the routing table (spec.md
// §4.5) — either wired directly as a test double, or embedded by a
// hosting framework's own pad type.
type Sink struct {
	caps     roq.Caps
	closed   atomicBool
	onPacket atomic.Value // func([]byte)
	onEvent  atomic.Value // func(roq.Event)
	onClose  func()
}

// NewSink returns a Sink advertising the given caps.
func NewSink(caps roq.Caps) *Sink {
	return &Sink{caps: caps}
}

// Push implements roq.Output.
func (s *Sink) Push(payload []byte) error {
	if s.closed.get() {
		return nil
	}
	if f, ok := s.onPacket.Load().(func([]byte)); ok {
		f(payload)
	}
	return nil
}

// Caps implements roq.Output.
func (s *Sink) Caps() roq.Caps { return s.caps }

// SendEvent implements roq.Output.
func (s *Sink) SendEvent(evt roq.Event) error {
	if f, ok := s.onEvent.Load().(func(roq.Event)); ok {
		f(evt)
	}
	return nil
}

// OnPacket registers the callback invoked by Push.
func (s *Sink) OnPacket(f func([]byte)) { s.onPacket.Store(f) }

// OnEvent registers the callback invoked by SendEvent.
func (s *Sink) OnEvent(f func(roq.Event)) { s.onEvent.Store(f) }

// OnClose registers the callback invoked by Close.
func (s *Sink) OnClose(fn func()) { s.onClose = fn }

// Close marks the sink closed and fires the OnClose callback once.
func (s *Sink) Close() error {
	if s.closed.get() {
		return nil
	}
	s.closed.set(true)
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}
