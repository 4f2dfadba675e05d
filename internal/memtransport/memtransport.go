// Package memtransport is an in-process, allocation-light
// implementation of pkg/roq's StreamTransport/DatagramTransport
// interfaces, used by unit and round-trip tests that want to exercise
// pkg/mux and pkg/demux without a real QUIC connection.
package memtransport

import (
	"sync"

	"github.com/bbc/gst-roq/pkg/roq"
)

// Stream is an in-memory roq.StreamHandle. Every Write is forwarded to
// OnWrite, if set; set StopSending to make the next Write report
// roq.EmitStreamClosed, simulating a peer's QUIC STOP_SENDING signal.
type Stream struct {
	mu          sync.Mutex
	id          int64
	closed      bool
	StopSending bool
	OnWrite     func(b []byte)
	OnClose     func()
}

// ID implements roq.StreamHandle.
func (s *Stream) ID() int64 { return s.id }

// Closed reports whether Close has been called, for test assertions.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Write implements roq.StreamHandle.
func (s *Stream) Write(b []byte) (roq.EmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return roq.EmitOK, roq.ErrFatal
	}
	if s.StopSending {
		s.StopSending = false
		return roq.EmitStreamClosed, nil
	}
	if s.OnWrite != nil {
		cp := append([]byte(nil), b...)
		s.OnWrite(cp)
	}
	return roq.EmitOK, nil
}

// Close implements roq.StreamHandle.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.OnClose != nil {
		s.OnClose()
	}
	return nil
}

// StreamTransport hands out sequentially-numbered Streams.
type StreamTransport struct {
	mu      sync.Mutex
	nextID  int64
	OnOpen  func(*Stream)
	Streams []*Stream
}

// OpenStream implements roq.StreamTransport.
func (t *StreamTransport) OpenStream() (roq.StreamHandle, error) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.mu.Unlock()

	s := &Stream{id: id}
	t.mu.Lock()
	t.Streams = append(t.Streams, s)
	t.mu.Unlock()
	if t.OnOpen != nil {
		t.OnOpen(s)
	}
	return s, nil
}

// DatagramTransport forwards every datagram to OnSend.
type DatagramTransport struct {
	OnSend func(b []byte)
}

// SendDatagram implements roq.DatagramTransport.
func (t *DatagramTransport) SendDatagram(b []byte) (roq.EmitResult, error) {
	if t.OnSend != nil {
		cp := append([]byte(nil), b...)
		t.OnSend(cp)
	}
	return roq.EmitOK, nil
}
