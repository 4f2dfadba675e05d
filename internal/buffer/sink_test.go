package buffer

import (
	"testing"

	"github.com/bbc/gst-roq/pkg/roq"
)

func TestSinkPushDeliversToCallback(t *testing.T) {
	s := NewSink(roq.BasicCaps{SSRC: 1, PayloadType: 96})
	var got []byte
	s.OnPacket(func(b []byte) { got = b })

	if err := s.Push([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if string(got) != string([]byte{1, 2, 3}) {
		t.Errorf("callback saw %v, want [1 2 3]", got)
	}
}

func TestSinkCloseStopsDelivery(t *testing.T) {
	s := NewSink(nil)
	calls := 0
	s.OnPacket(func([]byte) { calls++ })

	var closed int
	s.OnClose(func() { closed++ })

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed != 1 {
		t.Errorf("OnClose fired %d times, want 1", closed)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if closed != 1 {
		t.Errorf("OnClose fired again on second Close, want still 1")
	}

	if err := s.Push([]byte{1}); err != nil {
		t.Fatalf("Push after close: %v", err)
	}
	if calls != 0 {
		t.Errorf("onPacket fired %d times after close, want 0", calls)
	}
}

func TestSinkSendEvent(t *testing.T) {
	s := NewSink(nil)
	var got roq.Event
	s.OnEvent(func(e roq.Event) { got = e })

	if err := s.SendEvent(roq.Event{Type: roq.EventEOS}); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	if got.Type != roq.EventEOS {
		t.Errorf("event type = %v, want EventEOS", got.Type)
	}
}
