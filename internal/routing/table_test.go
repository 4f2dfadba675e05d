package routing

import (
	"testing"

	"github.com/bbc/gst-roq/pkg/roq"
)

type fakeOutput struct {
	caps    roq.Caps
	pushed  [][]byte
	events  []roq.Event
	pushErr error
}

func (f *fakeOutput) Push(payload []byte) error {
	f.pushed = append(f.pushed, payload)
	return f.pushErr
}
func (f *fakeOutput) Caps() roq.Caps               { return f.caps }
func (f *fakeOutput) SendEvent(evt roq.Event) error { f.events = append(f.events, evt); return nil }

func TestLookupOrCreateCreatesAndCaches(t *testing.T) {
	var created int
	newOut := func(ssrc uint32, pt uint8, caps roq.Caps) (roq.Output, error) {
		created++
		return &fakeOutput{caps: caps}, nil
	}
	tbl := NewTable(newOut, roq.Logger, "rtp")

	e1, err := tbl.LookupOrCreate(1, 96, roq.BasicCaps{SSRC: 1, PayloadType: 96})
	if err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}
	e2, err := tbl.LookupOrCreate(1, 96, roq.BasicCaps{SSRC: 1, PayloadType: 96})
	if err != nil {
		t.Fatalf("LookupOrCreate (cached): %v", err)
	}
	if e1 != e2 {
		t.Error("second LookupOrCreate returned a different entry, want cached")
	}
	if created != 1 {
		t.Errorf("newOut called %d times, want 1", created)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}

func TestLookupOrCreateDistinctPT(t *testing.T) {
	newOut := func(ssrc uint32, pt uint8, caps roq.Caps) (roq.Output, error) {
		return &fakeOutput{caps: caps}, nil
	}
	tbl := NewTable(newOut, roq.Logger, "rtp")

	if _, err := tbl.LookupOrCreate(1, 96, roq.BasicCaps{SSRC: 1, PayloadType: 96}); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.LookupOrCreate(1, 97, roq.BasicCaps{SSRC: 1, PayloadType: 97}); err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tbl.Len())
	}
}

func TestLookupOrCreateMatchesPendingSink(t *testing.T) {
	tbl := NewTable(nil, roq.Logger, "rtp")
	sink := &fakeOutput{caps: roq.BasicCaps{SSRC: 5, PayloadType: 100}}
	tbl.RegisterPendingSink(sink)

	entry, err := tbl.LookupOrCreate(5, 100, roq.BasicCaps{SSRC: 5, PayloadType: 100})
	if err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}
	if entry.Output != sink {
		t.Error("LookupOrCreate did not bind the pending sink")
	}
	if len(sink.events) != 1 || sink.events[0].Type != roq.EventStreamStart {
		t.Error("pending sink did not receive a stream-start event")
	}
}

func TestLookupOrCreateNoFactoryFails(t *testing.T) {
	tbl := NewTable(nil, roq.Logger, "rtp")
	if _, err := tbl.LookupOrCreate(1, 96, roq.BasicCaps{SSRC: 1, PayloadType: 96}); err == nil {
		t.Fatal("LookupOrCreate with nil newOut and no pending match succeeded, want error")
	}
}

func TestRemove(t *testing.T) {
	newOut := func(ssrc uint32, pt uint8, caps roq.Caps) (roq.Output, error) {
		return &fakeOutput{caps: caps}, nil
	}
	tbl := NewTable(newOut, roq.Logger, "rtp")
	if _, err := tbl.LookupOrCreate(1, 96, roq.BasicCaps{SSRC: 1, PayloadType: 96}); err != nil {
		t.Fatal(err)
	}
	if _, ok := tbl.Remove(1, 96); !ok {
		t.Fatal("Remove reported not found")
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d after Remove, want 0", tbl.Len())
	}
	if _, ok := tbl.Remove(1, 96); ok {
		t.Error("second Remove reported found")
	}
}

func TestForEach(t *testing.T) {
	newOut := func(ssrc uint32, pt uint8, caps roq.Caps) (roq.Output, error) {
		return &fakeOutput{caps: caps}, nil
	}
	tbl := NewTable(newOut, roq.Logger, "rtp")
	for _, pt := range []uint8{96, 97, 98} {
		if _, err := tbl.LookupOrCreate(1, pt, roq.BasicCaps{SSRC: 1, PayloadType: pt}); err != nil {
			t.Fatal(err)
		}
	}
	visited := 0
	tbl.ForEach(func(ssrc uint32, pt uint8, e *Entry) {
		visited++
		_ = e.Output.SendEvent(roq.Event{Type: roq.EventEOS})
	})
	if visited != 3 {
		t.Errorf("ForEach visited %d entries, want 3", visited)
	}
}
