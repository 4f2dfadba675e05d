package mux

import (
	"testing"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/bbc/gst-roq/internal/memtransport"
	"github.com/bbc/gst-roq/pkg/flowid"
	"github.com/bbc/gst-roq/pkg/roq"
	"github.com/bbc/gst-roq/pkg/varint"
)

func rtpPacket(t *testing.T, ssrc uint32, pt uint8, marker bool, seq uint16) []byte {
	t.Helper()
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    pt,
			SequenceNumber: seq,
			SSRC:           ssrc,
		},
		Payload: []byte{0xaa, 0xbb},
	}
	b, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal rtp packet: %v", err)
	}
	return b
}

func rtcpBytes(t *testing.T, ssrc uint32) []byte {
	t.Helper()
	pkt := &rtcp.ReceiverReport{SSRC: ssrc}
	b, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal rtcp packet: %v", err)
	}
	return b
}

func newTestMuxer(t *testing.T, cfg Config) (*Muxer, *memtransport.StreamTransport, *memtransport.DatagramTransport) {
	t.Helper()
	st := &memtransport.StreamTransport{}
	dt := &memtransport.DatagramTransport{}
	m, err := New(cfg, st, dt, WithAllocator(flowid.New()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, st, dt
}

func TestMuxerDatagramFraming(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RTPFlowID = 42
	cfg.RTCPFlowID = 43
	cfg.UseDatagrams = true
	m, _, dt := newTestMuxer(t, cfg)

	var sent []byte
	dt.OnSend = func(b []byte) { sent = b }

	pkt := rtpPacket(t, 1, 96, true, 1)
	if _, err := m.WriteRTP(pkt, nil); err != nil {
		t.Fatalf("WriteRTP: %v", err)
	}

	flowID, n, err := varint.Decode(sent)
	if err != nil {
		t.Fatalf("decode flow id: %v", err)
	}
	if flowID != 42 {
		t.Errorf("flow id = %d, want 42", flowID)
	}
	if string(sent[n:]) != string(pkt) {
		t.Error("datagram payload does not match original RTP packet")
	}
}

func TestMuxerStreamFrameBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RTPFlowID = 7
	cfg.RTCPFlowID = 8
	cfg.StreamBoundary = roq.BoundaryFrame
	cfg.StreamPackingRatio = 1
	m, st, _ := newTestMuxer(t, cfg)

	pkt := rtpPacket(t, 1, 96, true, 1)
	if _, err := m.WriteRTP(pkt, nil); err != nil {
		t.Fatalf("WriteRTP: %v", err)
	}

	if len(st.Streams) != 1 {
		t.Fatalf("opened %d streams, want 1", len(st.Streams))
	}
	s := st.Streams[0]
	if !s.Closed() {
		t.Error("stream not closed after MARKER packet under FRAME boundary with ratio 1")
	}

	// A second packet on the same (SSRC, PT) must open a fresh stream.
	pkt2 := rtpPacket(t, 1, 96, true, 2)
	if _, err := m.WriteRTP(pkt2, nil); err != nil {
		t.Fatalf("WriteRTP: %v", err)
	}
	if len(st.Streams) != 2 {
		t.Fatalf("opened %d streams after second frame, want 2", len(st.Streams))
	}
}

func TestMuxerStopSendingCancelsUntilMarker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RTPFlowID = 7
	cfg.RTCPFlowID = 8
	cfg.StreamBoundary = roq.BoundarySingle
	m, st, _ := newTestMuxer(t, cfg)

	pkt1 := rtpPacket(t, 1, 96, false, 1)
	if _, err := m.WriteRTP(pkt1, nil); err != nil {
		t.Fatalf("WriteRTP: %v", err)
	}
	st.Streams[0].StopSending = true

	pkt2 := rtpPacket(t, 1, 96, false, 2)
	var delivered int
	st.Streams[0].OnWrite = func([]byte) { delivered++ }
	if _, err := m.WriteRTP(pkt2, nil); err != nil {
		t.Fatalf("WriteRTP after STOP_SENDING: %v", err)
	}
	if delivered != 0 {
		t.Error("packet delivered to a cancelled frame before a MARKER packet")
	}

	// Further non-MARKER packets of the cancelled frame are dropped
	// without opening a stream.
	pkt2b := rtpPacket(t, 1, 96, false, 3)
	if _, err := m.WriteRTP(pkt2b, nil); err != nil {
		t.Fatalf("WriteRTP while cancelled: %v", err)
	}
	if len(st.Streams) != 1 {
		t.Fatalf("opened %d streams for a non-MARKER packet of a cancelled frame, want 1", len(st.Streams))
	}

	pkt3 := rtpPacket(t, 1, 96, true, 3)
	if _, err := m.WriteRTP(pkt3, nil); err != nil {
		t.Fatalf("WriteRTP marker: %v", err)
	}
	if len(st.Streams) != 2 {
		t.Fatalf("opened %d streams, want 2 (original cancelled + resumption)", len(st.Streams))
	}
}

func TestMuxerRTCPStopSendingReopensOnNextPacket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RTPFlowID = 7
	cfg.RTCPFlowID = 8
	m, st, _ := newTestMuxer(t, cfg)

	pkt1 := rtcpBytes(t, 1)
	if _, err := m.WriteRTCP(pkt1); err != nil {
		t.Fatalf("WriteRTCP: %v", err)
	}
	if len(st.Streams) != 1 {
		t.Fatalf("opened %d streams, want 1", len(st.Streams))
	}
	st.Streams[0].StopSending = true

	// RTCP never carries MARKER, so a frame-cancellation guard keyed
	// on MARKER would silence every subsequent RTCP packet forever.
	// The write that meets STOP_SENDING drops its packet and the stream
	// handle; the dedicated RTCP stream must then reopen on the very
	// next packet.
	pkt2 := rtcpBytes(t, 1)
	if _, err := m.WriteRTCP(pkt2); err != nil {
		t.Fatalf("WriteRTCP after STOP_SENDING: %v", err)
	}
	if len(st.Streams) != 1 {
		t.Fatalf("opened %d streams on the write that met STOP_SENDING, want 1", len(st.Streams))
	}
	var delivered int
	st.OnOpen = func(s *memtransport.Stream) { s.OnWrite = func([]byte) { delivered++ } }

	pkt3 := rtcpBytes(t, 1)
	if _, err := m.WriteRTCP(pkt3); err != nil {
		t.Fatalf("WriteRTCP: %v", err)
	}
	if len(st.Streams) != 2 {
		t.Fatalf("opened %d streams after STOP_SENDING, want 2 (cancelled + reopened)", len(st.Streams))
	}
	if delivered != 1 {
		t.Errorf("RTCP delivered %d packets on the reopened stream, want 1", delivered)
	}
}

func TestMuxerInvalidConfigRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseDatagrams = true
	cfg.UseUniStreamHdr = true
	if _, err := New(cfg, &memtransport.StreamTransport{}, &memtransport.DatagramTransport{}, WithAllocator(flowid.New())); err == nil {
		t.Fatal("New with mutually exclusive datagram/uni-stream-hdr config succeeded")
	}
}

func TestMuxerClaimPairCollisionFails(t *testing.T) {
	alloc := flowid.New()
	alloc.Claim(7)
	cfg := DefaultConfig()
	cfg.RTPFlowID = 7
	if _, err := New(cfg, &memtransport.StreamTransport{}, &memtransport.DatagramTransport{}, WithAllocator(alloc)); err == nil {
		t.Fatal("New claimed an already-claimed flow id")
	}
}
