// Package mux implements the RoQ sender engine of spec.md §4.3: it
// consumes RTP and RTCP packets, applies a stream-boundary policy, and
// emits framed bytes on a QUIC unidirectional stream or datagram.
package mux

import (
	"sync"

	"github.com/go-logr/logr"

	"github.com/bbc/gst-roq/internal/metrics"
	"github.com/bbc/gst-roq/internal/rtpmeta"
	"github.com/bbc/gst-roq/pkg/flowid"
	"github.com/bbc/gst-roq/pkg/roq"
	"github.com/bbc/gst-roq/pkg/varint"
)

// streamKey identifies a sender Stream State by (SSRC, PT), per
// spec.md §3.
type streamKey struct {
	ssrc uint32
	pt   uint8
}

// streamState is the sender-side Stream State of spec.md §3, guarded
// by its own mutex so concurrent senders on different (SSRC, PT) keys
// never contend with each other (spec.md §5's per-stream lock tier).
type streamState struct {
	mu             sync.Mutex
	output         roq.StreamHandle
	offset         uint64
	counter        int
	frameCancelled bool
}

// Muxer is one sender-side RoQ engine: one RTP flow, its paired RTCP
// flow, and the QUIC transport both ride on.
type Muxer struct {
	cfg      Config
	rtpFlow  uint64
	rtcpFlow uint64

	stream   roq.StreamTransport
	datagram roq.DatagramTransport

	// streamsMu guards the streams map and rtcpState pointer,
	// mirroring the teacher's SFU.sessions map lock; it is never
	// held across a transport emit.
	streamsMu sync.Mutex
	streams   map[streamKey]*streamState
	rtcpState *streamState

	allocator *flowid.Allocator
	logger    logr.Logger
}

// New constructs a Muxer. transport is required for stream mode;
// datagram is required when cfg.UseDatagrams is set.
func New(cfg Config, transport roq.StreamTransport, datagram roq.DatagramTransport, opts ...Option) (*Muxer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Muxer{
		cfg:      cfg,
		stream:   transport,
		datagram: datagram,
		streams:  make(map[streamKey]*streamState),
		logger:   roq.Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.allocator == nil {
		m.allocator = flowid.Default()
	}

	rtp, rtcp, ok := m.allocator.ClaimPair(cfg.RTPFlowID, cfg.RTCPFlowID)
	if !ok {
		return nil, roq.ErrInvalidConfig
	}
	m.rtpFlow = rtp
	m.rtcpFlow = rtcp

	return m, nil
}

// RTPFlowID reports the claimed RTP flow id (useful when constructed
// with roq.AutoFlowID).
func (m *Muxer) RTPFlowID() uint64 { return m.rtpFlow }

// RTCPFlowID reports the claimed RTCP flow id.
func (m *Muxer) RTCPFlowID() uint64 { return m.rtcpFlow }

// Close releases the flow ids this Muxer claimed. It does not close
// already-open QUIC streams; callers own that via their transport.
func (m *Muxer) Close() {
	m.allocator.Release(m.rtpFlow)
	if m.rtcpFlow != m.rtpFlow {
		m.allocator.Release(m.rtcpFlow)
	}
}

func (m *Muxer) getStreamState(key streamKey) *streamState {
	m.streamsMu.Lock()
	defer m.streamsMu.Unlock()
	s, ok := m.streams[key]
	if !ok {
		s = &streamState{}
		m.streams[key] = s
	}
	return s
}

func (m *Muxer) getRTCPState() *streamState {
	m.streamsMu.Lock()
	defer m.streamsMu.Unlock()
	if m.rtcpState == nil {
		m.rtcpState = &streamState{}
	}
	return m.rtcpState
}

// WriteRTP consumes one RTP packet. meta, if non-nil, supplies caps
// metadata (SSRC/PT/flags) the hosting framework already knows;
// otherwise the packet bytes are parsed (spec.md §4.3 step 1).
func (m *Muxer) WriteRTP(pkt []byte, meta *roq.PacketMeta) (roq.EmitResult, error) {
	if m.cfg.UseDatagrams {
		return m.writeDatagram(m.rtpFlow, pkt)
	}

	pm, err := m.resolveMeta(pkt, meta)
	if err != nil {
		return roq.EmitOK, err
	}

	state := m.getStreamState(streamKey{pm.SSRC, pm.PayloadType})
	return m.writeStream(state, m.rtpFlow, pkt, pm.Flags, true)
}

// WriteRTCP consumes one RTCP packet. Unlike RTP, all RTCP for this
// Muxer shares a single dedicated stream in stream mode, opened
// lazily and kept open until externally closed, regardless of
// cfg.StreamBoundary (spec.md §4.3 "RTCP path (stream mode)").
func (m *Muxer) WriteRTCP(pkt []byte) (roq.EmitResult, error) {
	if m.cfg.UseDatagrams {
		return m.writeDatagram(m.rtcpFlow, pkt)
	}
	state := m.getRTCPState()
	return m.writeStream(state, m.rtcpFlow, pkt, roq.BufferFlags{}, false)
}

func (m *Muxer) resolveMeta(pkt []byte, meta *roq.PacketMeta) (roq.PacketMeta, error) {
	if meta != nil {
		return *meta, nil
	}
	return rtpmeta.ParseRTPHeaderWithCodec(pkt, m.cfg.Codec)
}

func (m *Muxer) writeDatagram(flowID uint64, pkt []byte) (roq.EmitResult, error) {
	if m.datagram == nil {
		return roq.EmitOK, roq.ErrFatal
	}
	frame, err := varint.Encode(nil, flowID)
	if err != nil {
		return roq.EmitOK, err
	}
	frame = append(frame, pkt...)
	return m.datagram.SendDatagram(frame)
}

// writeStream implements spec.md §4.3 steps 2-7 for one packet on one
// stream state. applyBoundary is false for the RTCP path, which never
// applies the FRAME/GOP packing policy.
func (m *Muxer) writeStream(state *streamState, flowID uint64, pkt []byte, flags roq.BufferFlags, applyBoundary bool) (roq.EmitResult, error) {
	if m.stream == nil {
		return roq.EmitOK, roq.ErrFatal
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	// Frame cancellation is an RTP-per-frame concept keyed on MARKER;
	// RTCP packets never carry MARKER, so applying this guard to the
	// RTCP path would silence it permanently after the first
	// STOP_SENDING. Only the RTP path (applyBoundary) tracks it.
	if applyBoundary && state.frameCancelled {
		if flags.Marker {
			state.frameCancelled = false
		} else {
			return roq.EmitOK, nil
		}
	}

	if state.output == nil {
		h, err := m.stream.OpenStream()
		if err != nil {
			return roq.EmitOK, err
		}
		state.output = h
		state.offset = 0
	}

	if applyBoundary && m.cfg.StreamBoundary == roq.BoundaryGOP && !flags.DeltaUnit {
		state.counter++
		if state.counter > m.cfg.StreamPackingRatio {
			_ = state.output.Close()
			h, err := m.stream.OpenStream()
			if err != nil {
				return roq.EmitOK, err
			}
			state.output = h
			state.offset = 0
			state.counter = 0
		}
	}

	frame, err := m.buildFrame(state, flowID, pkt)
	if err != nil {
		return roq.EmitOK, err
	}

	result, err := state.output.Write(frame)
	if err != nil {
		return roq.EmitOK, err
	}

	switch result {
	case roq.EmitStreamClosed:
		// RTP (applyBoundary) stays cancelled until the next
		// MARKER-flagged packet, per spec.md §4.3. RTCP has no
		// MARKER to resume on: just drop the handle so the next
		// packet opens a new dedicated stream on demand, per §4.3's
		// "RTCP path (stream mode)".
		if applyBoundary {
			state.frameCancelled = true
		}
		_ = state.output.Close()
		state.output = nil
		state.counter = 0
		metrics.FrameCancellations.Inc()
		return roq.EmitOK, nil
	case roq.EmitBlocked:
		return roq.EmitBlocked, nil
	}

	state.offset += uint64(len(frame))

	if applyBoundary && m.cfg.StreamBoundary == roq.BoundaryFrame && flags.Marker {
		state.counter++
		if state.counter >= m.cfg.StreamPackingRatio {
			_ = state.output.Close()
			state.output = nil
			state.offset = 0
			state.counter = 0
		}
	}

	return roq.EmitOK, nil
}

// buildFrame assembles the header prefix for pkt per spec.md §4.3
// step 5: on a stream's first bytes, prepend the optional
// uni-stream-type varint, then the flow-id varint, then the length
// varint; on later writes, only the length varint.
func (m *Muxer) buildFrame(state *streamState, flowID uint64, pkt []byte) ([]byte, error) {
	hdrHint := varint.Size(flowID) + varint.Size(uint64(len(pkt))) + 1
	hdr := make([]byte, 0, hdrHint)

	var err error
	if state.offset == 0 {
		if m.cfg.UseUniStreamHdr {
			hdr, err = varint.Encode(hdr, m.cfg.UniStreamType)
			if err != nil {
				return nil, err
			}
		}
		hdr, err = varint.Encode(hdr, flowID)
		if err != nil {
			return nil, err
		}
	}
	hdr, err = varint.AppendLength(hdr, pkt)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(hdr)+len(pkt))
	frame = append(frame, hdr...)
	frame = append(frame, pkt...)
	return frame, nil
}
