// Package demux implements the RoQ receiver engine of spec.md §4.4: it
// consumes inbound QUIC stream chunks and datagrams, parses the RoQ
// header, reassembles length-prefixed frames, and routes each
// complete packet to a (SSRC, PayloadType)-addressed output.
package demux

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/bbc/gst-roq/internal/buffer"
	"github.com/bbc/gst-roq/internal/metrics"
	"github.com/bbc/gst-roq/internal/routing"
	"github.com/bbc/gst-roq/internal/rtpmeta"
	"github.com/bbc/gst-roq/pkg/roq"
	"github.com/bbc/gst-roq/pkg/varint"
)

// Demuxer is one receiver-side RoQ engine.
type Demuxer struct {
	// flowMu guards rtpFlow/rtcpFlow, which start at the configured
	// values and, when those are roq.AutoFlowID, are fixed in place
	// by the first successful auto-learn
	// (spec.md §4.4 "Auto-learn rule").
	flowMu   sync.Mutex
	rtpFlow  uint64
	rtcpFlow uint64

	cfg Config

	streamsMu sync.Mutex
	streams   map[int64]*receiverStreamState

	rtpTable  *routing.Table
	rtcpTable *routing.Table

	rtpNewOutput  routing.NewOutputFunc
	rtcpNewOutput routing.NewOutputFunc

	bufFactory *buffer.Factory
	logger     logr.Logger
}

// New constructs a Demuxer.
func New(cfg Config, opts ...Option) *Demuxer {
	d := &Demuxer{
		rtpFlow:  cfg.RTPFlowID,
		rtcpFlow: cfg.RTCPFlowID,
		cfg:      cfg,
		streams:  make(map[int64]*receiverStreamState),
		logger:   roq.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.bufFactory == nil {
		d.bufFactory = buffer.NewFactory(d.logger)
	}
	d.rtpTable = routing.NewTable(d.rtpNewOutput, d.logger, "rtp")
	d.rtcpTable = routing.NewTable(d.rtcpNewOutput, d.logger, "rtcp")
	return d
}

// RTPTable exposes the RTP routing table, e.g. to register pending
// sinks (spec.md §4.6) or propagate EOS (spec.md §5).
func (d *Demuxer) RTPTable() *routing.Table { return d.rtpTable }

// RTCPTable exposes the RTCP routing table.
func (d *Demuxer) RTCPTable() *routing.Table { return d.rtcpTable }

// RTPFlowID reports the currently known/configured RTP flow id
// (roq.AutoFlowID until the first frame is learned).
func (d *Demuxer) RTPFlowID() uint64 {
	d.flowMu.Lock()
	defer d.flowMu.Unlock()
	return d.rtpFlow
}

// RTCPFlowID reports the currently known/configured RTCP flow id.
func (d *Demuxer) RTCPFlowID() uint64 {
	d.flowMu.Lock()
	defer d.flowMu.Unlock()
	return d.rtcpFlow
}

func (d *Demuxer) getOrCreateStream(streamID int64) *receiverStreamState {
	d.streamsMu.Lock()
	defer d.streamsMu.Unlock()
	s, ok := d.streams[streamID]
	if !ok {
		s = &receiverStreamState{}
		if d.cfg.MatchUniStreamType {
			s.phase = phaseUniStreamType
		} else {
			s.phase = phaseFlowID
		}
		d.streams[streamID] = s
	}
	return s
}

func (d *Demuxer) closeStream(streamID int64) {
	d.streamsMu.Lock()
	defer d.streamsMu.Unlock()
	if s, ok := d.streams[streamID]; ok {
		if s.bufPtr != nil {
			d.bufFactory.Put(s.bufPtr)
			metrics.ReassemblyBuffers.Dec()
		}
		delete(d.streams, streamID)
	}
}

// OnStreamOpen is an advisory hook for transports that announce a new
// stream before its first chunk arrives (spec.md §6
// "on_stream_open"). Reassembly state is lazily created on the first
// chunk regardless, so this is a no-op beyond logging.
func (d *Demuxer) OnStreamOpen(streamID int64, _ []byte) {
	d.logger.V(1).Info("stream opened", "stream", streamID)
}

// OnStreamChunk implements spec.md §4.4's per-chunk logic. A QUIC
// stream delivers chunks of arbitrary size, so every varint in the
// framing (the optional uni-stream-type, the flow id, and each
// packet's length prefix) may itself straddle a chunk boundary; the
// loop below advances through receiverStreamState.phase one varint or
// payload span at a time, carrying any leftover undecoded bytes in
// state.scratch to the next call.
func (d *Demuxer) OnStreamChunk(streamID int64, chunk []byte, final bool) error {
	state := d.getOrCreateStream(streamID)
	remaining := chunk

	for len(remaining) > 0 {
		switch state.phase {
		case phaseUniStreamType, phaseFlowID:
			state.scratch = append(state.scratch, remaining...)
			remaining = nil

			v, n, err := varint.Decode(state.scratch)
			if err != nil {
				break // need more bytes from the next chunk
			}
			leftover := append([]byte(nil), state.scratch[n:]...)
			state.scratch = nil

			if state.phase == phaseUniStreamType {
				if v != d.cfg.UniStreamType {
					d.closeStream(streamID)
					return roq.ErrWrongStreamType
				}
				state.phase = phaseFlowID
			} else {
				if err := d.classifyStream(state, v); err != nil {
					d.closeStream(streamID)
					return err
				}
				state.headerRead = true
				state.phase = phaseLength
			}
			remaining = leftover

		case phaseLength:
			state.scratch = append(state.scratch, remaining...)
			remaining = nil

			v, n, err := varint.Decode(state.scratch)
			if err != nil {
				break // need more bytes from the next chunk
			}
			leftover := append([]byte(nil), state.scratch[n:]...)
			state.scratch = nil

			state.expectedLen = v
			state.haveLength = true
			if state.bufPtr == nil {
				state.bufPtr = d.bufFactory.Get(int(v))
				metrics.ReassemblyBuffers.Inc()
			}
			state.buf = (*state.bufPtr)[:0]
			state.phase = phasePayload
			remaining = leftover

		case phasePayload:
			need := int(state.expectedLen) - len(state.buf)
			if need > len(remaining) {
				state.buf = append(state.buf, remaining...)
				remaining = nil
				break
			}
			state.buf = append(state.buf, remaining[:need]...)
			remaining = remaining[need:]

			if err := d.emit(state); err != nil {
				metrics.RoutingFailures.Inc()
				d.logger.Error(err, "routing failed, dropping packet", "stream", streamID)
			}
			state.resetPacket()
		}
	}

	if final {
		// spec.md §4.4 step 5: emit on reassembly_buffer.size >=
		// expected_payload_length OR chunk is final, whichever comes
		// first, so a stream that ends mid-packet still delivers its
		// last, short packet instead of silently dropping it.
		if state.phase == phasePayload && len(state.buf) > 0 {
			if err := d.emit(state); err != nil {
				metrics.RoutingFailures.Inc()
				d.logger.Error(err, "routing failed, dropping packet", "stream", streamID)
			}
			state.resetPacket()
		}
		d.closeStream(streamID)
	}
	return nil
}

// classifyStream resolves whether flowID identifies the RTP or RTCP
// flow for this stream, auto-learning rtpFlow/rtcpFlow on the first
// frame when they are unset (spec.md §4.4 "Auto-learn rule"), and
// verifying against the configured ids otherwise (spec.md §4.4
// "RTCP vs RTP discrimination"). When flowID is ambiguous because
// rtpFlow == rtcpFlow, the final call is deferred to
// finalizeClassification once the payload's payload-type byte (its
// second byte) is available.
func (d *Demuxer) classifyStream(state *receiverStreamState, flowID uint64) error {
	d.flowMu.Lock()
	defer d.flowMu.Unlock()

	state.flowID = flowID

	if d.rtpFlow == roq.AutoFlowID {
		// Tentatively treat flowID as the RTP flow; finalizeClassification
		// (called once the payload is available) corrects this to
		// RTCP if the observed payload_type says otherwise.
		state.pendingAutoLearn = true
		return nil
	}

	switch {
	case flowID == d.rtpFlow && d.rtpFlow != d.rtcpFlow:
		state.isRTCP = false
	case flowID == d.rtcpFlow, d.rtcpFlow == roq.AutoFlowID && flowID == d.rtpFlow+1:
		state.isRTCP = true
	case d.rtpFlow == d.rtcpFlow && flowID == d.rtpFlow:
		state.needsPTCheck = true
	default:
		return roq.ErrUnknownFlow
	}
	return nil
}

// finalizeClassification resolves any classification deferred until
// the payload bytes were available: completing auto-learn (which
// needs the raw payload_type byte to tell RTP from RTCP, per spec.md
// §4.4) or the ambiguous-single-flow-id PT-range check.
func (d *Demuxer) finalizeClassification(state *receiverStreamState, payload []byte) error {
	if !state.pendingAutoLearn && !state.needsPTCheck {
		return nil
	}
	if len(payload) < 2 {
		return roq.ErrMalformedFrame
	}
	rawPT := payload[1]

	d.flowMu.Lock()
	defer d.flowMu.Unlock()

	if state.pendingAutoLearn {
		if rawPT >= 128 {
			d.rtpFlow = state.flowID - 1
			d.rtcpFlow = state.flowID
			state.isRTCP = true
		} else {
			d.rtpFlow = state.flowID
			if d.rtcpFlow == roq.AutoFlowID {
				d.rtcpFlow = state.flowID + 1
			}
			state.isRTCP = false
		}
		state.pendingAutoLearn = false
		return nil
	}

	state.isRTCP = rtpmeta.IsRTCPPayloadType(rawPT & 0x7f)
	state.needsPTCheck = false
	return nil
}

// emit routes and pushes one complete, reassembled packet, per
// spec.md §4.4 step 5 and §4.5.
func (d *Demuxer) emit(state *receiverStreamState) error {
	payload := state.buf
	if err := d.finalizeClassification(state, payload); err != nil {
		return err
	}

	var (
		ssrc  uint32
		pt    uint8
		table *routing.Table
	)

	if state.isRTCP {
		if len(payload) < 2 {
			return roq.ErrMalformedFrame
		}
		pt = payload[1] & 0x7f
		ssrc, _ = rtpmeta.RTCPSSRC(payload)
		table = d.rtcpTable
	} else {
		meta, err := rtpmeta.ParseRTPHeader(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", roq.ErrMalformedFrame, err)
		}
		ssrc, pt = meta.SSRC, meta.PayloadType
		table = d.rtpTable
	}

	entry, err := table.LookupOrCreate(ssrc, pt, roq.BasicCaps{SSRC: ssrc, PayloadType: pt})
	if err != nil {
		return err
	}
	return entry.Output.Push(payload)
}

// OnDatagram implements spec.md §4.4's per-datagram logic.
func (d *Demuxer) OnDatagram(b []byte) error {
	flowID, n, err := varint.Decode(b)
	if err != nil {
		return fmt.Errorf("%w: flow id: %v", roq.ErrMalformedFrame, err)
	}
	payload := b[n:]

	state := &receiverStreamState{}
	if err := d.classifyStream(state, flowID); err != nil {
		return err
	}
	if err := d.finalizeClassification(state, payload); err != nil {
		return err
	}

	var (
		ssrc  uint32
		pt    uint8
		table *routing.Table
	)
	if state.isRTCP {
		if len(payload) < 2 {
			return roq.ErrMalformedFrame
		}
		pt = payload[1] & 0x7f
		ssrc, _ = rtpmeta.RTCPSSRC(payload)
		table = d.rtcpTable
	} else {
		meta, err := rtpmeta.ParseRTPHeader(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", roq.ErrMalformedFrame, err)
		}
		ssrc, pt = meta.SSRC, meta.PayloadType
		table = d.rtpTable
	}

	entry, err := table.LookupOrCreate(ssrc, pt, roq.BasicCaps{SSRC: ssrc, PayloadType: pt})
	if err != nil {
		d.logger.Error(err, "routing failed for datagram, dropping")
		return nil
	}
	return entry.Output.Push(payload)
}

// Close propagates EOS to every active output, per spec.md §5
// ("the demuxer propagates EOS to every active output sink").
func (d *Demuxer) Close() {
	evt := roq.Event{Type: roq.EventEOS}
	d.rtpTable.ForEach(func(_ uint32, _ uint8, e *routing.Entry) {
		_ = e.Output.SendEvent(evt)
	})
	d.rtcpTable.ForEach(func(_ uint32, _ uint8, e *routing.Entry) {
		_ = e.Output.SendEvent(evt)
	})
}
