package demux

// packetPhase tracks how much of the current packet's RoQ framing has
// been consumed. QUIC stream chunks can split a varint across an
// arbitrary byte boundary, so every phase accumulates undecoded bytes
// in scratch until a full varint is available.
type packetPhase int

const (
	// phaseUniStreamType is only entered once per stream, on its
	// first chunk, and only when the demuxer is configured to
	// expect a uni-stream-type prefix.
	phaseUniStreamType packetPhase = iota
	// phaseFlowID is entered once per stream, on its first chunk.
	phaseFlowID
	// phaseLength is entered once per packet: the payload-length
	// varint that precedes every RoQ frame.
	phaseLength
	// phasePayload accumulates exactly expectedLen bytes before
	// handing the packet to Demuxer.emit.
	phasePayload
)

// receiverStreamState is the receiver-side Stream State of spec.md §3,
// keyed by QUIC stream id.
type receiverStreamState struct {
	// headerRead reports whether the stream's leading
	// [uni_stream_type]?[flow_id] prefix has been fully consumed. It
	// is set once, on the stream's first packet.
	headerRead bool
	flowID     uint64
	isRTCP     bool

	// pendingAutoLearn and needsPTCheck mark classification decisions
	// deferred until the payload's payload-type byte is available; see
	// Demuxer.finalizeClassification.
	pendingAutoLearn bool
	needsPTCheck     bool

	phase   packetPhase
	scratch []byte // undecoded varint bytes carried across chunk boundaries

	haveLength  bool
	expectedLen uint64

	bufPtr *[]byte
	buf    []byte

	// clockOffset is carried per spec.md §3 but, per the Open
	// Question resolution in SPEC_FULL.md, is never written by the
	// RTCP path and defaults to zero for RTP.
	clockOffset int64

	closed bool
}

// resetPacket clears per-packet fields once a complete packet has been
// emitted, leaving the stream-level header state (flowID, isRTCP,
// headerRead) intact for the next packet on the same stream.
func (s *receiverStreamState) resetPacket() {
	s.haveLength = false
	s.expectedLen = 0
	s.buf = nil
	s.scratch = nil
	s.phase = phaseLength
}
