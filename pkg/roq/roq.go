// Package roq defines the wire-format primitives, collaborator
// interfaces and shared vocabulary used by pkg/mux and pkg/demux: the
// RoQ draft's mapping of RTP/RTCP onto QUIC streams and datagrams.
package roq

import (
	"github.com/go-logr/logr"
)

// Logger is the package-wide default, mirroring the teacher's
// sfu.Logger / buffer.Logger globals. Components take their own
// logr.Logger field seeded from this value at construction time; set
// it once at process start before constructing any Muxer/Demuxer.
var Logger logr.Logger = logr.Discard()

// SetLogger installs the process-wide default logger.
func SetLogger(l logr.Logger) {
	Logger = l
}

// AutoFlowID is the sentinel flow id meaning "not yet assigned" /
// "learn from the wire", used by both mux.Config and demux.Config.
const AutoFlowID uint64 = ^uint64(0)

// StreamBoundary selects when the muxer opens a new QUIC stream for
// RTP, per spec.md §4.3.
type StreamBoundary int

const (
	// BoundaryFrame opens (or closes) a stream on MARKER-flagged
	// packet boundaries, packed stream_packing_ratio frames per
	// stream.
	BoundaryFrame StreamBoundary = iota
	// BoundaryGOP opens a new stream at each group-of-pictures
	// boundary (absence of DeltaUnit), packed
	// stream_packing_ratio GOPs per stream.
	BoundaryGOP
	// BoundarySingle never closes the stream voluntarily.
	BoundarySingle
)

func (b StreamBoundary) String() string {
	switch b {
	case BoundaryFrame:
		return "frame"
	case BoundaryGOP:
		return "gop"
	case BoundarySingle:
		return "single"
	default:
		return "unknown"
	}
}

// BufferFlags carries the subset of per-packet RTP buffer metadata the
// core needs: whether this packet ends a frame (Marker) and whether it
// is a delta unit (not a keyframe/IDR).
type BufferFlags struct {
	Marker    bool
	DeltaUnit bool
}

// PacketMeta is the (SSRC, PayloadType, flags) triple the muxer and
// routing table key on. When a hosting framework supplies this via
// caps metadata, callers should populate it directly; otherwise
// internal/rtpmeta derives it from the RTP header bytes.
type PacketMeta struct {
	SSRC        uint32
	PayloadType uint8
	Flags       BufferFlags
}

// EmitResult is the outcome of a transport write, per spec.md §4.3
// "Emit results handling".
type EmitResult int

const (
	// EmitOK means the write succeeded.
	EmitOK EmitResult = iota
	// EmitStreamClosed means the peer issued STOP_SENDING on this
	// stream; stream-mode senders must cancel the current frame.
	EmitStreamClosed
	// EmitBlocked is a backpressure signal; the caller must not
	// retry internally, only propagate it.
	EmitBlocked
)

// Caps is an opaque capability/format descriptor used to match
// pending request sinks against newly observed (SSRC, PT) pairs, per
// spec.md §4.5/§4.6. The core treats Caps as an intersection-testable
// value; the hosting framework supplies the concrete representation.
type Caps interface {
	// Intersects reports whether this Caps and other describe a
	// compatible format.
	Intersects(other Caps) bool
}

// Output is a downstream sink a routed (SSRC, PT) pair is bound to.
// Implementations are supplied by the hosting framework (a GStreamer
// pad in the source system; a callback or recording fake in tests).
type Output interface {
	// Push delivers one complete RTP or RTCP packet.
	Push(payload []byte) error
	// Caps reports the capability descriptor this output accepts.
	Caps() Caps
	// SendEvent forwards a sticky/control event (e.g. EOS,
	// stream-start) to the output.
	SendEvent(evt Event) error
}

// Event is a sticky or control event propagated to outputs, such as
// EOS or a synthetic stream-start emitted when a pending sink is
// bound (spec.md §4.5 step 4).
type Event struct {
	Type    EventType
	Payload any
}

// EventType enumerates the small set of events the core itself
// originates or forwards.
type EventType int

const (
	EventStreamStart EventType = iota
	EventEOS
)

// BasicCaps is a minimal roq.Caps implementation matching two outputs
// iff their SSRC and PayloadType agree. It is the routing table's
// fallback caps representation when the hosting framework does not
// supply its own (e.g. a GStreamer GstCaps wrapper).
type BasicCaps struct {
	SSRC        uint32
	PayloadType uint8
}

// Intersects implements Caps.
func (c BasicCaps) Intersects(other Caps) bool {
	o, ok := other.(BasicCaps)
	if !ok {
		return false
	}
	return c.SSRC == o.SSRC && c.PayloadType == o.PayloadType
}

// StreamHandle identifies one QUIC unidirectional stream.
type StreamHandle interface {
	// ID returns the QUIC stream id, stable for the handle's
	// lifetime.
	ID() int64
	// Write emits bytes on the stream, returning the §4.3 emit
	// result.
	Write(b []byte) (EmitResult, error)
	// Close closes the sending side of the stream.
	Close() error
}

// StreamTransport is the collaborator interface consumed for
// QUIC unidirectional streams (spec.md §6 "open_stream / emit /
// close").
type StreamTransport interface {
	OpenStream() (StreamHandle, error)
}

// DatagramTransport is the collaborator interface consumed for QUIC
// datagrams (spec.md §6 "send_datagram").
type DatagramTransport interface {
	SendDatagram(b []byte) (EmitResult, error)
}
