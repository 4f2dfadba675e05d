// Package node is the orchestration layer that owns one or more RoQ
// Flows over QUIC connections, generalizing the teacher's SFU/Session
// lazy-registry pattern (internal/sfu/sfu.go's SFU.sessions map and
// GetSession) from "a group of WebRTC peer connections" to "a group of
// muxer/demuxer pairs riding one or more QUIC connections."
package node

import (
	"sync"

	"github.com/go-logr/logr"

	"github.com/bbc/gst-roq/pkg/demux"
	"github.com/bbc/gst-roq/pkg/flowid"
	"github.com/bbc/gst-roq/pkg/mux"
	"github.com/bbc/gst-roq/pkg/roq"
)

// Config is a Node's template configuration, cloned into every Flow's
// mux.Config/demux.Config it creates, mirroring the teacher's
// SFU.webrtc WebRTCTransportConfig template.
type Config struct {
	MuxConfig   mux.Config   `mapstructure:"mux"`
	DemuxConfig demux.Config `mapstructure:"demux"`
}

// DefaultConfig returns sender/receiver defaults suitable for a
// gateway handling one flow per QUIC connection.
func DefaultConfig() Config {
	return Config{
		MuxConfig:   mux.DefaultConfig(),
		DemuxConfig: demux.DefaultConfig(),
	}
}

// Flow is one bound RTP/RTCP muxer+demuxer pair riding a single QUIC
// connection, the RoQ analogue of the teacher's Session (a group of
// peer connections sharing routing state). Unlike a WebRTC Session, a
// Flow has exactly one upstream and one downstream direction: Muxer is
// created only when the Flow is given a stream or datagram transport
// (nil otherwise), and Demuxer is always created.
type Flow struct {
	ID      string
	Muxer   *mux.Muxer
	Demuxer *demux.Demuxer

	closeOnce sync.Once
	onClose   []func()
}

// OnClose registers a callback fired exactly once when Close runs,
// mirroring the teacher's Session.OnClose cleanup hook (SFU.newSession
// uses it to evict the session from SFU.sessions). Multiple callbacks
// may be registered; Node.newFlow registers its own eviction callback
// before returning the Flow, so a caller's OnClose never displaces it.
func (f *Flow) OnClose(fn func()) { f.onClose = append(f.onClose, fn) }

// Close releases this Flow's muxer flow ids and propagates EOS to
// every demuxer output, per spec.md §5.
func (f *Flow) Close() {
	f.closeOnce.Do(func() {
		if f.Muxer != nil {
			f.Muxer.Close()
		}
		if f.Demuxer != nil {
			f.Demuxer.Close()
		}
		for _, fn := range f.onClose {
			fn()
		}
	})
}

// Node owns a registry of Flows, keyed by an opaque id (a connection
// remote address, a session name from signalling, or anything else the
// hosting application uses to disambiguate QUIC connections).
// Guarded the way the teacher embeds sync.RWMutex directly into SFU;
// Node does the same so GetFlow's fast read path never blocks other
// readers.
type Node struct {
	sync.RWMutex
	cfg       Config
	allocator *flowid.Allocator
	flows     map[string]*Flow
	logger    logr.Logger
}

// New constructs a Node. alloc may be nil to use flowid.Default().
func New(cfg Config, alloc *flowid.Allocator) *Node {
	if alloc == nil {
		alloc = flowid.Default()
	}
	return &Node{
		cfg:       cfg,
		allocator: alloc,
		flows:     make(map[string]*Flow),
		logger:    roq.Logger,
	}
}

func (n *Node) getFlow(id string) *Flow {
	n.RLock()
	defer n.RUnlock()
	return n.flows[id]
}

// newFlow constructs and registers a Flow for id. stream/datagram are
// the QUIC transport collaborators (typically a pkg/quictransport.Conn
// wrapping one QUIC connection); either may be nil if this Flow is
// receive-only or send-only.
func (n *Node) newFlow(id string, stream roq.StreamTransport, datagram roq.DatagramTransport) (*Flow, error) {
	flow := &Flow{ID: id}

	if stream != nil || datagram != nil {
		m, err := mux.New(n.cfg.MuxConfig, stream, datagram, mux.WithAllocator(n.allocator), mux.WithLogger(n.logger))
		if err != nil {
			return nil, err
		}
		flow.Muxer = m
	}

	d := demux.New(n.cfg.DemuxConfig, demux.WithLogger(n.logger))
	flow.Demuxer = d

	flow.OnClose(func() {
		n.Lock()
		delete(n.flows, id)
		n.Unlock()
	})

	n.Lock()
	n.flows[id] = flow
	n.Unlock()

	return flow, nil
}

// GetFlow returns the Flow registered for id, lazily creating one if
// absent, the RoQ analogue of the teacher's SFU.GetSession. stream and
// datagram are only consulted on first creation.
func (n *Node) GetFlow(id string, stream roq.StreamTransport, datagram roq.DatagramTransport) (*Flow, error) {
	if f := n.getFlow(id); f != nil {
		return f, nil
	}
	return n.newFlow(id, stream, datagram)
}

// Flows returns a snapshot slice of every currently registered Flow,
// mirroring the teacher's SFU.GetSessions.
func (n *Node) Flows() []*Flow {
	n.RLock()
	defer n.RUnlock()
	out := make([]*Flow, 0, len(n.flows))
	for _, f := range n.flows {
		out = append(out, f)
	}
	return out
}

// Close closes every registered Flow.
func (n *Node) Close() {
	for _, f := range n.Flows() {
		f.Close()
	}
}
