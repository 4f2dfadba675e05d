package mux

import "github.com/bbc/gst-roq/pkg/roq"

// Config mirrors spec.md §4.3's configuration table. Struct tags
// follow the teacher's mapstructure convention (sfu.Config,
// sfu.WebRTCConfig) so values can be decoded from YAML/TOML/env via
// viper in cmd/roq-gateway.
type Config struct {
	// RTPFlowID is the flow identifier for RTP. roq.AutoFlowID
	// requests a random unique id.
	RTPFlowID uint64 `mapstructure:"rtpflowid"`
	// RTCPFlowID is the flow identifier for RTCP. roq.AutoFlowID
	// defaults it to RTPFlowID+1.
	RTCPFlowID uint64 `mapstructure:"rtcpflowid"`
	// StreamBoundary selects when a new QUIC stream is opened.
	StreamBoundary roq.StreamBoundary `mapstructure:"streamboundary"`
	// StreamPackingRatio is the number of frames (or GOPs) packed
	// per stream. Must be >= 1.
	StreamPackingRatio int `mapstructure:"packingratio"`
	// UniStreamType is prepended to a new stream when
	// UseUniStreamHdr is set.
	UniStreamType uint64 `mapstructure:"unistreamtype"`
	// UseDatagrams sends via QUIC datagrams instead of streams.
	UseDatagrams bool `mapstructure:"usedatagrams"`
	// UseUniStreamHdr prefixes each new stream with UniStreamType.
	UseUniStreamHdr bool `mapstructure:"useunistreamhdr"`
	// Codec hints ParseRTPHeaderWithCodec's keyframe detection
	// ("h264", "vp8") when WriteRTP is called without caps metadata
	// and StreamBoundary is BoundaryGOP. Empty means unknown, which
	// conservatively never forces a GOP boundary.
	Codec string `mapstructure:"codec"`
}

// DefaultConfig returns a Config with spec.md's implied defaults:
// auto-allocated flow ids, FRAME boundary, packing ratio of 1, stream
// mode (no datagrams, no uni-stream header).
func DefaultConfig() Config {
	return Config{
		RTPFlowID:          roq.AutoFlowID,
		RTCPFlowID:         roq.AutoFlowID,
		StreamBoundary:     roq.BoundaryFrame,
		StreamPackingRatio: 1,
	}
}

// Validate enforces spec.md §4.3's "use_datagrams and
// use_uni_stream_hdr are mutually exclusive" rule and the packing
// ratio's lower bound.
func (c Config) Validate() error {
	if c.UseDatagrams && c.UseUniStreamHdr {
		return roq.ErrInvalidConfig
	}
	if c.StreamPackingRatio < 1 {
		return roq.ErrInvalidConfig
	}
	return nil
}
