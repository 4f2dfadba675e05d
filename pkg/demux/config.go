package demux

import "github.com/bbc/gst-roq/pkg/roq"

// Config mirrors spec.md §4.4's configuration table.
type Config struct {
	// RTPFlowID is the accepted RTP flow. roq.AutoFlowID auto-learns
	// it from the first observed frame.
	RTPFlowID uint64 `mapstructure:"rtpflowid"`
	// RTCPFlowID is the accepted RTCP flow. roq.AutoFlowID defaults
	// it to RTPFlowID+1.
	RTCPFlowID uint64 `mapstructure:"rtcpflowid"`
	// UniStreamType is the expected unidirectional stream type.
	UniStreamType uint64 `mapstructure:"unistreamtype"`
	// MatchUniStreamType requires the UniStreamType prefix on every
	// new stream.
	MatchUniStreamType bool `mapstructure:"matchunistreamtype"`
}

// DefaultConfig returns a Config that auto-learns both flow ids and
// does not require a uni-stream-type prefix.
func DefaultConfig() Config {
	return Config{
		RTPFlowID:  roq.AutoFlowID,
		RTCPFlowID: roq.AutoFlowID,
	}
}
