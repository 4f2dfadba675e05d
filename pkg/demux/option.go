package demux

import (
	"github.com/go-logr/logr"

	"github.com/bbc/gst-roq/internal/buffer"
	"github.com/bbc/gst-roq/internal/routing"
)

// Option configures a Demuxer at construction time.
type Option func(*Demuxer)

// WithLogger overrides the package default logger for this Demuxer.
func WithLogger(l logr.Logger) Option {
	return func(d *Demuxer) {
		d.logger = l
	}
}

// WithBufferFactory overrides the pooled-buffer factory reassembly
// buffers are drawn from.
func WithBufferFactory(f *buffer.Factory) Option {
	return func(d *Demuxer) {
		d.bufFactory = f
	}
}

// WithRTPOutputFactory installs the callback used to request a new
// output sink for a never-before-seen RTP (SSRC, PT) pair (spec.md
// §4.5 step 5).
func WithRTPOutputFactory(f routing.NewOutputFunc) Option {
	return func(d *Demuxer) {
		d.rtpNewOutput = f
	}
}

// WithRTCPOutputFactory is WithRTPOutputFactory's RTCP counterpart.
func WithRTCPOutputFactory(f routing.NewOutputFunc) Option {
	return func(d *Demuxer) {
		d.rtcpNewOutput = f
	}
}
