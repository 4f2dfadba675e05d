// Package buffer provides the pooled byte buffers the demuxer uses for
// packet reassembly, adapted from the teacher's
// SSRC-keyed RTP/RTCP buffer pools (pkg/buffer/factory.go) into a
// size-classed pool since RoQ's reassembly buffers are keyed by QUIC
// stream id rather than SSRC and do not need jitter-buffer reordering
// (spec.md's Non-goals exclude RTP retransmission and loss
// concealment, which is what the teacher's SSRC-keyed pools existed
// to serve).
package buffer

import (
	"sync"

	"github.com/go-logr/logr"
)

// smallMax is the largest payload size routed to the small pool; RTCP
// packets and most audio RTP payloads fall under it.
const smallMax = 1500

// largeMax is the pool's slab size for the large class, sized for a
// handful of packed video frames accumulating in one QUIC stream
// chunk before reassembly completes.
const largeMax = 64 * 1024

// Factory pools reusable byte slices for the demuxer's reassembly
// buffers (the muxer builds its frames without it), mirroring the teacher's
// sync.Pool-based Factory but keyed by size class instead of SSRC.
type Factory struct {
	small  *sync.Pool
	large  *sync.Pool
	logger logr.Logger
}

// NewFactory returns a ready-to-use buffer pool. If logger is the zero
// value, Logger (the package default) is used.
func NewFactory(logger logr.Logger) *Factory {
	if logger == (logr.Logger{}) {
		logger = Logger
	}
	return &Factory{
		small: &sync.Pool{
			New: func() interface{} {
				b := make([]byte, 0, smallMax)
				return &b
			},
		},
		large: &sync.Pool{
			New: func() interface{} {
				b := make([]byte, 0, largeMax)
				return &b
			},
		},
		logger: logger,
	}
}

// Get returns a zero-length buffer drawn from the appropriate size
// class. Its capacity is at least hint for hints up to largeMax; larger
// hints get a large-class buffer, which append grows as needed.
func (f *Factory) Get(hint int) *[]byte {
	var ptr *[]byte
	if hint > smallMax {
		ptr = f.large.Get().(*[]byte)
	} else {
		ptr = f.small.Get().(*[]byte)
	}
	*ptr = (*ptr)[:0]
	return ptr
}

// Put returns buf to its size class for reuse. Callers must not touch
// buf after calling Put.
func (f *Factory) Put(buf *[]byte) {
	if cap(*buf) > smallMax {
		f.large.Put(buf)
	} else {
		f.small.Put(buf)
	}
}
