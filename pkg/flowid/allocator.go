// Package flowid implements the process-global RoQ flow identifier
// registry described in spec.md §4.2: a guarded set of in-use 62-bit
// flow ids, with atomic claim/release and random probing.
package flowid

import (
	"math/rand"
	"sync"
)

// MaxRandom bounds the range random draws are taken from. Keeping
// random flow ids within 31 bits guarantees rtcpFlowID = rtpFlowID+1
// still fits a QUIC varint, per spec.md §4.2. The two ids may still
// encode to different lengths (2^30-1 takes 4 bytes, 2^30 takes 8).
const MaxRandom = 1<<31 - 1

// Allocator is a guarded set of claimed flow ids. The zero value is
// ready to use; Default returns the process-wide singleton instance
// that muxers share, per spec.md §9 ("Global singleton").
type Allocator struct {
	mu     sync.Mutex
	claims map[uint64]struct{}
}

// New returns a standalone allocator. Most callers want Default.
func New() *Allocator {
	return &Allocator{claims: make(map[uint64]struct{})}
}

var (
	defaultOnce sync.Once
	defaultAlloc *Allocator
)

// Default returns the process-wide allocator singleton.
func Default() *Allocator {
	defaultOnce.Do(func() {
		defaultAlloc = New()
	})
	return defaultAlloc
}

// Claim inserts flowID if absent and reports whether the claim
// succeeded. A collision (flowID already claimed) never overwrites the
// existing holder, per spec.md §3's allocator invariant.
func (a *Allocator) Claim(flowID uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claims == nil {
		a.claims = make(map[uint64]struct{})
	}
	if _, exists := a.claims[flowID]; exists {
		return false
	}
	a.claims[flowID] = struct{}{}
	return true
}

// Release removes flowID from the claimed set, if present.
func (a *Allocator) Release(flowID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.claims, flowID)
}

// InUse reports whether flowID is currently claimed.
func (a *Allocator) InUse(flowID uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, exists := a.claims[flowID]
	return exists
}

// AllocateRandom draws uniform values in [0, MaxRandom] until one can
// be claimed, and returns it. Safe for concurrent use by multiple
// muxer instances in the same process.
func (a *Allocator) AllocateRandom() uint64 {
	for {
		candidate := uint64(rand.Int63n(MaxRandom + 1))
		if a.Claim(candidate) {
			return candidate
		}
	}
}

// ClaimPair allocates (or validates) a paired RTP/RTCP flow id, the
// convenience the bbc/gst-roq flow-id-manager element offered over a
// signalling channel (see SPEC_FULL.md "Supplemented components").
// rtpFlowID == ^uint64(0) requests a fresh random RTP id; rtcpFlowID ==
// ^uint64(0) requests rtpFlowID+1. Both are claimed atomically from the
// caller's point of view: on failure to claim the RTCP id, the RTP
// claim is rolled back.
func (a *Allocator) ClaimPair(rtpFlowID, rtcpFlowID uint64) (rtp, rtcp uint64, ok bool) {
	const auto = ^uint64(0)

	if rtpFlowID == auto {
		rtp = a.AllocateRandom()
	} else {
		if !a.Claim(rtpFlowID) {
			return 0, 0, false
		}
		rtp = rtpFlowID
	}

	if rtcpFlowID == auto {
		rtcp = rtp + 1
	} else {
		rtcp = rtcpFlowID
	}

	if rtcp != rtp {
		if !a.Claim(rtcp) {
			a.Release(rtp)
			return 0, 0, false
		}
	}

	return rtp, rtcp, true
}
