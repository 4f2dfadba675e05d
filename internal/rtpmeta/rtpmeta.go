// Package rtpmeta extracts the minimum RTP/RTCP metadata the RoQ core
// needs — SSRC, payload type, marker bit, and (best-effort) keyframe
// detection for the GOP stream-boundary policy — without attempting a
// full RTP parse. spec.md §1 explicitly excludes "parsing RTP beyond
// what is needed to extract SSRC and payload type"; keyframe detection
// is kept here too because the GOP policy (spec.md §4.3) needs a
// DeltaUnit flag and the hosting framework may not always supply one
// via caps metadata.
package rtpmeta

import (
	"encoding/binary"
	"errors"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/bbc/gst-roq/pkg/roq"
)

var (
	errShortPacket = errors.New("rtpmeta: packet too short to parse")
	errNilPacket   = errors.New("rtpmeta: nil packet")
)

// ParseRTPHeader extracts (SSRC, PT, Marker) from raw RTP bytes. It is
// the "else from buffer" fallback of spec.md §4.3 step 1, used when the
// hosting framework does not supply caps metadata alongside the
// buffer. Flags.DeltaUnit is left at its zero value (false); callers
// that drive the GOP stream-boundary policy want
// ParseRTPHeaderWithCodec instead.
func ParseRTPHeader(b []byte) (meta roq.PacketMeta, err error) {
	var h rtp.Header
	if _, err = h.Unmarshal(b); err != nil {
		return roq.PacketMeta{}, err
	}
	meta.SSRC = h.SSRC
	meta.PayloadType = h.PayloadType & 0x7f
	meta.Flags.Marker = h.Marker
	return meta, nil
}

// ParseRTPHeaderWithCodec is ParseRTPHeader plus a DeltaUnit
// determination from the packet's own payload bytes, using codec as
// the keyframe-detection hint (spec.md §4.3's GOP stream-boundary
// policy). The sender uses this when the hosting framework does not
// supply caps metadata, so GOP mode has a real delta-unit signal to
// key off instead of always seeing false.
func ParseRTPHeaderWithCodec(b []byte, codec string) (meta roq.PacketMeta, err error) {
	var h rtp.Header
	n, err := h.Unmarshal(b)
	if err != nil {
		return roq.PacketMeta{}, err
	}
	meta.SSRC = h.SSRC
	meta.PayloadType = h.PayloadType & 0x7f
	meta.Flags.Marker = h.Marker
	meta.Flags.DeltaUnit = DeltaUnit(codec, b[n:])
	return meta, nil
}

// RTCPSSRC extracts the sender SSRC from raw RTCP bytes, used by the
// demuxer's datagram path (spec.md §4.4 "Per-datagram logic": "SSRC at
// offset +8 for RTP (+4 for RTCP)").
func RTCPSSRC(b []byte) (uint32, error) {
	pkts, err := rtcp.Unmarshal(b)
	if err != nil || len(pkts) == 0 {
		return 0, err
	}
	if len(b) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint32(b[4:8]), nil
}

// IsRTCPPayloadType reports whether pt falls in the RFC 5761 RTCP
// multiplexing range [64, 95], used by the demuxer's single-flow-id
// disambiguation path (spec.md §4.4).
func IsRTCPPayloadType(pt uint8) bool {
	pt &= 0x7f
	return pt >= 64 && pt <= 95
}

// DeltaUnit reports whether payload is NOT a keyframe, i.e. the value
// the GOP stream-boundary policy (spec.md §4.3) treats as the
// DeltaUnit buffer flag. codec is a caller-supplied hint ("h264",
// "vp8"); an unrecognized or empty hint conservatively reports true
// (treat as delta unit, never force a GOP boundary on unknown codecs).
func DeltaUnit(codec string, payload []byte) bool {
	switch codec {
	case "h264", "H264":
		return !isH264Keyframe(payload)
	case "vp8", "VP8":
		var v VP8
		if err := v.Unmarshal(payload); err != nil {
			return true
		}
		return !v.IsKeyFrame
	default:
		return true
	}
}

// VP8 is a minimal VP8 payload descriptor parser (RFC 7741), used only
// to recover the keyframe bit for the GOP boundary policy.
type VP8 struct {
	TemporalSupported bool
	PictureID         uint16
	PicIDIdx          int
	MBit              bool
	TL0PICIDX         uint8
	TlzIdx            int
	TID               uint8
	IsKeyFrame        bool
}

// Unmarshal parses the VP8 payload descriptor at the front of payload.
func (p *VP8) Unmarshal(payload []byte) error {
	if payload == nil {
		return errNilPacket
	}

	payloadLen := len(payload)
	if payloadLen < 1 {
		return errShortPacket
	}

	idx := 0
	S := payload[idx]&0x10 > 0
	if payload[idx]&0x80 > 0 {
		idx++
		if payloadLen < idx+1 {
			return errShortPacket
		}
		p.TemporalSupported = payload[idx]&0x20 > 0
		K := payload[idx]&0x10 > 0
		L := payload[idx]&0x40 > 0
		if payload[idx]&0x80 > 0 {
			idx++
			if payloadLen < idx+1 {
				return errShortPacket
			}
			p.PicIDIdx = idx
			pid := payload[idx] & 0x7f
			if payload[idx]&0x80 > 0 {
				idx++
				if payloadLen < idx+1 {
					return errShortPacket
				}
				p.MBit = true
				p.PictureID = uint16(pid)<<8 | uint16(payload[idx])
			} else {
				p.PictureID = uint16(pid)
			}
		}
		if L {
			idx++
			if payloadLen < idx+1 {
				return errShortPacket
			}
			p.TlzIdx = idx
			p.TL0PICIDX = payload[idx]
		}
		if p.TemporalSupported || K {
			idx++
			if payloadLen < idx+1 {
				return errShortPacket
			}
			p.TID = (payload[idx] & 0xc0) >> 6
		}
		if idx >= payloadLen {
			return errShortPacket
		}
		idx++
		if payloadLen < idx+1 {
			return errShortPacket
		}
		p.IsKeyFrame = payload[idx]&0x01 == 0 && S
	} else {
		idx++
		if payloadLen < idx+1 {
			return errShortPacket
		}
		p.IsKeyFrame = payload[idx]&0x01 == 0 && S
	}
	return nil
}

// isH264Keyframe reports whether an RTP payload starts an H.264
// keyframe: a single NAL unit counts when it is an IDR slice (type 5);
// an aggregation packet counts when it carries an SPS (type 7), and a
// fragmentation unit when it is the first fragment of an SPS. An IDR
// slice inside an aggregation packet or fragmentation unit is not
// detected. Adapted from https://github.com/jech/galene (Juliusz Chroboczek),
// via the teacher's internal/buffer/helpers.go.
func isH264Keyframe(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	nalu := payload[0] & 0x1F
	switch {
	case nalu == 0:
		return false
	case nalu <= 23:
		return nalu == 5
	case nalu == 24 || nalu == 25 || nalu == 26 || nalu == 27:
		i := 1
		if nalu == 25 || nalu == 26 || nalu == 27 {
			i += 2
		}
		for i < len(payload) {
			if i+2 > len(payload) {
				return false
			}
			length := uint16(payload[i])<<8 | uint16(payload[i+1])
			i += 2
			if i+int(length) > len(payload) {
				return false
			}
			offset := 0
			if nalu == 26 {
				offset = 3
			} else if nalu == 27 {
				offset = 4
			}
			if offset >= int(length) {
				return false
			}
			if payload[i+offset]&0x1F == 7 {
				return true
			}
			i += int(length)
		}
		return false
	case nalu == 28 || nalu == 29:
		if len(payload) < 2 {
			return false
		}
		if payload[1]&0x80 == 0 {
			return false
		}
		return payload[1]&0x1F == 7
	default:
		return false
	}
}
