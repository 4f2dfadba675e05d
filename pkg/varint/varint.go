// Package varint implements the QUIC variable-length integer encoding
// used to frame RoQ flow identifiers and payload lengths (RFC 9000 §16).
package varint

import (
	"encoding/binary"
	"errors"
)

// ErrValueTooLarge is returned by Encode when the value does not fit in
// 62 bits.
var ErrValueTooLarge = errors.New("varint: value too large to encode")

// ErrShortInput is returned by Decode when buf is shorter than the
// length indicated by its first byte.
var ErrShortInput = errors.New("varint: short input")

const (
	maxLen1 = 1<<6 - 1
	maxLen2 = 1<<14 - 1
	maxLen4 = 1<<30 - 1
	maxLen8 = 1<<62 - 1
)

// Size returns the number of bytes Encode would use for v, without
// encoding it.
func Size(v uint64) int {
	switch {
	case v <= maxLen1:
		return 1
	case v <= maxLen2:
		return 2
	case v <= maxLen4:
		return 4
	default:
		return 8
	}
}

// Encode appends the varint encoding of v to dst and returns the result.
func Encode(dst []byte, v uint64) ([]byte, error) {
	switch {
	case v <= maxLen1:
		return append(dst, byte(v)), nil
	case v <= maxLen2:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v))
		b[0] |= 0x40
		return append(dst, b[:]...), nil
	case v <= maxLen4:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		b[0] |= 0x80
		return append(dst, b[:]...), nil
	case v <= maxLen8:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		b[0] |= 0xc0
		return append(dst, b[:]...), nil
	default:
		return dst, ErrValueTooLarge
	}
}

// AppendLength encodes len(payload) as a varint and is a convenience
// wrapper around Encode for the common "length-prefix" use in §4.3/§4.4.
func AppendLength(dst []byte, payload []byte) ([]byte, error) {
	return Encode(dst, uint64(len(payload)))
}

// Decode reads one varint from the front of buf, returning the decoded
// value and the number of bytes consumed.
func Decode(buf []byte) (value uint64, n int, err error) {
	if len(buf) == 0 {
		return 0, 0, ErrShortInput
	}
	n = decodedLen(buf[0])
	if len(buf) < n {
		return 0, 0, ErrShortInput
	}
	switch n {
	case 1:
		value = uint64(buf[0] & 0x3f)
	case 2:
		var b [2]byte
		copy(b[:], buf[:2])
		b[0] &^= 0xc0
		value = uint64(binary.BigEndian.Uint16(b[:]))
	case 4:
		var b [4]byte
		copy(b[:], buf[:4])
		b[0] &^= 0xc0
		value = uint64(binary.BigEndian.Uint32(b[:]))
	case 8:
		var b [8]byte
		copy(b[:], buf[:8])
		b[0] &^= 0xc0
		value = binary.BigEndian.Uint64(b[:])
	}
	return value, n, nil
}

// decodedLen returns the total encoded length indicated by the top two
// bits of the first byte.
func decodedLen(first byte) int {
	switch first >> 6 {
	case 0:
		return 1
	case 1:
		return 2
	case 2:
		return 4
	default:
		return 8
	}
}
