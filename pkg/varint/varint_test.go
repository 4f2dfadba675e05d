package varint

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []uint64{
		0, 1, 37, maxLen1,
		maxLen1 + 1, 100, maxLen2,
		maxLen2 + 1, 1 << 20, maxLen4,
		maxLen4 + 1, 1 << 40, maxLen8,
	}
	for _, v := range cases {
		enc, err := Encode(nil, v)
		if err != nil {
			t.Fatalf("Encode(%d): %v", v, err)
		}
		if got := Size(v); got != len(enc) {
			t.Errorf("Size(%d) = %d, want %d", v, got, len(enc))
		}
		got, n, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%v): %v", enc, err)
		}
		if got != v || n != len(enc) {
			t.Errorf("Decode(Encode(%d)) = (%d, %d), want (%d, %d)", v, got, n, v, len(enc))
		}
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := Encode(nil, maxLen8+1)
	if !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("Encode(2^62): got err %v, want ErrValueTooLarge", err)
	}
}

func TestDecodeShortInput(t *testing.T) {
	cases := [][]byte{
		{},
		{0x40},       // claims 2 bytes, has 1
		{0x80, 0, 0}, // claims 4 bytes, has 3
	}
	for _, c := range cases {
		if _, _, err := Decode(c); !errors.Is(err, ErrShortInput) {
			t.Errorf("Decode(%v): got err %v, want ErrShortInput", c, err)
		}
	}
}

// TestFlowID42 checks the minimal (1-byte) encoding of flow id 42 from
// spec.md §8 boundary scenario 1. The scenario's prose literal
// (0x40 0x2A) is the non-minimal 2-byte form; §4.1's own encode rule
// ("value < 2^6 -> 1 byte") makes the minimal 1-byte form (0x2A)
// canonical, so that is what this implementation produces — see
// DESIGN.md's Open Question log.
func TestFlowID42(t *testing.T) {
	enc, err := Encode(nil, 42)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x2a}
	if !bytes.Equal(enc, want) {
		t.Errorf("Encode(42) = %x, want %x", enc, want)
	}
	v, n, err := Decode(enc)
	if err != nil || v != 42 || n != 1 {
		t.Errorf("Decode(Encode(42)) = (%d, %d, %v), want (42, 1, nil)", v, n, err)
	}
}

// TestUniStreamType0x40 matches spec.md §8 boundary scenario 2's
// uni_stream_type value of 0x40 (64), which needs the 2-byte form
// since it exceeds the 1-byte form's 63-value ceiling.
func TestUniStreamType0x40(t *testing.T) {
	enc, err := Encode(nil, 0x40)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x40, 0x40}
	if !bytes.Equal(enc, want) {
		t.Errorf("Encode(0x40) = %x, want %x", enc, want)
	}
}

func TestAppendLength(t *testing.T) {
	payload := make([]byte, 500)
	enc, err := AppendLength(nil, payload)
	if err != nil {
		t.Fatal(err)
	}
	v, n, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if v != 500 || n != len(enc) {
		t.Errorf("AppendLength round trip = (%d, %d), want (500, %d)", v, n, len(enc))
	}
}
