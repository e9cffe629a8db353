package pblite

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 127, 128, 300, 16383, 16384,
		1<<32 - 1, 1 << 32, 1<<63 - 1, 1 << 63, math.MaxUint64,
	}
	for _, v := range values {
		enc := AppendVarint(nil, v)
		got, n, err := ReadVarint(enc)
		if err != nil {
			t.Fatalf("ReadVarint(% x): %v", enc, err)
		}
		if got != v || n != len(enc) {
			t.Errorf("round trip of %d = (%d, %d), want (%d, %d)", v, got, n, v, len(enc))
		}
	}
}

func TestVarintKnownEncodings(t *testing.T) {
	tests := []struct {
		v   uint64
		enc []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
	}
	for _, tt := range tests {
		if got := AppendVarint(nil, tt.v); !bytes.Equal(got, tt.enc) {
			t.Errorf("AppendVarint(%d) = % x, want % x", tt.v, got, tt.enc)
		}
	}
}

func TestVarintMaxEncoding(t *testing.T) {
	enc := AppendVarint(nil, math.MaxUint64)
	if len(enc) != 10 || enc[9] != 1 {
		t.Fatalf("max uint64 encoding = % x, want ten bytes ending in 0x01", enc)
	}
}

func TestReadVarintRejectsOverflow(t *testing.T) {
	// Tenth byte other than exactly 1 would carry value beyond 64 bits.
	tooWide := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02}
	if _, _, err := ReadVarint(tooWide); !errors.Is(err, ErrVarintOverflow) {
		t.Errorf("tenth byte 0x02: err = %v, want ErrVarintOverflow", err)
	}

	// Tenth byte with the continuation bit set would need an eleventh.
	elevenBytes := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x81, 0x00}
	if _, _, err := ReadVarint(elevenBytes); !errors.Is(err, ErrVarintOverflow) {
		t.Errorf("eleven bytes: err = %v, want ErrVarintOverflow", err)
	}
}

func TestReadVarintTruncated(t *testing.T) {
	for _, buf := range [][]byte{nil, {0x80}, {0xff, 0xff}} {
		if _, _, err := ReadVarint(buf); !errors.Is(err, ErrTruncated) {
			t.Errorf("ReadVarint(% x) err = %v, want ErrTruncated", buf, err)
		}
	}
}

func TestTagRoundTrip(t *testing.T) {
	for _, field := range []int{1, 2, 15, 16, 2047} {
		for _, wire := range []int{WireVarint, WireFixed64, WireBytes, WireFixed32} {
			enc := AppendTag(nil, field, wire)
			gotField, gotWire, n, err := ReadTag(enc)
			if err != nil {
				t.Fatalf("ReadTag(field=%d wire=%d): %v", field, wire, err)
			}
			if gotField != field || gotWire != wire || n != len(enc) {
				t.Errorf("tag (%d, %d) decoded as (%d, %d)", field, wire, gotField, gotWire)
			}
		}
	}
}

func TestReadTagRejectsBadWireType(t *testing.T) {
	for _, wire := range []uint64{6, 7} {
		enc := AppendVarint(nil, 1<<3|wire)
		if _, _, _, err := ReadTag(enc); !errors.Is(err, ErrWireType) {
			t.Errorf("wire type %d: err = %v, want ErrWireType", wire, err)
		}
	}
}

func TestBytesRoundTrip(t *testing.T) {
	for _, body := range [][]byte{nil, {0x01}, []byte("hello"), bytes.Repeat([]byte{0xab}, 200)} {
		enc := AppendBytes(nil, body)
		got, n, err := ReadBytes(enc)
		if err != nil {
			t.Fatalf("ReadBytes(% x): %v", enc, err)
		}
		if !bytes.Equal(got, body) || n != len(enc) {
			t.Errorf("body %q decoded as %q (n=%d)", body, got, n)
		}
	}
}

func TestReadBytesTruncated(t *testing.T) {
	enc := AppendBytes(nil, []byte("hello"))
	if _, _, err := ReadBytes(enc[:3]); !errors.Is(err, ErrTruncated) {
		t.Errorf("short buffer err = %v, want ErrTruncated", err)
	}
}

func TestSkip(t *testing.T) {
	var buf []byte
	buf = AppendVarint(buf, 300)
	n, err := Skip(buf, WireVarint)
	if err != nil || n != 2 {
		t.Errorf("skip varint = (%d, %v), want (2, nil)", n, err)
	}

	buf = AppendBytes(nil, []byte("abcd"))
	n, err = Skip(buf, WireBytes)
	if err != nil || n != 5 {
		t.Errorf("skip bytes = (%d, %v), want (5, nil)", n, err)
	}

	eight := make([]byte, 8)
	if n, err := Skip(eight, WireFixed64); err != nil || n != 8 {
		t.Errorf("skip fixed64 = (%d, %v), want (8, nil)", n, err)
	}
	if _, err := Skip(eight[:4], WireFixed64); !errors.Is(err, ErrTruncated) {
		t.Errorf("short fixed64 err = %v, want ErrTruncated", err)
	}
	if n, err := Skip(eight, WireFixed32); err != nil || n != 4 {
		t.Errorf("skip fixed32 = (%d, %v), want (4, nil)", n, err)
	}
}

func TestSkipRejectsGroups(t *testing.T) {
	for _, wire := range []int{WireStartGroup, WireEndGroup} {
		if _, err := Skip([]byte{0x00}, wire); !errors.Is(err, ErrWireType) {
			t.Errorf("wire %d: err = %v, want ErrWireType", wire, err)
		}
	}
}
