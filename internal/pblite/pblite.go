// Package pblite implements the handful of protocol-buffer wire primitives
// the otpauth-migration payload needs: varints, field tags and
// length-delimited byte fields. It is not a general protobuf runtime; it
// reads and writes exactly the subset of the encoding the migration format
// uses, and fails fast on anything it cannot walk past.
package pblite

import (
	"errors"
	"fmt"
)

// Wire types as defined by the protobuf encoding.
const (
	WireVarint     = 0
	WireFixed64    = 1
	WireBytes      = 2
	WireStartGroup = 3
	WireEndGroup   = 4
	WireFixed32    = 5
)

// A 64-bit value spans at most ten varint bytes.
const maxVarintLen = 10

var (
	// ErrVarintOverflow indicates a varint that does not fit in 64 bits.
	ErrVarintOverflow = errors.New("varint exceeds 64 bits")
	// ErrTruncated indicates a field whose body runs past the end of the buffer.
	ErrTruncated = errors.New("truncated field")
	// ErrWireType indicates a wire type this decoder cannot handle.
	ErrWireType = errors.New("unsupported wire type")
)

// ReadVarint decodes a varint from the start of buf and returns the value
// and the number of bytes consumed. Nine continuation bytes carry 63 bits,
// so a tenth byte is accepted only when it is exactly 1, the sole encoding
// of the top bit.
func ReadVarint(buf []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if i == maxVarintLen-1 {
			if b != 1 {
				return 0, 0, ErrVarintOverflow
			}
			return v | 1<<63, maxVarintLen, nil
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: varint missing terminator", ErrTruncated)
}

// ReadTag decodes a field tag, returning the field number, the wire type
// and the number of bytes consumed. Wire types above 5 do not exist and
// are rejected here so that message walks stop at the first corrupt tag.
func ReadTag(buf []byte) (field, wire, n int, err error) {
	tag, n, err := ReadVarint(buf)
	if err != nil {
		return 0, 0, 0, err
	}
	wire = int(tag & 0x7)
	if wire > WireFixed32 {
		return 0, 0, 0, fmt.Errorf("%w: %d", ErrWireType, wire)
	}
	return int(tag >> 3), wire, n, nil
}

// ReadBytes decodes a length-delimited field from the start of buf and
// returns its body and the total number of bytes consumed, length prefix
// included. The body aliases buf.
func ReadBytes(buf []byte) ([]byte, int, error) {
	length, n, err := ReadVarint(buf)
	if err != nil {
		return nil, 0, err
	}
	if length > uint64(len(buf)-n) {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, length, len(buf)-n)
	}
	end := n + int(length)
	return buf[n:end], end, nil
}

// Skip returns the size of a field body of the given wire type at the
// start of buf. Group fields carry no length and cannot be skipped without
// schema knowledge, so they are rejected.
func Skip(buf []byte, wire int) (int, error) {
	switch wire {
	case WireVarint:
		_, n, err := ReadVarint(buf)
		return n, err
	case WireFixed64:
		if len(buf) < 8 {
			return 0, ErrTruncated
		}
		return 8, nil
	case WireBytes:
		_, n, err := ReadBytes(buf)
		return n, err
	case WireFixed32:
		if len(buf) < 4 {
			return 0, ErrTruncated
		}
		return 4, nil
	}
	return 0, fmt.Errorf("%w: cannot skip wire type %d", ErrWireType, wire)
}

// AppendVarint appends the varint encoding of v to dst.
func AppendVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// AppendTag appends the tag varint for the given field number and wire type.
func AppendTag(dst []byte, field, wire int) []byte {
	return AppendVarint(dst, uint64(field)<<3|uint64(wire))
}

// AppendBytes appends b as a length-delimited field body.
func AppendBytes(dst, b []byte) []byte {
	dst = AppendVarint(dst, uint64(len(b)))
	return append(dst, b...)
}
