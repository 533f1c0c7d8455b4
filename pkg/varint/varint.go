// Package varint decodes the packed unsigned integers used by the row-store
// page format: a length-prefixed "posint" and a three-tier marker encoding.
//
// Tier layout of the first byte:
//
//	10xxxxxx                  values 0..63
//	110xxxxx yyyyyyyy         values 64..8255
//	1110nnnn <n bytes>        values 8256.. (big-endian posint, offset by 8256)
//
// Every loop is bounded by a fixed maximum so the decoder behaves the same way
// it does inside a verifier-checked sandbox.
package varint

import (
	"errors"
	"fmt"
)

const (
	// Pos1ByteMarker marks a single byte value (top bits 10).
	Pos1ByteMarker = 0x80
	// Pos2ByteMarker marks a two byte value (top bits 110).
	Pos2ByteMarker = 0xc0
	// PosMultiMarker marks a posint-encoded value (top bits 1110).
	PosMultiMarker = 0xe0

	// Pos1ByteMax is the largest value the single byte tier can hold.
	Pos1ByteMax = (1 << 6) - 1
	// Pos2ByteMax is the largest value the two byte tier can hold.
	Pos2ByteMax = (1 << 13) + Pos1ByteMax

	// maxPosintBytes caps the posint loop regardless of the length nibble.
	maxPosintBytes = 16
)

// ErrInvalidEncoding is returned when the leading byte matches no tier or the
// buffer ends inside a value.
var ErrInvalidEncoding = errors.New("invalid encoding")

// DecodePosint decodes a posint starting at b[0]. The low four bits of the
// first byte hold the number of big-endian bytes that follow. It returns the
// value and the number of bytes consumed.
//
// Truncated input does not fail: bytes past the end of b read as zero and the
// returned count still covers the declared length, so callers that care must
// compare it against len(b).
func DecodePosint(b []byte) (uint64, int) {
	if len(b) == 0 {
		return 0, 0
	}

	n := int(b[0] & 0x0f)
	var x uint64
	p := 1
	for max := maxPosintBytes; n != 0 && max != 0; n, max = n-1, max-1 {
		var c byte
		if p < len(b) {
			c = b[p]
		}
		x = x<<8 | uint64(c)
		p++
	}
	return x, p
}

// DecodeUint decodes one marker-tagged unsigned integer from the front of b,
// returning the value and the number of bytes consumed.
func DecodeUint(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: empty buffer", ErrInvalidEncoding)
	}

	switch b[0] & 0xf0 {
	case Pos1ByteMarker, Pos1ByteMarker | 0x10, Pos1ByteMarker | 0x20, Pos1ByteMarker | 0x30:
		return uint64(b[0] & 0x3f), 1, nil

	case Pos2ByteMarker, Pos2ByteMarker | 0x10:
		if len(b) < 2 {
			return 0, 0, fmt.Errorf("%w: truncated two byte value", ErrInvalidEncoding)
		}
		x := uint64(b[0]&0x1f)<<8 | uint64(b[1])
		return x + Pos1ByteMax + 1, 2, nil

	case PosMultiMarker:
		x, n := DecodePosint(b)
		if n > len(b) {
			return 0, 0, fmt.Errorf("%w: truncated multi byte value", ErrInvalidEncoding)
		}
		return x + Pos2ByteMax + 1, n, nil

	default:
		return 0, 0, fmt.Errorf("%w: unknown marker 0x%02x", ErrInvalidEncoding, b[0])
	}
}

// AppendPosint appends x as a posint whose first byte carries marker in its
// high nibble.
func AppendPosint(dst []byte, marker byte, x uint64) []byte {
	n := posintLen(x)
	dst = append(dst, marker|byte(n))
	for shift := (n - 1) * 8; shift >= 0; shift -= 8 {
		dst = append(dst, byte(x>>uint(shift)))
	}
	return dst
}

// AppendUint appends the marker encoding of x.
func AppendUint(dst []byte, x uint64) []byte {
	switch {
	case x <= Pos1ByteMax:
		return append(dst, Pos1ByteMarker|byte(x))
	case x <= Pos2ByteMax:
		x -= Pos1ByteMax + 1
		return append(dst, Pos2ByteMarker|byte(x>>8), byte(x))
	default:
		return AppendPosint(dst, PosMultiMarker, x-(Pos2ByteMax+1))
	}
}

// UintSize returns the number of bytes AppendUint writes for x.
func UintSize(x uint64) int {
	switch {
	case x <= Pos1ByteMax:
		return 1
	case x <= Pos2ByteMax:
		return 2
	default:
		return 1 + posintLen(x-(Pos2ByteMax+1))
	}
}

// posintLen is the number of significant bytes in x; zero needs none.
func posintLen(x uint64) int {
	n := 0
	for ; x != 0; x >>= 8 {
		n++
	}
	return n
}
