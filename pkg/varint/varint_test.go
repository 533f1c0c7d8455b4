package varint

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeUintTierBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		value   uint64
		encoded []byte
	}{
		{"zero", 0, []byte{0x80}},
		{"1-byte max", 63, []byte{0xbf}},
		{"2-byte min", 64, []byte{0xc0, 0x00}},
		{"2-byte max", 8255, []byte{0xdf, 0xff}},
		{"multi min", 8256, []byte{0xe0}},
		{"multi one byte", 8256 + 0xff, []byte{0xe1, 0xff}},
		{"multi two bytes", 8256 + 0x1234, []byte{0xe2, 0x12, 0x34}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, n, err := DecodeUint(tc.encoded)
			if err != nil {
				t.Fatalf("DecodeUint(%x) failed: %v", tc.encoded, err)
			}
			if got != tc.value {
				t.Errorf("expected %d, got %d", tc.value, got)
			}
			if n != len(tc.encoded) {
				t.Errorf("expected %d bytes consumed, got %d", len(tc.encoded), n)
			}

			enc := AppendUint(nil, tc.value)
			if !bytes.Equal(enc, tc.encoded) {
				t.Errorf("AppendUint(%d) = %x, want %x", tc.value, enc, tc.encoded)
			}
			if UintSize(tc.value) != len(tc.encoded) {
				t.Errorf("UintSize(%d) = %d, want %d", tc.value, UintSize(tc.value), len(tc.encoded))
			}
		})
	}
}

func TestDecodeUintRoundTripPerTier(t *testing.T) {
	values := []uint64{
		1, 17, 62,
		65, 300, 4096, 8254,
		8257, 1 << 20, 1<<32 + 7, 1<<63 + 12345,
	}
	for _, v := range values {
		enc := AppendUint(nil, v)
		// Trailing bytes must not be consumed.
		enc = append(enc, 0xff, 0xff)
		got, n, err := DecodeUint(enc)
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
		if n != UintSize(v) {
			t.Errorf("round trip %d: consumed %d, want %d", v, n, UintSize(v))
		}
	}
}

func TestDecodeUintInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"low marker", []byte{0x00}},
		{"0x7f", []byte{0x7f, 0x01}},
		{"reserved 0xf0", []byte{0xf0}},
		{"truncated 2-byte", []byte{0xc5}},
		{"truncated multi", []byte{0xe3, 0x01}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := DecodeUint(tc.data)
			if !errors.Is(err, ErrInvalidEncoding) {
				t.Errorf("expected ErrInvalidEncoding, got %v", err)
			}
		})
	}
}

func TestDecodePosint(t *testing.T) {
	x, n := DecodePosint([]byte{0x03, 0x01, 0x02, 0x03, 0x99})
	if x != 0x010203 || n != 4 {
		t.Errorf("expected (0x010203, 4), got (0x%x, %d)", x, n)
	}

	// The high nibble is not part of the length.
	x, n = DecodePosint([]byte{0xe1, 0x7f})
	if x != 0x7f || n != 2 {
		t.Errorf("expected (0x7f, 2), got (0x%x, %d)", x, n)
	}

	x, n = DecodePosint([]byte{0x00})
	if x != 0 || n != 1 {
		t.Errorf("expected (0, 1), got (%d, %d)", x, n)
	}

	// Truncated input reports the declared length without panicking.
	x, n = DecodePosint([]byte{0x04, 0xaa})
	if n != 5 {
		t.Errorf("expected declared length 5, got %d", n)
	}
	if x != 0xaa000000 {
		t.Errorf("expected missing bytes to read as zero, got 0x%x", x)
	}

	if x, n := DecodePosint(nil); x != 0 || n != 0 {
		t.Errorf("expected (0, 0) for empty input, got (%d, %d)", x, n)
	}
}

func TestAppendPosint(t *testing.T) {
	enc := AppendPosint(nil, PosMultiMarker, 0x0102)
	if !bytes.Equal(enc, []byte{0xe2, 0x01, 0x02}) {
		t.Errorf("unexpected encoding %x", enc)
	}
	x, n := DecodePosint(enc)
	if x != 0x0102 || n != 3 {
		t.Errorf("expected (0x102, 3), got (0x%x, %d)", x, n)
	}
}
