package cell

import (
	"fmt"

	"github.com/KevoDB/wtdescent/pkg/varint"
)

// AppendKeyCell appends key as a short key cell when it fits, otherwise as a
// long key cell.
func AppendKeyCell(dst, key []byte) []byte {
	if len(key) <= ShortMax {
		dst = append(dst, byte(len(key))<<ShortShift|byte(KindKeyShort))
		return append(dst, key...)
	}
	dst = append(dst, byte(KindKey))
	dst = varint.AppendUint(dst, uint64(len(key)-SizeAdjust))
	return append(dst, key...)
}

// AppendValueCell appends value as a short or long value cell.
func AppendValueCell(dst, value []byte) []byte {
	if len(value) <= ShortMax {
		dst = append(dst, byte(len(value))<<ShortShift|byte(KindValueShort))
		return append(dst, value...)
	}
	dst = append(dst, byte(KindValue))
	dst = varint.AppendUint(dst, uint64(len(value)-SizeAdjust))
	return append(dst, value...)
}

// AppendAddressCell appends an address cell of the given kind pointing at a
// page at fileOffset spanning size bytes.
func AppendAddressCell(dst []byte, kind Kind, fileOffset, size uint64, checksum uint32) ([]byte, error) {
	if !kind.IsAddress() {
		return dst, fmt.Errorf("%w: %s is not an address kind", ErrInvalidEncoding, kind)
	}

	data, err := AppendAddress(nil, fileOffset, size, checksum)
	if err != nil {
		return dst, err
	}
	dst = append(dst, byte(kind))
	dst = varint.AppendUint(dst, uint64(len(data)))
	return append(dst, data...), nil
}

// KeyCellSize returns the encoded size of a key cell holding key.
func KeyCellSize(key []byte) int {
	if len(key) <= ShortMax {
		return 1 + len(key)
	}
	return 1 + varint.UintSize(uint64(len(key)-SizeAdjust)) + len(key)
}

// ValueCellSize returns the encoded size of a value cell holding value.
func ValueCellSize(value []byte) int {
	if len(value) <= ShortMax {
		return 1 + len(value)
	}
	return 1 + varint.UintSize(uint64(len(value)-SizeAdjust)) + len(value)
}
