// Package cell decodes the self-describing cells of a row-store page: key
// cells in their short and long forms, the address cells that point at child
// pages, and (for host-side leaf scans) value cells.
//
// All decoders take the whole page image and a cursor into it and return the
// cursor positioned after the cell. Every read is checked against the image so
// a corrupt page yields ErrInvalidEncoding rather than a panic.
package cell

import (
	"fmt"

	"github.com/KevoDB/wtdescent/pkg/varint"
)

// ErrInvalidEncoding is returned for malformed cells, unsupported flags and
// cells of an unexpected kind. It is the same error the varint package
// returns.
var ErrInvalidEncoding = varint.ErrInvalidEncoding

// DecodeAddressCell decodes the address cell at img[pos].
func DecodeAddressCell(img []byte, pos int) (Address, int, error) {
	if pos < 0 || pos >= len(img) {
		return Address{}, pos, fmt.Errorf("%w: address cell offset %d out of range", ErrInvalidEncoding, pos)
	}

	desc := img[pos]
	if !Type(desc).IsAddress() {
		return Address{}, pos, fmt.Errorf("%w: expected address cell at offset %d, found %s",
			ErrInvalidEncoding, pos, Type(desc))
	}
	if desc&Flag64V != 0 {
		return Address{}, pos, fmt.Errorf("%w: address cell at offset %d has unsupported 64-bit value",
			ErrInvalidEncoding, pos)
	}
	p := pos + 1

	if desc&FlagSecondDesc != 0 {
		if p >= len(img) {
			return Address{}, pos, fmt.Errorf("%w: truncated second descriptor at offset %d", ErrInvalidEncoding, p)
		}
		if img[p] != 0 {
			return Address{}, pos, fmt.Errorf("%w: unsupported second descriptor 0x%02x at offset %d",
				ErrInvalidEncoding, img[p], p)
		}
		p++
	}

	dataLen, n, err := varint.DecodeUint(img[p:])
	if err != nil {
		return Address{}, pos, fmt.Errorf("address cell length at offset %d: %w", p, err)
	}
	p += n

	end, err := span(img, p, dataLen)
	if err != nil {
		return Address{}, pos, err
	}

	addr, err := DecodeAddress(img[p:end])
	if err != nil {
		return Address{}, pos, fmt.Errorf("address cell at offset %d: %w", pos, err)
	}
	return addr, end, nil
}

// DecodeLongKeyCell decodes a key cell that carries an explicit length.
func DecodeLongKeyCell(img []byte, pos int) ([]byte, int, error) {
	if pos < 0 || pos >= len(img) {
		return nil, pos, fmt.Errorf("%w: key cell offset %d out of range", ErrInvalidEncoding, pos)
	}

	desc := img[pos]
	if Type(desc) != KindKey {
		return nil, pos, fmt.Errorf("%w: expected key cell at offset %d, found %s",
			ErrInvalidEncoding, pos, Type(desc))
	}
	if desc&Flag64V != 0 {
		return nil, pos, fmt.Errorf("%w: key cell at offset %d has unsupported 64-bit value",
			ErrInvalidEncoding, pos)
	}
	p := pos + 1

	// Key cells never carry a second descriptor byte.
	dataLen, n, err := varint.DecodeUint(img[p:])
	if err != nil {
		return nil, pos, fmt.Errorf("key cell length at offset %d: %w", p, err)
	}
	p += n

	if dataLen > uint64(len(img)) {
		return nil, pos, fmt.Errorf("%w: key cell length %d at offset %d exceeds page", ErrInvalidEncoding, dataLen, pos)
	}
	end, err := span(img, p, dataLen+SizeAdjust)
	if err != nil {
		return nil, pos, err
	}
	return img[p:end:end], end, nil
}

// DecodeShortKeyCell decodes a key cell whose length is packed into the
// descriptor byte.
func DecodeShortKeyCell(img []byte, pos int) ([]byte, int, error) {
	if pos < 0 || pos >= len(img) {
		return nil, pos, fmt.Errorf("%w: key cell offset %d out of range", ErrInvalidEncoding, pos)
	}

	desc := img[pos]
	if Type(desc) != KindKeyShort {
		return nil, pos, fmt.Errorf("%w: expected short key cell at offset %d, found %s",
			ErrInvalidEncoding, pos, Type(desc))
	}

	p := pos + 1
	end, err := span(img, p, uint64(desc>>ShortShift))
	if err != nil {
		return nil, pos, err
	}
	return img[p:end:end], end, nil
}

// DecodeKeyCell decodes the key cell at img[pos] in whichever form it is
// stored. Any other kind of cell is an encoding error.
func DecodeKeyCell(img []byte, pos int) ([]byte, int, error) {
	if pos < 0 || pos >= len(img) {
		return nil, pos, fmt.Errorf("%w: key cell offset %d out of range", ErrInvalidEncoding, pos)
	}

	switch kind := Type(img[pos]); kind {
	case KindKey:
		return DecodeLongKeyCell(img, pos)
	case KindKeyShort:
		return DecodeShortKeyCell(img, pos)
	default:
		return nil, pos, fmt.Errorf("%w: unexpected %s cell at offset %d where a key was expected",
			ErrInvalidEncoding, kind, pos)
	}
}

// DecodeValueCell decodes a value cell on a leaf page. Only the short and
// plain long forms are supported.
func DecodeValueCell(img []byte, pos int) ([]byte, int, error) {
	if pos < 0 || pos >= len(img) {
		return nil, pos, fmt.Errorf("%w: value cell offset %d out of range", ErrInvalidEncoding, pos)
	}

	desc := img[pos]
	p := pos + 1
	var dataLen uint64

	switch kind := Type(desc); kind {
	case KindValueShort:
		dataLen = uint64(desc >> ShortShift)

	case KindValue:
		if desc&Flag64V != 0 {
			return nil, pos, fmt.Errorf("%w: value cell at offset %d has unsupported 64-bit value",
				ErrInvalidEncoding, pos)
		}
		if desc&FlagSecondDesc != 0 {
			if p >= len(img) || img[p] != 0 {
				return nil, pos, fmt.Errorf("%w: unsupported second descriptor on value cell at offset %d",
					ErrInvalidEncoding, pos)
			}
			p++
		}
		n, sz, err := varint.DecodeUint(img[p:])
		if err != nil {
			return nil, pos, fmt.Errorf("value cell length at offset %d: %w", p, err)
		}
		p += sz
		if n > uint64(len(img)) {
			return nil, pos, fmt.Errorf("%w: value cell length %d at offset %d exceeds page", ErrInvalidEncoding, n, pos)
		}
		dataLen = n + SizeAdjust

	default:
		return nil, pos, fmt.Errorf("%w: expected value cell at offset %d, found %s",
			ErrInvalidEncoding, pos, kind)
	}

	end, err := span(img, p, dataLen)
	if err != nil {
		return nil, pos, err
	}
	return img[p:end:end], end, nil
}

// span returns start+n after checking the range lies inside img.
func span(img []byte, start int, n uint64) (int, error) {
	if start > len(img) || n > uint64(len(img)-start) {
		return 0, fmt.Errorf("%w: cell data [%d, +%d) overruns %d byte page",
			ErrInvalidEncoding, start, n, len(img))
	}
	return start + int(n), nil
}
