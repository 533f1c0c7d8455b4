package cell

import "fmt"

// Kind is the cell type selected by a descriptor byte.
type Kind uint8

// Short kinds live in the two low bits of the descriptor and carry their
// data length in the six high bits.
const (
	KindKeyShort    Kind = 0x01
	KindKeyShortPfx Kind = 0x02
	KindValueShort  Kind = 0x03
)

// Generic kinds live in the high nibble of the descriptor.
const (
	KindAddrDel     Kind = 0x00
	KindAddrInt     Kind = 0x10
	KindAddrLeaf    Kind = 0x20
	KindAddrLeafNo  Kind = 0x30
	KindDel         Kind = 0x40
	KindKey         Kind = 0x50
	KindKeyOvfl     Kind = 0x60
	KindKeyPfx      Kind = 0x70
	KindValue       Kind = 0x80
	KindValueCopy   Kind = 0x90
	KindValueOvfl   Kind = 0xa0
	KindValueOvflRm Kind = 0xb0
	KindKeyOvflRm   Kind = 0xc0
)

const (
	// Flag64V marks a cell carrying a 64-bit value (RLE count or record
	// number). Not supported by this decoder.
	Flag64V = 0x04
	// FlagSecondDesc marks a cell followed by a second descriptor byte.
	FlagSecondDesc = 0x08

	// ShortShift is the shift that extracts a short cell's data length.
	ShortShift = 2
	// ShortMax is the longest data a short cell can carry.
	ShortMax = 63
	// SizeAdjust is added to the stored length of long key and value cells;
	// anything shorter would have been written as a short cell.
	SizeAdjust = ShortMax + 1

	shortMask = 0x03
	typeMask  = 0xf0
)

// Type returns the kind encoded in descriptor byte b. A short kind takes
// priority over the generic kind because the short length overlays the bits
// the generic tag would otherwise occupy.
func Type(b byte) Kind {
	if s := b & shortMask; s != 0 {
		return Kind(s)
	}
	return Kind(b & typeMask)
}

// IsAddress reports whether k is one of the address kinds this package
// decodes.
func (k Kind) IsAddress() bool {
	return k == KindAddrInt || k == KindAddrLeaf || k == KindAddrLeafNo
}

// String returns the string representation of the cell kind
func (k Kind) String() string {
	switch k {
	case KindKeyShort:
		return "key-short"
	case KindKeyShortPfx:
		return "key-short-pfx"
	case KindValueShort:
		return "value-short"
	case KindAddrDel:
		return "addr-del"
	case KindAddrInt:
		return "addr-int"
	case KindAddrLeaf:
		return "addr-leaf"
	case KindAddrLeafNo:
		return "addr-leaf-no"
	case KindDel:
		return "del"
	case KindKey:
		return "key"
	case KindKeyOvfl:
		return "key-ovfl"
	case KindKeyPfx:
		return "key-pfx"
	case KindValue:
		return "value"
	case KindValueCopy:
		return "value-copy"
	case KindValueOvfl:
		return "value-ovfl"
	case KindValueOvflRm:
		return "value-ovfl-rm"
	case KindKeyOvflRm:
		return "key-ovfl-rm"
	default:
		return fmt.Sprintf("KIND(0x%02x)", uint8(k))
	}
}
