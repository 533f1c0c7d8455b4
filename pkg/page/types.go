package page

import "fmt"

const (
	// BlockSize is the allocation unit of the tree file. Page addresses are
	// stored in blocks and every page is a whole number of blocks.
	BlockSize = 4 * 1024
	// HeaderSize is the size of the page header at the start of every image.
	HeaderSize = 28
	// BlockHeaderSize is the size of the block header that follows it.
	BlockHeaderSize = 12
	// CellStart is the offset of the first cell in a page image.
	CellStart = HeaderSize + BlockHeaderSize
)

// Type is the page type tag stored in the page header.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeBlockManager
	TypeColFix
	TypeColInt
	TypeColVar
	TypeOverflow
	TypeRowInt
	TypeRowLeaf
)

// String returns the string representation of the page type
func (t Type) String() string {
	switch t {
	case TypeInvalid:
		return "invalid"
	case TypeBlockManager:
		return "block-manager"
	case TypeColFix:
		return "col-fix"
	case TypeColInt:
		return "col-int"
	case TypeColVar:
		return "col-var"
	case TypeOverflow:
		return "overflow"
	case TypeRowInt:
		return "row-int"
	case TypeRowLeaf:
		return "row-leaf"
	default:
		return fmt.Sprintf("TYPE(%d)", uint8(t))
	}
}
