// Package search picks the child to descend into on a row-store internal
// page.
//
// An internal page is a run of (key, address) cell pairs in key order. Pair i
// covers the key range [key_i, key_i+1), and the key of pair 0 is treated as
// smaller than every search key whatever bytes it holds.
package search

import (
	"fmt"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/keycmp"
	"github.com/KevoDB/wtdescent/pkg/page"
)

// Descent is the child chosen on one internal page.
type Descent struct {
	Offset uint64
	Size   uint64
	// Index is the position of the chosen pair within the page.
	Index uint32
}

// Address returns the chosen child as a cell address.
func (d Descent) Address() cell.Address {
	return cell.Address{Offset: d.Offset, Size: d.Size}
}

// InternalPage scans the internal page img for the child whose key range
// holds key. Pairs are visited in page order and the scan stops at the first
// pair whose key is equal to the search key, or at the first pair whose key
// is greater (choosing the pair before it). If neither happens the last pair
// is chosen.
func InternalPage(img, key []byte) (Descent, error) {
	if len(img) == 0 || len(key) == 0 {
		return Descent{}, fmt.Errorf("%w: empty page image or search key", page.ErrInvalidArgument)
	}

	hdr, err := page.ParseHeader(img)
	if err != nil {
		return Descent{}, err
	}
	if hdr.Type != page.TypeRowInt {
		return Descent{}, fmt.Errorf("%w: expected %s page, got %s", page.ErrInvalidArgument, page.TypeRowInt, hdr.Type)
	}

	pairs := hdr.Entries / 2
	if pairs == 0 {
		return Descent{}, fmt.Errorf("%w: internal page has no entries", cell.ErrInvalidEncoding)
	}

	var (
		prev cell.Address
		i    uint32
		pos  = page.CellStart
	)

	// The second bound never binds on a sane page. It keeps the loop finite
	// when the entry count is corrupt.
	for ii := page.BlockSize; i < pairs && ii > 0; i, ii = i+1, ii-1 {
		cellKey, next, err := cell.DecodeKeyCell(img, pos)
		if err != nil {
			return Descent{}, fmt.Errorf("pair %d: %w", i, err)
		}
		addr, next, err := cell.DecodeAddressCell(img, next)
		if err != nil {
			return Descent{}, fmt.Errorf("pair %d: %w", i, err)
		}
		pos = next

		cmp := 1
		if i != 0 {
			cmp = keycmp.Compare(key, cellKey)
		}

		switch {
		case cmp == 0:
			return Descent{Offset: addr.Offset, Size: addr.Size, Index: i}, nil
		case cmp < 0:
			return Descent{Offset: prev.Offset, Size: prev.Size, Index: i - 1}, nil
		}
		prev = addr
	}

	return Descent{Offset: prev.Offset, Size: prev.Size, Index: i - 1}, nil
}
