package treefile

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/page"
)

// ErrNotFound is returned when a key is not on the leaf page
var ErrNotFound = errors.New("key not found")

// LeafScanner walks the key/value pairs of a row-store leaf page in order
type LeafScanner struct {
	img   []byte
	pairs uint32
	i     uint32
	pos   int
	key   []byte
	value []byte
	err   error
}

// NewLeafScanner creates a scanner over the leaf page img
func NewLeafScanner(img []byte) (*LeafScanner, error) {
	hdr, err := page.ParseHeader(img)
	if err != nil {
		return nil, err
	}
	if hdr.Type != page.TypeRowLeaf {
		return nil, fmt.Errorf("%w: expected %s page, got %s", page.ErrInvalidArgument, page.TypeRowLeaf, hdr.Type)
	}

	return &LeafScanner{
		img:   img,
		pairs: hdr.Entries / 2,
		pos:   page.CellStart,
	}, nil
}

// Next advances to the next pair and reports whether there is one
func (s *LeafScanner) Next() bool {
	if s.err != nil || s.i >= s.pairs {
		return false
	}

	key, next, err := cell.DecodeKeyCell(s.img, s.pos)
	if err != nil {
		s.err = fmt.Errorf("leaf pair %d: %w", s.i, err)
		return false
	}
	value, next, err := cell.DecodeValueCell(s.img, next)
	if err != nil {
		s.err = fmt.Errorf("leaf pair %d: %w", s.i, err)
		return false
	}

	s.key, s.value, s.pos = key, value, next
	s.i++
	return true
}

// Key returns the current key. It aliases the page image.
func (s *LeafScanner) Key() []byte {
	return s.key
}

// Value returns the current value. It aliases the page image.
func (s *LeafScanner) Value() []byte {
	return s.value
}

// Err returns the decode error that stopped the scan, if any
func (s *LeafScanner) Err() error {
	return s.err
}

// ScanLeaf looks key up on the leaf page img
func ScanLeaf(img, key []byte) ([]byte, error) {
	s, err := NewLeafScanner(img)
	if err != nil {
		return nil, err
	}

	for s.Next() {
		switch cmp := bytes.Compare(s.Key(), key); {
		case cmp == 0:
			return s.Value(), nil
		case cmp > 0:
			return nil, ErrNotFound
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

// LeafPairs decodes every pair on the leaf page img
func LeafPairs(img []byte) ([]Pair, error) {
	s, err := NewLeafScanner(img)
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	for s.Next() {
		pairs = append(pairs, Pair{Key: s.Key(), Value: s.Value()})
	}
	return pairs, s.Err()
}
