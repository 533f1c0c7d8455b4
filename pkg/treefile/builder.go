package treefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/keycmp"
	"github.com/KevoDB/wtdescent/pkg/page"
)

var (
	// ErrKeyOrder is returned when keys are not added in strictly increasing order
	ErrKeyOrder = errors.New("keys must be added in strictly increasing order")
	// ErrKeySize is returned for empty keys and keys longer than keycmp.KeyMaxLen
	ErrKeySize = errors.New("key size out of range")
	// ErrFinished is returned when adding to a finished builder
	ErrFinished = errors.New("builder already finished")
)

// maxAddressCellSize bounds the encoded size of one address cell: the
// descriptor, a one byte length and three packed integers of at most nine
// bytes each.
const maxAddressCellSize = 1 + 1 + 3*9

// Pair is a key/value pair stored in a leaf page
type Pair struct {
	Key   []byte
	Value []byte
}

// child is a page one level down, named by its first key
type child struct {
	key      []byte
	addr     cell.Address
	checksum uint32
}

// Builder writes a tree bottom-up. Leaf pages are written as pairs arrive;
// internal levels are written by Finish.
type Builder struct {
	w        io.WriterAt
	leaf     *PageBuilder
	leafKey  []byte
	lastKey  []byte
	children []child
	next     uint64 // next free block
	entries  uint64
	finished bool
}

// NewBuilder creates a builder writing to w. Block zero is left for the
// descriptor.
func NewBuilder(w io.WriterAt) *Builder {
	return &Builder{
		w:    w,
		leaf: NewPageBuilder(page.TypeRowLeaf),
		next: 1,
	}
}

// Add appends a key/value pair. Keys must be strictly increasing.
func (b *Builder) Add(key, value []byte) error {
	if b.finished {
		return ErrFinished
	}
	if len(key) == 0 || len(key) > keycmp.KeyMaxLen {
		return fmt.Errorf("%w: %d bytes, allowed 1 to %d", ErrKeySize, len(key), keycmp.KeyMaxLen)
	}
	if b.lastKey != nil && bytes.Compare(key, b.lastKey) <= 0 {
		return fmt.Errorf("%w: %q after %q", ErrKeyOrder, key, b.lastKey)
	}

	need := cell.KeyCellSize(key) + cell.ValueCellSize(value)
	if b.leaf.Entries() > 0 && !b.leaf.Fits(need) {
		if err := b.flushLeaf(); err != nil {
			return err
		}
	}

	if b.leaf.Entries() == 0 {
		b.leafKey = append([]byte(nil), key...)
	}
	if err := b.leaf.AddPair(key, value); err != nil {
		return err
	}

	b.lastKey = append(b.lastKey[:0], key...)
	b.entries++
	return nil
}

// Entries returns the number of pairs added
func (b *Builder) Entries() uint64 {
	return b.entries
}

// Finish writes the remaining leaf, every internal level and the descriptor.
// A builder with no pairs produces a tree whose root is an empty leaf.
func (b *Builder) Finish() (*Descriptor, error) {
	if b.finished {
		return nil, ErrFinished
	}
	b.finished = true

	if b.leaf.Entries() > 0 || len(b.children) == 0 {
		if err := b.flushLeaf(); err != nil {
			return nil, err
		}
	}

	level := b.children
	depth := uint32(1)
	kind := cell.KindAddrLeafNo
	for len(level) > 1 {
		next, err := b.writeLevel(level, kind)
		if err != nil {
			return nil, err
		}
		level = next
		kind = cell.KindAddrInt
		depth++
	}

	desc := NewDescriptor(level[0].addr, depth, b.entries)
	block := make([]byte, page.BlockSize)
	copy(block, desc.Encode())
	if _, err := b.w.WriteAt(block, 0); err != nil {
		return nil, fmt.Errorf("failed to write descriptor: %w", err)
	}

	return desc, nil
}

func (b *Builder) flushLeaf() error {
	addr, checksum, err := b.writePage(b.leaf.Finish())
	if err != nil {
		return err
	}
	b.children = append(b.children, child{key: b.leafKey, addr: addr, checksum: checksum})
	b.leaf.Reset()
	b.leafKey = nil
	return nil
}

// writeLevel packs children into internal pages and returns the pages written
func (b *Builder) writeLevel(children []child, kind cell.Kind) ([]child, error) {
	var (
		parents []child
		first   []byte
	)
	pb := NewPageBuilder(page.TypeRowInt)

	flush := func() error {
		img := pb.Finish()
		addr, checksum, err := b.writePage(img)
		if err != nil {
			return err
		}
		parents = append(parents, child{key: first, addr: addr, checksum: checksum})
		pb.Reset()
		return nil
	}

	for _, c := range children {
		if pb.Entries() > 0 && !pb.Fits(cell.KeyCellSize(c.key)+maxAddressCellSize) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		if pb.Entries() == 0 {
			first = c.key
		}
		if err := pb.AddChild(c.key, kind, c.addr, c.checksum); err != nil {
			return nil, err
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return parents, nil
}

func (b *Builder) writePage(img []byte) (cell.Address, uint32, error) {
	offset := b.next * page.BlockSize
	if _, err := b.w.WriteAt(img, int64(offset)); err != nil {
		return cell.Address{}, 0, fmt.Errorf("failed to write page at %d: %w", offset, err)
	}
	b.next += uint64(len(img)) / page.BlockSize

	hdr, err := page.ParseHeader(img)
	if err != nil {
		return cell.Address{}, 0, err
	}
	return cell.Address{Offset: offset, Size: uint64(len(img))}, hdr.Checksum, nil
}

// Build writes a whole tree holding pairs to w. Pairs must be sorted by key
// with no duplicates.
func Build(w io.WriterAt, pairs []Pair) (*Descriptor, error) {
	b := NewBuilder(w)
	for _, p := range pairs {
		if err := b.Add(p.Key, p.Value); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}
