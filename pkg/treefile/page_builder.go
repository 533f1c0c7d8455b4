package treefile

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/page"
)

// PageBuilder assembles one row-store page image. It does not check key
// order; Build does that for whole trees.
type PageBuilder struct {
	typ      page.Type
	cells    []byte
	entries  uint32
	writeGen uint64
}

// NewPageBuilder creates a builder for a page of the given type
func NewPageBuilder(typ page.Type) *PageBuilder {
	return &PageBuilder{
		typ:   typ,
		cells: make([]byte, 0, page.BlockSize-page.CellStart),
	}
}

// AddChild appends a (key, address) pair to an internal page
func (b *PageBuilder) AddChild(key []byte, kind cell.Kind, addr cell.Address, checksum uint32) error {
	if b.typ != page.TypeRowInt {
		return fmt.Errorf("cannot add a child to a %s page", b.typ)
	}

	cells := cell.AppendKeyCell(b.cells, key)
	cells, err := cell.AppendAddressCell(cells, kind, addr.Offset, addr.Size, checksum)
	if err != nil {
		return err
	}
	b.cells = cells
	b.entries += 2
	return nil
}

// AddPair appends a key/value pair to a leaf page
func (b *PageBuilder) AddPair(key, value []byte) error {
	if b.typ != page.TypeRowLeaf {
		return fmt.Errorf("cannot add a key/value pair to a %s page", b.typ)
	}

	b.cells = cell.AppendKeyCell(b.cells, key)
	b.cells = cell.AppendValueCell(b.cells, value)
	b.entries += 2
	return nil
}

// AddRaw appends pre-encoded cells and bumps the entry count by entries.
// It exists for building deliberately malformed pages.
func (b *PageBuilder) AddRaw(cells []byte, entries uint32) {
	b.cells = append(b.cells, cells...)
	b.entries += entries
}

// SetEntries overrides the entry count written to the header
func (b *PageBuilder) SetEntries(n uint32) {
	b.entries = n
}

// SetWriteGen sets the write generation written to the header
func (b *PageBuilder) SetWriteGen(gen uint64) {
	b.writeGen = gen
}

// Entries returns the number of cells added so far
func (b *PageBuilder) Entries() int {
	return int(b.entries)
}

// EstimatedSize returns the number of bytes used by headers and cells
func (b *PageBuilder) EstimatedSize() int {
	return page.CellStart + len(b.cells)
}

// Fits reports whether n more bytes of cells fit in a single block
func (b *PageBuilder) Fits(n int) bool {
	return b.EstimatedSize()+n <= page.BlockSize
}

// Reset clears the builder state
func (b *PageBuilder) Reset() {
	b.cells = b.cells[:0]
	b.entries = 0
}

// Finish serializes the page, padded to a whole number of blocks, and stamps
// the block checksum.
func (b *PageBuilder) Finish() []byte {
	used := b.EstimatedSize()
	size := (used + page.BlockSize - 1) / page.BlockSize * page.BlockSize

	img := make([]byte, size)
	copy(img[page.CellStart:], b.cells)

	hdr := page.Header{
		WriteGen: b.writeGen,
		MemSize:  uint32(used),
		Entries:  b.entries,
		Type:     b.typ,
		Version:  1,
		DiskSize: uint32(size),
	}
	hdr.Encode(img)
	hdr.Checksum = Checksum(img)
	hdr.Encode(img)

	return img
}

// Checksum computes the block checksum of img: the low 32 bits of xxhash64
// over the image with the checksum field read as zero.
func Checksum(img []byte) uint32 {
	if len(img) < page.CellStart {
		return 0
	}

	var zero [4]byte
	d := xxhash.New()
	d.Write(img[:page.ChecksumOffset])
	d.Write(zero[:])
	d.Write(img[page.ChecksumOffset+4:])
	return uint32(d.Sum64())
}

// VerifyChecksum checks the block checksum stored in img
func VerifyChecksum(img []byte) error {
	hdr, err := page.ParseHeader(img)
	if err != nil {
		return err
	}
	if computed := Checksum(img); computed != hdr.Checksum {
		return fmt.Errorf("%w: page has 0x%08x, calculated 0x%08x", ErrChecksumMismatch, hdr.Checksum, computed)
	}
	return nil
}
