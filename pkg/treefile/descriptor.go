package treefile

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/page"
)

const (
	// DescriptorSize is the encoded size of the descriptor in block zero
	DescriptorSize = 52
	// DescriptorMagic identifies a tree file
	DescriptorMagic = uint64(0x57544445534E5431) // "WTDESNT1"
	// CurrentVersion is the current file format version
	CurrentVersion = uint32(1)
)

// Descriptor lives in block zero, the block no page address can name. It
// tells the host where the root page is.
type Descriptor struct {
	Magic      uint64
	Version    uint32
	BlockSize  uint32
	RootOffset uint64
	RootSize   uint64
	// Depth is the number of levels, counting the leaves
	Depth uint32
	// Entries is the number of key/value pairs in the tree
	Entries  uint64
	Checksum uint64
}

// NewDescriptor creates a descriptor for a tree rooted at root
func NewDescriptor(root cell.Address, depth uint32, entries uint64) *Descriptor {
	return &Descriptor{
		Magic:      DescriptorMagic,
		Version:    CurrentVersion,
		BlockSize:  page.BlockSize,
		RootOffset: root.Offset,
		RootSize:   root.Size,
		Depth:      depth,
		Entries:    entries,
	}
}

// Root returns the address of the root page
func (d *Descriptor) Root() cell.Address {
	return cell.Address{Offset: d.RootOffset, Size: d.RootSize}
}

// Encode serializes the descriptor, computing its checksum
func (d *Descriptor) Encode() []byte {
	result := make([]byte, DescriptorSize)

	binary.LittleEndian.PutUint64(result[0:8], d.Magic)
	binary.LittleEndian.PutUint32(result[8:12], d.Version)
	binary.LittleEndian.PutUint32(result[12:16], d.BlockSize)
	binary.LittleEndian.PutUint64(result[16:24], d.RootOffset)
	binary.LittleEndian.PutUint64(result[24:32], d.RootSize)
	binary.LittleEndian.PutUint32(result[32:36], d.Depth)
	binary.LittleEndian.PutUint64(result[36:44], d.Entries)

	d.Checksum = xxhash.Sum64(result[:44])
	binary.LittleEndian.PutUint64(result[44:], d.Checksum)

	return result
}

// DecodeDescriptor parses a descriptor from the front of data
func DecodeDescriptor(data []byte) (*Descriptor, error) {
	if len(data) < DescriptorSize {
		return nil, fmt.Errorf("%w: descriptor data too small: %d bytes, expected %d",
			ErrInvalidFile, len(data), DescriptorSize)
	}

	d := &Descriptor{
		Magic:      binary.LittleEndian.Uint64(data[0:8]),
		Version:    binary.LittleEndian.Uint32(data[8:12]),
		BlockSize:  binary.LittleEndian.Uint32(data[12:16]),
		RootOffset: binary.LittleEndian.Uint64(data[16:24]),
		RootSize:   binary.LittleEndian.Uint64(data[24:32]),
		Depth:      binary.LittleEndian.Uint32(data[32:36]),
		Entries:    binary.LittleEndian.Uint64(data[36:44]),
		Checksum:   binary.LittleEndian.Uint64(data[44:52]),
	}

	if d.Magic != DescriptorMagic {
		return nil, fmt.Errorf("%w: invalid descriptor magic: %x, expected %x",
			ErrInvalidFile, d.Magic, DescriptorMagic)
	}

	if expected := xxhash.Sum64(data[:44]); d.Checksum != expected {
		return nil, fmt.Errorf("%w: descriptor checksum mismatch: file has %d, calculated %d",
			ErrChecksumMismatch, d.Checksum, expected)
	}

	if d.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFile, d.Version)
	}

	if d.BlockSize != page.BlockSize {
		return nil, fmt.Errorf("%w: block size %d does not match compiled block size %d",
			ErrInvalidFile, d.BlockSize, page.BlockSize)
	}

	return d, nil
}
