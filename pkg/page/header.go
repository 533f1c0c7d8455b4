// Package page decodes the fixed headers at the front of a row-store page
// image.
//
// Image layout (all integers little-endian):
//
//	[0-7]    recno
//	[8-15]   write generation
//	[16-19]  in-memory size
//	[20-23]  entry count
//	[24]     page type
//	[25]     page flags
//	[26]     unused
//	[27]     version
//	[28-31]  block disk size
//	[32-35]  block checksum
//	[36]     block flags
//	[37-39]  unused
//	[40+]    cells
package page

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned for missing inputs and images that are not
// a page this package understands.
var ErrInvalidArgument = errors.New("invalid argument")

// Header is the page header followed by the block header.
type Header struct {
	Recno    uint64
	WriteGen uint64
	MemSize  uint32
	Entries  uint32
	Type     Type
	Flags    uint8
	Version  uint8

	// Block header fields. The checksum is carried through but never
	// verified here.
	DiskSize   uint32
	Checksum   uint32
	BlockFlags uint8
}

// ParseHeader decodes the page and block headers of img.
func ParseHeader(img []byte) (Header, error) {
	if len(img) < CellStart {
		return Header{}, fmt.Errorf("%w: page image too small: %d bytes", ErrInvalidArgument, len(img))
	}

	return Header{
		Recno:      binary.LittleEndian.Uint64(img[0:8]),
		WriteGen:   binary.LittleEndian.Uint64(img[8:16]),
		MemSize:    binary.LittleEndian.Uint32(img[16:20]),
		Entries:    binary.LittleEndian.Uint32(img[20:24]),
		Type:       Type(img[24]),
		Flags:      img[25],
		Version:    img[27],
		DiskSize:   binary.LittleEndian.Uint32(img[28:32]),
		Checksum:   binary.LittleEndian.Uint32(img[32:36]),
		BlockFlags: img[36],
	}, nil
}

// TypeOf returns the page type tag of img without decoding the rest of the
// header.
func TypeOf(img []byte) (Type, error) {
	if len(img) < HeaderSize {
		return TypeInvalid, fmt.Errorf("%w: page image too small: %d bytes", ErrInvalidArgument, len(img))
	}
	return Type(img[24]), nil
}

// Encode writes h into the first CellStart bytes of dst.
func (h Header) Encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], h.Recno)
	binary.LittleEndian.PutUint64(dst[8:16], h.WriteGen)
	binary.LittleEndian.PutUint32(dst[16:20], h.MemSize)
	binary.LittleEndian.PutUint32(dst[20:24], h.Entries)
	dst[24] = byte(h.Type)
	dst[25] = h.Flags
	dst[26] = 0
	dst[27] = h.Version
	binary.LittleEndian.PutUint32(dst[28:32], h.DiskSize)
	binary.LittleEndian.PutUint32(dst[32:36], h.Checksum)
	dst[36] = h.BlockFlags
	dst[37], dst[38], dst[39] = 0, 0, 0
}

// ChecksumOffset is the offset of the block checksum within an image.
const ChecksumOffset = 32
