package cell

import (
	"fmt"

	"github.com/KevoDB/wtdescent/pkg/page"
	"github.com/KevoDB/wtdescent/pkg/varint"
)

// Address is the file location of a child page.
type Address struct {
	Offset uint64
	Size   uint64
}

// IsNull reports whether a is the "no child" address.
func (a Address) IsNull() bool {
	return a.Size == 0
}

// String returns a readable form of the address
func (a Address) String() string {
	if a.IsNull() {
		return "addr(null)"
	}
	return fmt.Sprintf("addr(%d, %d)", a.Offset, a.Size)
}

// DecodeAddress decodes the packed (offset, size, checksum) triple at the
// front of b. Offsets are stored one-biased in blocks because block zero is
// reserved, so a stored size of zero means there is no child. The checksum is
// read past and dropped.
func DecodeAddress(b []byte) (Address, error) {
	rawOffset, n, err := varint.DecodeUint(b)
	if err != nil {
		return Address{}, fmt.Errorf("address offset: %w", err)
	}
	b = b[n:]

	rawSize, n, err := varint.DecodeUint(b)
	if err != nil {
		return Address{}, fmt.Errorf("address size: %w", err)
	}
	b = b[n:]

	if _, _, err := varint.DecodeUint(b); err != nil {
		return Address{}, fmt.Errorf("address checksum: %w", err)
	}

	if rawSize == 0 {
		return Address{}, nil
	}
	return Address{
		Offset: page.BlockSize * (rawOffset + 1),
		Size:   page.BlockSize * rawSize,
	}, nil
}

// AppendAddress appends the packed triple for a page at fileOffset spanning
// size bytes. Both must be whole, non-zero multiples of page.BlockSize, or
// size zero for a null address.
func AppendAddress(dst []byte, fileOffset, size uint64, checksum uint32) ([]byte, error) {
	if size == 0 {
		dst = varint.AppendUint(dst, 0)
		dst = varint.AppendUint(dst, 0)
		return varint.AppendUint(dst, uint64(checksum)), nil
	}
	if fileOffset < page.BlockSize || fileOffset%page.BlockSize != 0 || size%page.BlockSize != 0 {
		return dst, fmt.Errorf("address (%d, %d) is not block aligned", fileOffset, size)
	}

	dst = varint.AppendUint(dst, fileOffset/page.BlockSize-1)
	dst = varint.AppendUint(dst, size/page.BlockSize)
	return varint.AppendUint(dst, uint64(checksum)), nil
}
