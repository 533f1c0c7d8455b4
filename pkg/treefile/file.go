// Package treefile stores a row-store B-tree in a single file and reads its
// pages back for the host side of a descent.
//
// Block zero holds a Descriptor naming the root page. Every other block
// belongs to a page; a page that starts at block b is addressed with a stored
// offset of b-1.
package treefile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/page"
)

var (
	// ErrInvalidFile is returned when the file is not a tree file
	ErrInvalidFile = errors.New("invalid tree file")
	// ErrChecksumMismatch is returned when a stored checksum does not match
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrBadAddress is returned for page reads outside the file or not on a
	// block boundary
	ErrBadAddress = errors.New("bad page address")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("tree file closed")
)

// Options configure how a tree file is read
type Options struct {
	// VerifyChecksums makes ReadPage check each page's block checksum
	VerifyChecksums bool
}

// Option is a function that configures Options
type Option func(*Options)

// WithVerifyChecksums enables block checksum verification on read
func WithVerifyChecksums(verify bool) Option {
	return func(o *Options) {
		o.VerifyChecksums = verify
	}
}

// File reads pages from a tree file
type File struct {
	r      io.ReaderAt
	closer io.Closer
	size   int64
	desc   *Descriptor
	opts   Options
}

// Open opens the tree file at path
func Open(path string, options ...Option) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tree file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat tree file: %w", err)
	}

	tf, err := NewFile(f, info.Size(), options...)
	if err != nil {
		f.Close()
		return nil, err
	}
	tf.closer = f
	return tf, nil
}

// NewFile reads a tree file from r, which holds size bytes
func NewFile(r io.ReaderAt, size int64, options ...Option) (*File, error) {
	var opts Options
	for _, option := range options {
		option(&opts)
	}

	if size < page.BlockSize {
		return nil, fmt.Errorf("%w: file too small: %d bytes", ErrInvalidFile, size)
	}

	buf := make([]byte, DescriptorSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	desc, err := DecodeDescriptor(buf)
	if err != nil {
		return nil, err
	}

	return &File{
		r:    r,
		size: size,
		desc: desc,
		opts: opts,
	}, nil
}

// Descriptor returns the file's descriptor
func (f *File) Descriptor() Descriptor {
	return *f.desc
}

// Root returns the address of the root page
func (f *File) Root() cell.Address {
	return f.desc.Root()
}

// Size returns the file size in bytes
func (f *File) Size() int64 {
	return f.size
}

// ReadPage reads the page image at offset spanning size bytes
func (f *File) ReadPage(ctx context.Context, offset, size uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.r == nil {
		return nil, ErrClosed
	}

	if size == 0 || offset < page.BlockSize || offset%page.BlockSize != 0 || size%page.BlockSize != 0 {
		return nil, fmt.Errorf("%w: (%d, %d)", ErrBadAddress, offset, size)
	}
	if offset > uint64(f.size) || size > uint64(f.size)-offset {
		return nil, fmt.Errorf("%w: (%d, %d) past end of %d byte file", ErrBadAddress, offset, size, f.size)
	}

	img := make([]byte, size)
	if _, err := f.r.ReadAt(img, int64(offset)); err != nil {
		return nil, fmt.Errorf("failed to read page at %d: %w", offset, err)
	}

	if f.opts.VerifyChecksums {
		if err := VerifyChecksum(img); err != nil {
			return nil, fmt.Errorf("page at %d: %w", offset, err)
		}
	}

	return img, nil
}

// Close closes the underlying file if Open created it
func (f *File) Close() error {
	f.r = nil
	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	return err
}
