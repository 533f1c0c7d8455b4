package treefile

import (
	"io"
	"sync"
)

// Buffer is an in-memory tree file. It implements io.WriterAt for a Builder
// and io.ReaderAt for NewFile.
type Buffer struct {
	mu   sync.RWMutex
	data []byte
}

// WriteAt writes p at off, growing the buffer as needed
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	end := int(off) + len(p)
	if end > len(b.data) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[off:], p)
	return len(p), nil
}

// ReadAt reads len(p) bytes from off
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Len returns the size of the buffer in bytes
func (b *Buffer) Len() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data))
}

// Bytes returns the buffer contents
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

// BuildBuffer builds a tree holding pairs in memory and opens it
func BuildBuffer(pairs []Pair, options ...Option) (*File, error) {
	buf := &Buffer{}
	if _, err := Build(buf, pairs); err != nil {
		return nil, err
	}
	return NewFile(buf, buf.Len(), options...)
}
