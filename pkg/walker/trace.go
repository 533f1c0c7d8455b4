package walker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Trace bundle layout:
//
//	magic    [4]byte "WTDT"
//	version  uint8
//	codec    uint8
//	bodyLen  uint32  length of the (compressed) body
//	body     []byte
//	checksum uint64  xxhash64 of the uncompressed body
//
// The uncompressed body is the key followed by the entries:
//
//	keyLen uint32, key, count uint32,
//	count x (depth uint32, offset uint64, size uint64, pageLen uint32, page)
const (
	traceVersion    = 1
	traceHeaderSize = 4 + 1 + 1 + 4
	traceMaxBody    = 1 << 30
)

var traceMagic = [4]byte{'W', 'T', 'D', 'T'}

var (
	// ErrUnknownCodec is returned when an unsupported compression codec is specified
	ErrUnknownCodec = errors.New("unknown compression codec")
	// ErrInvalidTrace is returned when a trace bundle cannot be decoded
	ErrInvalidTrace = errors.New("invalid trace bundle")
)

// Codec is the compression applied to a trace bundle body
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecSnappy
)

// String returns the codec name
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecSnappy:
		return "snappy"
	default:
		return fmt.Sprintf("CODEC(%d)", uint8(c))
	}
}

// ParseCodec returns the codec with the given name
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none", "":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	case "snappy":
		return CodecSnappy, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// TraceEntry is a copy of one page read during a walk
type TraceEntry struct {
	Depth  uint32
	Offset uint64
	Size   uint64
	Page   []byte
}

// Trace is the trail of pages one lookup read, root first
type Trace struct {
	Key     []byte
	Entries []TraceEntry
}

// Add appends a copy of img read from (offset, size) at depth
func (t *Trace) Add(depth uint32, offset, size uint64, img []byte) {
	t.Entries = append(t.Entries, TraceEntry{
		Depth:  depth,
		Offset: offset,
		Size:   size,
		Page:   bytes.Clone(img),
	})
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			zstdErr = fmt.Errorf("failed to create ZSTD encoder: %w", zstdErr)
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
		if zstdErr != nil {
			zstdEncoder.Close()
			zstdErr = fmt.Errorf("failed to create ZSTD decoder: %w", zstdErr)
		}
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

func compress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecZstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(data, nil), nil
	case CodecSnappy:
		return snappy.Encode(nil, data), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

func decompress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecZstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrace, err)
		}
		return out, nil
	case CodecSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrace, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

func (t *Trace) body() []byte {
	size := 4 + len(t.Key) + 4
	for _, e := range t.Entries {
		size += 4 + 8 + 8 + 4 + len(e.Page)
	}

	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Key)))
	buf = append(buf, t.Key...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Entries)))
	for _, e := range t.Entries {
		buf = binary.LittleEndian.AppendUint32(buf, e.Depth)
		buf = binary.LittleEndian.AppendUint64(buf, e.Offset)
		buf = binary.LittleEndian.AppendUint64(buf, e.Size)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Page)))
		buf = append(buf, e.Page...)
	}
	return buf
}

// Encode writes the trace to w as a bundle compressed with codec
func (t *Trace) Encode(w io.Writer, codec Codec) error {
	body := t.body()
	checksum := xxhash.Sum64(body)

	compressed, err := compress(body, codec)
	if err != nil {
		return err
	}
	if len(compressed) > traceMaxBody {
		return fmt.Errorf("%w: body of %d bytes too large", ErrInvalidTrace, len(compressed))
	}

	header := make([]byte, traceHeaderSize)
	copy(header, traceMagic[:])
	header[4] = traceVersion
	header[5] = byte(codec)
	binary.LittleEndian.PutUint32(header[6:], uint32(len(compressed)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write trace header: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("failed to write trace body: %w", err)
	}
	var trailer [8]byte
	binary.LittleEndian.PutUint64(trailer[:], checksum)
	if _, err := w.Write(trailer[:]); err != nil {
		return fmt.Errorf("failed to write trace checksum: %w", err)
	}
	return nil
}

// ReadTrace decodes a bundle written by Encode
func ReadTrace(r io.Reader) (*Trace, error) {
	header := make([]byte, traceHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidTrace, err)
	}
	if !bytes.Equal(header[:4], traceMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidTrace)
	}
	if header[4] != traceVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidTrace, header[4])
	}
	codec := Codec(header[5])
	n := binary.LittleEndian.Uint32(header[6:])
	if n > traceMaxBody {
		return nil, fmt.Errorf("%w: body of %d bytes too large", ErrInvalidTrace, n)
	}

	compressed := make([]byte, n)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrInvalidTrace, err)
	}
	var trailer [8]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return nil, fmt.Errorf("%w: checksum: %v", ErrInvalidTrace, err)
	}

	body, err := decompress(compressed, codec)
	if err != nil {
		return nil, err
	}
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(trailer[:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidTrace)
	}

	return parseBody(body)
}

func parseBody(b []byte) (*Trace, error) {
	d := traceDecoder{b: b}
	t := &Trace{}

	keyLen := d.u32()
	t.Key = d.take(int(keyLen))
	count := d.u32()
	if d.err == nil && uint64(count)*(4+8+8+4) > uint64(len(d.b)) {
		return nil, fmt.Errorf("%w: %d entries do not fit in body", ErrInvalidTrace, count)
	}

	for i := uint32(0); i < count && d.err == nil; i++ {
		var e TraceEntry
		e.Depth = d.u32()
		e.Offset = d.u64()
		e.Size = d.u64()
		e.Page = d.take(int(d.u32()))
		t.Entries = append(t.Entries, e)
	}

	if d.err != nil {
		return nil, d.err
	}
	if len(d.b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidTrace, len(d.b))
	}
	return t, nil
}

// traceDecoder reads little-endian fields, latching the first error
type traceDecoder struct {
	b   []byte
	err error
}

func (d *traceDecoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || n > len(d.b) {
		d.err = fmt.Errorf("%w: truncated body", ErrInvalidTrace)
		return false
	}
	return true
}

func (d *traceDecoder) u32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.b)
	d.b = d.b[4:]
	return v
}

func (d *traceDecoder) u64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(d.b)
	d.b = d.b[8:]
	return v
}

func (d *traceDecoder) take(n int) []byte {
	if !d.need(n) {
		return nil
	}
	v := bytes.Clone(d.b[:n])
	d.b = d.b[n:]
	return v
}
