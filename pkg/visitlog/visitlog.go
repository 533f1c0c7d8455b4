// Package visitlog keeps a bounded record of the pages a process has read
// during tree walks.
//
// The log is a power-of-two ring of slots. Writers claim a sequence number
// from an atomic index and overwrite the slot it maps to, so the newest
// Capacity visits are always available and older ones are dropped.
package visitlog

import (
	"math/bits"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/KevoDB/wtdescent/pkg/page"
)

// Visit is one page read during a walk
type Visit struct {
	// Seq is the visit's position in the log, starting at zero
	Seq    uint64
	Offset uint64
	Size   uint64
	// Depth is the number of internal pages above this one
	Depth uint32
	Type  page.Type
	// Fingerprint is the xxhash64 of the page image
	Fingerprint uint64
	Time        time.Time
}

type slot struct {
	mu    sync.Mutex
	visit Visit
	valid bool
}

// Log is a fixed-size ring of visits, safe for concurrent use
type Log struct {
	slots  []slot
	mask   uint64
	next   atomic.Uint64
	closed atomic.Bool
	byType [page.TypeRowLeaf + 2]atomic.Uint64
}

// New creates a log holding the last capacity visits. Capacity is rounded up
// to a power of two with a minimum of 2.
func New(capacity int) *Log {
	if capacity < 2 {
		capacity = 2
	}
	n := uint64(1) << bits.Len64(uint64(capacity-1))
	return &Log{
		slots: make([]slot, n),
		mask:  n - 1,
	}
}

// Fingerprint hashes a page image
func Fingerprint(img []byte) uint64 {
	return xxhash.Sum64(img)
}

// Capacity returns the number of visits the log keeps
func (l *Log) Capacity() int {
	return len(l.slots)
}

// Record appends a visit to the page img read from (offset, size) at depth.
// It returns the visit's sequence number, or false once the log is closed.
func (l *Log) Record(offset, size uint64, depth uint32, img []byte) (uint64, bool) {
	if l.closed.Load() {
		return 0, false
	}

	typ, err := page.TypeOf(img)
	if err != nil {
		typ = page.TypeInvalid
	}

	seq := l.next.Add(1) - 1
	v := Visit{
		Seq:         seq,
		Offset:      offset,
		Size:        size,
		Depth:       depth,
		Type:        typ,
		Fingerprint: Fingerprint(img),
		Time:        time.Now(),
	}

	s := &l.slots[seq&l.mask]
	s.mu.Lock()
	// A slower writer holding an older sequence must not clobber a newer one.
	if !s.valid || s.visit.Seq < seq {
		s.visit = v
		s.valid = true
	}
	s.mu.Unlock()

	l.byType[typeIndex(typ)].Add(1)
	return seq, true
}

func typeIndex(t page.Type) int {
	if t > page.TypeRowLeaf {
		return int(page.TypeRowLeaf) + 1
	}
	return int(t)
}

// Total returns the number of visits ever recorded
func (l *Log) Total() uint64 {
	return l.next.Load()
}

// CountByType returns how many visits were to pages of type t. Types past
// the row-store leaf type share one counter.
func (l *Log) CountByType(t page.Type) uint64 {
	return l.byType[typeIndex(t)].Load()
}

// Snapshot returns the retained visits, oldest first
func (l *Log) Snapshot() []Visit {
	end := l.next.Load()
	start := uint64(0)
	if end > uint64(len(l.slots)) {
		start = end - uint64(len(l.slots))
	}

	visits := make([]Visit, 0, end-start)
	for seq := start; seq < end; seq++ {
		s := &l.slots[seq&l.mask]
		s.mu.Lock()
		v, ok := s.visit, s.valid && s.visit.Seq == seq
		s.mu.Unlock()
		if ok {
			visits = append(visits, v)
		}
	}
	return visits
}

// Close stops the log from accepting visits. Snapshot keeps working.
func (l *Log) Close() error {
	l.closed.Store(true)
	return nil
}
