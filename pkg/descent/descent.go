// Package descent steps a root-to-leaf walk of a row-store B-tree one page
// at a time.
//
// The caller owns the walk. It creates a Scratch for the search key, then
// repeatedly fetches a page, wraps it in a Context and calls Lookup. After
// each call it either fetches the page at NextOffset/NextSize or stops
// because Done is set. Lookup never blocks and never retains the page.
package descent

import (
	"errors"
	"fmt"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/page"
	"github.com/KevoDB/wtdescent/pkg/search"
)

// MaxDepth is the number of internal levels one walk may pass through. It
// bounds both the scratch index array and the number of invocations.
const MaxDepth = 10

var (
	// ErrInvalidArgument is returned for missing inputs and unknown page types
	ErrInvalidArgument = page.ErrInvalidArgument
	// ErrInvalidEncoding is returned for malformed cells
	ErrInvalidEncoding = cell.ErrInvalidEncoding
	// ErrDepthExhausted is returned when a child was found but the walk has
	// used every level. It is terminal but not a sign of corruption.
	ErrDepthExhausted = errors.New("descent depth exhausted")
)

// Scratch is the state of one walk, carried from invocation to invocation.
type Scratch struct {
	// Depth is the number of internal pages descended through so far
	Depth uint32
	// Indexes holds the pair chosen at each level
	Indexes [MaxDepth]uint32
	// Key is the search key
	Key []byte
	// Pages counts invocations on recognized page types
	Pages uint32
}

// NewScratch creates the scratch state for a walk searching for key. Keys
// longer than keycmp.KeyMaxLen are accepted, but only their first
// KeyMaxLen bytes steer the walk.
func NewScratch(key []byte) (*Scratch, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty search key", ErrInvalidArgument)
	}
	return &Scratch{Key: key}, nil
}

// Path returns the pair indexes chosen so far, root first
func (s *Scratch) Path() []uint32 {
	return s.Indexes[:s.Depth]
}

// Reset prepares the scratch for a new walk with the same key
func (s *Scratch) Reset() {
	s.Depth = 0
	s.Indexes = [MaxDepth]uint32{}
	s.Pages = 0
}

// Context is one invocation: the page to examine, the walk's scratch state
// and the outputs the caller reads after Lookup returns.
type Context struct {
	Page    []byte
	Scratch *Scratch

	// NextOffset and NextSize name the page to fetch next. They are only
	// meaningful when Lookup returns nil and Done is false.
	NextOffset uint64
	NextSize   uint64
	Done       bool

	// Descent is the child chosen on this page, if it was internal
	Descent search.Descent
}

// Lookup examines ctx.Page and advances the walk. On a leaf it sets Done.
// On an internal page it chooses the child covering the search key, records
// the choice in the scratch state and names the child as the next page, or
// sets Done and returns ErrDepthExhausted when no levels remain.
//
// A null child is still a continuation: NextOffset and NextSize are both
// zero and the caller decides what an empty subtree means.
//
// A failed invocation may leave the scratch state partly updated; the walk
// must not be resumed from it.
func Lookup(ctx *Context) error {
	if ctx == nil || ctx.Scratch == nil || len(ctx.Page) == 0 || len(ctx.Scratch.Key) == 0 {
		return fmt.Errorf("%w: missing page, scratch or key", ErrInvalidArgument)
	}
	s := ctx.Scratch
	if s.Depth >= MaxDepth {
		return fmt.Errorf("%w: scratch depth %d at limit", ErrInvalidArgument, s.Depth)
	}

	typ, err := page.TypeOf(ctx.Page)
	if err != nil {
		return err
	}

	switch typ {
	case page.TypeRowLeaf, page.TypeRowInt:
	default:
		return fmt.Errorf("%w: cannot descend through a %s page", ErrInvalidArgument, typ)
	}

	s.Pages++
	if typ == page.TypeRowLeaf {
		ctx.Done = true
		return nil
	}

	d, err := search.InternalPage(ctx.Page, s.Key)
	if err != nil {
		return err
	}

	ctx.Descent = d
	s.Indexes[s.Depth] = d.Index
	s.Depth++

	if s.Depth == MaxDepth {
		ctx.Done = true
		return ErrDepthExhausted
	}

	ctx.NextOffset = d.Offset
	ctx.NextSize = d.Size
	return nil
}
