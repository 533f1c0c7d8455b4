package descent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/keycmp"
	"github.com/KevoDB/wtdescent/pkg/page"
	"github.com/KevoDB/wtdescent/pkg/search"
	"github.com/KevoDB/wtdescent/pkg/treefile"
)

func leafPage(t *testing.T) []byte {
	t.Helper()
	b := treefile.NewPageBuilder(page.TypeRowLeaf)
	if err := b.AddPair([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("failed to add pair: %v", err)
	}
	return b.Finish()
}

func internalPage(t *testing.T, keys ...string) []byte {
	t.Helper()
	b := treefile.NewPageBuilder(page.TypeRowInt)
	for i, k := range keys {
		a := cell.Address{Offset: uint64(i+1) * page.BlockSize, Size: page.BlockSize}
		if err := b.AddChild([]byte(k), cell.KindAddrInt, a, 0); err != nil {
			t.Fatalf("failed to add child: %v", err)
		}
	}
	return b.Finish()
}

func newScratch(t *testing.T, key string) *Scratch {
	t.Helper()
	s, err := NewScratch([]byte(key))
	if err != nil {
		t.Fatalf("failed to create scratch: %v", err)
	}
	return s
}

func TestLookupLeafAtRoot(t *testing.T) {
	s := newScratch(t, "k")
	ctx := &Context{Page: leafPage(t), Scratch: s}

	if err := Lookup(ctx); err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !ctx.Done {
		t.Error("expected done on a leaf page")
	}
	if s.Depth != 0 {
		t.Errorf("expected depth to stay 0, got %d", s.Depth)
	}
	if s.Pages != 1 {
		t.Errorf("expected 1 page visited, got %d", s.Pages)
	}
	if ctx.NextOffset != 0 || ctx.NextSize != 0 {
		t.Errorf("expected no next page, got (%d, %d)", ctx.NextOffset, ctx.NextSize)
	}
}

func TestLookupInternalContinues(t *testing.T) {
	s := newScratch(t, "e")
	ctx := &Context{Page: internalPage(t, "", "c", "m", "z"), Scratch: s}

	if err := Lookup(ctx); err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if ctx.Done {
		t.Error("expected walk to continue")
	}
	if ctx.NextOffset != 2*page.BlockSize || ctx.NextSize != page.BlockSize {
		t.Errorf("expected next page (%d, %d), got (%d, %d)",
			2*page.BlockSize, page.BlockSize, ctx.NextOffset, ctx.NextSize)
	}
	if s.Depth != 1 || s.Indexes[0] != 1 {
		t.Errorf("expected depth 1 with index 1, got depth %d path %v", s.Depth, s.Path())
	}
	want := search.Descent{Offset: 2 * page.BlockSize, Size: page.BlockSize, Index: 1}
	if ctx.Descent != want {
		t.Errorf("expected descent %+v, got %+v", want, ctx.Descent)
	}
}

func TestLookupLongKey(t *testing.T) {
	key := "d" + string(bytes.Repeat([]byte("x"), keycmp.KeyMaxLen+44))
	s := newScratch(t, key)
	ctx := &Context{Page: internalPage(t, "", "c", "m"), Scratch: s}

	if err := Lookup(ctx); err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if ctx.Done || s.Indexes[0] != 1 || ctx.NextOffset != 2*page.BlockSize {
		t.Errorf("expected to continue at index 1, got done=%v path %v next %d", ctx.Done, s.Path(), ctx.NextOffset)
	}
}

func TestLookupDepthExhausted(t *testing.T) {
	s := newScratch(t, "zz")
	s.Depth = MaxDepth - 1
	ctx := &Context{Page: internalPage(t, "", "c", "m", "z"), Scratch: s}

	err := Lookup(ctx)
	if !errors.Is(err, ErrDepthExhausted) {
		t.Fatalf("expected ErrDepthExhausted, got %v", err)
	}
	if StatusOf(err) != StatusDepthExhausted {
		t.Errorf("expected status %s, got %s", StatusDepthExhausted, StatusOf(err))
	}
	if !ctx.Done {
		t.Error("expected done when depth is exhausted")
	}
	if ctx.NextOffset != 0 || ctx.NextSize != 0 {
		t.Errorf("expected no next page, got (%d, %d)", ctx.NextOffset, ctx.NextSize)
	}
	// The child was still located and recorded.
	if ctx.Descent.Index != 3 || s.Indexes[MaxDepth-1] != 3 {
		t.Errorf("expected last pair recorded, got descent %+v path %v", ctx.Descent, s.Path())
	}
	if s.Depth != MaxDepth {
		t.Errorf("expected depth %d, got %d", MaxDepth, s.Depth)
	}

	// No further invocation is possible.
	if err := Lookup(&Context{Page: leafPage(t), Scratch: s}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument past the depth limit, got %v", err)
	}
}

func TestLookupMalformedFirstCell(t *testing.T) {
	b := treefile.NewPageBuilder(page.TypeRowInt)
	// An address cell where the first key should be.
	raw, err := cell.AppendAddressCell(nil, cell.KindAddrInt, page.BlockSize, page.BlockSize, 0)
	if err != nil {
		t.Fatalf("failed to encode address cell: %v", err)
	}
	b.AddRaw(raw, 2)

	s := newScratch(t, "k")
	ctx := &Context{Page: b.Finish(), Scratch: s}

	err = Lookup(ctx)
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
	if Invoke(&Context{Page: ctx.Page, Scratch: newScratch(t, "k")}) != StatusInvalidEncoding {
		t.Error("expected status INVALID_ENCODING")
	}
	if ctx.Descent != (search.Descent{}) {
		t.Errorf("expected no descent record, got %+v", ctx.Descent)
	}
	if s.Depth != 0 || s.Indexes[0] != 0 {
		t.Errorf("expected scratch path untouched, got depth %d path %v", s.Depth, s.Indexes)
	}
	if ctx.Done || ctx.NextOffset != 0 || ctx.NextSize != 0 {
		t.Errorf("expected no outputs, got done=%v next=(%d, %d)", ctx.Done, ctx.NextOffset, ctx.NextSize)
	}
}

func TestLookupNullChild(t *testing.T) {
	b := treefile.NewPageBuilder(page.TypeRowInt)
	if err := b.AddChild([]byte("a"), cell.KindAddrInt, cell.Address{}, 0); err != nil {
		t.Fatalf("failed to add child: %v", err)
	}
	ctx := &Context{Page: b.Finish(), Scratch: newScratch(t, "k")}

	if err := Lookup(ctx); err != nil {
		t.Fatalf("expected a null child to continue, got %v", err)
	}
	if ctx.Done {
		t.Error("expected the walk to continue past a null child")
	}
	if ctx.NextOffset != 0 || ctx.NextSize != 0 {
		t.Errorf("expected next page (0, 0), got (%d, %d)", ctx.NextOffset, ctx.NextSize)
	}
	if ctx.Scratch.Depth != 1 || ctx.Scratch.Pages != 1 {
		t.Errorf("expected one level recorded, got depth %d pages %d", ctx.Scratch.Depth, ctx.Scratch.Pages)
	}
	if Invoke(&Context{Page: ctx.Page, Scratch: newScratch(t, "k")}) != StatusOK {
		t.Error("expected status OK for a null child")
	}
}

func TestLookupInvalidArguments(t *testing.T) {
	unknown := make([]byte, page.BlockSize)
	unknown[24] = byte(page.TypeColFix)

	tests := []struct {
		name string
		ctx  *Context
	}{
		{"nil context", nil},
		{"nil scratch", &Context{Page: leafPage(t)}},
		{"empty page", &Context{Scratch: &Scratch{Key: []byte("k")}}},
		{"empty key", &Context{Page: leafPage(t), Scratch: &Scratch{}}},
		{"short page", &Context{Page: make([]byte, 10), Scratch: &Scratch{Key: []byte("k")}}},
		{"unknown page type", &Context{Page: unknown, Scratch: &Scratch{Key: []byte("k")}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Lookup(tc.ctx)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if StatusOf(err) != StatusInvalidArgument {
				t.Errorf("expected status %s, got %s", StatusInvalidArgument, StatusOf(err))
			}
			if tc.ctx != nil && tc.ctx.Scratch != nil && tc.ctx.Scratch.Pages != 0 {
				t.Errorf("expected no page counted, got %d", tc.ctx.Scratch.Pages)
			}
		})
	}
}

func TestNewScratch(t *testing.T) {
	if _, err := NewScratch(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for empty key, got %v", err)
	}
	if _, err := NewScratch(bytes.Repeat([]byte("k"), keycmp.KeyMaxLen+1)); err != nil {
		t.Errorf("expected a key longer than KeyMaxLen to be accepted, got %v", err)
	}
	s, err := NewScratch(bytes.Repeat([]byte("k"), keycmp.KeyMaxLen))
	if err != nil {
		t.Fatalf("expected key of KeyMaxLen to be accepted: %v", err)
	}
	s.Depth, s.Pages, s.Indexes[0] = 3, 4, 7
	s.Reset()
	if s.Depth != 0 || s.Pages != 0 || s.Indexes[0] != 0 || len(s.Key) != keycmp.KeyMaxLen {
		t.Errorf("reset left state behind: %+v", s)
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		StatusOK:              "OK",
		StatusDepthExhausted:  "DEPTH_EXHAUSTED",
		StatusInvalidArgument: "INVALID_ARGUMENT",
		StatusInvalidEncoding: "INVALID_ENCODING",
		Status(-1):            "UNKNOWN",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("expected %q, got %q", want, s.String())
		}
	}
}

// TestWalk drives whole walks over a built tree the way a host does
func TestWalk(t *testing.T) {
	var pairs []treefile.Pair
	for i := 0; i < 1000; i++ {
		pairs = append(pairs, treefile.Pair{
			Key:   []byte(fmt.Sprintf("%0200d", i)),
			Value: []byte(fmt.Sprintf("v%d", i)),
		})
	}
	f, err := treefile.BuildBuffer(pairs)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}
	depth := f.Descriptor().Depth

	for i := 0; i < len(pairs); i += 101 {
		s := newScratch(t, string(pairs[i].Key))
		next := f.Root()

		var leaf []byte
		for invocations := 0; invocations < MaxDepth; invocations++ {
			img, err := f.ReadPage(context.Background(), next.Offset, next.Size)
			if err != nil {
				t.Fatalf("failed to read page: %v", err)
			}
			ctx := &Context{Page: img, Scratch: s}
			if err := Lookup(ctx); err != nil {
				t.Fatalf("lookup failed: %v", err)
			}
			if ctx.Done {
				leaf = img
				break
			}
			next = cell.Address{Offset: ctx.NextOffset, Size: ctx.NextSize}
		}
		if leaf == nil {
			t.Fatalf("walk for key %d never finished", i)
		}

		if s.Depth != depth-1 {
			t.Errorf("expected %d internal levels, got %d", depth-1, s.Depth)
		}
		if s.Pages != depth {
			t.Errorf("expected %d pages visited, got %d", depth, s.Pages)
		}

		value, err := treefile.ScanLeaf(leaf, pairs[i].Key)
		if err != nil {
			t.Fatalf("key %d not on the leaf the walk reached: %v", i, err)
		}
		if !bytes.Equal(value, pairs[i].Value) {
			t.Errorf("expected %q, got %q", pairs[i].Value, value)
		}
	}
}
