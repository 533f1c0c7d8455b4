package walker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/descent"
	"github.com/KevoDB/wtdescent/pkg/page"
	"github.com/KevoDB/wtdescent/pkg/stats"
	"github.com/KevoDB/wtdescent/pkg/treefile"
	"github.com/KevoDB/wtdescent/pkg/visitlog"
)

func makePairs(n int) []treefile.Pair {
	pairs := make([]treefile.Pair, n)
	for i := range pairs {
		pairs[i] = treefile.Pair{
			Key:   []byte(fmt.Sprintf("%0200d", i)),
			Value: []byte(fmt.Sprintf("value-%d", i)),
		}
	}
	return pairs
}

func buildTree(t *testing.T, n int) (*treefile.File, []treefile.Pair) {
	t.Helper()
	pairs := makePairs(n)
	f, err := treefile.BuildBuffer(pairs)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}
	return f, pairs
}

// mapSource serves hand-built pages by offset
type mapSource struct {
	mu    sync.Mutex
	pages map[uint64][]byte
	root  cell.Address
	reads int
}

func (s *mapSource) ReadPage(ctx context.Context, offset, size uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	img, ok := s.pages[offset]
	if !ok {
		return nil, fmt.Errorf("%w: no page at %d", treefile.ErrBadAddress, offset)
	}
	return img, nil
}

func (s *mapSource) Root() cell.Address {
	return s.root
}

func blockAddr(b uint64) cell.Address {
	return cell.Address{Offset: b * page.BlockSize, Size: page.BlockSize}
}

// chainSource builds n internal pages, each with one child pointing at the
// next block
func chainSource(t *testing.T, n int) *mapSource {
	t.Helper()
	src := &mapSource{pages: make(map[uint64][]byte), root: blockAddr(1)}
	for i := 1; i <= n; i++ {
		b := treefile.NewPageBuilder(page.TypeRowInt)
		if err := b.AddChild([]byte("a"), cell.KindAddrInt, blockAddr(uint64(i+1)), 0); err != nil {
			t.Fatalf("failed to add child: %v", err)
		}
		src.pages[blockAddr(uint64(i)).Offset] = b.Finish()
	}
	return src
}

func TestLookupReachesLeaf(t *testing.T) {
	f, pairs := buildTree(t, 1000)
	depth := f.Descriptor().Depth
	if depth < 3 {
		t.Fatalf("expected a tree of at least 3 levels, got %d", depth)
	}

	collector := stats.NewAtomicCollector()
	w := New(f, WithStats(collector))

	for i := 0; i < len(pairs); i += 37 {
		res, err := w.Lookup(context.Background(), pairs[i].Key)
		if err != nil {
			t.Fatalf("lookup %d failed: %v", i, err)
		}
		if res.Exhausted {
			t.Fatalf("lookup %d unexpectedly exhausted", i)
		}
		if res.Depth != depth-1 || res.Pages != depth {
			t.Errorf("lookup %d: expected depth %d and %d pages, got %d and %d", i, depth-1, depth, res.Depth, res.Pages)
		}
		if len(res.Path) != int(res.Depth) {
			t.Errorf("lookup %d: path %v does not match depth %d", i, res.Path, res.Depth)
		}
		if res.LeafSize == 0 || res.Leaf == nil {
			t.Fatalf("lookup %d: no leaf in result", i)
		}

		value, err := res.Find()
		if err != nil {
			t.Fatalf("key %d not on the leaf reached: %v", i, err)
		}
		if !bytes.Equal(value, pairs[i].Value) {
			t.Errorf("expected %q, got %q", pairs[i].Value, value)
		}
	}

	s := collector.GetStats()
	if s["walks_leaf"].(uint64) == 0 || s["pages_read"].(uint64) == 0 {
		t.Errorf("expected walk stats to be tracked: %v", s)
	}
}

func TestGet(t *testing.T) {
	f, pairs := buildTree(t, 300)
	w := New(f)
	ctx := context.Background()

	value, err := w.Get(ctx, pairs[123].Key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(value, pairs[123].Value) {
		t.Errorf("expected %q, got %q", pairs[123].Value, value)
	}

	if _, err := w.Get(ctx, []byte("missing")); !errors.Is(err, treefile.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := w.Get(ctx, nil); !errors.Is(err, descent.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for an empty key, got %v", err)
	}
}

func TestLookupDepthExhausted(t *testing.T) {
	src := chainSource(t, descent.MaxDepth+1)
	w := New(src)

	res, err := w.Lookup(context.Background(), []byte("k"))
	if err != nil {
		t.Fatalf("expected no error for an exhausted walk, got %v", err)
	}
	if !res.Exhausted {
		t.Fatal("expected exhausted result")
	}
	if res.Depth != descent.MaxDepth || res.Pages != descent.MaxDepth {
		t.Errorf("expected depth and pages %d, got %d and %d", descent.MaxDepth, res.Depth, res.Pages)
	}
	if want := blockAddr(descent.MaxDepth + 1); res.Pending != want {
		t.Errorf("expected pending child %s, got %s", want, res.Pending)
	}
	if src.reads != descent.MaxDepth {
		t.Errorf("expected %d reads, got %d", descent.MaxDepth, src.reads)
	}

	if _, err := res.Find(); !errors.Is(err, descent.ErrDepthExhausted) {
		t.Errorf("expected ErrDepthExhausted from Find, got %v", err)
	}
	if _, err := w.Get(context.Background(), []byte("k")); !errors.Is(err, descent.ErrDepthExhausted) {
		t.Errorf("expected ErrDepthExhausted from Get, got %v", err)
	}
}

func TestLookupErrors(t *testing.T) {
	nullChild := treefile.NewPageBuilder(page.TypeRowInt)
	if err := nullChild.AddChild([]byte("a"), cell.KindAddrInt, cell.Address{}, 0); err != nil {
		t.Fatalf("failed to add child: %v", err)
	}
	// An address cell where the first key should be.
	raw, err := cell.AppendAddressCell(nil, cell.KindAddrInt, page.BlockSize, page.BlockSize, 0)
	if err != nil {
		t.Fatalf("failed to encode address cell: %v", err)
	}
	garbage := treefile.NewPageBuilder(page.TypeRowInt)
	garbage.AddRaw(raw, 2)

	tests := []struct {
		name  string
		pages map[uint64][]byte
		root  cell.Address
		want  error
	}{
		{"null child", map[uint64][]byte{page.BlockSize: nullChild.Finish()}, blockAddr(1), ErrNoChild},
		{"malformed page", map[uint64][]byte{page.BlockSize: garbage.Finish()}, blockAddr(1), descent.ErrInvalidEncoding},
		{"missing page", map[uint64][]byte{}, blockAddr(1), treefile.ErrBadAddress},
		{"no root", map[uint64][]byte{}, cell.Address{}, ErrNoRoot},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			collector := stats.NewAtomicCollector()
			w := New(&mapSource{pages: tc.pages, root: tc.root}, WithStats(collector))
			if _, err := w.Lookup(context.Background(), []byte("k")); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(collector.GetStats()["errors"].(map[string]uint64)) != 1 {
				t.Errorf("expected the error to be tracked")
			}
		})
	}
}

func TestLookupNullChild(t *testing.T) {
	b := treefile.NewPageBuilder(page.TypeRowInt)
	if err := b.AddChild([]byte("a"), cell.KindAddrInt, cell.Address{}, 0); err != nil {
		t.Fatalf("failed to add child: %v", err)
	}
	src := &mapSource{pages: map[uint64][]byte{page.BlockSize: b.Finish()}, root: blockAddr(1)}
	collector := stats.NewAtomicCollector()
	w := New(src, WithStats(collector))

	res, err := w.Lookup(context.Background(), []byte("k"))
	if !errors.Is(err, ErrNoChild) {
		t.Fatalf("expected ErrNoChild, got %v", err)
	}
	if res == nil || res.Pages != 1 || res.Depth != 1 || res.Leaf != nil {
		t.Fatalf("unexpected partial result: %+v", res)
	}
	if src.reads != 1 {
		t.Errorf("expected the null address never to be read, got %d reads", src.reads)
	}
	if collector.GetStats()["walks_no_child"].(uint64) != 1 {
		t.Error("expected the walk to be tracked as no child")
	}
}

func TestLookupCanceled(t *testing.T) {
	f, pairs := buildTree(t, 10)
	w := New(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Lookup(ctx, pairs[0].Key); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWithRoot(t *testing.T) {
	src := chainSource(t, 3)
	leaf := treefile.NewPageBuilder(page.TypeRowLeaf)
	if err := leaf.AddPair([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("failed to add pair: %v", err)
	}
	src.pages[blockAddr(4).Offset] = leaf.Finish()

	// Starting at block 3 skips two levels.
	w := New(src, WithRoot(blockAddr(3)))
	res, err := w.Lookup(context.Background(), []byte("k"))
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if res.Pages != 2 || res.Depth != 1 {
		t.Errorf("expected 2 pages and depth 1, got %d and %d", res.Pages, res.Depth)
	}
	if res.LeafOffset != blockAddr(4).Offset {
		t.Errorf("expected leaf at %d, got %d", blockAddr(4).Offset, res.LeafOffset)
	}
}

func TestTraceAndVisitLog(t *testing.T) {
	f, pairs := buildTree(t, 1000)
	visits := visitlog.New(64)
	w := New(f, WithTrace(true), WithVisitLog(visits))

	res, err := w.Lookup(context.Background(), pairs[500].Key)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if res.Trace == nil || len(res.Trace.Entries) != int(res.Pages) {
		t.Fatalf("expected a trace entry per page, got %+v", res.Trace)
	}
	for i, e := range res.Trace.Entries {
		if e.Depth != uint32(i) {
			t.Errorf("entry %d: expected depth %d, got %d", i, i, e.Depth)
		}
	}
	last := res.Trace.Entries[len(res.Trace.Entries)-1]
	if last.Offset != res.LeafOffset || !bytes.Equal(last.Page, res.Leaf) {
		t.Errorf("expected the last trace entry to be the leaf")
	}

	recorded := visits.Snapshot()
	if len(recorded) != int(res.Pages) {
		t.Fatalf("expected %d visits, got %d", res.Pages, len(recorded))
	}
	if recorded[0].Type != page.TypeRowInt || recorded[len(recorded)-1].Type != page.TypeRowLeaf {
		t.Errorf("unexpected visit types: %+v", recorded)
	}
	if recorded[len(recorded)-1].Fingerprint != visitlog.Fingerprint(res.Leaf) {
		t.Errorf("leaf fingerprint mismatch")
	}
}

func TestLookupBatch(t *testing.T) {
	f, pairs := buildTree(t, 500)
	collector := stats.NewAtomicCollector()
	w := New(f, WithStats(collector), WithMaxConcurrency(4))

	keys := [][]byte{pairs[0].Key, pairs[250].Key, nil, pairs[499].Key}
	results, err := w.LookupBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(results) != len(keys) {
		t.Fatalf("expected %d results, got %d", len(keys), len(results))
	}

	for i, r := range results {
		if i == 2 {
			if !errors.Is(r.Err, descent.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument for the empty key, got %v", r.Err)
			}
			continue
		}
		if r.Err != nil {
			t.Fatalf("key %d failed: %v", i, r.Err)
		}
		if !bytes.Equal(r.Result.Key, keys[i]) {
			t.Errorf("result %d is for the wrong key", i)
		}
		if _, err := r.Result.Find(); err != nil {
			t.Errorf("key %d not found on its leaf: %v", i, err)
		}
	}

	if collector.GetStats()["batch_lookup_ops"].(uint64) != 1 {
		t.Errorf("expected one batch tracked")
	}
}

func TestLookupBatchCanceled(t *testing.T) {
	f, pairs := buildTree(t, 50)
	w := New(f, WithMaxConcurrency(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	keys := make([][]byte, 10)
	for i := range keys {
		keys[i] = pairs[i].Key
	}
	results, err := w.LookupBatch(ctx, keys)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for i, r := range results {
		if r.Err == nil {
			t.Errorf("expected key %d to fail", i)
		}
	}
}
