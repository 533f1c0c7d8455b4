// Package walker drives root-to-leaf descents over a tree file.
//
// A Walker plays the host side of the descent protocol: it fetches each page
// from a PageSource, hands it to descent.Lookup and follows the child that
// comes back, until a leaf is reached or the walk ends. Each lookup carries
// its own scratch state, so a Walker is safe for concurrent use.
package walker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/common/log"
	"github.com/KevoDB/wtdescent/pkg/descent"
	"github.com/KevoDB/wtdescent/pkg/page"
	"github.com/KevoDB/wtdescent/pkg/stats"
	"github.com/KevoDB/wtdescent/pkg/telemetry"
	"github.com/KevoDB/wtdescent/pkg/treefile"
)

var (
	// ErrNoRoot is returned when the tree has no root page
	ErrNoRoot = errors.New("tree has no root page")
	// ErrInvocationLimit is returned when a walk uses every invocation
	// without finishing
	ErrInvocationLimit = errors.New("walk exceeded invocation limit")
	// ErrNoChild is returned when the walk is sent to a null child address,
	// an empty subtree that cannot hold the key
	ErrNoChild = errors.New("no child page for key")
)

// PageSource supplies page images by address
type PageSource interface {
	ReadPage(ctx context.Context, offset, size uint64) ([]byte, error)
	Root() cell.Address
}

var _ PageSource = (*treefile.File)(nil)

// Result describes where a lookup ended
type Result struct {
	Key []byte

	// LeafOffset and LeafSize address the leaf the walk reached. Leaf holds
	// its image. All three are zero when the walk did not reach a leaf.
	LeafOffset uint64
	LeafSize   uint64
	Leaf       []byte

	// Path holds the pair index chosen on each internal page, root first
	Path []uint32
	// Depth is the number of internal pages passed through
	Depth uint32
	// Pages is the number of pages examined
	Pages uint32

	// Exhausted is set when the walk ran out of levels before a leaf.
	// Pending is the child it would have read next.
	Exhausted bool
	Pending   cell.Address

	// Trace holds a copy of every page read, when tracing is enabled
	Trace *Trace
}

// Find returns the value stored under the result's key in its leaf
func (r *Result) Find() ([]byte, error) {
	if r.Exhausted {
		return nil, fmt.Errorf("%w: pending child %s", descent.ErrDepthExhausted, r.Pending)
	}
	if r.Leaf == nil {
		return nil, fmt.Errorf("%w: lookup did not reach a leaf", descent.ErrInvalidArgument)
	}
	return treefile.ScanLeaf(r.Leaf, r.Key)
}

// BatchResult is the outcome of one key in LookupBatch
type BatchResult struct {
	Result *Result
	Err    error
}

// Walker runs lookups against a PageSource
type Walker struct {
	src     PageSource
	opts    Options
	logger  log.Logger
	tel     telemetry.Telemetry
	stats   stats.Collector
	metrics WalkerMetrics
}

// New creates a Walker reading pages from src
func New(src PageSource, options ...Option) *Walker {
	opts := DefaultOptions()
	for _, opt := range options {
		opt(&opts)
	}

	w := &Walker{
		src:    src,
		opts:   opts,
		logger: opts.Logger,
		tel:    opts.Telemetry,
		stats:  opts.Stats,
	}
	if w.logger == nil {
		w.logger = log.GetDefaultLogger()
	}
	w.logger = w.logger.WithField("component", telemetry.ComponentWalker)
	if w.tel == nil {
		w.tel = telemetry.NewNoop()
	}
	if w.stats == nil {
		w.stats = stats.NewAtomicCollector()
	}
	w.metrics = NewWalkerMetrics(w.tel)
	return w
}

// Stats returns the walker's statistics
func (w *Walker) Stats() stats.Provider {
	return w.stats
}

// Root returns the address walks start from
func (w *Walker) Root() cell.Address {
	if !w.opts.Root.IsNull() {
		return w.opts.Root
	}
	return w.src.Root()
}

// Lookup walks from the root toward the leaf that would hold key.
//
// A walk that runs out of levels is not an error: the result has Exhausted
// set and names the pending child. A null child address returns an error
// wrapping ErrNoChild along with the partial result.
func (w *Walker) Lookup(ctx context.Context, key []byte) (*Result, error) {
	start := time.Now()
	ctx, span := w.tel.StartSpan(ctx, "walker.Lookup",
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWalker),
		attribute.Int("key.size", len(key)),
	)
	defer span.End()

	res, err := w.lookup(ctx, key)

	var pages, depth uint32
	if res != nil {
		pages, depth = res.Pages, res.Depth
	}
	outcome, status := stats.OutcomeLeaf, telemetry.StatusSuccess
	switch {
	case err != nil && errors.Is(err, ErrNoChild):
		outcome, status = stats.OutcomeNoChild, telemetry.StatusNotFound
	case err != nil:
		outcome, status = stats.OutcomeFailed, telemetry.StatusError
	case res.Exhausted:
		outcome, status = stats.OutcomeExhausted, telemetry.StatusExhausted
	}

	elapsed := time.Since(start)
	w.stats.TrackOperationWithLatency(stats.OpLookup, uint64(elapsed.Nanoseconds()))
	w.stats.TrackWalk(pages, depth, outcome)
	w.metrics.RecordLookup(ctx, elapsed, pages, depth, status)
	span.SetAttributes(attribute.Int(telemetry.AttrDepth, int(depth)), attribute.String(telemetry.AttrStatus, status))

	if err != nil {
		kind := errorType(err)
		w.stats.TrackError(kind)
		w.metrics.RecordFailure(ctx, kind, depth)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Debug("lookup of %q failed after %d pages: %v", key, pages, err)
		return res, err
	}

	if res.Exhausted {
		w.logger.Warn("lookup of %q exhausted %d levels, pending child %s", key, depth, res.Pending)
	}
	return res, nil
}

func (w *Walker) lookup(ctx context.Context, key []byte) (*Result, error) {
	scratch, err := descent.NewScratch(key)
	if err != nil {
		return nil, err
	}

	addr := w.Root()
	if addr.IsNull() {
		return nil, ErrNoRoot
	}

	res := &Result{Key: key}
	if w.opts.Trace {
		res.Trace = &Trace{Key: key}
	}

	// Every invocation either reaches a leaf or adds a level, so MaxDepth
	// invocations always finish the walk.
	for i := 0; i < descent.MaxDepth; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		img, err := w.readPage(ctx, addr, scratch.Depth)
		if err != nil {
			return res, fmt.Errorf("failed to read page %s: %w", addr, err)
		}
		if res.Trace != nil {
			res.Trace.Add(scratch.Depth, addr.Offset, addr.Size, img)
		}

		dctx := descent.Context{Page: img, Scratch: scratch}
		err = descent.Lookup(&dctx)

		res.Pages = scratch.Pages
		res.Depth = scratch.Depth
		res.Path = append(res.Path[:0], scratch.Path()...)

		switch {
		case err == nil && dctx.Done:
			res.LeafOffset = addr.Offset
			res.LeafSize = addr.Size
			res.Leaf = img
			return res, nil
		case err == nil:
			next := cell.Address{Offset: dctx.NextOffset, Size: dctx.NextSize}
			if next.IsNull() {
				return res, fmt.Errorf("%w: pair %d of page %s", ErrNoChild, dctx.Descent.Index, addr)
			}
			addr = next
		case errors.Is(err, descent.ErrDepthExhausted):
			res.Exhausted = true
			res.Pending = dctx.Descent.Address()
			return res, nil
		default:
			return res, fmt.Errorf("page %s: %w", addr, err)
		}
	}

	return res, ErrInvocationLimit
}

func (w *Walker) readPage(ctx context.Context, addr cell.Address, depth uint32) ([]byte, error) {
	start := time.Now()
	img, err := w.src.ReadPage(ctx, addr.Offset, addr.Size)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	typ := page.TypeInvalid
	if t, err := page.TypeOf(img); err == nil {
		typ = t
	}

	w.stats.TrackPageRead(uint64(len(img)))
	w.stats.TrackOperationWithLatency(stats.OpPageRead, uint64(elapsed.Nanoseconds()))
	w.metrics.RecordPageRead(ctx, elapsed, int64(len(img)), typ.String())
	if w.opts.VisitLog != nil {
		w.opts.VisitLog.Record(addr.Offset, addr.Size, depth, img)
	}
	return img, nil
}

// Get returns the value stored under key
func (w *Walker) Get(ctx context.Context, key []byte) ([]byte, error) {
	start := time.Now()
	defer func() {
		w.stats.TrackOperationWithLatency(stats.OpGet, uint64(time.Since(start).Nanoseconds()))
	}()

	res, err := w.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return res.Find()
}

// LookupBatch looks up every key, running up to MaxConcurrency walks at
// once. Per-key failures are reported in the results; the returned error is
// only set when ctx ends before the batch finishes.
func (w *Walker) LookupBatch(ctx context.Context, keys [][]byte) ([]BatchResult, error) {
	start := time.Now()
	results := make([]BatchResult, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.MaxConcurrency)

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return err
			}
			res, err := w.Lookup(gctx, key)
			results[i] = BatchResult{Result: res, Err: err}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	err := g.Wait()

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
		}
	}

	elapsed := time.Since(start)
	w.stats.TrackOperationWithLatency(stats.OpBatchLookup, uint64(elapsed.Nanoseconds()))
	w.metrics.RecordBatch(ctx, elapsed, len(keys), failures)

	return results, err
}

// Close releases the walker's metrics
func (w *Walker) Close() error {
	return w.metrics.Close()
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrNoChild):
		return "no_child"
	case errors.Is(err, treefile.ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, treefile.ErrBadAddress):
		return "bad_address"
	case errors.Is(err, descent.ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.Is(err, descent.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNoRoot), errors.Is(err, ErrInvocationLimit):
		return "walk_error"
	default:
		return "read_error"
	}
}
