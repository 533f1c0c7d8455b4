package stats

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OperationType defines the type of operation being tracked
type OperationType string

const (
	OpLookup      OperationType = "lookup"
	OpGet         OperationType = "get"
	OpBatchLookup OperationType = "batch_lookup"
	OpPageRead    OperationType = "page_read"
)

// Outcome is how a walk ended
type Outcome int

const (
	OutcomeLeaf Outcome = iota
	OutcomeExhausted
	OutcomeNoChild
	OutcomeFailed
)

// maxTrackedDepth is the deepest level with its own depth bucket; deeper
// walks share the last one.
const maxTrackedDepth = 16

// AtomicCollector collects statistics with atomic counters. Maps are only
// locked when a new key is first seen.
type AtomicCollector struct {
	counts   keyed[OperationType, atomic.Uint64]
	lastOp   keyed[OperationType, atomic.Int64]
	errors   keyed[string, atomic.Uint64]
	latency  keyed[OperationType, LatencyTracker]
	outcomes [OutcomeFailed + 1]atomic.Uint64

	pagesRead    atomic.Uint64
	bytesRead    atomic.Uint64
	pagesVisited atomic.Uint64
	depths       [maxTrackedDepth + 1]atomic.Uint64
}

// keyed is a map of lazily created values behind a read-mostly lock
type keyed[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]*V
}

func (k *keyed[K, V]) get(key K) *V {
	k.mu.RLock()
	v, ok := k.m[key]
	k.mu.RUnlock()
	if ok {
		return v
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if v, ok = k.m[key]; !ok {
		if k.m == nil {
			k.m = make(map[K]*V)
		}
		v = new(V)
		k.m[key] = v
	}
	return v
}

func (k *keyed[K, V]) each(fn func(K, *V)) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for key, v := range k.m {
		fn(key, v)
	}
}

// LatencyTracker maintains running statistics about operation latencies
type LatencyTracker struct {
	count atomic.Uint64
	sum   atomic.Uint64
	max   atomic.Uint64
	min   atomic.Uint64 // zero until the first sample
}

func (t *LatencyTracker) record(ns uint64) {
	t.count.Add(1)
	t.sum.Add(ns)

	for {
		cur := t.max.Load()
		if ns <= cur || t.max.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := t.min.Load()
		if (cur != 0 && ns >= cur) || t.min.CompareAndSwap(cur, ns) {
			break
		}
	}
}

// NewAtomicCollector creates a new statistics collector
func NewAtomicCollector() *AtomicCollector {
	return &AtomicCollector{}
}

// TrackOperation increments the counter for the specified operation type
func (c *AtomicCollector) TrackOperation(op OperationType) {
	c.counts.get(op).Add(1)
	c.lastOp.get(op).Store(time.Now().UnixNano())
}

// TrackOperationWithLatency tracks an operation and its latency
func (c *AtomicCollector) TrackOperationWithLatency(op OperationType, latencyNs uint64) {
	c.TrackOperation(op)
	c.latency.get(op).record(latencyNs)
}

// TrackError increments the counter for the specified error type
func (c *AtomicCollector) TrackError(errorType string) {
	c.errors.get(errorType).Add(1)
}

// TrackPageRead records one page read of the given size
func (c *AtomicCollector) TrackPageRead(bytes uint64) {
	c.pagesRead.Add(1)
	c.bytesRead.Add(bytes)
}

// TrackWalk records a finished walk
func (c *AtomicCollector) TrackWalk(pages, depth uint32, outcome Outcome) {
	c.pagesVisited.Add(uint64(pages))
	if depth > maxTrackedDepth {
		depth = maxTrackedDepth
	}
	c.depths[depth].Add(1)
	if outcome >= OutcomeLeaf && outcome <= OutcomeFailed {
		c.outcomes[outcome].Add(1)
	}
}

// GetStats returns all statistics as a map
func (c *AtomicCollector) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	c.counts.each(func(op OperationType, n *atomic.Uint64) {
		stats[string(op)+"_ops"] = n.Load()
	})
	c.lastOp.each(func(op OperationType, ts *atomic.Int64) {
		stats["last_"+string(op)+"_time"] = ts.Load()
	})

	stats["pages_read"] = c.pagesRead.Load()
	stats["bytes_read"] = c.bytesRead.Load()
	stats["pages_visited"] = c.pagesVisited.Load()
	stats["walks_leaf"] = c.outcomes[OutcomeLeaf].Load()
	stats["walks_exhausted"] = c.outcomes[OutcomeExhausted].Load()
	stats["walks_no_child"] = c.outcomes[OutcomeNoChild].Load()
	stats["walks_failed"] = c.outcomes[OutcomeFailed].Load()

	depths := make(map[uint32]uint64)
	for d := range c.depths {
		if n := c.depths[d].Load(); n > 0 {
			depths[uint32(d)] = n
		}
	}
	stats["walk_depths"] = depths

	errs := make(map[string]uint64)
	c.errors.each(func(kind string, n *atomic.Uint64) {
		errs[kind] = n.Load()
	})
	stats["errors"] = errs

	c.latency.each(func(op OperationType, t *LatencyTracker) {
		count := t.count.Load()
		if count == 0 {
			return
		}
		stats[string(op)+"_latency"] = map[string]interface{}{
			"count":  count,
			"avg_ns": t.sum.Load() / count,
			"min_ns": t.min.Load(),
			"max_ns": t.max.Load(),
		}
	})

	return stats
}

// GetStatsFiltered returns statistics whose key starts with prefix
func (c *AtomicCollector) GetStatsFiltered(prefix string) map[string]interface{} {
	filtered := make(map[string]interface{})
	for key, value := range c.GetStats() {
		if strings.HasPrefix(key, prefix) {
			filtered[key] = value
		}
	}
	return filtered
}
