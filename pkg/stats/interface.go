package stats

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics whose key starts with prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector collects statistics about tree walks
type Collector interface {
	Provider

	// TrackOperation records a single operation
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackError increments the counter for the specified error type
	TrackError(errorType string)

	// TrackPageRead records one page read of the given size
	TrackPageRead(bytes uint64)

	// TrackWalk records a finished walk: the pages it visited, the internal
	// levels it passed through and how it ended
	TrackWalk(pages, depth uint32, outcome Outcome)
}

var _ Collector = (*AtomicCollector)(nil)
