package walker

import (
	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/common/log"
	"github.com/KevoDB/wtdescent/pkg/stats"
	"github.com/KevoDB/wtdescent/pkg/telemetry"
	"github.com/KevoDB/wtdescent/pkg/visitlog"
)

// Options configures a Walker
type Options struct {
	Logger    log.Logger
	Telemetry telemetry.Telemetry
	Stats     stats.Collector
	VisitLog  *visitlog.Log
	// Trace keeps a copy of every page a lookup reads in its Result
	Trace bool
	// Root replaces the page source's root address when its size is non-zero
	Root cell.Address
	// MaxConcurrency bounds the lookups LookupBatch runs at once
	MaxConcurrency int
}

// Option is a function that configures a Walker
type Option func(*Options)

// DefaultOptions returns the default walker options
func DefaultOptions() Options {
	return Options{
		MaxConcurrency: 8,
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithTelemetry sets the telemetry used for walker metrics and spans
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(o *Options) {
		o.Telemetry = tel
	}
}

// WithStats sets the statistics collector
func WithStats(collector stats.Collector) Option {
	return func(o *Options) {
		o.Stats = collector
	}
}

// WithVisitLog records every page read in l
func WithVisitLog(l *visitlog.Log) Option {
	return func(o *Options) {
		o.VisitLog = l
	}
}

// WithTrace enables or disables page trails on results
func WithTrace(enabled bool) Option {
	return func(o *Options) {
		o.Trace = enabled
	}
}

// WithRoot starts every walk at addr instead of the source's root
func WithRoot(addr cell.Address) Option {
	return func(o *Options) {
		o.Root = addr
	}
}

// WithMaxConcurrency sets the batch lookup concurrency
func WithMaxConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxConcurrency = n
		}
	}
}
