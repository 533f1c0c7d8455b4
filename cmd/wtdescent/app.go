package main

import (
	"fmt"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/common/log"
	"github.com/KevoDB/wtdescent/pkg/config"
	"github.com/KevoDB/wtdescent/pkg/stats"
	"github.com/KevoDB/wtdescent/pkg/telemetry"
	"github.com/KevoDB/wtdescent/pkg/treefile"
	"github.com/KevoDB/wtdescent/pkg/visitlog"
	"github.com/KevoDB/wtdescent/pkg/walker"
)

// app is the state shared by the shell and the server: the open tree file,
// its walker and the diagnostics that outlive any one file.
type app struct {
	cfg    *config.Config
	logger log.Logger
	tel    telemetry.Telemetry
	stats  *stats.AtomicCollector
	visits *visitlog.Log
	codec  walker.Codec

	path      string
	file      *treefile.File
	walker    *walker.Walker
	lastTrace *walker.Trace
}

func newApp(cfg *config.Config, logger log.Logger, tel telemetry.Telemetry) (*app, error) {
	codec, err := walker.ParseCodec(cfg.TraceCodec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	return &app{
		cfg:    cfg,
		logger: logger,
		tel:    tel,
		stats:  stats.NewAtomicCollector(),
		visits: visitlog.New(cfg.VisitLogCapacity),
		codec:  codec,
	}, nil
}

// open replaces the current tree file with the one at path
func (a *app) open(path string) error {
	f, err := treefile.Open(path, treefile.WithVerifyChecksums(a.cfg.VerifyChecksums))
	if err != nil {
		return err
	}
	a.closeFile()

	opts := []walker.Option{
		walker.WithLogger(a.logger),
		walker.WithTelemetry(a.tel),
		walker.WithStats(a.stats),
		walker.WithVisitLog(a.visits),
		walker.WithTrace(true),
		walker.WithMaxConcurrency(a.cfg.MaxBatchConcurrency),
	}
	if a.cfg.RootSize != 0 {
		opts = append(opts, walker.WithRoot(cell.Address{Offset: a.cfg.RootOffset, Size: a.cfg.RootSize}))
	}

	a.path = path
	a.file = f
	a.walker = walker.New(f, opts...)
	a.logger.Info("opened tree file %s: %d entries, depth %d", path, f.Descriptor().Entries, f.Descriptor().Depth)
	return nil
}

func (a *app) closeFile() error {
	if a.file == nil {
		return nil
	}
	a.walker.Close()
	err := a.file.Close()
	if err != nil {
		err = fmt.Errorf("failed to close %s: %w", a.path, err)
	}
	a.file, a.walker, a.path, a.lastTrace = nil, nil, "", nil
	return err
}

// close releases the tree file and stops the visit log
func (a *app) close() error {
	err := a.closeFile()
	a.visits.Close()
	return err
}
