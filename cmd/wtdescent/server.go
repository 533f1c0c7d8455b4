package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KevoDB/wtdescent/pkg/cell"
	"github.com/KevoDB/wtdescent/pkg/grpc/service"
	"github.com/KevoDB/wtdescent/pkg/grpc/transport"
	"github.com/KevoDB/wtdescent/pkg/walker"
)

// newServer builds the descent service for the app's open tree file.
// Service walkers do not keep page trails.
func newServer(a *app, opts Options) *transport.Server {
	walkerOpts := []walker.Option{
		walker.WithLogger(a.logger),
		walker.WithTelemetry(a.tel),
		walker.WithStats(a.stats),
		walker.WithVisitLog(a.visits),
		walker.WithMaxConcurrency(a.cfg.MaxBatchConcurrency),
	}
	if a.cfg.RootSize != 0 {
		walkerOpts = append(walkerOpts, walker.WithRoot(cell.Address{Offset: a.cfg.RootOffset, Size: a.cfg.RootSize}))
	}
	svc := service.NewDescentService(walker.New(a.file, walkerOpts...), a.logger, a.tel)

	tOpts := transport.DefaultOptions()
	tOpts.TLSEnabled = opts.TLSEnabled
	tOpts.CertFile = opts.TLSCertFile
	tOpts.KeyFile = opts.TLSKeyFile
	tOpts.CAFile = opts.TLSCAFile

	return transport.NewServer(a.cfg.ListenAddress, svc, tOpts, a.logger)
}

// runServer serves lookups until SIGINT or SIGTERM
func runServer(a *app, opts Options) error {
	server := newServer(a, opts)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		a.logger.Info("received signal %v, shutting down", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			a.logger.Error("error shutting down server: %v", err)
		}
	}()

	fmt.Printf("wtdescent server starting on %s\n", a.cfg.ListenAddress)
	return server.Serve()
}
