// Package transport runs the descent service over gRPC and dials it.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"

	"github.com/KevoDB/wtdescent/pkg/common/log"
	"github.com/KevoDB/wtdescent/pkg/grpc/service"
)

// Options configures the server and client transports
type Options struct {
	TLSEnabled bool
	CertFile   string
	KeyFile    string
	CAFile     string
	// SkipVerify disables server certificate checks on the client
	SkipVerify bool
	// Timeout bounds client connection setup
	Timeout time.Duration
}

// DefaultOptions returns plaintext transport options
func DefaultOptions() Options {
	return Options{Timeout: 5 * time.Second}
}

// Server serves a DescentServer over gRPC
type Server struct {
	address  string
	options  Options
	svc      service.DescentServer
	logger   log.Logger
	server   *grpc.Server
	listener net.Listener
	mu       sync.Mutex
	started  bool
}

// NewServer creates a server for svc listening on address
func NewServer(address string, svc service.DescentServer, options Options, logger log.Logger) *Server {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Server{
		address: address,
		options: options,
		svc:     svc,
		logger:  logger.WithField("component", "transport"),
	}
}

func (s *Server) serverOptions() ([]grpc.ServerOption, error) {
	var serverOpts []grpc.ServerOption

	if s.options.TLSEnabled {
		tlsConfig, err := LoadServerTLSConfig(s.options.CertFile, s.options.KeyFile, s.options.CAFile)
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	keepaliveParams := keepalive.ServerParameters{
		MaxConnectionIdle:     60 * time.Second,
		MaxConnectionAge:      5 * time.Minute,
		MaxConnectionAgeGrace: 5 * time.Second,
		Time:                  15 * time.Second,
		Timeout:               5 * time.Second,
	}

	keepalivePolicy := keepalive.EnforcementPolicy{
		MinTime:             5 * time.Second,
		PermitWithoutStream: true,
	}

	return append(serverOpts,
		grpc.KeepaliveParams(keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(keepalivePolicy),
	), nil
}

// setup builds the gRPC server on l. Callers hold s.mu.
func (s *Server) setup(l net.Listener) error {
	if s.started {
		return fmt.Errorf("server already started")
	}

	serverOpts, err := s.serverOptions()
	if err != nil {
		return err
	}

	if l == nil {
		l, err = net.Listen("tcp", s.address)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.address, err)
		}
	}

	s.server = grpc.NewServer(serverOpts...)
	service.RegisterDescentServer(s.server, s.svc)
	s.listener = l
	s.started = true
	return nil
}

// Start starts serving in the background and returns immediately
func (s *Server) Start() error {
	return s.StartOn(nil)
}

// StartOn is Start on an existing listener. A nil listener listens on the
// server's address.
func (s *Server) StartOn(l net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setup(l); err != nil {
		return err
	}

	server, listener := s.server, s.listener
	go func() {
		if err := server.Serve(listener); err != nil {
			s.logger.Error("gRPC server error: %v", err)
		}
	}()

	s.logger.Info("descent service listening on %s", listener.Addr())
	return nil
}

// Serve starts the server and blocks until it's stopped
func (s *Server) Serve() error {
	s.mu.Lock()
	if err := s.setup(nil); err != nil {
		s.mu.Unlock()
		return err
	}
	server, listener := s.server, s.listener
	s.mu.Unlock()

	s.logger.Info("descent service listening on %s", listener.Addr())
	return server.Serve(listener)
}

// Addr returns the listening address, or nil before the server starts
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the server gracefully, forcing it down when ctx ends first
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.server.Stop()
	}

	s.started = false
	s.listener = nil
	return nil
}
