// Package grpc runs the gateway's gRPC health endpoint. The serving status
// follows the reachability of the credential store and flips to NOT_SERVING
// on shutdown.
package grpc

import (
	"context"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/dmitrijs2005/authgateway/internal/logging"
)

// Pinger reports whether a dependency is reachable. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

const (
	defaultCheckInterval = 10 * time.Second
	pingTimeout          = 2 * time.Second
)

type GRPCServer struct {
	address       string
	logger        logging.Logger
	store         Pinger
	health        *health.Server
	reflection    bool
	checkInterval time.Duration
}

// NewGRPCServer creates the health server. Reflection is registered when
// withReflection is set (local and dev environments).
func NewGRPCServer(address string, l logging.Logger, store Pinger, withReflection bool) *GRPCServer {
	if l == nil {
		l = logging.Nop()
	}
	return &GRPCServer{
		address:       address,
		logger:        l.With("module", "grpc_server"),
		store:         store,
		health:        health.NewServer(),
		reflection:    withReflection,
		checkInterval: defaultCheckInterval,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve is Run on an existing listener.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recoverInterceptor(s.logger),
			loggingInterceptor(s.logger),
			grpc_prometheus.UnaryServerInterceptor,
		),
		grpc.ChainStreamInterceptor(
			grpc_prometheus.StreamServerInterceptor,
		),
	)

	healthpb.RegisterHealthServer(srv, s.health)
	if s.reflection {
		reflection.Register(srv)
	}
	grpc_prometheus.Register(srv)

	s.check(ctx)

	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) watch(ctx context.Context) {
	t := time.NewTicker(s.checkInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.check(ctx)
		}
	}
}

// check pings the store and updates the overall serving status.
func (s *GRPCServer) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	status := healthpb.HealthCheckResponse_SERVING
	if s.store != nil {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := s.store.PingContext(pctx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "store unreachable", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.health.SetServingStatus("", status)
}
