// Package grpcserver runs the optional gRPC endpoint that reports service
// health through the standard grpc.health.v1 protocol.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "hackingzone.AccountService"

// Pinger reports whether account storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is a gRPC server exposing health, plus reflection when enabled.
type Server struct {
	GRPC   *grpc.Server
	health *health.Server
	pinger Pinger
	log    *zap.Logger
}

// New builds the server with logging and recovery interceptors. Status
// starts as NOT_SERVING until the first ping succeeds.
func New(log *zap.Logger, pinger Pinger, withReflection bool) *Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log, healthpb.Health_Check_FullMethodName)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log, healthpb.Health_Watch_FullMethodName)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if withReflection {
		reflection.Register(s)
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{GRPC: s, health: hs, pinger: pinger, log: log}
}

// Check pings storage once and publishes the result.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return st
}

// Watch pings storage every interval until ctx is done, then marks the server as
// shutting down so watchers see NOT_SERVING.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

// Stop drains in-flight RPCs, forcing a stop after timeout.
func (s *Server) Stop(timeout time.Duration) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.GRPC.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.GRPC.Stop()
	}
}
