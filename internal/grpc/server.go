package grpcserver

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"droneDispatchService/internal/auth"
	"droneDispatchService/internal/config"
	"droneDispatchService/internal/dispatch"
	"droneDispatchService/internal/lifecycle"
	"droneDispatchService/internal/weather"
	"droneDispatchService/repository"
)

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthListMethod  = "/grpc.health.v1.Health/List"
)

// Dispatcher is the engine surface the service exposes.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Decision, error)
	Fleet(ctx context.Context) ([]dispatch.DroneView, error)
	History(ctx context.Context, f dispatch.HistoryFilter) ([]dispatch.HistoryView, error)
	DroneHistory(ctx context.Context, droneID string) ([]dispatch.HistoryView, error)
}

// Sweeper runs one lifecycle sweep on demand.
type Sweeper interface {
	Tick(ctx context.Context) (lifecycle.TickResult, error)
}

// Server bundles dependencies and implements DispatchService.
type Server struct {
	Engine    Dispatcher
	Scheduler Sweeper
	Log       zerolog.Logger
}

var _ DispatchServiceServer = (*Server)(nil)

// NewGRPCServer builds a grpc.Server with the auth interceptor, DispatchService and
// the standard health service registered.
func NewGRPCServer(secret string, svc *Server, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts, grpc.UnaryInterceptor(auth.NewUnaryAuthInterceptor(secret, healthCheckMethod, healthListMethod)))
	srv := grpc.NewServer(opts...)
	RegisterDispatchServiceServer(srv, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// StartGRPC starts the gRPC server on the configured address and returns a shutdown function.
func StartGRPC(cfg *config.Config, svc *Server) (func(context.Context) error, error) {
	if cfg == nil {
		panic("config is required")
	}

	addr := cfg.GRPC.Address
	if addr == "" {
		addr = ":50051"
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	// Plaintext; terminate TLS in front of the service.
	srv, hs := NewGRPCServer(cfg.Auth.JWTSecret, svc)

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			svc.Log.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	return func(ctx context.Context) error {
		hs.Shutdown()
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest), errors.Is(err, weather.ErrLocationNotFound):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, dispatch.ErrDroneNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, weather.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, repository.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}
