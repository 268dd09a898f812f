package admin

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// RelayService is the health service name that tracks the hub.
const RelayService = "sketchrelay.Relay"

// Server is the admin gRPC server.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates a Server whose health status starts as NOT_SERVING.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		grpc:   grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(logger))),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.SetServing(false)
	return s
}

// SetServing updates the health status of both the overall server and
// RelayService.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(RelayService, st)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks the server NOT_SERVING and waits for in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Services lists the registered gRPC service names.
func (s *Server) Services() []string {
	info := s.grpc.GetServiceInfo()
	out := make([]string, 0, len(info))
	for name := range info {
		out = append(out, name)
	}
	return out
}

// LoggingInterceptor returns a gRPC UnaryServerInterceptor that logs the
// method, status code and duration of every call at debug level, and failed
// calls at warn.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		attrs := []any{
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		}
		if err != nil {
			logger.Warn("admin call failed", append(attrs, "err", err)...)
			return resp, err
		}
		logger.Debug("admin call", attrs...)
		return resp, nil
	}
}
