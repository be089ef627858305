package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	domain "github.com/oshokin/patchline-watcher/internal/domain/patchline"
	"github.com/oshokin/patchline-watcher/internal/logger"
)

// regionServicePrefix prefixes region keys in health service names.
const regionServicePrefix = "region/"

// Server publishes watcher health over gRPC.
type Server struct {
	// health keeps the status of every service name.
	health *health.Server
	// grpcServer serves the health service.
	grpcServer *grpc.Server
}

// NewServer creates the server. The overall status starts as NOT_SERVING
// and turns SERVING after the first cycle that fetched the region list.
func NewServer() *Server {
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	return &Server{
		health:     healthServer,
		grpcServer: grpcServer,
	}
}

// RegionService returns the health service name of a region.
func RegionService(region string) string {
	return regionServicePrefix + region
}

// CycleCompleted updates the overall status.
func (s *Server) CycleCompleted(result domain.CycleResult) {
	status := healthpb.HealthCheckResponse_SERVING
	if result != domain.CycleCompleted {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus("", status)
}

// RegionProcessed updates the status of one region.
func (s *Server) RegionProcessed(region string, outcome domain.Outcome, _ time.Duration) {
	status := healthpb.HealthCheckResponse_SERVING
	if !outcome.Succeeded() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus(RegionService(region), status)
}

// ServeListener serves on lis and blocks until ctx is canceled.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	logger.InfoKV(ctx, "Health endpoint listening", "address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		close(done)
	}()

	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Health endpoint stopped")

	return nil
}
