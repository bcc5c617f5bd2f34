package worker

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/feichai0017/numbers2pdf/pkg/logger"
)

// HealthServer serves grpc.health.v1 for the worker process.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	logger logger.Logger
}

func NewHealthServer(log logger.Logger) *HealthServer {
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{grpc: s, health: hs, logger: log.Named("health")}
}

// SetServing flips the overall serving status.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
}

// Serve accepts connections on lis until ctx is done.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		h.health.Shutdown()
		h.grpc.GracefulStop()
	}()

	h.logger.Info("Health server listening", logger.String("addr", lis.Addr().String()))
	if err := h.grpc.Serve(lis); err != nil {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
