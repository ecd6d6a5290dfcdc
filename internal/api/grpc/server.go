// Package grpcapi exposes the live client's health over gRPC.
package grpcapi

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"entrevistas-live-client/internal/observability/logging"
	"entrevistas-live-client/internal/service/live"
)

// SessionService is the health service name that follows the live channel.
const SessionService = "entrevistas.live.Session"

// StatusSource reports session status changes.
type StatusSource interface {
	OnStatus(fn func(live.Status))
}

// Health tracks the serving status of the process and of the live channel.
type Health struct {
	server *health.Server
}

// Register installs the health and reflection services on g. The session
// service reports SERVING only while a live channel is open.
func Register(g *grpc.Server, src StatusSource) *Health {
	h := &Health{server: health.NewServer()}
	grpc_health_v1.RegisterHealthServer(g, h.server)

	h.server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.server.SetServingStatus(SessionService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	if src != nil {
		src.OnStatus(h.Update)
	}

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)
	return h
}

// Update applies a session status change.
func (h *Health) Update(st live.Status) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if st.Connected {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(SessionService, status)

	logger := logging.WithSession("grpc-health", st.SessionID)
	logger.Debug().Str("status", status.String()).Msg("Session health updated")
}

// Shutdown marks every service NOT_SERVING.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}
