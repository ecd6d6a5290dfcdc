package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	grpcapi "entrevistas-live-client/internal/api/grpc"
	"entrevistas-live-client/internal/app"
	"entrevistas-live-client/internal/audiodev"
	"entrevistas-live-client/internal/config"
	httpapi "entrevistas-live-client/internal/http"
	"entrevistas-live-client/internal/observability"
	"entrevistas-live-client/internal/observability/metrics"
)

func main() {
	cfg := config.Load()

	devices := audiodev.Open(cfg.Audio)
	defer devices.Close()

	application := app.New(cfg, devices.Microphone, devices.Sink)
	defer application.Shutdown()

	// Prometheus metrics, liveness and readiness
	obs := observability.NewServer(cfg.Observability.MetricsAddr, func() bool {
		return application.Interview.Snapshot().Connected
	})
	obs.Start()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}

	server := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)
	healthServer := grpcapi.Register(server, application)

	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health service started")
		if err := server.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("gRPC serve failed")
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Control API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Control API failed")
		}
	}()

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Control API shutdown")
	}
	server.GracefulStop()
	if err := obs.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Observability server shutdown")
	}
}
