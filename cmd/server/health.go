package main

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// journalService is the service name reported alongside the overall "" status.
const journalService = "ftr.Journal"

const storageProbeInterval = 15 * time.Second

func registerHealth(s *grpc.Server, hs *health.Server) {
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(journalService, healthpb.HealthCheckResponse_SERVING)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// watchStorage flips the journal service to NOT_SERVING while storage is unreachable.
func watchStorage(ctx context.Context, repo pinger, hs *health.Server, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := repo.Ping(probeCtx)
		cancel()

		switch {
		case err != nil && serving:
			slog.Warn("Storage unreachable, reporting NOT_SERVING", "error", err)
			hs.SetServingStatus(journalService, healthpb.HealthCheckResponse_NOT_SERVING)
			serving = false
		case err == nil && !serving:
			slog.Info("Storage reachable again, reporting SERVING")
			hs.SetServingStatus(journalService, healthpb.HealthCheckResponse_SERVING)
			serving = true
		}
	}
}
