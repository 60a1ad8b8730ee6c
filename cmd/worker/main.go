// Command worker resolves fixes queued on the scouting fix stream. Scouts
// that lose signal upload their backlog there instead of calling the API.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/greenhouse-ops/zonefix/internal/adapters/nats"
	"github.com/greenhouse-ops/zonefix/internal/adapters/postgres"
	"github.com/greenhouse-ops/zonefix/internal/adapters/valkey"
	"github.com/greenhouse-ops/zonefix/internal/core/domain"
	"github.com/greenhouse-ops/zonefix/internal/core/ports"
	"github.com/greenhouse-ops/zonefix/internal/core/usecases"
	"github.com/greenhouse-ops/zonefix/internal/pkg/config"
	"github.com/greenhouse-ops/zonefix/internal/pkg/logging"
	"github.com/greenhouse-ops/zonefix/internal/pkg/metrics"
	"github.com/greenhouse-ops/zonefix/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("zonefix-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolMetrics(ctx, 15*time.Second)

	var cache ports.CacheService
	if c, err := valkey.New(cfg.Valkey.Addr, "zonefix:"); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer c.Close()
		cache = c
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer pub.Close()

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, cfg.NATS.Durable, cfg.NATS.MaxDeliver)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	resolver := usecases.NewZoneResolver(usecases.ResolverOptions{
		DefaultAccuracy: cfg.Resolver.DefaultAccuracy,
		MinBuffer:       cfg.Resolver.MinBuffer,
		MaxBuffer:       cfg.Resolver.MaxBuffer,
	})
	zones := usecases.NewZoneService(postgres.NewZoneRepo(db), cache, pub, resolver, usecases.ZoneServiceConfig{
		ReviewThreshold: cfg.Resolver.ReviewThreshold,
		CacheTTL:        cfg.Resolver.CacheTTL,
		BatchWorkers:    cfg.Resolver.BatchWorkers,
	})

	if err := sub.SubscribeFixes(ctx, handleFix(zones)); err != nil {
		log.Fatalf("subscribe: %v", err)
	}
	slog.Info("worker consuming fixes", "subject", natsadapter.FixSubjects, "durable", cfg.NATS.Durable)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())
}

// fixResolver is the part of ZoneService the worker needs.
type fixResolver interface {
	ResolveForFix(ctx context.Context, bed string, fix domain.GpsFix) (*domain.ScoutingResolution, error)
}

// handleFix resolves one queued fix. Fixes that can never resolve are acked
// and counted; anything else is returned so the broker redelivers it.
func handleFix(zones fixResolver) func(ctx context.Context, sub *domain.FixSubmission) error {
	return func(ctx context.Context, sub *domain.FixSubmission) error {
		log := logging.FromContext(ctx).With("fix_id", sub.ID, "bed", sub.Bed)

		res, err := zones.ResolveForFix(ctx, sub.Bed, sub.Fix)
		switch {
		case errors.Is(err, domain.ErrInvalidFix):
			metrics.FixesConsumed.WithLabelValues("invalid").Inc()
			log.Warn("dropping invalid fix", "error", err)
			return nil
		case errors.Is(err, domain.ErrZoneNotDetermined):
			metrics.FixesConsumed.WithLabelValues("unresolved").Inc()
			log.Info("no zone for fix", "error", err)
			return nil
		case err != nil:
			metrics.FixesConsumed.WithLabelValues("retry").Inc()
			log.Error("resolve fix", "error", err)
			return err
		}

		metrics.FixesConsumed.WithLabelValues("resolved").Inc()
		log.Debug("fix resolved", "zone", res.Result.ZoneID, "confidence", res.Result.Confidence)
		return nil
	}
}
