package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/greenhouse-ops/zonefix/internal/adapters/http"
	natsadapter "github.com/greenhouse-ops/zonefix/internal/adapters/nats"
	"github.com/greenhouse-ops/zonefix/internal/adapters/postgres"
	"github.com/greenhouse-ops/zonefix/internal/adapters/valkey"
	"github.com/greenhouse-ops/zonefix/internal/core/ports"
	"github.com/greenhouse-ops/zonefix/internal/core/usecases"
	"github.com/greenhouse-ops/zonefix/internal/pkg/config"
	"github.com/greenhouse-ops/zonefix/internal/pkg/logging"
	"github.com/greenhouse-ops/zonefix/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("zonefix-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolMetrics(ctx, 15*time.Second)

	deps := &http.Dependencies{DB: db, BodyLimit: cfg.Server.BodyLimit}

	// Cache and broker are optional; the service degrades without them.
	var cache ports.CacheService
	if c, err := valkey.New(cfg.Valkey.Addr, "zonefix:"); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer c.Close()
		cache = c
		deps.Cache = c
	}

	var events ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		events = pub
		deps.NATS = pub.Conn()
	}

	// Repos
	zoneRepo := postgres.NewZoneRepo(db)
	bedRepo := postgres.NewBedRepo(db)

	// Use cases
	resolver := usecases.NewZoneResolver(usecases.ResolverOptions{
		DefaultAccuracy: cfg.Resolver.DefaultAccuracy,
		MinBuffer:       cfg.Resolver.MinBuffer,
		MaxBuffer:       cfg.Resolver.MaxBuffer,
	})
	deps.Zones = usecases.NewZoneService(zoneRepo, cache, events, resolver, usecases.ZoneServiceConfig{
		ReviewThreshold: cfg.Resolver.ReviewThreshold,
		CacheTTL:        cfg.Resolver.CacheTTL,
		BatchWorkers:    cfg.Resolver.BatchWorkers,
	})
	deps.Beds = usecases.NewBedService(bedRepo, zoneRepo, cache)

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit + 1024,
		AppName:      "Zonefix API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
