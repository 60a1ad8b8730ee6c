package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/greenhouse-ops/zonefix/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers the REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Scouts sync queued fixes in bursts when they regain signal, so the
	// limit is per device address and generous.
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness, no timeout
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Post("/zones/resolve", timeout.NewWithContext(ResolveZonesHandler(deps), requestTimeout))
	v1.Get("/zones", timeout.NewWithContext(ListZonesHandler(deps), requestTimeout))
	v1.Delete("/zones/cache", timeout.NewWithContext(InvalidateZonesHandler(deps), requestTimeout))
	v1.Get("/beds", timeout.NewWithContext(ListBedsHandler(deps), requestTimeout))

	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), requestTimeout))

	SetupDocs(app, DefaultDocPath)

	if deps.NATS != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/resolutions", websocket.New(ResolutionFeedHandler(deps.NATS)))
	}
}
