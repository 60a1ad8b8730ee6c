package http

import (
	"github.com/nats-io/nats.go"

	"github.com/greenhouse-ops/zonefix/internal/adapters/postgres"
	"github.com/greenhouse-ops/zonefix/internal/adapters/valkey"
	"github.com/greenhouse-ops/zonefix/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Zones *usecases.ZoneService
	Beds  *usecases.BedService
	NATS  *nats.Conn
	DB    *postgres.DB
	Cache *valkey.Cache
	// BodyLimit caps resolve request bodies in bytes; zero means no extra cap.
	BodyLimit int
}
