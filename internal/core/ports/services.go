package ports

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
)

// PlanarFrame is a local metric coordinate system. Point and LineString take
// WGS84 (lon, lat) input and return meters.
type PlanarFrame interface {
	ID() string
	Point(pt orb.Point) (orb.Point, error)
	LineString(ls orb.LineString) (orb.LineString, error)
}

// Projector selects the planar frame appropriate to a location.
type Projector interface {
	Frame(lat, lon float64) PlanarFrame
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishResolution(ctx context.Context, res *domain.ScoutingResolution) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeFixes(ctx context.Context, handler func(ctx context.Context, sub *domain.FixSubmission) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
