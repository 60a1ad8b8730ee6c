package ports

import (
	"context"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
)

// ZoneGeometryStore returns resolver candidates for a scope. Records may carry
// nil geometry; callers must tolerate it.
type ZoneGeometryStore interface {
	Read(ctx context.Context, filter domain.ZoneFilter) ([]domain.ZoneGeometry, error)
}

// ZoneRepository persists zone records.
type ZoneRepository interface {
	ZoneGeometryStore
	Upsert(ctx context.Context, zone *domain.Zone) error
	List(ctx context.Context, filter domain.ZoneFilter) ([]domain.Zone, error)
	ListWithGeometry(ctx context.Context) ([]domain.Zone, error)
}

// BedRepository persists beds.
type BedRepository interface {
	Upsert(ctx context.Context, bed *domain.Bed) error
	List(ctx context.Context) ([]domain.Bed, error)
}
