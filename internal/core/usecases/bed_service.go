package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
	"github.com/greenhouse-ops/zonefix/internal/core/ports"
)

const bedMapCacheKey = "beds:by_variety"

// BedService handles bed and zone listing for the scouting map.
type BedService struct {
	beds  ports.BedRepository
	zones ports.ZoneRepository
	cache ports.CacheService
}

// NewBedService creates a new BedService.
func NewBedService(beds ports.BedRepository, zones ports.ZoneRepository, cache ports.CacheService) *BedService {
	return &BedService{beds: beds, zones: zones, cache: cache}
}

// ByVariety returns beds grouped by variety, each with the zones that carry
// geometry. Beds without such zones are left out of their variety, and
// varieties keep the order in which their first bed was listed.
func (s *BedService) ByVariety(ctx context.Context) ([]domain.VarietyBeds, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, bedMapCacheKey); err == nil {
			var out []domain.VarietyBeds
			if err := json.Unmarshal(data, &out); err == nil {
				return out, nil
			}
		}
	}

	beds, err := s.beds.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list beds: %w", err)
	}
	zones, err := s.zones.ListWithGeometry(ctx)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}

	byBed := make(map[string][]domain.Zone, len(beds))
	for _, z := range zones {
		byBed[z.Bed] = append(byBed[z.Bed], z)
	}

	var out []domain.VarietyBeds
	index := make(map[string]int)
	for _, b := range beds {
		i, ok := index[b.Variety]
		if !ok {
			i = len(out)
			index[b.Variety] = i
			out = append(out, domain.VarietyBeds{Variety: b.Variety, Beds: []domain.BedZones{}})
		}
		if bz := byBed[b.Name]; len(bz) > 0 {
			out[i].Beds = append(out[i].Beds, domain.BedZones{Name: b.Name, Zones: bz})
		}
	}

	// Cache for 5 minutes
	if s.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			_ = s.cache.Set(ctx, bedMapCacheKey, data, 300)
		}
	}

	return out, nil
}

// Zones summarises the zones of a bed, or all zones when bed is empty.
func (s *BedService) Zones(ctx context.Context, bed string) ([]domain.ZoneSummary, error) {
	zones, err := s.zones.List(ctx, domain.ZoneFilter{Bed: bed})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ZoneSummary, 0, len(zones))
	for _, z := range zones {
		sum := domain.ZoneSummary{ID: z.ID, Bed: z.Bed}
		if zg, err := domain.ZoneGeometryFromRecord(z); err == nil {
			_, lerr := zg.UsableLine()
			sum.Vertices = len(zg.Geometry)
			sum.Usable = lerr == nil
		}
		out = append(out, sum)
	}
	return out, nil
}
