package main

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"

	"github.com/greenhouse-ops/zonefix/internal/adapters/postgres"
	"github.com/greenhouse-ops/zonefix/internal/core/domain"
)

// seedFile loads beds and zones from a GeoJSON FeatureCollection. Each
// feature is one zone; its properties name the zone, the bed and the bed's
// variety:
//
//	{"type":"Feature","properties":{"zone":"Z-01","bed":"BED-01","variety":"Freedom"},
//	 "geometry":{"type":"LineString","coordinates":[[36.70,-1.10],[36.701,-1.101]]}}
func seedFile(ctx context.Context, db *postgres.DB, path string) (int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	beds, zones, err := parseSeed(data)
	if err != nil {
		return 0, 0, fmt.Errorf("parse %s: %w", path, err)
	}

	bedRepo := postgres.NewBedRepo(db)
	for _, b := range beds {
		if err := bedRepo.Upsert(ctx, b); err != nil {
			return 0, 0, fmt.Errorf("bed %s: %w", b.Name, err)
		}
	}
	if err := postgres.NewZoneRepo(db).UpsertBatch(ctx, zones); err != nil {
		return 0, 0, err
	}
	return len(beds), len(zones), nil
}

// parseSeed returns the beds in first-seen order and one zone per feature.
func parseSeed(data []byte) ([]*domain.Bed, []domain.Zone, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool)
	var beds []*domain.Bed
	zones := make([]domain.Zone, 0, len(fc.Features))
	for i, f := range fc.Features {
		zoneID := f.Properties.MustString("zone", "")
		bedName := f.Properties.MustString("bed", "")
		if zoneID == "" || bedName == "" {
			return nil, nil, fmt.Errorf("feature %d: zone and bed properties are required", i)
		}

		if !seen[bedName] {
			seen[bedName] = true
			beds = append(beds, &domain.Bed{
				Name:       bedName,
				Variety:    f.Properties.MustString("variety", ""),
				Greenhouse: f.Properties.MustString("greenhouse", ""),
			})
		}

		z := domain.Zone{ID: zoneID, Bed: bedName}
		if f.Geometry != nil {
			raw, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
			if err != nil {
				return nil, nil, fmt.Errorf("feature %d: %w", i, err)
			}
			z.RawGeoJSON = string(raw)
		}
		zones = append(zones, z)
	}
	return beds, zones, nil
}
