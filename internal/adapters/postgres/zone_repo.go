package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
	"github.com/greenhouse-ops/zonefix/internal/pkg/logging"
)

// ZoneRepo implements ports.ZoneRepository with pgx.
type ZoneRepo struct {
	db *DB
}

// NewZoneRepo creates a new ZoneRepo.
func NewZoneRepo(db *DB) *ZoneRepo {
	return &ZoneRepo{db: db}
}

// Upsert inserts or updates a zone.
func (r *ZoneRepo) Upsert(ctx context.Context, z *domain.Zone) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO zones (id, bed, raw_geojson)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (id) DO UPDATE
		SET bed = EXCLUDED.bed, raw_geojson = EXCLUDED.raw_geojson
	`, z.ID, z.Bed, z.RawGeoJSON)
	return err
}

// UpsertBatch inserts many zones using pgx.Batch.
func (r *ZoneRepo) UpsertBatch(ctx context.Context, zones []domain.Zone) error {
	batch := &pgx.Batch{}
	for _, z := range zones {
		batch.Queue(`
			INSERT INTO zones (id, bed, raw_geojson)
			VALUES ($1, $2, NULLIF($3, ''))
			ON CONFLICT (id) DO UPDATE
			SET bed = EXCLUDED.bed, raw_geojson = EXCLUDED.raw_geojson
		`, z.ID, z.Bed, z.RawGeoJSON)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range zones {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// List returns zone records for a scope in creation order.
func (r *ZoneRepo) List(ctx context.Context, filter domain.ZoneFilter) ([]domain.Zone, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, bed, COALESCE(raw_geojson, ''), created_at
		FROM zones
		WHERE $1 = '' OR bed = $1
		ORDER BY created_at, id
	`, filter.Bed)
	if err != nil {
		return nil, err
	}
	return scanZones(rows)
}

// ListWithGeometry returns every zone that has stored GeoJSON.
func (r *ZoneRepo) ListWithGeometry(ctx context.Context) ([]domain.Zone, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, bed, raw_geojson, created_at
		FROM zones
		WHERE raw_geojson IS NOT NULL AND raw_geojson <> ''
		ORDER BY bed, created_at, id
	`)
	if err != nil {
		return nil, err
	}
	return scanZones(rows)
}

// Read returns resolver candidates for a scope. Zones whose GeoJSON is
// missing or unparsable are returned with nil geometry.
func (r *ZoneRepo) Read(ctx context.Context, filter domain.ZoneFilter) ([]domain.ZoneGeometry, error) {
	zones, err := r.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx)
	out := make([]domain.ZoneGeometry, 0, len(zones))
	for _, z := range zones {
		zg, err := domain.ZoneGeometryFromRecord(z)
		if err != nil {
			log.Debug("zone geometry unusable", "zone", z.ID, "bed", z.Bed, "error", err)
		}
		out = append(out, zg)
	}
	return out, nil
}

func scanZones(rows pgx.Rows) ([]domain.Zone, error) {
	defer rows.Close()

	var zones []domain.Zone
	for rows.Next() {
		var z domain.Zone
		if err := rows.Scan(&z.ID, &z.Bed, &z.RawGeoJSON, &z.CreatedAt); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
