package postgres

import (
	"context"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
)

// BedRepo implements ports.BedRepository with pgx.
type BedRepo struct {
	db *DB
}

// NewBedRepo creates a new BedRepo.
func NewBedRepo(db *DB) *BedRepo {
	return &BedRepo{db: db}
}

// Upsert inserts or updates a bed by name and fills in its ID.
func (r *BedRepo) Upsert(ctx context.Context, b *domain.Bed) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO beds (name, greenhouse, variety)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (name) DO UPDATE
		SET greenhouse = EXCLUDED.greenhouse, variety = EXCLUDED.variety
		RETURNING id, created_at
	`, b.Name, b.Greenhouse, b.Variety).Scan(&b.ID, &b.CreatedAt)
}

// List returns all beds ordered by name.
func (r *BedRepo) List(ctx context.Context) ([]domain.Bed, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, COALESCE(greenhouse, ''), COALESCE(variety, ''), created_at
		FROM beds
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beds []domain.Bed
	for rows.Next() {
		var b domain.Bed
		if err := rows.Scan(&b.ID, &b.Name, &b.Greenhouse, &b.Variety, &b.CreatedAt); err != nil {
			return nil, err
		}
		beds = append(beds, b)
	}
	return beds, rows.Err()
}
