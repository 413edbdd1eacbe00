package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

const spotColumns = `id, name, address, price_per_hour, rating, available, total,
		       lat, lon, COALESCE(features, '{}'), updated_at`

const upsertSpotSQL = `
	INSERT INTO parking_spots (id, name, address, price_per_hour, rating, available, total, lat, lon, features, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
	ON CONFLICT (id) DO UPDATE
	SET name = EXCLUDED.name, address = EXCLUDED.address,
	    price_per_hour = EXCLUDED.price_per_hour, rating = EXCLUDED.rating,
	    available = EXCLUDED.available, total = EXCLUDED.total,
	    lat = EXCLUDED.lat, lon = EXCLUDED.lon,
	    features = EXCLUDED.features, updated_at = now()
`

// SpotRepo implements ports.SpotRepository with pgx.
type SpotRepo struct {
	db *DB
}

// NewSpotRepo creates a new SpotRepo.
func NewSpotRepo(db *DB) *SpotRepo {
	return &SpotRepo{db: db}
}

// Upsert inserts or updates a single spot.
func (r *SpotRepo) Upsert(ctx context.Context, s *domain.ParkingSpot) error {
	_, err := r.db.Pool.Exec(ctx, upsertSpotSQL, upsertArgs(s)...)
	return err
}

// UpsertBatch inserts many spots using pgx.Batch.
func (r *SpotRepo) UpsertBatch(ctx context.Context, spots []domain.ParkingSpot) error {
	batch := &pgx.Batch{}
	for i := range spots {
		batch.Queue(upsertSpotSQL, upsertArgs(&spots[i])...)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range spots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// GetByID returns a spot by id.
func (r *SpotRepo) GetByID(ctx context.Context, id int64) (*domain.ParkingSpot, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+spotColumns+` FROM parking_spots WHERE id = $1`, id)
	s, err := scanSpot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSpotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns every spot ordered by id.
func (r *SpotRepo) List(ctx context.Context) ([]domain.ParkingSpot, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+spotColumns+` FROM parking_spots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectSpots(rows)
}

// ListInBounds returns the spots inside b. The exact radius filter is applied
// by the caller; this only narrows the candidate set via the (lat, lon) index.
func (r *SpotRepo) ListInBounds(ctx context.Context, b domain.Bounds) ([]domain.ParkingSpot, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+spotColumns+`
		FROM parking_spots
		WHERE lat BETWEEN $1 AND $2
		  AND (($3 <= $4 AND lon BETWEEN $3 AND $4) OR ($3 > $4 AND (lon >= $3 OR lon <= $4)))
		ORDER BY id
	`, b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
	if err != nil {
		return nil, err
	}
	return collectSpots(rows)
}

// UpdateAvailability sets the free-space count of a spot.
func (r *SpotRepo) UpdateAvailability(ctx context.Context, id int64, available int) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE parking_spots SET available = LEAST($2, total), updated_at = now()
		WHERE id = $1
	`, id, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSpotNotFound
	}
	return nil
}

func upsertArgs(s *domain.ParkingSpot) []any {
	return []any{
		s.ID, s.Name, s.Address, s.PricePerHour, s.Rating, s.Available, s.Total,
		s.Location.Lat, s.Location.Lon, s.Features,
	}
}

func scanSpot(row pgx.Row) (domain.ParkingSpot, error) {
	var s domain.ParkingSpot
	err := row.Scan(
		&s.ID, &s.Name, &s.Address, &s.PricePerHour, &s.Rating, &s.Available, &s.Total,
		&s.Location.Lat, &s.Location.Lon, &s.Features, &s.UpdatedAt,
	)
	return s, err
}

func collectSpots(rows pgx.Rows) ([]domain.ParkingSpot, error) {
	defer rows.Close()

	var spots []domain.ParkingSpot
	for rows.Next() {
		s, err := scanSpot(rows)
		if err != nil {
			return nil, err
		}
		spots = append(spots, s)
	}
	return spots, rows.Err()
}
