package ports

import (
	"context"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

// SpotRepository persists the parking catalog.
type SpotRepository interface {
	Upsert(ctx context.Context, spot *domain.ParkingSpot) error
	UpsertBatch(ctx context.Context, spots []domain.ParkingSpot) error
	GetByID(ctx context.Context, id int64) (*domain.ParkingSpot, error)
	List(ctx context.Context) ([]domain.ParkingSpot, error)
	// ListInBounds returns spots inside a box, used as a coarse prefilter.
	ListInBounds(ctx context.Context, b domain.Bounds) ([]domain.ParkingSpot, error)
	// UpdateAvailability sets the free-space count of a spot.
	UpdateAvailability(ctx context.Context, id int64, available int) error
}
