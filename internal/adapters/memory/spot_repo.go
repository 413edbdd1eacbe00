package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

// SpotRepo implements ports.SpotRepository in process memory.
type SpotRepo struct {
	mu    sync.RWMutex
	spots map[int64]domain.ParkingSpot
	now   func() time.Time
}

// NewSpotRepo creates a SpotRepo seeded with spots.
func NewSpotRepo(spots []domain.ParkingSpot) *SpotRepo {
	r := &SpotRepo{spots: make(map[int64]domain.ParkingSpot, len(spots)), now: time.Now}
	for _, s := range spots {
		r.put(s)
	}
	return r
}

// Upsert inserts or updates a single spot.
func (r *SpotRepo) Upsert(_ context.Context, s *domain.ParkingSpot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(*s)
	return nil
}

// UpsertBatch inserts or updates many spots.
func (r *SpotRepo) UpsertBatch(_ context.Context, spots []domain.ParkingSpot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range spots {
		r.put(s)
	}
	return nil
}

// GetByID returns a copy of the spot with id.
func (r *SpotRepo) GetByID(_ context.Context, id int64) (*domain.ParkingSpot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.spots[id]
	if !ok {
		return nil, domain.ErrSpotNotFound
	}
	s.Features = slices.Clone(s.Features)
	return &s, nil
}

// List returns every spot ordered by id.
func (r *SpotRepo) List(_ context.Context) ([]domain.ParkingSpot, error) {
	return r.collect(func(domain.ParkingSpot) bool { return true }), nil
}

// ListInBounds returns the spots inside b ordered by id.
func (r *SpotRepo) ListInBounds(_ context.Context, b domain.Bounds) ([]domain.ParkingSpot, error) {
	return r.collect(func(s domain.ParkingSpot) bool { return b.Contains(s.Location) }), nil
}

// UpdateAvailability sets the free-space count of a spot, capped at its total.
func (r *SpotRepo) UpdateAvailability(_ context.Context, id int64, available int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.spots[id]
	if !ok {
		return domain.ErrSpotNotFound
	}
	s.Available = min(available, s.Total)
	s.UpdatedAt = r.now()
	r.spots[id] = s
	return nil
}

func (r *SpotRepo) put(s domain.ParkingSpot) {
	s.Features = slices.Clone(s.Features)
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = r.now()
	}
	r.spots[s.ID] = s
}

func (r *SpotRepo) collect(keep func(domain.ParkingSpot) bool) []domain.ParkingSpot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ParkingSpot, 0, len(r.spots))
	for _, s := range r.spots {
		if keep(s) {
			s.Features = slices.Clone(s.Features)
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b domain.ParkingSpot) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}
