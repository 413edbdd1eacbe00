package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/ports"
	"github.com/samirrijal/parkfinder/internal/pkg/geospatial"
	"github.com/samirrijal/parkfinder/internal/pkg/metrics"
)

// SpotService handles catalog reads and the stateless nearby queries.
type SpotService struct {
	spots ports.SpotRepository
	cache ports.CacheService
	// catalogVersion is part of every derived cache key so that a catalog
	// update orphans stale nearby results.
	catalogVersion atomic.Uint64
}

// NewSpotService creates a new SpotService. cache may be nil.
func NewSpotService(spots ports.SpotRepository, cache ports.CacheService) *SpotService {
	return &SpotService{spots: spots, cache: cache}
}

// List returns the full catalog ordered by id.
func (s *SpotService) List(ctx context.Context) ([]domain.ParkingSpot, error) {
	cacheKey := fmt.Sprintf("spots:all:v%d", s.catalogVersion.Load())
	var spots []domain.ParkingSpot
	if s.getCached(ctx, "list", cacheKey, &spots) {
		return spots, nil
	}

	spots, err := s.spots.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list spots: %w", err)
	}

	s.setCached(ctx, cacheKey, spots, 60)
	return spots, nil
}

// GetByID returns a single spot.
func (s *SpotService) GetByID(ctx context.Context, id int64) (*domain.ParkingSpot, error) {
	cacheKey := "spots:id:" + strconv.FormatInt(id, 10)
	var spot domain.ParkingSpot
	if s.getCached(ctx, "get", cacheKey, &spot) {
		return &spot, nil
	}

	found, err := s.spots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.setCached(ctx, cacheKey, found, 600) // 10 min for single spot
	return found, nil
}

// FindNearby returns up to limit spots within radiusKm of from that pass
// filter, closest first.
func (s *SpotService) FindNearby(ctx context.Context, from domain.GeoPoint, radiusKm float64, limit int, filter domain.SpotFilter) ([]domain.AnnotatedSpot, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	cacheKey := nearbyCacheKey(s.catalogVersion.Load(), from, radiusKm, limit, filter)
	var nearby []domain.AnnotatedSpot
	if s.getCached(ctx, "nearby", cacheKey, &nearby) {
		return nearby, nil
	}

	ctx, span := tracer.Start(ctx, "spots.find_nearby")
	defer span.End()

	candidates, err := s.spots.ListInBounds(ctx, geospatial.BoundingBox(from, radiusKm))
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if !filter.IsZero() {
		candidates = slices.DeleteFunc(candidates, func(sp domain.ParkingSpot) bool { return !filter.Matches(sp) })
	}

	nearby = ComputeNearby(domain.SearchState{UserLocation: &from, RadiusKm: radiusKm, Spots: candidates})
	metrics.NearbyResultSize.Observe(float64(len(nearby)))
	if len(nearby) > limit {
		nearby = nearby[:limit]
	}

	// Nearby results go stale with availability, keep them short-lived.
	s.setCached(ctx, cacheKey, nearby, 30)
	return nearby, nil
}

// nearbyCacheKey uses the exact coordinates and radius: two distinct points
// never share a result, since distances and edge membership differ.
func nearbyCacheKey(version uint64, from domain.GeoPoint, radiusKm float64, limit int, f domain.SpotFilter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "spots:nearby:v%d:%s:%s:%s:%d",
		version, exactFloat(from.Lat), exactFloat(from.Lon), exactFloat(radiusKm), limit)
	if !f.IsZero() {
		maxPrice := "-"
		if f.MaxPrice != nil {
			maxPrice = exactFloat(*f.MaxPrice)
		}
		features := make([]string, len(f.Features))
		for i, feat := range f.Features {
			features[i] = strings.ToLower(feat)
		}
		slices.Sort(features)
		fmt.Fprintf(&b, ":p%s-%s:r%s:f%s",
			exactFloat(f.MinPrice), maxPrice, exactFloat(f.MinRating), strings.Join(features, ","))
	}
	return b.String()
}

func exactFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Markers derives the full marker set for a reference point and radius.
// Without a reference point every marker is far and unlabelled.
func (s *SpotService) Markers(ctx context.Context, from *domain.GeoPoint, radiusKm float64) ([]domain.MarkerState, []domain.AnnotatedSpot, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	nearby := ComputeNearby(domain.SearchState{UserLocation: from, RadiusKm: radiusKm, Spots: all})
	return DeriveMarkers(all, nearby, from), nearby, nil
}

// UpsertBatch writes spots to the catalog and invalidates cached reads.
func (s *SpotService) UpsertBatch(ctx context.Context, spots []domain.ParkingSpot) error {
	for _, sp := range spots {
		if !sp.Location.Valid() {
			return fmt.Errorf("spot %d: invalid location %+v", sp.ID, sp.Location)
		}
		if sp.Total <= 0 || sp.Available < 0 || sp.Available > sp.Total {
			return fmt.Errorf("spot %d: availability %d/%d out of range", sp.ID, sp.Available, sp.Total)
		}
		if sp.PricePerHour < 0 || sp.Rating < 0 || sp.Rating > 5 {
			return fmt.Errorf("spot %d: price or rating out of range", sp.ID)
		}
	}
	if err := s.spots.UpsertBatch(ctx, spots); err != nil {
		return fmt.Errorf("upsert spots: %w", err)
	}

	ids := make([]int64, 0, len(spots))
	for _, sp := range spots {
		ids = append(ids, sp.ID)
	}
	s.Invalidate(ctx, ids)
	return nil
}

// UpdateAvailability sets the free-space count of one spot.
func (s *SpotService) UpdateAvailability(ctx context.Context, id int64, available int) error {
	if available < 0 {
		return fmt.Errorf("available must be non-negative, got %d", available)
	}
	if err := s.spots.UpdateAvailability(ctx, id, available); err != nil {
		return fmt.Errorf("update availability of spot %d: %w", id, err)
	}
	s.Invalidate(ctx, []int64{id})
	return nil
}

// Invalidate drops cached entries for ids and bumps the catalog version.
func (s *SpotService) Invalidate(ctx context.Context, ids []int64) {
	s.catalogVersion.Add(1)
	if s.cache == nil {
		return
	}
	for _, id := range ids {
		_ = s.cache.Delete(ctx, "spots:id:"+strconv.FormatInt(id, 10))
	}
}

func (s *SpotService) getCached(ctx context.Context, op, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues(op).Inc()
	return true
}

func (s *SpotService) setCached(ctx context.Context, key string, v any, ttlSeconds int) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(v); err == nil {
		_ = s.cache.Set(ctx, key, data, ttlSeconds)
	}
}
