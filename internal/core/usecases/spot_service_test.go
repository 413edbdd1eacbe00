package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/samirrijal/parkfinder/internal/adapters/memory"
	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
	"github.com/samirrijal/parkfinder/internal/pkg/geospatial"
)

var errCacheMiss = errors.New("cache miss")

// mapCache is an in-process ports.CacheService.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// countingRepo counts catalog reads that reach the repository.
type countingRepo struct {
	*memory.SpotRepo
	lists int
	err   error
}

func (r *countingRepo) List(ctx context.Context) ([]domain.ParkingSpot, error) {
	r.lists++
	if r.err != nil {
		return nil, r.err
	}
	return r.SpotRepo.List(ctx)
}

func (r *countingRepo) UpdateAvailability(ctx context.Context, id int64, available int) error {
	if r.err != nil {
		return r.err
	}
	return r.SpotRepo.UpdateAvailability(ctx, id, available)
}

func demoService() *usecases.SpotService {
	return usecases.NewSpotService(memory.NewSpotRepo(memory.DemoCatalog()), nil)
}

func TestSpotService_FindNearby(t *testing.T) {
	svc := demoService()
	ctx := context.Background()
	casa := domain.GeoPoint{Lat: 33.5731, Lon: -7.5898}

	got, err := svc.FindNearby(ctx, casa, 10, 0, domain.SpotFilter{})
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}
	if len(got) != 3 || got[0].ID != 1 || got[1].ID != 2 || got[2].ID != 3 {
		t.Fatalf("expected [1 2 3] around Casablanca, got %v", ids(got))
	}
	if got[0].DistanceKm != 0 || math.Abs(got[1].DistanceKm-5.44) > 0.05 || math.Abs(got[2].DistanceKm-5.58) > 0.05 {
		t.Errorf("unexpected distances %.2f, %.2f, %.2f", got[0].DistanceKm, got[1].DistanceKm, got[2].DistanceKm)
	}

	limited, err := svc.FindNearby(ctx, casa, 10, 1, domain.SpotFilter{})
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != 1 {
		t.Errorf("expected limit to keep the closest spot, got %v", ids(limited))
	}

	wide, err := svc.FindNearby(ctx, casa, 100, 0, domain.SpotFilter{})
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}
	if len(wide) != 4 || wide[3].ID != 4 {
		t.Errorf("expected Rabat Agdal to join at 100 km, got %v", ids(wide))
	}
}

// offset moves p by km due north (bearing 0) or due east (bearing 90).
func offset(p domain.GeoPoint, km float64, east bool) domain.GeoPoint {
	const r = 6371.0
	d := km / r
	lat := p.Lat * math.Pi / 180
	if !east {
		return domain.GeoPoint{Lat: p.Lat + d*180/math.Pi, Lon: p.Lon}
	}
	lat2 := math.Asin(math.Sin(lat) * math.Cos(d))
	dLon := math.Atan2(math.Sin(d)*math.Cos(lat), math.Cos(d)-math.Sin(lat)*math.Sin(lat2))
	return domain.GeoPoint{Lat: lat2 * 180 / math.Pi, Lon: p.Lon + dLon*180/math.Pi}
}

func TestSpotService_FindNearbyAgreesAtRadiusEdge(t *testing.T) {
	ctx := context.Background()
	for _, east := range []bool{false, true} {
		edge := domain.ParkingSpot{ID: 1, Location: offset(casablanca, 19.99, east), Available: 1, Total: 1}
		spots := []domain.ParkingSpot{edge}

		if d := geospatial.DistanceKm(casablanca, edge.Location); d > 20 {
			t.Fatalf("test point at %.4f km is outside the radius", d)
		}

		want := usecases.ComputeNearby(domain.SearchState{UserLocation: &casablanca, RadiusKm: 20, Spots: spots})
		got, err := usecases.NewSpotService(memory.NewSpotRepo(spots), nil).
			FindNearby(ctx, casablanca, 20, 0, domain.SpotFilter{})
		if err != nil {
			t.Fatalf("find nearby: %v", err)
		}
		if len(want) != 1 || len(got) != len(want) {
			t.Errorf("east=%v: FindNearby returned %d spots, ComputeNearby %d", east, len(got), len(want))
		}
	}
}

func TestSpotService_NearbyCacheKeepsDistancesExact(t *testing.T) {
	svc := usecases.NewSpotService(memory.NewSpotRepo(memory.DemoCatalog()), newMapCache())
	ctx := context.Background()

	// Two reference points about 9 m apart.
	for _, from := range []domain.GeoPoint{
		{Lat: 33.57314, Lon: -7.5898},
		{Lat: 33.57306, Lon: -7.5898},
	} {
		got, err := svc.FindNearby(ctx, from, 10, 0, domain.SpotFilter{})
		if err != nil {
			t.Fatalf("find nearby: %v", err)
		}
		want := usecases.ComputeNearby(domain.SearchState{UserLocation: &from, RadiusKm: 10, Spots: memory.DemoCatalog()})
		if len(got) != len(want) {
			t.Fatalf("from %+v: expected %v, got %v", from, ids(want), ids(got))
		}
		for i := range want {
			if got[i].ID != want[i].ID || got[i].DistanceKm != want[i].DistanceKm {
				t.Errorf("from %+v: spot %d at %v km, want spot %d at %v km",
					from, got[i].ID, got[i].DistanceKm, want[i].ID, want[i].DistanceKm)
			}
		}
	}
}

func TestSpotService_FindNearbyFilters(t *testing.T) {
	svc := demoService()
	ctx := context.Background()
	twenty := 20.0
	twelve := 12.0

	tests := []struct {
		name   string
		filter domain.SpotFilter
		want   []int64
	}{
		{"none", domain.SpotFilter{}, []int64{1, 2, 3, 4}},
		{"max price", domain.SpotFilter{MaxPrice: &twelve}, []int64{3, 4}},
		{"price range", domain.SpotFilter{MinPrice: 12, MaxPrice: &twenty}, []int64{1, 2, 4}},
		{"min rating", domain.SpotFilter{MinRating: 4.4}, []int64{1, 2}},
		{"feature", domain.SpotFilter{Features: []string{"covered"}}, []int64{1, 2, 4}},
		{"all features", domain.SpotFilter{Features: []string{"Covered", "Security"}}, []int64{1, 4}},
		{"nothing matches", domain.SpotFilter{Features: []string{"Car Wash"}}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.FindNearby(ctx, casablanca, 100, 0, tt.filter)
			if err != nil {
				t.Fatalf("find nearby: %v", err)
			}
			if fmt.Sprint(ids(got)) != fmt.Sprint(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids(got))
			}
		})
	}
}

func TestSpotService_GetByIDNotFound(t *testing.T) {
	_, err := demoService().GetByID(context.Background(), 999)
	if !errors.Is(err, domain.ErrSpotNotFound) {
		t.Errorf("expected ErrSpotNotFound, got %v", err)
	}
}

func TestSpotService_ListUsesCache(t *testing.T) {
	repo := &countingRepo{SpotRepo: memory.NewSpotRepo(memory.DemoCatalog())}
	svc := usecases.NewSpotService(repo, newMapCache())
	ctx := context.Background()

	for range 3 {
		spots, err := svc.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(spots) != 6 {
			t.Fatalf("expected 6 spots, got %d", len(spots))
		}
	}
	if repo.lists != 1 {
		t.Errorf("expected one repository read, got %d", repo.lists)
	}

	svc.Invalidate(ctx, []int64{1})
	if _, err := svc.List(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.lists != 2 {
		t.Errorf("expected invalidation to force a reload, got %d reads", repo.lists)
	}
}

func TestSpotService_ListError(t *testing.T) {
	repo := &countingRepo{SpotRepo: memory.NewSpotRepo(nil), err: errors.New("connection refused")}
	_, err := usecases.NewSpotService(repo, nil).List(context.Background())
	if err == nil || !strings.Contains(err.Error(), "list spots") {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestSpotService_UpdateAvailability(t *testing.T) {
	cache := newMapCache()
	svc := usecases.NewSpotService(memory.NewSpotRepo(memory.DemoCatalog()), cache)
	ctx := context.Background()

	if _, err := svc.GetByID(ctx, 6); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := svc.UpdateAvailability(ctx, 6, 3); err != nil {
		t.Fatalf("update: %v", err)
	}
	spot, err := svc.GetByID(ctx, 6)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if spot.Available != 3 {
		t.Errorf("expected cached entry to be dropped, got available=%d", spot.Available)
	}

	if err := svc.UpdateAvailability(ctx, 6, -1); err == nil {
		t.Error("expected negative availability to be rejected")
	}
	if err := svc.UpdateAvailability(ctx, 999, 1); !errors.Is(err, domain.ErrSpotNotFound) {
		t.Errorf("expected wrapped ErrSpotNotFound, got %v", err)
	}
}

func TestSpotService_UpsertBatchValidation(t *testing.T) {
	svc := demoService()
	ok := domain.ParkingSpot{ID: 10, Location: domain.GeoPoint{Lat: 33.6, Lon: -7.6}, Available: 2, Total: 4}

	tests := []struct {
		name   string
		mutate func(*domain.ParkingSpot)
	}{
		{"bad latitude", func(s *domain.ParkingSpot) { s.Location.Lat = 91 }},
		{"zero total", func(s *domain.ParkingSpot) { s.Total = 0 }},
		{"negative available", func(s *domain.ParkingSpot) { s.Available = -1 }},
		{"available over total", func(s *domain.ParkingSpot) { s.Available = 5 }},
		{"negative price", func(s *domain.ParkingSpot) { s.PricePerHour = -1 }},
		{"rating over five", func(s *domain.ParkingSpot) { s.Rating = 5.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spot := ok
			tt.mutate(&spot)
			if err := svc.UpsertBatch(context.Background(), []domain.ParkingSpot{spot}); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := svc.UpsertBatch(context.Background(), []domain.ParkingSpot{ok}); err != nil {
		t.Fatalf("valid upsert: %v", err)
	}
	if _, err := svc.GetByID(context.Background(), 10); err != nil {
		t.Errorf("upserted spot not found: %v", err)
	}
}

func TestSpotService_Markers(t *testing.T) {
	svc := demoService()
	ctx := context.Background()

	markers, nearby, err := svc.Markers(ctx, nil, 10)
	if err != nil {
		t.Fatalf("markers: %v", err)
	}
	if len(markers) != 6 || len(nearby) != 0 {
		t.Fatalf("expected 6 far markers and no nearby, got %d/%d", len(markers), len(nearby))
	}
	for _, m := range markers {
		if m.Emphasis != domain.EmphasisFar || m.DistanceKm != nil {
			t.Errorf("marker %d should be far and unlabelled", m.SpotID)
		}
	}

	casa := domain.GeoPoint{Lat: 33.5731, Lon: -7.5898}
	markers, nearby, err = svc.Markers(ctx, &casa, 10)
	if err != nil {
		t.Fatalf("markers: %v", err)
	}
	if len(nearby) != 3 {
		t.Errorf("expected 3 nearby, got %d", len(nearby))
	}
	near := 0
	for _, m := range markers {
		if m.Emphasis == domain.EmphasisNear {
			near++
		}
	}
	if near != 3 {
		t.Errorf("expected 3 near markers, got %d", near)
	}
}
