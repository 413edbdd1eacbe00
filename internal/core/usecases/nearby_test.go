package usecases_test

import (
	"math"
	"reflect"
	"testing"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
)

var (
	casablanca = domain.GeoPoint{Lat: 33.5731, Lon: -7.5898}
	rabat      = domain.GeoPoint{Lat: 34.0209, Lon: -6.8416}
)

func ids(spots []domain.AnnotatedSpot) []int64 {
	out := make([]int64, 0, len(spots))
	for _, s := range spots {
		out = append(out, s.ID)
	}
	return out
}

func twoCities() []domain.ParkingSpot {
	return []domain.ParkingSpot{
		{ID: 1, Name: "Casablanca", Location: casablanca, Available: 10, Total: 20},
		{ID: 2, Name: "Rabat", Location: rabat, Available: 0, Total: 20},
	}
}

func TestComputeNearby_NoLocation(t *testing.T) {
	got := usecases.ComputeNearby(domain.SearchState{RadiusKm: 100, Spots: twoCities()})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestComputeNearby_RadiusScenario(t *testing.T) {
	state := domain.SearchState{UserLocation: &casablanca, RadiusKm: 5, Spots: twoCities()}

	got := usecases.ComputeNearby(state)
	if !reflect.DeepEqual(ids(got), []int64{1}) {
		t.Fatalf("radius 5: expected [1], got %v", ids(got))
	}
	if got[0].DistanceKm > 1e-6 {
		t.Errorf("expected distance ~0, got %v", got[0].DistanceKm)
	}

	state.RadiusKm = 100
	got = usecases.ComputeNearby(state)
	if !reflect.DeepEqual(ids(got), []int64{1, 2}) {
		t.Fatalf("radius 100: expected [1 2], got %v", ids(got))
	}
	if d := got[1].DistanceKm; math.Abs(d-87) > 2 {
		t.Errorf("expected Rabat at ~87 km, got %v", d)
	}
}

func TestComputeNearby_BoundaryIsInclusive(t *testing.T) {
	spots := twoCities()
	state := domain.SearchState{UserLocation: &casablanca, RadiusKm: 100, Spots: spots}
	d := usecases.ComputeNearby(state)[1].DistanceKm

	state.RadiusKm = d
	if got := usecases.ComputeNearby(state); len(got) != 2 {
		t.Errorf("spot exactly at the radius must be included, got %v", ids(got))
	}
}

func TestComputeNearby_Monotonic(t *testing.T) {
	spots := []domain.ParkingSpot{
		{ID: 1, Location: casablanca},
		{ID: 2, Location: domain.GeoPoint{Lat: 33.6061, Lon: -7.6331}},
		{ID: 3, Location: domain.GeoPoint{Lat: 33.6084, Lon: -7.6326}},
		{ID: 4, Location: domain.GeoPoint{Lat: 33.9716, Lon: -6.8498}},
		{ID: 5, Location: domain.GeoPoint{Lat: 31.6295, Lon: -7.9811}},
		{ID: 6, Location: domain.GeoPoint{Lat: 34.0669, Lon: -4.9684}},
	}
	radii := []float64{0, 0.1, 2, 5, 5.5, 6, 20, 100, 220, 300}

	var prev map[int64]bool
	for _, r := range radii {
		got := usecases.ComputeNearby(domain.SearchState{UserLocation: &casablanca, RadiusKm: r, Spots: spots})
		cur := map[int64]bool{}
		for _, s := range got {
			cur[s.ID] = true
		}
		for id := range prev {
			if !cur[id] {
				t.Errorf("radius %v dropped spot %d present at a smaller radius", r, id)
			}
		}
		prev = cur
	}
	if len(prev) != len(spots) {
		t.Errorf("expected every spot within 300 km, got %d", len(prev))
	}
}

func TestComputeNearby_SortedWithIDTieBreak(t *testing.T) {
	same := domain.GeoPoint{Lat: 33.58, Lon: -7.59}
	spots := []domain.ParkingSpot{
		{ID: 9, Location: domain.GeoPoint{Lat: 33.60, Lon: -7.60}},
		{ID: 7, Location: same},
		{ID: 3, Location: same},
		{ID: 5, Location: casablanca},
	}

	got := usecases.ComputeNearby(domain.SearchState{UserLocation: &casablanca, RadiusKm: 20, Spots: spots})
	if !reflect.DeepEqual(ids(got), []int64{5, 3, 7, 9}) {
		t.Fatalf("expected [5 3 7 9], got %v", ids(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistanceKm < got[i-1].DistanceKm {
			t.Errorf("result not sorted at %d: %v", i, got)
		}
	}
}

func TestComputeNearby_Deterministic(t *testing.T) {
	state := domain.SearchState{UserLocation: &casablanca, RadiusKm: 100, Spots: twoCities()}
	first := usecases.ComputeNearby(state)
	for range 10 {
		if again := usecases.ComputeNearby(state); !reflect.DeepEqual(first, again) {
			t.Fatalf("non-deterministic output: %v vs %v", first, again)
		}
	}
}

func TestComputeNearby_NaNExcluded(t *testing.T) {
	spots := append(twoCities(), domain.ParkingSpot{ID: 3, Location: domain.GeoPoint{Lat: math.NaN(), Lon: 0}})

	got := usecases.ComputeNearby(domain.SearchState{UserLocation: &casablanca, RadiusKm: 20000, Spots: spots})
	if !reflect.DeepEqual(ids(got), []int64{1, 2}) {
		t.Errorf("expected NaN spot excluded, got %v", ids(got))
	}
}

func TestSortByDistance_NaNLast(t *testing.T) {
	spots := []domain.AnnotatedSpot{
		{ParkingSpot: domain.ParkingSpot{ID: 4}, DistanceKm: math.NaN()},
		{ParkingSpot: domain.ParkingSpot{ID: 2}, DistanceKm: 3},
		{ParkingSpot: domain.ParkingSpot{ID: 1}, DistanceKm: math.NaN()},
		{ParkingSpot: domain.ParkingSpot{ID: 3}, DistanceKm: 1},
	}
	usecases.SortByDistance(spots)
	if !reflect.DeepEqual(ids(spots), []int64{3, 2, 1, 4}) {
		t.Errorf("expected [3 2 1 4], got %v", ids(spots))
	}
}

func TestAnnotateAll(t *testing.T) {
	got := usecases.AnnotateAll(rabat, twoCities())
	if !reflect.DeepEqual(ids(got), []int64{2, 1}) {
		t.Fatalf("expected [2 1], got %v", ids(got))
	}
	if got[0].DistanceKm != 0 || got[1].DistanceKm < 80 {
		t.Errorf("unexpected distances: %v", got)
	}
}

func TestSummarize(t *testing.T) {
	nearby := usecases.ComputeNearby(domain.SearchState{UserLocation: &casablanca, RadiusKm: 100, Spots: twoCities()})
	s := usecases.Summarize(nearby, 100)
	want := domain.NearbySummary{Nearby: 2, Available: 1, RadiusKm: 100}
	if s != want {
		t.Errorf("expected %+v, got %+v", want, s)
	}
}

func TestClampRadius(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{2, 2},
		{0.05, 0.1},
		{-3, 0.1},
		{25, 20},
		{math.Inf(1), 20},
		{math.NaN(), 2},
	}
	for _, tt := range tests {
		if got := usecases.ClampRadius(tt.in, 2, 0.1, 20); got != tt.want {
			t.Errorf("ClampRadius(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
