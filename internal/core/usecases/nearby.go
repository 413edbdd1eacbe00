package usecases

import (
	"math"
	"sort"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/pkg/geospatial"
)

// ComputeNearby returns the spots within state.RadiusKm of the user location,
// sorted by distance then id. Without a user location the result is empty.
// Spots whose distance is NaN never pass the radius check.
func ComputeNearby(state domain.SearchState) []domain.AnnotatedSpot {
	nearby := []domain.AnnotatedSpot{}
	if state.UserLocation == nil {
		return nearby
	}

	from := *state.UserLocation
	for _, spot := range state.Spots {
		d := geospatial.DistanceKm(from, spot.Location)
		// NaN compares false and is dropped here
		if !(d <= state.RadiusKm) {
			continue
		}
		nearby = append(nearby, domain.AnnotatedSpot{ParkingSpot: spot, DistanceKm: d})
	}

	SortByDistance(nearby)
	return nearby
}

// AnnotateAll annotates every spot with its distance from `from` without
// filtering. Used by the list view when the caller wants the full catalog.
func AnnotateAll(from domain.GeoPoint, spots []domain.ParkingSpot) []domain.AnnotatedSpot {
	out := make([]domain.AnnotatedSpot, 0, len(spots))
	for _, spot := range spots {
		out = append(out, domain.AnnotatedSpot{
			ParkingSpot: spot,
			DistanceKm:  geospatial.DistanceKm(from, spot.Location),
		})
	}
	SortByDistance(out)
	return out
}

// SortByDistance orders spots by ascending distance, then ascending id.
// NaN distances sort last.
func SortByDistance(spots []domain.AnnotatedSpot) {
	sort.SliceStable(spots, func(i, j int) bool {
		return lessByDistance(spots[i], spots[j])
	})
}

func lessByDistance(a, b domain.AnnotatedSpot) bool {
	aNaN, bNaN := math.IsNaN(a.DistanceKm), math.IsNaN(b.DistanceKm)
	switch {
	case aNaN && bNaN:
		return a.ID < b.ID
	case aNaN:
		return false
	case bNaN:
		return true
	case a.DistanceKm != b.DistanceKm:
		return a.DistanceKm < b.DistanceKm
	default:
		return a.ID < b.ID
	}
}

// Summarize counts nearby spots and the ones that still have free space.
func Summarize(nearby []domain.AnnotatedSpot, radiusKm float64) domain.NearbySummary {
	s := domain.NearbySummary{Nearby: len(nearby), RadiusKm: radiusKm}
	for _, n := range nearby {
		if n.Available > 0 {
			s.Available++
		}
	}
	return s
}

// ClampRadius forces r into [lo, hi]. NaN maps to def.
func ClampRadius(r, def, lo, hi float64) float64 {
	if math.IsNaN(r) {
		return def
	}
	return math.Min(math.Max(r, lo), hi)
}
