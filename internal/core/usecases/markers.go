package usecases

import (
	"math"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/pkg/geospatial"
)

// limitedThreshold is the highest free-space count still shown as limited.
const limitedThreshold = 5

// ClassifyTier maps a free-space count to a marker tier.
func ClassifyTier(available int) domain.Tier {
	switch {
	case available <= 0:
		return domain.TierFull
	case available <= limitedThreshold:
		return domain.TierLimited
	default:
		return domain.TierAvailable
	}
}

// DeriveMarkers builds one marker per spot in all, in catalog order.
// A marker is near iff its spot appears in nearby. When from is set every
// marker gets a distance label, except for spots with unusable coordinates.
func DeriveMarkers(all []domain.ParkingSpot, nearby []domain.AnnotatedSpot, from *domain.GeoPoint) []domain.MarkerState {
	near := make(map[int64]float64, len(nearby))
	for _, n := range nearby {
		near[n.ID] = n.DistanceKm
	}

	markers := make([]domain.MarkerState, 0, len(all))
	for _, spot := range all {
		m := domain.MarkerState{
			SpotID:     spot.ID,
			Title:      spot.Name,
			Position:   spot.Location,
			Tier:       ClassifyTier(spot.Available),
			Emphasis:   domain.EmphasisFar,
			LabelCount: spot.Available,
			Selectable: spot.Available > 0,
		}

		d, isNear := near[spot.ID]
		if isNear {
			m.Emphasis = domain.EmphasisNear
		} else if from != nil {
			d = geospatial.DistanceKm(*from, spot.Location)
		}
		if (isNear || from != nil) && !math.IsNaN(d) && !math.IsInf(d, 0) {
			m.DistanceKm = &d
		}

		markers = append(markers, m)
	}
	return markers
}

// FitNearby returns the padded box around the nearby spots and the user
// point, for the "show nearby" action. ok is false without nearby spots.
func FitNearby(nearby []domain.AnnotatedSpot, user *domain.GeoPoint) (domain.Bounds, bool) {
	if len(nearby) == 0 {
		return domain.Bounds{}, false
	}
	points := make([]domain.GeoPoint, 0, len(nearby)+1)
	for _, n := range nearby {
		points = append(points, n.Location)
	}
	if user != nil {
		points = append(points, *user)
	}
	b, ok := domain.BoundsOf(points)
	if !ok {
		return domain.Bounds{}, false
	}
	return b.Pad(0.1), true
}
