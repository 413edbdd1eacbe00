package geospatial

import (
	"math"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between a and b in kilometers.
// Inputs are not validated; NaN or Inf coordinates propagate to the result.
func DistanceKm(a, b domain.GeoPoint) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return DistanceKm(domain.GeoPoint{Lat: lat1, Lon: lon1}, domain.GeoPoint{Lat: lat2, Lon: lon2}) * 1000
}

// boxMargin widens the prefilter box so float rounding never drops a spot
// lying exactly on the radius.
const boxMargin = 1.001

// BoundingBox returns a bounding box around a point with the given radius in kilometers.
// It covers every point whose DistanceKm from center is <= radiusKm and is
// meant as a coarse prefilter. A box crossing the antimeridian has
// MinLon > MaxLon; a box reaching a pole spans all longitudes.
func BoundingBox(center domain.GeoPoint, radiusKm float64) domain.Bounds {
	angular := radiusKm / earthRadiusKm * boxMargin
	latDelta := angular * 180 / math.Pi
	b := domain.Bounds{
		MinLat: math.Max(center.Lat-latDelta, -90),
		MaxLat: math.Min(center.Lat+latDelta, 90),
		MinLon: -180,
		MaxLon: 180,
	}
	if b.MinLat == -90 || b.MaxLat == 90 {
		return b
	}

	// Widest longitude reached by the circle, at the tangent points.
	sinLon := math.Sin(angular) / math.Cos(toRad(center.Lat))
	if sinLon >= 1 || angular >= math.Pi/2 {
		return b
	}
	lonDelta := math.Asin(sinLon) * 180 / math.Pi
	b.MinLon = wrapLon(center.Lon - lonDelta)
	b.MaxLon = wrapLon(center.Lon + lonDelta)
	return b
}

func wrapLon(lon float64) float64 {
	switch {
	case lon < -180:
		return lon + 360
	case lon > 180:
		return lon - 360
	}
	return lon
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
