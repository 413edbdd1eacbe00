package domain_test

import (
	"math"
	"testing"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

func TestGeoPoint_Valid(t *testing.T) {
	cases := []struct {
		name string
		p    domain.GeoPoint
		want bool
	}{
		{"casablanca", domain.GeoPoint{Lat: 33.5731, Lon: -7.5898}, true},
		{"poles and antimeridian", domain.GeoPoint{Lat: -90, Lon: 180}, true},
		{"lat out of range", domain.GeoPoint{Lat: 91, Lon: 0}, false},
		{"lon out of range", domain.GeoPoint{Lat: 0, Lon: -180.5}, false},
		{"nan", domain.GeoPoint{Lat: math.NaN(), Lon: 0}, false},
		{"inf", domain.GeoPoint{Lat: 0, Lon: math.Inf(1)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBounds_Contains(t *testing.T) {
	morocco := domain.Bounds{MinLat: 27.6, MinLon: -13.2, MaxLat: 35.9, MaxLon: -1.0}

	if !morocco.Contains(domain.GeoPoint{Lat: 33.5731, Lon: -7.5898}) {
		t.Error("expected Casablanca inside Morocco bounds")
	}
	if !morocco.Contains(domain.GeoPoint{Lat: 35.9, Lon: -1.0}) {
		t.Error("expected edge point to be contained")
	}
	if morocco.Contains(domain.GeoPoint{Lat: 43.263, Lon: -2.935}) {
		t.Error("expected Bilbao outside Morocco bounds")
	}
}

func TestBoundsOf(t *testing.T) {
	if _, ok := domain.BoundsOf(nil); ok {
		t.Fatal("expected ok=false for empty input")
	}

	b, ok := domain.BoundsOf([]domain.GeoPoint{
		{Lat: 33.5731, Lon: -7.5898},
		{Lat: 34.0209, Lon: -6.8416},
		{Lat: 31.6295, Lon: -7.9811},
	})
	if !ok {
		t.Fatal("expected ok=true")
	}
	if b.MinLat != 31.6295 || b.MaxLat != 34.0209 || b.MinLon != -7.9811 || b.MaxLon != -6.8416 {
		t.Errorf("unexpected bounds %+v", b)
	}

	padded := b.Pad(0.1)
	if padded.MinLat >= b.MinLat || padded.MaxLon <= b.MaxLon {
		t.Errorf("expected padding to grow the box, got %+v", padded)
	}
}

func TestBounds_ContainsAcrossAntimeridian(t *testing.T) {
	b := domain.Bounds{MinLat: -1, MinLon: 179, MaxLat: 1, MaxLon: -179}

	for _, p := range []domain.GeoPoint{{Lat: 0, Lon: 179.5}, {Lat: 0, Lon: -179.5}, {Lat: 0, Lon: 180}} {
		if !b.Contains(p) {
			t.Errorf("expected %+v inside wrapped bounds", p)
		}
	}
	if b.Contains(domain.GeoPoint{Lat: 0, Lon: 0}) {
		t.Error("expected prime meridian outside wrapped bounds")
	}
}
