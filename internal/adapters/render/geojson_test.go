package render

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

func TestStyleFor(t *testing.T) {
	tests := []struct {
		name   string
		marker domain.MarkerState
		want   Style
	}{
		{
			"near available",
			domain.MarkerState{Tier: domain.TierAvailable, Emphasis: domain.EmphasisNear},
			Style{Color: ColorAvailable, Opacity: 1, Scale: 1, ButtonLabel: "Book Nearby Spot", ButtonColor: buttonNear},
		},
		{
			"far limited",
			domain.MarkerState{Tier: domain.TierLimited, Emphasis: domain.EmphasisFar},
			Style{Color: ColorLimited, Opacity: 0.4, Scale: 0.8, ButtonLabel: "Book Now", ButtonColor: buttonFar},
		},
		{
			"far full",
			domain.MarkerState{Tier: domain.TierFull, Emphasis: domain.EmphasisFar},
			Style{Color: ColorFull, Opacity: 0.4, Scale: 0.8, ButtonLabel: "Full", ButtonColor: buttonFull},
		},
		{
			"near full",
			domain.MarkerState{Tier: domain.TierFull, Emphasis: domain.EmphasisNear},
			Style{Color: ColorFull, Opacity: 1, Scale: 1, ButtonLabel: "Full", ButtonColor: buttonFull},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StyleFor(tt.marker))
		})
	}
}

func sampleSnapshot(version uint64) domain.MapSnapshot {
	user := domain.GeoPoint{Lat: 33.5731, Lon: -7.5898}
	d := 0.0
	return domain.MapSnapshot{
		SessionID:    "s1",
		Version:      version,
		State:        domain.StateReady,
		UserLocation: &user,
		Location:     &domain.LocationFix{Point: user, Source: domain.SourcePlatform, InRegion: true},
		RadiusKm:     5,
		Markers: []domain.MarkerState{
			{SpotID: 1, Title: "Centre Ville Parking", Position: user, Tier: domain.TierAvailable, Emphasis: domain.EmphasisNear, LabelCount: 12, DistanceKm: &d, Selectable: true},
			{SpotID: 6, Title: "Fez Medina Parking", Position: domain.GeoPoint{Lat: 34.0669, Lon: -4.9684}, Tier: domain.TierFull, Emphasis: domain.EmphasisFar},
		},
		FitBounds: &domain.Bounds{MinLat: 33.5, MinLon: -7.6, MaxLat: 33.6, MaxLon: -7.5},
	}
}

func TestFeatureCollectionFor(t *testing.T) {
	fc := FeatureCollectionFor(sampleSnapshot(1))

	require.Len(t, fc.Features, 3)
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Equal(t, []float64{-7.6, 33.5, -7.5, 33.6}, fc.BBox)

	spot := fc.Features[0]
	assert.Equal(t, int64(1), spot.ID)
	assert.Equal(t, [2]float64{-7.5898, 33.5731}, spot.Geometry.Coordinates, "GeoJSON is lon,lat")
	assert.Equal(t, 0.0, spot.Properties["distance_km"])

	fez := fc.Features[1]
	assert.Equal(t, "Full", fez.Properties["button_label"])
	_, hasDistance := fez.Properties["distance_km"]
	assert.False(t, hasDistance)

	user := fc.Features[2]
	assert.Equal(t, "user", user.Properties["kind"])
	assert.Equal(t, domain.SourcePlatform, user.Properties["source"])
}

func TestFeatureCollectionFor_NoLocation(t *testing.T) {
	snap := sampleSnapshot(1)
	snap.UserLocation, snap.Location, snap.FitBounds = nil, nil, nil

	fc := FeatureCollectionFor(snap)
	assert.Len(t, fc.Features, 2)
	assert.Nil(t, fc.BBox)
}

func TestGeoJSONSurface_KeepsNewest(t *testing.T) {
	g := NewGeoJSONSurface()
	ctx := context.Background()

	require.NoError(t, g.Render(ctx, sampleSnapshot(3)))
	require.NoError(t, g.Render(ctx, sampleSnapshot(2)))

	body, version, ok := g.Latest("s1")
	require.True(t, ok)
	assert.Equal(t, uint64(3), version)

	var doc FeatureCollection
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, uint64(3), doc.Meta.Version)

	g.Forget("s1")
	_, _, ok = g.Latest("s1")
	assert.False(t, ok)
}
