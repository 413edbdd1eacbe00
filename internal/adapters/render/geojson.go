package render

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

// Marker palette.
const (
	ColorAvailable = "#2563EB"
	ColorLimited   = "#F59E0B"
	ColorFull      = "#DC2626"
	ColorUser      = "#10B981"

	buttonNear = "#10B981"
	buttonFar  = "#2563EB"
	buttonFull = "#9CA3AF"
)

// FeatureCollection is a GeoJSON FeatureCollection (RFC 7946).
type FeatureCollection struct {
	Type     string          `json:"type"`
	Features []Feature       `json:"features"`
	BBox     []float64       `json:"bbox,omitempty"`
	Meta     *CollectionMeta `json:"meta,omitempty"`
}

// CollectionMeta carries the session context of a rendered collection.
type CollectionMeta struct {
	SessionID string                `json:"session_id"`
	Version   uint64                `json:"version"`
	State     domain.LifecycleState `json:"state"`
	RadiusKm  float64               `json:"radius_km"`
	Recenter  bool                  `json:"recenter"`
	Summary   domain.NearbySummary  `json:"summary"`
}

// Feature is a GeoJSON point feature.
type Feature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id,omitempty"`
	Geometry   Point          `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Point is a GeoJSON Point. Coordinates are [lon, lat].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func point(p domain.GeoPoint) Point {
	return Point{Type: "Point", Coordinates: [2]float64{p.Lon, p.Lat}}
}

// Style is the visual treatment of one marker.
type Style struct {
	Color       string  `json:"color"`
	Opacity     float64 `json:"opacity"`
	Scale       float64 `json:"scale"`
	ButtonLabel string  `json:"button_label"`
	ButtonColor string  `json:"button_color"`
}

// StyleFor maps a marker state to its visual treatment.
func StyleFor(m domain.MarkerState) Style {
	s := Style{Color: ColorAvailable, Opacity: 1, Scale: 1, ButtonLabel: "Book Nearby Spot", ButtonColor: buttonNear}
	switch m.Tier {
	case domain.TierLimited:
		s.Color = ColorLimited
	case domain.TierFull:
		s.Color = ColorFull
	}
	if m.Emphasis == domain.EmphasisFar {
		s.Opacity, s.Scale = 0.4, 0.8
		s.ButtonLabel, s.ButtonColor = "Book Now", buttonFar
	}
	if m.Tier == domain.TierFull {
		s.ButtonLabel, s.ButtonColor = "Full", buttonFull
	}
	return s
}

// FeatureCollectionFor renders a snapshot: one feature per marker plus one
// for the user location when known. bbox is the fit-to-nearby box.
func FeatureCollectionFor(snap domain.MapSnapshot) FeatureCollection {
	fc := FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(snap.Markers)+1),
		Meta: &CollectionMeta{
			SessionID: snap.SessionID,
			Version:   snap.Version,
			State:     snap.State,
			RadiusKm:  snap.RadiusKm,
			Recenter:  snap.Recenter,
			Summary:   snap.Summary,
		},
	}

	for _, m := range snap.Markers {
		style := StyleFor(m)
		props := map[string]any{
			"kind":         "spot",
			"title":        m.Title,
			"tier":         m.Tier,
			"emphasis":     m.Emphasis,
			"label":        m.LabelCount,
			"selectable":   m.Selectable,
			"color":        style.Color,
			"opacity":      style.Opacity,
			"scale":        style.Scale,
			"button_label": style.ButtonLabel,
			"button_color": style.ButtonColor,
		}
		if m.DistanceKm != nil {
			props["distance_km"] = *m.DistanceKm
		}
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			ID:         m.SpotID,
			Geometry:   point(m.Position),
			Properties: props,
		})
	}

	if snap.UserLocation != nil {
		props := map[string]any{"kind": "user", "color": ColorUser}
		if snap.Location != nil {
			props["source"] = snap.Location.Source
		}
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			ID:         "user",
			Geometry:   point(*snap.UserLocation),
			Properties: props,
		})
	}

	if b := snap.FitBounds; b != nil {
		fc.BBox = []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
	}
	return fc
}

// GeoJSONSurface is a MapSurface that keeps the latest rendered collection
// of every session.
type GeoJSONSurface struct {
	mu     sync.RWMutex
	latest map[string]rendered
}

type rendered struct {
	version uint64
	body    []byte
}

// NewGeoJSONSurface creates an empty surface.
func NewGeoJSONSurface() *GeoJSONSurface {
	return &GeoJSONSurface{latest: make(map[string]rendered)}
}

// Render implements ports.MapSurface. Older versions never replace newer ones.
func (g *GeoJSONSurface) Render(_ context.Context, snap domain.MapSnapshot) error {
	body, err := json.Marshal(FeatureCollectionFor(snap))
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.latest[snap.SessionID]; ok && cur.version >= snap.Version {
		return nil
	}
	g.latest[snap.SessionID] = rendered{version: snap.Version, body: body}
	return nil
}

// Latest returns the last rendered GeoJSON document of a session.
func (g *GeoJSONSurface) Latest(sessionID string) ([]byte, uint64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.latest[sessionID]
	return r.body, r.version, ok
}

// Forget drops a session's rendered state.
func (g *GeoJSONSurface) Forget(sessionID string) {
	g.mu.Lock()
	delete(g.latest, sessionID)
	g.mu.Unlock()
}
