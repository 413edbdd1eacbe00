package domain

import (
	"errors"
	"slices"
	"strings"
	"time"
)

var (
	// ErrSpotNotFound is returned when a catalog lookup misses.
	ErrSpotNotFound = errors.New("parking spot not found")
	// ErrSessionNotFound is returned for unknown or expired map sessions.
	ErrSessionNotFound = errors.New("session not found")
)

// ParkingSpot is a catalog entry. The core never mutates it.
type ParkingSpot struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	PricePerHour float64   `json:"price_per_hour"`
	Rating       float64   `json:"rating"`
	Available    int       `json:"available"`
	Total        int       `json:"total"`
	Location     GeoPoint  `json:"location"`
	Features     []string  `json:"features"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// AnnotatedSpot is a spot with its distance from the reference point.
type AnnotatedSpot struct {
	ParkingSpot
	DistanceKm float64 `json:"distance_km"`
}

// SearchState drives every derived view of a map session.
type SearchState struct {
	UserLocation *GeoPoint     `json:"user_location,omitempty"`
	RadiusKm     float64       `json:"radius_km"`
	Spots        []ParkingSpot `json:"-"`
}

// Tier is the coarse availability class of a spot.
type Tier string

const (
	TierAvailable Tier = "available"
	TierLimited   Tier = "limited"
	TierFull      Tier = "full"
)

// Emphasis tells whether a marker is inside the search radius.
type Emphasis string

const (
	EmphasisNear Emphasis = "near"
	EmphasisFar  Emphasis = "far"
)

// MarkerState describes one map marker. Rendering is left to a MapSurface.
type MarkerState struct {
	SpotID     int64    `json:"spot_id"`
	Title      string   `json:"title"`
	Position   GeoPoint `json:"position"`
	Tier       Tier     `json:"tier"`
	Emphasis   Emphasis `json:"emphasis"`
	LabelCount int      `json:"label_count"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Selectable bool     `json:"selectable"`
}

// LifecycleState is the map/search lifecycle.
type LifecycleState string

const (
	StateUninitialized     LifecycleState = "uninitialized"
	StateAcquiringLocation LifecycleState = "acquiring_location"
	StateReady             LifecycleState = "ready"
)

// LocationSource records where a reference point came from.
type LocationSource string

const (
	SourcePlatform LocationSource = "platform"
	SourceFallback LocationSource = "fallback"
)

// LocationFix is the outcome of one acquisition attempt.
type LocationFix struct {
	Point      GeoPoint       `json:"point"`
	Source     LocationSource `json:"source"`
	InRegion   bool           `json:"in_region"`
	AcquiredAt time.Time      `json:"acquired_at"`
}

// NearbySummary is the "N spots nearby, M available" badge.
type NearbySummary struct {
	Nearby    int     `json:"nearby"`
	Available int     `json:"available"`
	RadiusKm  float64 `json:"radius_km"`
}

// MapSnapshot is a settled view of a session, emitted after each recomputation.
type MapSnapshot struct {
	SessionID    string          `json:"session_id"`
	Version      uint64          `json:"version"`
	State        LifecycleState  `json:"state"`
	UserLocation *GeoPoint       `json:"user_location,omitempty"`
	Location     *LocationFix    `json:"location,omitempty"`
	Recenter     bool            `json:"recenter"`
	RadiusKm     float64         `json:"radius_km"`
	Nearby       []AnnotatedSpot `json:"nearby"`
	Markers      []MarkerState   `json:"markers"`
	Summary      NearbySummary   `json:"summary"`
	FitBounds    *Bounds         `json:"fit_bounds,omitempty"`
}

// SpotSelection is emitted to the booking flow when a spot is activated.
type SpotSelection struct {
	SessionID  string      `json:"session_id,omitempty"`
	Spot       ParkingSpot `json:"spot"`
	Nearby     bool        `json:"nearby"`
	SelectedAt time.Time   `json:"selected_at"`
}

// SpotFilter narrows a nearby query by price, rating and amenities.
// The zero value matches every spot.
type SpotFilter struct {
	MinPrice  float64  `json:"min_price,omitempty"`
	MaxPrice  *float64 `json:"max_price,omitempty"`
	MinRating float64  `json:"min_rating,omitempty"`
	// Features must all be present on the spot, compared case-insensitively.
	Features []string `json:"features,omitempty"`
}

// IsZero reports whether f filters nothing.
func (f SpotFilter) IsZero() bool {
	return f.MinPrice <= 0 && f.MaxPrice == nil && f.MinRating <= 0 && len(f.Features) == 0
}

// Matches reports whether s passes every bound of f.
func (f SpotFilter) Matches(s ParkingSpot) bool {
	if s.PricePerHour < f.MinPrice || s.Rating < f.MinRating {
		return false
	}
	if f.MaxPrice != nil && s.PricePerHour > *f.MaxPrice {
		return false
	}
	for _, want := range f.Features {
		if !slices.ContainsFunc(s.Features, func(have string) bool { return strings.EqualFold(have, want) }) {
			return false
		}
	}
	return true
}
