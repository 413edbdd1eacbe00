package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/parkfinder/internal/adapters/geoip"
	"github.com/samirrijal/parkfinder/internal/adapters/postgres"
	"github.com/samirrijal/parkfinder/internal/adapters/render"
	"github.com/samirrijal/parkfinder/internal/adapters/tiles"
	"github.com/samirrijal/parkfinder/internal/adapters/valkey"
	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
)

// SearchSettings is the radius and location policy exposed to clients.
type SearchSettings struct {
	DefaultRadiusKm float64         `json:"default_radius_km"`
	MinRadiusKm     float64         `json:"min_radius_km"`
	MaxRadiusKm     float64         `json:"max_radius_km"`
	RadiusStepKm    float64         `json:"radius_step_km"`
	DefaultCenter   domain.GeoPoint `json:"default_center"`
	Region          domain.Bounds   `json:"region"`
}

// Dependencies holds all services needed by HTTP handlers.
// Everything below Sessions is optional.
type Dependencies struct {
	Spots    *usecases.SpotService
	Sessions *usecases.SessionManager
	Search   SearchSettings

	Surface *render.GeoJSONSurface
	GeoIP   *geoip.Client
	Tiles   *tiles.Proxy
	NATS    *nats.Conn
	DB      *postgres.DB
	Cache   *valkey.Cache
}
