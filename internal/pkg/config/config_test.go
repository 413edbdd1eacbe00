package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("parkfinder-test")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Catalog.Source)
	assert.Equal(t, "parkfinder-test", cfg.Telemetry.ServiceName)
	assert.InDelta(t, 2.0, cfg.Search.DefaultRadiusKm, 1e-9)
	assert.InDelta(t, 0.1, cfg.Search.MinRadiusKm, 1e-9)
	assert.InDelta(t, 20.0, cfg.Search.MaxRadiusKm, 1e-9)
	assert.InDelta(t, 33.5731, cfg.Search.DefaultLat, 1e-9)
	assert.InDelta(t, -7.5898, cfg.Search.DefaultLon, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Search.LocationTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Search.SessionIdleTTL)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Tiles.Subdomains)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PARKFINDER_SERVER_PORT", "9090")
	t.Setenv("PARKFINDER_SEARCH_DEFAULT_RADIUS_KM", "5")
	t.Setenv("PARKFINDER_SEARCH_LOCATION_TIMEOUT", "0s")

	cfg, err := Load("parkfinder-test")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 5.0, cfg.Search.DefaultRadiusKm, 1e-9)
	assert.Zero(t, cfg.Search.LocationTimeout)
}

func TestLoad_RejectsBadRadius(t *testing.T) {
	t.Setenv("PARKFINDER_SEARCH_DEFAULT_RADIUS_KM", "50")

	_, err := Load("parkfinder-test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.default_radius_km")
}

func validConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 8080, ReadTimeout: 10, WriteTimeout: 10},
		NATS:    NATSConfig{URL: "nats://localhost:4222"},
		Valkey:  ValkeyConfig{Addr: "localhost:6379"},
		Catalog: CatalogConfig{Source: "memory"},
		Search: SearchConfig{
			DefaultRadiusKm: 2, MinRadiusKm: 0.1, MaxRadiusKm: 20, RadiusStepKm: 0.5,
			DefaultLat: 33.5731, DefaultLon: -7.5898,
			Region: RegionConfig{MinLat: 27.6, MinLon: -13.2, MaxLat: 35.9, MaxLon: -1},
		},
		Tiles: TilesConfig{URLTemplate: "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", Subdomains: []string{"a"}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown catalog", func(c *Config) { c.Catalog.Source = "csv" }, "catalog.source"},
		{"postgres needs host", func(c *Config) { c.Catalog.Source = "postgres"; c.Database.Port = 5432 }, "database.host"},
		{"inverted radius", func(c *Config) { c.Search.MinRadiusKm = 30 }, "radius bounds"},
		{"default outside bounds", func(c *Config) { c.Search.DefaultRadiusKm = 0.01 }, "default_radius_km"},
		{"zero step", func(c *Config) { c.Search.RadiusStepKm = 0 }, "radius_step_km"},
		{"default point", func(c *Config) { c.Search.DefaultLat = 91 }, "default point"},
		{"inverted region", func(c *Config) { c.Search.Region.MinLat = 40 }, "search.region"},
		{"negative timeout", func(c *Config) { c.Search.LocationTimeout = -time.Second }, "location_timeout"},
		{"subdomains", func(c *Config) { c.Tiles.Subdomains = nil }, "tiles.subdomains"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}
