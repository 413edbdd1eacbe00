package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Search    SearchConfig    `mapstructure:"search"`
	GeoIP     GeoIPConfig     `mapstructure:"geoip"`
	Tiles     TilesConfig     `mapstructure:"tiles"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// TemporalConfig points at the Temporal frontend used for spot handoffs.
// An empty HostPort disables the durable handoff.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// CatalogConfig selects where parking spots come from.
type CatalogConfig struct {
	// Source is "memory" (built-in demo catalog) or "postgres".
	Source string `mapstructure:"source"`
}

// SearchConfig is the nearby-search and location policy.
type SearchConfig struct {
	DefaultRadiusKm float64       `mapstructure:"default_radius_km"`
	MinRadiusKm     float64       `mapstructure:"min_radius_km"`
	MaxRadiusKm     float64       `mapstructure:"max_radius_km"`
	RadiusStepKm    float64       `mapstructure:"radius_step_km"`
	DefaultLat      float64       `mapstructure:"default_lat"`
	DefaultLon      float64       `mapstructure:"default_lon"`
	Region          RegionConfig  `mapstructure:"region"`
	LocationTimeout time.Duration `mapstructure:"location_timeout"`
	SessionIdleTTL  time.Duration `mapstructure:"session_idle_ttl"`
}

// RegionConfig is the rectangle in which recentering on the user is allowed.
type RegionConfig struct {
	MinLat float64 `mapstructure:"min_lat"`
	MinLon float64 `mapstructure:"min_lon"`
	MaxLat float64 `mapstructure:"max_lat"`
	MaxLon float64 `mapstructure:"max_lon"`
}

// GeoIPConfig configures the IP geolocation lookup used when a client
// does not report a position. An empty URL disables it.
type GeoIPConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TilesConfig configures the raster tile proxy.
type TilesConfig struct {
	URLTemplate string        `mapstructure:"url_template"`
	Subdomains  []string      `mapstructure:"subdomains"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from .env, file and environment variables.
func Load(service string) (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: PARKFINDER_SEARCH_DEFAULT_RADIUS_KM → search.default_radius_km
	v.SetEnvPrefix("PARKFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "parking")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "parkfinder")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "spot-handoff")
	v.SetDefault("catalog.source", "memory")

	// Casablanca centre, radius slider 0.1..20 km in 0.5 km steps.
	v.SetDefault("search.default_radius_km", 2.0)
	v.SetDefault("search.min_radius_km", 0.1)
	v.SetDefault("search.max_radius_km", 20.0)
	v.SetDefault("search.radius_step_km", 0.5)
	v.SetDefault("search.default_lat", 33.5731)
	v.SetDefault("search.default_lon", -7.5898)
	v.SetDefault("search.region.min_lat", 27.6)
	v.SetDefault("search.region.min_lon", -13.2)
	v.SetDefault("search.region.max_lat", 35.9)
	v.SetDefault("search.region.max_lon", -1.0)
	v.SetDefault("search.location_timeout", "10s")
	v.SetDefault("search.session_idle_ttl", "30m")

	v.SetDefault("geoip.url", "")
	v.SetDefault("geoip.timeout", "2s")
	v.SetDefault("tiles.url_template", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("tiles.subdomains", []string{"a", "b", "c"})
	v.SetDefault("tiles.cache_ttl", "24h")
	v.SetDefault("tiles.user_agent", "parkfinder/1.0")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	switch c.Catalog.Source {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("catalog.source must be memory or postgres, got %q", c.Catalog.Source))
	}

	s := c.Search
	if !finitePositive(s.MinRadiusKm) || !finitePositive(s.MaxRadiusKm) || s.MinRadiusKm > s.MaxRadiusKm {
		errs = append(errs, fmt.Sprintf("search radius bounds invalid: min=%v max=%v", s.MinRadiusKm, s.MaxRadiusKm))
	} else if s.DefaultRadiusKm < s.MinRadiusKm || s.DefaultRadiusKm > s.MaxRadiusKm {
		errs = append(errs, fmt.Sprintf("search.default_radius_km %v outside [%v, %v]", s.DefaultRadiusKm, s.MinRadiusKm, s.MaxRadiusKm))
	}
	if !finitePositive(s.RadiusStepKm) {
		errs = append(errs, "search.radius_step_km must be positive")
	}
	if s.DefaultLat < -90 || s.DefaultLat > 90 || s.DefaultLon < -180 || s.DefaultLon > 180 {
		errs = append(errs, fmt.Sprintf("search default point out of range: %v,%v", s.DefaultLat, s.DefaultLon))
	}
	if s.Region.MinLat > s.Region.MaxLat || s.Region.MinLon > s.Region.MaxLon {
		errs = append(errs, "search.region min must not exceed max")
	}
	if s.LocationTimeout < 0 {
		errs = append(errs, "search.location_timeout must not be negative")
	}

	if c.Tiles.URLTemplate == "" {
		errs = append(errs, "tiles.url_template is required")
	} else if strings.Contains(c.Tiles.URLTemplate, "{s}") && len(c.Tiles.Subdomains) == 0 {
		errs = append(errs, "tiles.subdomains required when url_template uses {s}")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func finitePositive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}
