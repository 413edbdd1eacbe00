package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/parkfinder/internal/adapters/geoip"
	"github.com/samirrijal/parkfinder/internal/adapters/http"
	"github.com/samirrijal/parkfinder/internal/adapters/memory"
	natsadapter "github.com/samirrijal/parkfinder/internal/adapters/nats"
	"github.com/samirrijal/parkfinder/internal/adapters/postgres"
	"github.com/samirrijal/parkfinder/internal/adapters/render"
	"github.com/samirrijal/parkfinder/internal/adapters/tiles"
	"github.com/samirrijal/parkfinder/internal/adapters/valkey"
	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/ports"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
	"github.com/samirrijal/parkfinder/internal/pkg/config"
	"github.com/samirrijal/parkfinder/internal/pkg/logging"
	"github.com/samirrijal/parkfinder/internal/pkg/metrics"
	"github.com/samirrijal/parkfinder/internal/pkg/telemetry"
	"github.com/samirrijal/parkfinder/internal/workflows"
)

func main() {
	cfg, err := config.Load("parkfinder-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Catalog
	var (
		spotRepo ports.SpotRepository
		db       *postgres.DB
	)
	switch cfg.Catalog.Source {
	case "postgres":
		db, err = postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		spotRepo = postgres.NewSpotRepo(db)
		go reportPoolStats(ctx, db)
	default:
		spotRepo = memory.NewSpotRepo(memory.DemoCatalog())
	}

	// Cache
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr, "parkfinder:")
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
		cache = nil
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// NATS
	var publisher ports.EventPublisher
	nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer nc.Close()
		publisher = nc
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
		natsConn = nil
	} else {
		defer natsConn.Close()
	}

	// Use cases
	spotSvc := usecases.NewSpotService(spotRepo, cacheSvc)
	locator := usecases.NewLocationProvider(usecases.LocationConfig{
		Fallback: domain.GeoPoint{Lat: cfg.Search.DefaultLat, Lon: cfg.Search.DefaultLon},
		Region:   region(cfg.Search.Region),
		Timeout:  cfg.Search.LocationTimeout,
	})
	surface := render.NewGeoJSONSurface()

	var selection ports.SelectionHandler = usecases.NewSelectionService(publisher)
	if cfg.Temporal.HostPort != "" {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			slog.Warn("temporal unavailable, handing off over NATS only", "error", err)
		} else {
			defer tc.Close()
			selection = workflows.NewStarter(tc, cfg.Temporal.TaskQueue)
		}
	}

	sessions := usecases.NewSessionManager(spotSvc, locator, usecases.SessionConfig{
		DefaultRadiusKm: cfg.Search.DefaultRadiusKm,
		MinRadiusKm:     cfg.Search.MinRadiusKm,
		MaxRadiusKm:     cfg.Search.MaxRadiusKm,
	}, cfg.Search.SessionIdleTTL, surface, selection, publisher)
	defer sessions.Close()

	// Catalog updates from the seeder and simulator
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats subscriber unavailable, catalog reloads disabled", "error", err)
	} else {
		defer sub.Close()
		err = sub.SubscribeCatalogUpdated(ctx, func(ctx context.Context, spotIDs []int64) error {
			spotSvc.Invalidate(ctx, spotIDs)
			return sessions.ReloadSpots(ctx)
		})
		if err != nil {
			slog.Warn("subscribe catalog updates", "error", err)
		}
	}

	deps := &http.Dependencies{
		Spots:    spotSvc,
		Sessions: sessions,
		Search: http.SearchSettings{
			DefaultRadiusKm: cfg.Search.DefaultRadiusKm,
			MinRadiusKm:     cfg.Search.MinRadiusKm,
			MaxRadiusKm:     cfg.Search.MaxRadiusKm,
			RadiusStepKm:    cfg.Search.RadiusStepKm,
			DefaultCenter:   locator.Fallback(),
			Region:          region(cfg.Search.Region),
		},
		Surface: surface,
		NATS:    natsConn,
		DB:      db,
		Cache:   cache,
	}
	if cfg.GeoIP.URL != "" {
		deps.GeoIP = geoip.New(cfg.GeoIP.URL, cfg.GeoIP.Timeout)
	}
	if cfg.Tiles.URLTemplate != "" {
		var opts []tiles.Option
		if cacheSvc != nil {
			opts = append(opts, tiles.WithCache(cacheSvc, cfg.Tiles.CacheTTL))
		}
		deps.Tiles = tiles.NewProxy(cfg.Tiles.URLTemplate, cfg.Tiles.Subdomains, cfg.Tiles.UserAgent, opts...)
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    64 * 1024, // position reports and commands only
		AppName:      "Parkfinder API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		ExposeHeaders:    "Location, Link, ETag, X-Request-Id",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "catalog", cfg.Catalog.Source)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func region(r config.RegionConfig) domain.Bounds {
	return domain.Bounds{MinLat: r.MinLat, MinLon: r.MinLon, MaxLat: r.MaxLat, MaxLon: r.MaxLon}
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Pool.Stat())
		case <-ctx.Done():
			return
		}
	}
}
