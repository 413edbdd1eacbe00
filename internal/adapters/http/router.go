package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/parkfinder/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		// Tiles are already compressed images.
		Next: func(c *fiber.Ctx) bool { return strings.HasPrefix(c.Path(), "/tiles/") },
	}))

	// Request ID
	app.Use(requestid.New())

	// Server spans
	app.Use(TracingMiddleware())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP. A map view pulls
	// dozens of tiles at once, so tiles are exempt.
	app.Use(limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/tiles/")
		},
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, 429, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/search/config", SearchConfigHandler(deps))

	// Catalog and stateless nearby queries
	v1.Get("/spots", timeout.NewWithContext(ListSpotsHandler(deps), requestTimeout))
	v1.Get("/spots/nearby", timeout.NewWithContext(NearbySpotsHandler(deps), requestTimeout))
	v1.Get("/spots/:id", timeout.NewWithContext(GetSpotHandler(deps), requestTimeout))
	v1.Get("/markers", timeout.NewWithContext(MarkersHandler(deps), requestTimeout))

	// Map sessions
	v1.Post("/sessions", timeout.NewWithContext(CreateSessionHandler(deps), requestTimeout))
	v1.Get("/sessions/:id", GetSessionHandler(deps))
	v1.Get("/sessions/:id/list", SessionListHandler(deps))
	v1.Get("/sessions/:id/geojson", SessionGeoJSONHandler(deps))
	v1.Put("/sessions/:id/radius", SetRadiusHandler(deps))
	v1.Post("/sessions/:id/recenter", RecenterHandler(deps))
	v1.Post("/sessions/:id/select", timeout.NewWithContext(SelectSpotHandler(deps), requestTimeout))
	v1.Delete("/sessions/:id", DeleteSessionHandler(deps))

	// Base map tiles
	if deps.Tiles != nil {
		app.Get("/tiles/:z/:x/:y", timeout.NewWithContext(TileHandler(deps), requestTimeout))
	}

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	if deps.NATS != nil {
		app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
	}
	app.Get("/ws/sessions/:id", requireSession(deps), websocket.New(SessionSocketHandler(deps)))
}
