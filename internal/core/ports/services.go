package ports

import (
	"context"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishSpotSelected(ctx context.Context, sel *domain.SpotSelection) error
	PublishSnapshot(ctx context.Context, snap *domain.MapSnapshot) error
	PublishCatalogUpdated(ctx context.Context, spotIDs []int64) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeSpotSelected(ctx context.Context, handler func(ctx context.Context, sel *domain.SpotSelection) error) error
	SubscribeCatalogUpdated(ctx context.Context, handler func(ctx context.Context, spotIDs []int64) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// LocationSource is the host platform's position API.
// Implementations may block until the user answers a permission prompt.
type LocationSource interface {
	CurrentPosition(ctx context.Context) (domain.GeoPoint, error)
}

// MapSurface is the rendering collaborator that draws markers.
// A render failure must not affect the session that produced the snapshot.
type MapSurface interface {
	Render(ctx context.Context, snap domain.MapSnapshot) error
}

// SurfaceReleaser is implemented by surfaces that hold per-session state.
type SurfaceReleaser interface {
	Forget(sessionID string)
}

// SelectionHandler receives spot-selected events for the booking flow.
type SelectionHandler interface {
	SpotSelected(ctx context.Context, sel domain.SpotSelection) error
}
