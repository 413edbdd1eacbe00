package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/ports"
)

// ErrTypeSpotGone marks a selection whose spot left the catalog. It is not retried.
const ErrTypeSpotGone = "SpotGone"

// HandoffActivities holds the activity implementations for the handoff workflow.
type HandoffActivities struct {
	Spots     ports.SpotRepository
	Publisher ports.EventPublisher
}

// ResolveSpot returns the current catalog entry of a spot.
func (a *HandoffActivities) ResolveSpot(ctx context.Context, spotID int64) (*domain.ParkingSpot, error) {
	spot, err := a.Spots.GetByID(ctx, spotID)
	if errors.Is(err, domain.ErrSpotNotFound) {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("spot %d no longer in catalog", spotID), ErrTypeSpotGone, err)
	}
	if err != nil {
		return nil, fmt.Errorf("get spot %d: %w", spotID, err)
	}
	return spot, nil
}

// PublishSelection emits the spot-selected event.
func (a *HandoffActivities) PublishSelection(ctx context.Context, sel domain.SpotSelection) error {
	if a.Publisher == nil {
		slog.InfoContext(ctx, "selection handed off (no publisher)",
			"session_id", sel.SessionID, "spot_id", sel.Spot.ID)
		return nil
	}
	if err := a.Publisher.PublishSpotSelected(ctx, &sel); err != nil {
		return fmt.Errorf("publish selection of spot %d: %w", sel.Spot.ID, err)
	}
	return nil
}
