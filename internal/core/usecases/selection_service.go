package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/ports"
)

// SelectionService hands selected spots to the booking flow over the event bus.
type SelectionService struct {
	publisher ports.EventPublisher
}

// NewSelectionService creates a new SelectionService. publisher may be nil,
// in which case selections are only logged.
func NewSelectionService(publisher ports.EventPublisher) *SelectionService {
	return &SelectionService{publisher: publisher}
}

// SpotSelected implements ports.SelectionHandler.
func (s *SelectionService) SpotSelected(ctx context.Context, sel domain.SpotSelection) error {
	slog.InfoContext(ctx, "spot selected",
		"session_id", sel.SessionID, "spot_id", sel.Spot.ID, "nearby", sel.Nearby)

	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.PublishSpotSelected(ctx, &sel); err != nil {
		return fmt.Errorf("publish selection of spot %d: %w", sel.Spot.ID, err)
	}
	return nil
}
