package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

// HandoffInput is the input for the spot handoff workflow.
type HandoffInput struct {
	Selection domain.SpotSelection
}

// HandoffResult reports what was handed to the booking flow.
type HandoffResult struct {
	SpotID    int64
	Available int
	// Refreshed is false when the catalog could not be read and the spot
	// captured at selection time was forwarded instead.
	Refreshed bool
}

// SpotHandoffWorkflow refreshes the selected spot from the catalog and
// publishes the selection for the booking flow. A failed refresh falls back
// to the spot as the session saw it; a failed publish fails the workflow.
func SpotHandoffWorkflow(ctx workflow.Context, input HandoffInput) (*HandoffResult, error) {
	logger := workflow.GetLogger(ctx)
	sel := input.Selection
	logger.Info("Starting spot handoff", "sessionID", sel.SessionID, "spotID", sel.Spot.ID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeSpotGone},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Refresh the spot
	result := &HandoffResult{SpotID: sel.Spot.ID, Available: sel.Spot.Available}
	var fresh domain.ParkingSpot
	if err := workflow.ExecuteActivity(ctx, "ResolveSpot", sel.Spot.ID).Get(ctx, &fresh); err != nil {
		logger.Warn("spot refresh failed, forwarding captured spot", "error", err)
	} else {
		sel.Spot = fresh
		result.Available = fresh.Available
		result.Refreshed = true
	}

	// Step 2: Publish for the booking flow
	if err := workflow.ExecuteActivity(ctx, "PublishSelection", sel).Get(ctx, nil); err != nil {
		logger.Error("publish selection failed", "error", err)
		return nil, err
	}

	logger.Info("Spot handed off", "spotID", result.SpotID, "available", result.Available)
	return result, nil
}
