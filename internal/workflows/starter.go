package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

// DefaultTaskQueue is the queue served by the handoff worker.
const DefaultTaskQueue = "spot-handoff"

// Starter hands selections to Temporal. It implements ports.SelectionHandler
// and returns once the workflow is accepted, not when it completes.
type Starter struct {
	client    client.Client
	taskQueue string
}

// NewStarter creates a new Starter. An empty taskQueue uses DefaultTaskQueue.
func NewStarter(c client.Client, taskQueue string) *Starter {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Starter{client: c, taskQueue: taskQueue}
}

// WorkflowID is the id of the handoff for one selection. Repeated
// deliveries of the same selection map to the same workflow.
func WorkflowID(sel domain.SpotSelection) string {
	return fmt.Sprintf("spot-handoff-%s-%d-%d", sel.SessionID, sel.Spot.ID, sel.SelectedAt.UnixNano())
}

// SpotSelected implements ports.SelectionHandler.
func (s *Starter) SpotSelected(ctx context.Context, sel domain.SpotSelection) error {
	opts := client.StartWorkflowOptions{
		ID:                       WorkflowID(sel),
		TaskQueue:                s.taskQueue,
		WorkflowExecutionTimeout: 5 * time.Minute,
	}
	run, err := s.client.ExecuteWorkflow(ctx, opts, SpotHandoffWorkflow, HandoffInput{Selection: sel})
	if err != nil {
		return fmt.Errorf("start handoff of spot %d: %w", sel.Spot.ID, err)
	}
	slog.InfoContext(ctx, "spot handoff started",
		"session_id", sel.SessionID, "spot_id", sel.Spot.ID,
		"workflow_id", run.GetID(), "run_id", run.GetRunID())
	return nil
}
