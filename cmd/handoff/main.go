package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/parkfinder/internal/adapters/nats"
	"github.com/samirrijal/parkfinder/internal/adapters/memory"
	"github.com/samirrijal/parkfinder/internal/adapters/postgres"
	"github.com/samirrijal/parkfinder/internal/core/ports"
	"github.com/samirrijal/parkfinder/internal/pkg/config"
	"github.com/samirrijal/parkfinder/internal/pkg/logging"
	"github.com/samirrijal/parkfinder/internal/workflows"
)

func main() {
	cfg, err := config.Load("parkfinder-handoff")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	hostPort := cfg.Temporal.HostPort
	if hostPort == "" {
		hostPort = client.DefaultHostPort
	}

	// Catalog used to refresh selected spots
	var spots ports.SpotRepository = memory.NewSpotRepo(memory.DemoCatalog())
	if cfg.Catalog.Source == "postgres" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		cancel()
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer db.Close()
		spots = postgres.NewSpotRepo(db)
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.SpotHandoffWorkflow)
	w.RegisterActivity(&workflows.HandoffActivities{
		Spots:     spots,
		Publisher: pub,
	})

	slog.Info("handoff worker started", "task_queue", cfg.Temporal.TaskQueue, "catalog", cfg.Catalog.Source)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
