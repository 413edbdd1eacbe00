package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	natsadapter "github.com/samirrijal/parkfinder/internal/adapters/nats"
	"github.com/samirrijal/parkfinder/internal/adapters/memory"
	"github.com/samirrijal/parkfinder/internal/adapters/postgres"
	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
	"github.com/samirrijal/parkfinder/internal/pkg/config"
	"github.com/samirrijal/parkfinder/internal/pkg/logging"
)

// catalogFile is the JSON layout accepted by the seeder.
type catalogFile struct {
	Source string               `json:"source"`
	Spots  []domain.ParkingSpot `json:"spots"`
}

func main() {
	cfg, err := config.Load("parkfinder-seed")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Catalog: a JSON file if given, the built-in demo set otherwise
	spots := memory.DemoCatalog()
	source := "demo"
	if len(os.Args) > 1 {
		f, err := loadCatalog(os.Args[1])
		if err != nil {
			log.Fatalf("load catalog: %v", err)
		}
		spots, source = f.Spots, f.Source
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	svc := usecases.NewSpotService(postgres.NewSpotRepo(db), nil)
	if err := svc.UpsertBatch(ctx, spots); err != nil {
		log.Fatalf("seed: %v", err)
	}
	slog.Info("catalog seeded", "source", source, "spots", len(spots))

	// Tell running API instances to reload
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, API instances will not reload", "error", err)
		return
	}
	defer pub.Close()

	ids := make([]int64, 0, len(spots))
	for _, s := range spots {
		ids = append(ids, s.ID)
	}
	if err := pub.PublishCatalogUpdated(ctx, ids); err != nil {
		slog.Warn("publish catalog update", "error", err)
	}
}

func loadCatalog(path string) (*catalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Spots) == 0 {
		return nil, fmt.Errorf("%s: no spots", path)
	}

	seen := make(map[int64]bool, len(f.Spots))
	for _, s := range f.Spots {
		if seen[s.ID] {
			return nil, fmt.Errorf("%s: duplicate spot id %d", path, s.ID)
		}
		seen[s.ID] = true
	}
	if f.Source == "" {
		f.Source = path
	}
	return &f, nil
}
