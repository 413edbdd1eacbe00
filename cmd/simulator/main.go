package main

import (
	"context"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/samirrijal/parkfinder/internal/adapters/nats"
	"github.com/samirrijal/parkfinder/internal/adapters/postgres"
	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
	"github.com/samirrijal/parkfinder/internal/pkg/config"
	"github.com/samirrijal/parkfinder/internal/pkg/logging"
)

// maxSwing is the largest change in free spaces applied to one spot per tick.
const maxSwing = 3

func main() {
	cfg, err := config.Load("parkfinder-simulator")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	interval := 30 * time.Second
	if len(os.Args) > 1 {
		if interval, err = time.ParseDuration(os.Args[1]); err != nil || interval <= 0 {
			log.Fatalf("usage: simulator [interval], got %q", os.Args[1])
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// NATS
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	svc := usecases.NewSpotService(postgres.NewSpotRepo(db), nil)
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("availability simulator started", "interval", interval)

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			tick(ctx, svc, pub, rng)
		case sig := <-quit:
			slog.Info("shutting down simulator", "signal", sig.String())
			return
		}
	}
}

func tick(ctx context.Context, svc *usecases.SpotService, pub *natsadapter.Publisher, rng *rand.Rand) {
	spots, err := svc.List(ctx)
	if err != nil {
		slog.Error("list spots", "error", err)
		return
	}

	var changed []int64
	for _, s := range spots {
		next := perturb(s, rng)
		if next == s.Available {
			continue
		}
		if err := svc.UpdateAvailability(ctx, s.ID, next); err != nil {
			slog.Warn("update availability", "spot_id", s.ID, "error", err)
			continue
		}
		changed = append(changed, s.ID)
	}

	if len(changed) == 0 {
		return
	}
	if err := pub.PublishCatalogUpdated(ctx, changed); err != nil {
		slog.Warn("publish catalog update", "error", err)
		return
	}
	slog.Info("availability updated", "spots", len(changed))
}

// perturb returns a new free-space count for s, moved by at most maxSwing
// and kept within [0, total].
func perturb(s domain.ParkingSpot, rng *rand.Rand) int {
	next := s.Available + rng.IntN(2*maxSwing+1) - maxSwing
	return max(0, min(next, s.Total))
}
