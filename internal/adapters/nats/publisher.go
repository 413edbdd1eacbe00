package natsadapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

// Subjects used on the bus.
const (
	SubjectSpotSelectedPrefix = "parking.spot.selected."
	SubjectSpotSelected       = SubjectSpotSelectedPrefix + ">"
	SubjectCatalogUpdated     = "parking.catalog.updated"
	SubjectNearbyPrefix       = "parking.nearby."
	SubjectNearbyAll          = SubjectNearbyPrefix + ">"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "PARKING_SELECTIONS",
			Subjects:  []string{SubjectSpotSelected},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "PARKING_CATALOG",
			Subjects:  []string{SubjectCatalogUpdated},
			Retention: nats.InterestPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishSpotSelected hands a selection to the booking flow. The spot id is
// part of the subject so consumers can filter per spot.
func (p *Publisher) PublishSpotSelected(ctx context.Context, sel *domain.SpotSelection) error {
	data, err := Encode(EventSpotSelected, sel)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectSpotSelectedPrefix+strconv.FormatInt(sel.Spot.ID, 10), data, nats.Context(ctx))
	return err
}

// PublishCatalogUpdated announces that the given spots changed.
func (p *Publisher) PublishCatalogUpdated(ctx context.Context, spotIDs []int64) error {
	data, err := Encode(EventCatalogUpdated, catalogUpdate{SpotIDs: spotIDs})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectCatalogUpdated, data, nats.Context(ctx))
	return err
}

// PublishSnapshot fans a settled session view out on core NATS. Snapshots
// are ephemeral and are not persisted in a stream.
func (p *Publisher) PublishSnapshot(_ context.Context, snap *domain.MapSnapshot) error {
	data, err := Encode(EventSnapshot, snap)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectNearbyPrefix+snap.SessionID, data)
}

// Ping reports whether the connection is up, used by the readiness probe.
func (p *Publisher) Ping() error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats: %s", p.conn.Status())
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
