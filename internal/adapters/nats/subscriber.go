package natsadapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/parkfinder/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeSpotSelected consumes selections with a shared durable consumer,
// so each selection is handled once across workers.
func (s *Subscriber) SubscribeSpotSelected(ctx context.Context, handler func(ctx context.Context, sel *domain.SpotSelection) error) error {
	sub, err := s.js.Subscribe(SubjectSpotSelected, func(msg *nats.Msg) {
		var sel domain.SpotSelection
		if _, err := Decode(msg.Data, &sel); err != nil {
			slog.Warn("dropping malformed selection", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &sel); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("selection-processor"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// SubscribeCatalogUpdated delivers catalog changes to this instance. The
// consumer is ephemeral because every API replica must reload.
func (s *Subscriber) SubscribeCatalogUpdated(ctx context.Context, handler func(ctx context.Context, spotIDs []int64) error) error {
	sub, err := s.js.Subscribe(SubjectCatalogUpdated, func(msg *nats.Msg) {
		var upd catalogUpdate
		if _, err := Decode(msg.Data, &upd); err != nil {
			slog.Warn("dropping malformed catalog update", "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, upd.SpotIDs); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.DeliverNew(),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
