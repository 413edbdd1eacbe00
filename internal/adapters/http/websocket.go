package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/parkfinder/internal/adapters/nats"
	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
	"github.com/samirrijal/parkfinder/internal/pkg/metrics"
)

const pingInterval = 30 * time.Second

// wsMessage is sent from client to subscribe/unsubscribe to feeds.
type wsMessage struct {
	Action    string `json:"action"`     // "subscribe" | "unsubscribe"
	Channel   string `json:"channel"`    // "nearby" | "catalog" | "selections" (default: catalog)
	SessionID string `json:"session_id"` // nearby filter (optional, "" = all sessions)
}

// subjectFor maps a client channel to a NATS subject.
func subjectFor(m wsMessage) (string, bool) {
	switch m.Channel {
	case "", "catalog":
		return natsadapter.SubjectCatalogUpdated, true
	case "nearby":
		if m.SessionID != "" {
			return natsadapter.SubjectNearbyPrefix + m.SessionID, true
		}
		return natsadapter.SubjectNearbyAll, true
	case "selections":
		return natsadapter.SubjectSpotSelected, true
	}
	return "", false
}

// safeConn serialises writes to a websocket connection.
type safeConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (s *safeConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeRaw(data)
}

func (s *safeConn) writeRaw(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.WriteMessage(websocket.TextMessage, data)
}

func (s *safeConn) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			err := s.c.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// WebSocketHandler returns a handler that upgrades to WebSocket and relays
// bus events to connected clients as JSON envelopes.
// Clients send JSON: {"action":"subscribe","channel":"nearby","session_id":"..."}
// Catalog updates are subscribed by default.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)

		conn := &safeConn{c: c}
		subs := make(map[string]*nats.Subscription) // subject -> subscription

		relay := func(msg *nats.Msg) {
			data, err := natsadapter.EnvelopeJSON(msg.Data)
			if err != nil {
				slog.Warn("ws relay: bad envelope", "subject", msg.Subject, "error", err)
				return
			}
			_ = conn.writeRaw(data)
		}

		defaultSubject, _ := subjectFor(wsMessage{})
		sub, err := nc.Subscribe(defaultSubject, relay)
		if err != nil {
			slog.Error("ws default subscribe failed", "error", err)
			return
		}
		subs[defaultSubject] = sub

		done := make(chan struct{})
		go conn.keepAlive(done)

		// Read client messages for subscribe/unsubscribe
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = conn.writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			subject, ok := subjectFor(m)
			if !ok {
				_ = conn.writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = conn.writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				s, err := nc.Subscribe(subject, relay)
				if err != nil {
					_ = conn.writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[subject] = s
				_ = conn.writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = conn.writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = conn.writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = conn.writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		// Cleanup
		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}

// sessionCommand is a client instruction on a session socket.
type sessionCommand struct {
	Action   string   `json:"action"` // "radius" | "recenter" | "select"
	RadiusKm *float64 `json:"radius_km,omitempty"`
	SpotID   *int64   `json:"spot_id,omitempty"`
	PositionReport
}

// requireSession rejects upgrades for unknown sessions before the handshake.
func requireSession(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return errNotFound(c, "session not found")
		}
		c.Locals("session", s)
		return c.Next()
	}
}

// latestSnapshot is a one-slot mailbox: a slow client skips intermediate
// versions but always ends up with the newest one.
type latestSnapshot struct {
	mu     sync.Mutex
	snap   domain.MapSnapshot
	notify chan struct{}
}

func (l *latestSnapshot) put(s domain.MapSnapshot) {
	l.mu.Lock()
	if s.Version > l.snap.Version {
		l.snap = s
	}
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *latestSnapshot) take() domain.MapSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// SessionSocketHandler streams every settled snapshot of one session and
// accepts radius, recenter and select commands.
func SessionSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()
		s, ok := c.Locals("session").(*usecases.Session)
		if !ok {
			return
		}
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		conn := &safeConn{c: c}
		box := &latestSnapshot{notify: make(chan struct{}, 1)}
		unsubscribe := s.Subscribe(box.put)
		defer unsubscribe()
		box.put(s.Snapshot())

		done := make(chan struct{})
		defer close(done)
		go conn.keepAlive(done)

		go func() {
			var sent uint64
			for {
				select {
				case <-box.notify:
					snap := box.take()
					if snap.Version <= sent {
						continue
					}
					if err := conn.writeJSON(fiber.Map{"type": "snapshot", "data": snap}); err != nil {
						return
					}
					sent = snap.Version
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var cmd sessionCommand
			if err := json.Unmarshal(msg, &cmd); err != nil {
				_ = conn.writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch cmd.Action {
			case "radius":
				if cmd.RadiusKm == nil {
					_ = conn.writeJSON(map[string]string{"error": "radius_km is required"})
					continue
				}
				s.SetRadius(*cmd.RadiusKm)

			case "recenter":
				var source usecases.ReportedPosition
				switch {
				case cmd.Denied:
					source.Denied = true
				case cmd.Lat != nil && cmd.Lon != nil:
					source.Point = &domain.GeoPoint{Lat: *cmd.Lat, Lon: *cmd.Lon}
				}
				if !s.Recenter(source) {
					_ = conn.writeJSON(map[string]string{"error": "location acquisition already in progress"})
				}

			case "select":
				if cmd.SpotID == nil {
					_ = conn.writeJSON(map[string]string{"error": "spot_id is required"})
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
				selected, err := s.Select(ctx, *cmd.SpotID)
				cancel()
				switch {
				case err != nil:
					_ = conn.writeJSON(map[string]string{"error": "booking handoff failed"})
				case selected:
					_ = conn.writeJSON(fiber.Map{"type": "selected", "spot_id": *cmd.SpotID})
				}

			default:
				_ = conn.writeJSON(map[string]string{"error": "unknown action: " + cmd.Action})
			}
		}
	}
}
