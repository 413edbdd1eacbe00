package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/ports"
	"github.com/samirrijal/parkfinder/internal/pkg/metrics"
)

// SessionManager creates, tracks and expires map sessions.
type SessionManager struct {
	spots     *SpotService
	locator   *LocationProvider
	cfg       SessionConfig
	idleTTL   time.Duration
	surface   ports.MapSurface
	selection ports.SelectionHandler
	publisher ports.EventPublisher

	mu       sync.RWMutex
	sessions map[string]*Session
	stop     chan struct{}
	once     sync.Once
}

// NewSessionManager creates a new SessionManager. surface, selection and
// publisher are optional. idleTTL <= 0 disables expiry.
func NewSessionManager(
	spots *SpotService,
	locator *LocationProvider,
	cfg SessionConfig,
	idleTTL time.Duration,
	surface ports.MapSurface,
	selection ports.SelectionHandler,
	publisher ports.EventPublisher,
) *SessionManager {
	m := &SessionManager{
		spots:     spots,
		locator:   locator,
		cfg:       cfg,
		idleTTL:   idleTTL,
		surface:   surface,
		selection: selection,
		publisher: publisher,
		sessions:  make(map[string]*Session),
		stop:      make(chan struct{}),
	}
	if idleTTL > 0 {
		go m.sweep(idleTTL / 2)
	}
	return m
}

// Config returns the radius policy applied to new sessions.
func (m *SessionManager) Config() SessionConfig { return m.cfg }

// Create loads the catalog, opens a session and starts location acquisition.
func (m *SessionManager) Create(ctx context.Context, source ports.LocationSource) (*Session, error) {
	spots, err := m.spots.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var opts []SessionOption
	if m.surface != nil {
		opts = append(opts, WithSurface(m.surface))
	}
	if m.selection != nil {
		opts = append(opts, WithSelectionHandler(m.selection))
	}

	s := NewSession(uuid.NewString(), spots, m.locator, m.cfg, opts...)
	if m.publisher != nil {
		pub := m.publisher
		s.Subscribe(func(snap domain.MapSnapshot) {
			if err := pub.PublishSnapshot(context.Background(), &snap); err != nil {
				slog.Warn("publish snapshot failed", "session_id", snap.SessionID, "error", err)
			}
		})
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))

	s.Start(source)
	slog.InfoContext(ctx, "session created", "session_id", s.ID(), "spots", len(spots))
	return s, nil
}

// Get returns a live session.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Delete closes and forgets a session.
func (m *SessionManager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	m.release(s)
	metrics.ActiveSessions.Set(float64(n))
	return nil
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ReloadSpots refreshes the catalog and pushes it into every live session.
func (m *SessionManager) ReloadSpots(ctx context.Context) error {
	spots, err := m.spots.List(ctx)
	if err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}

	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	for _, s := range live {
		s.SetSpots(spots)
	}
	metrics.CatalogReloads.Inc()
	slog.InfoContext(ctx, "catalog reloaded", "spots", len(spots), "sessions", len(live))
	return nil
}

// Close stops the sweeper and closes every session.
func (m *SessionManager) Close() {
	m.once.Do(func() { close(m.stop) })

	m.mu.Lock()
	for id, s := range m.sessions {
		m.release(s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	metrics.ActiveSessions.Set(0)
}

func (m *SessionManager) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.expireIdle(time.Now())
		case <-m.stop:
			return
		}
	}
}

func (m *SessionManager) expireIdle(now time.Time) {
	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if now.Sub(s.IdleSince()) > m.idleTTL {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		m.release(s)
	}
	if len(expired) > 0 {
		metrics.ActiveSessions.Set(float64(n))
		slog.Info("expired idle sessions", "count", len(expired))
	}
}

func (m *SessionManager) release(s *Session) {
	s.Close()
	if r, ok := m.surface.(ports.SurfaceReleaser); ok {
		r.Forget(s.ID())
	}
}
