package usecases

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/ports"
	"github.com/samirrijal/parkfinder/internal/pkg/metrics"
)

// SessionConfig holds the radius policy of a map session.
type SessionConfig struct {
	DefaultRadiusKm float64
	MinRadiusKm     float64
	MaxRadiusKm     float64
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithSurface attaches the rendering surface that receives every settled snapshot.
func WithSurface(surface ports.MapSurface) SessionOption {
	return func(s *Session) { s.surface = surface }
}

// WithSelectionHandler sets the booking-flow collaborator for Select.
func WithSelectionHandler(h ports.SelectionHandler) SessionOption {
	return func(s *Session) { s.onSelect = h }
}

type nearbyKey struct {
	hasLocation  bool
	location     domain.GeoPoint
	radiusKm     float64
	spotsVersion uint64
}

// Session owns the search state of one map view. It keeps the nearby list,
// the markers and the radius consistent and publishes a snapshot after every
// change. All methods are safe for concurrent use.
//
// Observers and the surface are called outside the state lock but must not
// mutate the session synchronously.
type Session struct {
	id       string
	cfg      SessionConfig
	locator  *LocationProvider
	surface  ports.MapSurface
	onSelect ports.SelectionHandler

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}

	mu           sync.Mutex
	state        domain.LifecycleState
	search       domain.SearchState
	spotsVersion uint64
	fix          *domain.LocationFix
	nearby       []domain.AnnotatedSpot
	markers      []domain.MarkerState
	version      uint64
	acquiring    bool
	generation   uint64
	memo         nearbyKey
	memoValid    bool
	closed       bool
	lastTouched  time.Time
	observers    map[int]func(domain.MapSnapshot)
	nextObserver int

	emitMu      sync.Mutex
	lastEmitted uint64
}

// NewSession creates a session in the uninitialized state.
func NewSession(id string, spots []domain.ParkingSpot, locator *LocationProvider, cfg SessionConfig, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          id,
		cfg:         cfg,
		locator:     locator,
		ctx:         ctx,
		cancel:      cancel,
		ready:       make(chan struct{}),
		state:       domain.StateUninitialized,
		observers:   make(map[int]func(domain.MapSnapshot)),
		lastTouched: time.Now(),
	}
	s.search = domain.SearchState{
		RadiusKm: ClampRadius(cfg.DefaultRadiusKm, cfg.DefaultRadiusKm, cfg.MinRadiusKm, cfg.MaxRadiusKm),
		Spots:    slices.Clone(spots),
	}
	for _, o := range opts {
		o(s)
	}

	s.mu.Lock()
	s.recomputeLocked()
	s.mu.Unlock()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start moves the session from uninitialized to acquiring the location.
// It returns false if the session was already started.
func (s *Session) Start(source ports.LocationSource) bool {
	s.mu.Lock()
	if s.closed || s.state != domain.StateUninitialized {
		s.mu.Unlock()
		return false
	}
	s.state = domain.StateAcquiringLocation
	gen := s.beginAcquireLocked()
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.emit(snap)
	go s.acquire(gen, source)
	return true
}

// Recenter re-acquires the location. While an acquisition is pending it is a
// no-op and returns false. An unstarted session is started instead.
func (s *Session) Recenter(source ports.LocationSource) bool {
	s.mu.Lock()
	if s.state == domain.StateUninitialized {
		s.mu.Unlock()
		return s.Start(source)
	}
	if s.closed || s.acquiring {
		s.mu.Unlock()
		return false
	}
	gen := s.beginAcquireLocked()
	s.mu.Unlock()

	go s.acquire(gen, source)
	return true
}

func (s *Session) beginAcquireLocked() uint64 {
	s.acquiring = true
	s.generation++
	s.lastTouched = time.Now()
	return s.generation
}

func (s *Session) acquire(gen uint64, source ports.LocationSource) {
	fix := s.locator.Acquire(s.ctx, source)

	s.mu.Lock()
	// Only the latest acquisition of a live session may publish.
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.acquiring = false
	s.fix = &fix
	point := fix.Point
	s.search.UserLocation = &point
	if s.state == domain.StateAcquiringLocation {
		s.state = domain.StateReady
		close(s.ready)
	}
	s.recomputeLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	slog.Debug("session location settled",
		"session_id", s.id, "source", fix.Source, "in_region", fix.InRegion)
	s.emit(snap)
}

// SetRadius applies a new search radius, clamped to the configured bounds,
// and returns the effective value.
func (s *Session) SetRadius(radiusKm float64) float64 {
	s.mu.Lock()
	r := ClampRadius(radiusKm, s.cfg.DefaultRadiusKm, s.cfg.MinRadiusKm, s.cfg.MaxRadiusKm)
	if r == s.search.RadiusKm {
		s.lastTouched = time.Now()
		s.mu.Unlock()
		return r
	}
	s.search.RadiusKm = r
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.emit(snap)
	return r
}

// SetSpots replaces the spot list.
func (s *Session) SetSpots(spots []domain.ParkingSpot) {
	s.mu.Lock()
	s.search.Spots = slices.Clone(spots)
	s.spotsVersion++
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.emit(snap)
}

// Snapshot returns the current settled view.
func (s *Session) Snapshot() domain.MapSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTouched = time.Now()
	return s.snapshotLocked()
}

// List returns the sidebar list: the nearby spots once a reference point
// exists, otherwise every spot with no distance filter.
func (s *Session) List() (items []domain.AnnotatedSpot, filtered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTouched = time.Now()

	if s.search.UserLocation != nil {
		return slices.Clone(s.nearby), true
	}
	items = make([]domain.AnnotatedSpot, 0, len(s.search.Spots))
	for _, spot := range s.search.Spots {
		items = append(items, domain.AnnotatedSpot{ParkingSpot: spot})
	}
	return items, false
}

// Select resolves id against the session's spots and forwards it to the
// selection handler. Unknown ids are ignored and reported as false.
func (s *Session) Select(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	s.lastTouched = time.Now()
	idx := slices.IndexFunc(s.search.Spots, func(sp domain.ParkingSpot) bool { return sp.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		metrics.Selections.WithLabelValues("stale").Inc()
		slog.DebugContext(ctx, "ignoring selection of unknown spot", "session_id", s.id, "spot_id", id)
		return false, nil
	}
	sel := domain.SpotSelection{
		SessionID:  s.id,
		Spot:       s.search.Spots[idx],
		Nearby:     slices.ContainsFunc(s.nearby, func(n domain.AnnotatedSpot) bool { return n.ID == id }),
		SelectedAt: time.Now(),
	}
	handler := s.onSelect
	s.mu.Unlock()

	metrics.Selections.WithLabelValues("accepted").Inc()
	if handler == nil {
		return true, nil
	}
	return true, handler.SpotSelected(ctx, sel)
}

// Subscribe registers fn for every future snapshot. The returned func removes it.
func (s *Session) Subscribe(fn func(domain.MapSnapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// AwaitReady blocks until the first location fix settled or ctx is done.
func (s *Session) AwaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IdleSince reports when the session was last used.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouched
}

// Close cancels any pending acquisition. Further updates are not published.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.observers = map[int]func(domain.MapSnapshot){}
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) bumpLocked() domain.MapSnapshot {
	s.recomputeLocked()
	return s.snapshotLocked()
}

func (s *Session) recomputeLocked() {
	key := nearbyKey{radiusKm: s.search.RadiusKm, spotsVersion: s.spotsVersion}
	if s.search.UserLocation != nil {
		key.hasLocation = true
		key.location = *s.search.UserLocation
	}

	if !s.memoValid || key != s.memo {
		_, span := tracer.Start(s.ctx, "nearby.compute")
		start := time.Now()
		s.nearby = ComputeNearby(s.search)
		metrics.NearbyDuration.Observe(time.Since(start).Seconds())
		metrics.NearbyResultSize.Observe(float64(len(s.nearby)))
		span.SetAttributes(
			attribute.Int("spots.total", len(s.search.Spots)),
			attribute.Int("spots.nearby", len(s.nearby)),
			attribute.Float64("radius_km", s.search.RadiusKm),
		)
		span.End()
		s.memo, s.memoValid = key, true
	}

	s.markers = DeriveMarkers(s.search.Spots, s.nearby, s.search.UserLocation)
	s.version++
	s.lastTouched = time.Now()
}

func (s *Session) snapshotLocked() domain.MapSnapshot {
	snap := domain.MapSnapshot{
		SessionID: s.id,
		Version:   s.version,
		State:     s.state,
		RadiusKm:  s.search.RadiusKm,
		Nearby:    slices.Clone(s.nearby),
		Markers:   slices.Clone(s.markers),
		Summary:   Summarize(s.nearby, s.search.RadiusKm),
	}
	if s.search.UserLocation != nil {
		p := *s.search.UserLocation
		snap.UserLocation = &p
	}
	if s.fix != nil {
		f := *s.fix
		snap.Location = &f
		snap.Recenter = f.Source == domain.SourcePlatform && f.InRegion
	}
	if b, ok := FitNearby(s.nearby, s.search.UserLocation); ok {
		snap.FitBounds = &b
	}
	return snap
}

// emit delivers snap to the surface and observers. Snapshots older than the
// last delivered one are dropped so consumers only move forward.
func (s *Session) emit(snap domain.MapSnapshot) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if snap.Version <= s.lastEmitted {
		return
	}
	s.lastEmitted = snap.Version

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	observers := make([]func(domain.MapSnapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	if s.surface != nil {
		if err := s.surface.Render(s.ctx, snap); err != nil {
			slog.Warn("map surface render failed", "session_id", s.id, "version", snap.Version, "error", err)
		}
	}
	for _, fn := range observers {
		fn(snap)
	}
}
