package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
)

var sessionCfg = usecases.SessionConfig{DefaultRadiusKm: 5, MinRadiusKm: 0.1, MaxRadiusKm: 100}

// recorder collects published snapshots.
type recorder struct {
	mu    sync.Mutex
	snaps []domain.MapSnapshot
}

func (r *recorder) observe(s domain.MapSnapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []domain.MapSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.MapSnapshot(nil), r.snaps...)
}

// Render implements ports.MapSurface.
func (r *recorder) Render(_ context.Context, s domain.MapSnapshot) error {
	r.observe(s)
	return nil
}

type failingSurface struct{}

func (failingSurface) Render(context.Context, domain.MapSnapshot) error {
	return errors.New("tile server down")
}

type recordingHandler struct {
	mu   sync.Mutex
	sels []domain.SpotSelection
	err  error
}

func (h *recordingHandler) SpotSelected(_ context.Context, sel domain.SpotSelection) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sels = append(h.sels, sel)
	return h.err
}

func newTestSession(t *testing.T, opts ...usecases.SessionOption) *usecases.Session {
	t.Helper()
	s := usecases.NewSession("s1", twoCities(), newLocator(time.Second), sessionCfg, opts...)
	t.Cleanup(s.Close)
	return s
}

func awaitReady(t *testing.T, s *usecases.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.AwaitReady(ctx); err != nil {
		t.Fatalf("session not ready: %v", err)
	}
}

func TestSession_InitialState(t *testing.T) {
	s := newTestSession(t)
	snap := s.Snapshot()

	if snap.State != domain.StateUninitialized {
		t.Errorf("expected uninitialized, got %s", snap.State)
	}
	if len(snap.Nearby) != 0 || snap.UserLocation != nil {
		t.Errorf("expected no nearby spots before a location, got %+v", snap)
	}
	if len(snap.Markers) != 2 {
		t.Errorf("expected a marker per spot, got %d", len(snap.Markers))
	}
	if snap.RadiusKm != 5 {
		t.Errorf("expected default radius, got %v", snap.RadiusKm)
	}

	items, filtered := s.List()
	if filtered || len(items) != 2 {
		t.Errorf("expected the unfiltered catalog, got %v filtered=%v", ids(items), filtered)
	}
}

func TestSession_StartToReady(t *testing.T) {
	rec := &recorder{}
	s := newTestSession(t, usecases.WithSurface(rec))

	release := make(chan struct{})
	if !s.Start(blockingSource(release, casablanca)) {
		t.Fatal("Start should succeed once")
	}
	if s.Start(pointSource(rabat)) {
		t.Error("second Start must be rejected")
	}
	if got := s.Snapshot().State; got != domain.StateAcquiringLocation {
		t.Fatalf("expected acquiring_location, got %s", got)
	}

	close(release)
	awaitReady(t, s)

	snap := s.Snapshot()
	if snap.State != domain.StateReady {
		t.Fatalf("expected ready, got %s", snap.State)
	}
	if got := ids(snap.Nearby); len(got) != 1 || got[0] != 1 {
		t.Errorf("expected [1] nearby, got %v", got)
	}
	if !snap.Recenter || snap.Location.Source != domain.SourcePlatform {
		t.Errorf("expected in-region platform fix to recenter, got %+v", snap.Location)
	}
	if snap.FitBounds == nil {
		t.Error("expected fit bounds once spots are nearby")
	}

	published := rec.all()
	if len(published) < 2 || published[len(published)-1].State != domain.StateReady {
		t.Errorf("surface should see the acquiring and ready snapshots, got %d", len(published))
	}

	items, filtered := s.List()
	if !filtered || len(items) != 1 {
		t.Errorf("expected filtered list of 1, got %v", ids(items))
	}
}

func TestSession_RadiusChangeRecomputes(t *testing.T) {
	s := newTestSession(t)
	s.Start(pointSource(casablanca))
	awaitReady(t, s)

	if got := s.SetRadius(100); got != 100 {
		t.Fatalf("expected 100, got %v", got)
	}
	snap := s.Snapshot()
	if got := ids(snap.Nearby); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2], got %v", got)
	}
	for _, m := range snap.Markers {
		if m.Emphasis != domain.EmphasisNear {
			t.Errorf("marker %d should be near at 100 km", m.SpotID)
		}
	}
	if snap.Summary != (domain.NearbySummary{Nearby: 2, Available: 1, RadiusKm: 100}) {
		t.Errorf("unexpected summary %+v", snap.Summary)
	}

	if got := s.SetRadius(1000); got != 100 {
		t.Errorf("expected clamp to 100, got %v", got)
	}
	if got := s.SetRadius(0); got != 0.1 {
		t.Errorf("expected clamp to 0.1, got %v", got)
	}
}

func TestSession_VersionsOnlyMoveForward(t *testing.T) {
	s := newTestSession(t)
	rec := &recorder{}
	s.Subscribe(rec.observe)

	s.Start(pointSource(casablanca))
	awaitReady(t, s)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SetRadius(float64(1 + i%10))
		}()
	}
	wg.Wait()

	snaps := rec.all()
	if len(snaps) == 0 {
		t.Fatal("expected published snapshots")
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i].Version <= snaps[i-1].Version {
			t.Fatalf("version went backwards: %d after %d", snaps[i].Version, snaps[i-1].Version)
		}
	}

	// The last published view is consistent with the settled state.
	last := snaps[len(snaps)-1]
	cur := s.Snapshot()
	if last.Version != cur.Version || last.RadiusKm != cur.RadiusKm {
		t.Errorf("last published v%d r=%v, settled v%d r=%v", last.Version, last.RadiusKm, cur.Version, cur.RadiusKm)
	}
}

func TestSession_SameRadiusDoesNotPublish(t *testing.T) {
	s := newTestSession(t)
	rec := &recorder{}
	s.Subscribe(rec.observe)

	s.SetRadius(5)
	if n := len(rec.all()); n != 0 {
		t.Errorf("unchanged radius published %d snapshots", n)
	}
}

func TestSession_SetSpots(t *testing.T) {
	s := newTestSession(t)
	s.Start(pointSource(casablanca))
	awaitReady(t, s)

	s.SetSpots([]domain.ParkingSpot{
		{ID: 8, Location: casablanca, Available: 3, Total: 10},
		{ID: 9, Location: casablanca, Available: 4, Total: 10},
	})

	snap := s.Snapshot()
	if got := ids(snap.Nearby); len(got) != 2 || got[0] != 8 || got[1] != 9 {
		t.Errorf("expected [8 9], got %v", got)
	}
	if len(snap.Markers) != 2 || snap.Markers[0].Tier != domain.TierLimited {
		t.Errorf("markers not rebuilt: %+v", snap.Markers)
	}
}

func TestSession_RecenterWhilePendingIsNoop(t *testing.T) {
	s := newTestSession(t)
	release := make(chan struct{})
	s.Start(blockingSource(release, casablanca))

	if s.Recenter(pointSource(rabat)) {
		t.Error("recenter during acquisition must be a no-op")
	}

	close(release)
	awaitReady(t, s)
	if got := *s.Snapshot().UserLocation; got != casablanca {
		t.Errorf("expected the first acquisition to win, got %+v", got)
	}

	if !s.Recenter(pointSource(rabat)) {
		t.Fatal("recenter after settling should start")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if loc := s.Snapshot().UserLocation; loc != nil && *loc == rabat {
			if s.Snapshot().State != domain.StateReady {
				t.Error("recenter must not leave the ready state")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("recenter did not settle")
}

func TestSession_RecenterUnstartedStarts(t *testing.T) {
	s := newTestSession(t)
	if !s.Recenter(pointSource(rabat)) {
		t.Fatal("recenter on an unstarted session should start it")
	}
	awaitReady(t, s)
}

func TestSession_CloseDiscardsPendingAcquisition(t *testing.T) {
	rec := &recorder{}
	s := usecases.NewSession("s2", twoCities(), newLocator(0), sessionCfg)
	s.Subscribe(rec.observe)

	release := make(chan struct{})
	s.Start(blockingSource(release, rabat))
	before := len(rec.all())

	s.Close()
	close(release)
	time.Sleep(20 * time.Millisecond)

	if after := len(rec.all()); after != before {
		t.Errorf("closed session published %d more snapshots", after-before)
	}
	if s.Snapshot().State == domain.StateReady {
		t.Error("closed session must not reach ready")
	}
}

func TestSession_SurfaceFailureIsContained(t *testing.T) {
	s := newTestSession(t, usecases.WithSurface(failingSurface{}))
	s.Start(pointSource(casablanca))
	awaitReady(t, s)

	if got := ids(s.Snapshot().Nearby); len(got) != 1 {
		t.Errorf("render failure must not affect the nearby result, got %v", got)
	}
}

func TestSession_Select(t *testing.T) {
	h := &recordingHandler{}
	s := newTestSession(t, usecases.WithSelectionHandler(h))
	s.Start(pointSource(casablanca))
	awaitReady(t, s)

	ok, err := s.Select(context.Background(), 999)
	if ok || err != nil {
		t.Errorf("unknown id should be a silent no-op, got %v, %v", ok, err)
	}
	if len(h.sels) != 0 {
		t.Fatal("handler must not be called for unknown ids")
	}

	ok, err = s.Select(context.Background(), 2)
	if !ok || err != nil {
		t.Fatalf("expected full spot to be selectable, got %v, %v", ok, err)
	}
	if len(h.sels) != 1 {
		t.Fatalf("expected one selection, got %d", len(h.sels))
	}
	sel := h.sels[0]
	if sel.SessionID != "s1" || sel.Spot.ID != 2 || sel.Nearby {
		t.Errorf("unexpected selection %+v", sel)
	}

	ok, _ = s.Select(context.Background(), 1)
	if !ok || !h.sels[1].Nearby {
		t.Error("spot 1 should be selected as nearby")
	}
}

func TestSession_SelectHandlerError(t *testing.T) {
	h := &recordingHandler{err: errors.New("booking down")}
	s := newTestSession(t, usecases.WithSelectionHandler(h))

	ok, err := s.Select(context.Background(), 1)
	if !ok || err == nil {
		t.Errorf("expected resolved selection with handler error, got %v, %v", ok, err)
	}
}

func TestSession_Unsubscribe(t *testing.T) {
	s := newTestSession(t)
	rec := &recorder{}
	unsubscribe := s.Subscribe(rec.observe)

	s.SetRadius(10)
	unsubscribe()
	s.SetRadius(20)

	if n := len(rec.all()); n != 1 {
		t.Errorf("expected 1 snapshot before unsubscribe, got %d", n)
	}
}
