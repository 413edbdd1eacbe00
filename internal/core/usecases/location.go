package usecases

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/ports"
	"github.com/samirrijal/parkfinder/internal/pkg/metrics"
)

var tracer = otel.Tracer("github.com/samirrijal/parkfinder/internal/core/usecases")

var (
	// ErrPermissionDenied is returned by a source when the user refused location access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrLocationUnavailable is returned when the platform has no position to give.
	ErrLocationUnavailable = errors.New("location unavailable")
)

// LocationConfig configures a LocationProvider.
type LocationConfig struct {
	Fallback domain.GeoPoint
	Region   domain.Bounds
	// Timeout bounds a single acquisition. Zero waits as long as the source does.
	Timeout time.Duration
}

// LocationProvider turns a platform position (or its absence) into a fix.
type LocationProvider struct {
	cfg LocationConfig
	now func() time.Time
}

// NewLocationProvider creates a new LocationProvider.
func NewLocationProvider(cfg LocationConfig) *LocationProvider {
	return &LocationProvider{cfg: cfg, now: time.Now}
}

// Fallback returns the configured default point.
func (p *LocationProvider) Fallback() domain.GeoPoint {
	return p.cfg.Fallback
}

// Acquire asks source for the current position. It never fails: a nil source,
// a source error, an invalid point or a timeout all yield the fallback point.
// A valid point outside the region is still accepted; it only disables recentering.
func (p *LocationProvider) Acquire(ctx context.Context, source ports.LocationSource) domain.LocationFix {
	ctx, span := tracer.Start(ctx, "location.acquire")
	defer span.End()

	if source == nil {
		return p.fallback(ctx, "no_source", nil)
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	point, err := currentPosition(ctx, source)
	if err != nil {
		reason := "unavailable"
		switch {
		case errors.Is(err, ErrPermissionDenied):
			reason = "denied"
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		case errors.Is(err, context.Canceled):
			reason = "canceled"
		}
		span.SetAttributes(attribute.String("location.fallback_reason", reason))
		return p.fallback(ctx, reason, err)
	}
	if !point.Valid() {
		span.SetAttributes(attribute.String("location.fallback_reason", "invalid"))
		return p.fallback(ctx, "invalid", nil)
	}

	fix := domain.LocationFix{
		Point:      point,
		Source:     domain.SourcePlatform,
		InRegion:   p.cfg.Region.Contains(point),
		AcquiredAt: p.now(),
	}
	span.SetAttributes(attribute.Bool("location.in_region", fix.InRegion))
	metrics.LocationAcquisitions.WithLabelValues(string(domain.SourcePlatform), "ok").Inc()
	return fix
}

type positionResult struct {
	point domain.GeoPoint
	err   error
}

// currentPosition returns as soon as ctx is done, even when source ignores
// ctx; a late answer is then discarded.
func currentPosition(ctx context.Context, source ports.LocationSource) (domain.GeoPoint, error) {
	done := make(chan positionResult, 1)
	go func() {
		point, err := source.CurrentPosition(ctx)
		done <- positionResult{point, err}
	}()

	select {
	case r := <-done:
		return r.point, r.err
	case <-ctx.Done():
		return domain.GeoPoint{}, ctx.Err()
	}
}

func (p *LocationProvider) fallback(ctx context.Context, reason string, err error) domain.LocationFix {
	attrs := []any{"reason", reason}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	slog.WarnContext(ctx, "location unavailable, using fallback", attrs...)
	metrics.LocationAcquisitions.WithLabelValues(string(domain.SourceFallback), reason).Inc()

	return domain.LocationFix{
		Point:      p.cfg.Fallback,
		Source:     domain.SourceFallback,
		InRegion:   p.cfg.Region.Contains(p.cfg.Fallback),
		AcquiredAt: p.now(),
	}
}

// ReportedPosition is a LocationSource backed by what the client device sent.
type ReportedPosition struct {
	Point  *domain.GeoPoint
	Denied bool
}

// CurrentPosition implements ports.LocationSource.
func (r ReportedPosition) CurrentPosition(ctx context.Context) (domain.GeoPoint, error) {
	switch {
	case r.Denied:
		return domain.GeoPoint{}, ErrPermissionDenied
	case r.Point == nil:
		return domain.GeoPoint{}, ErrLocationUnavailable
	default:
		return *r.Point, nil
	}
}
