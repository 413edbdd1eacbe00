package http

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/parkfinder/internal/adapters/render"
	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/ports"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
)

// PositionReport is what a client knows about its own position. All fields
// are optional: an empty report falls back to IP lookup or the default point.
type PositionReport struct {
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
	Denied bool     `json:"denied,omitempty"`
}

// SessionListResponse is the sidebar list of a session.
type SessionListResponse struct {
	Title    string                 `json:"title"`
	Filtered bool                   `json:"filtered"`
	RadiusKm float64                `json:"radius_km"`
	Spots    []domain.AnnotatedSpot `json:"spots"`
}

type radiusRequest struct {
	RadiusKm *float64 `json:"radius_km"`
}

type selectRequest struct {
	SpotID *int64 `json:"spot_id"`
}

// maxReadyWait bounds ?wait=true on session creation.
const maxReadyWait = 10 * time.Second

// CreateSessionHandler opens a map session and starts location acquisition.
// With ?wait=true the response is delayed until the first fix settled.
func CreateSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var report PositionReport
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&report); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}
		source, err := locationSource(c, deps, report)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		ctx := c.UserContext()
		sess, err := deps.Sessions.Create(ctx, source)
		if err != nil {
			return errInternal(c, err.Error())
		}

		if c.QueryBool("wait", false) {
			waitCtx, cancel := context.WithTimeout(ctx, maxReadyWait)
			err := sess.AwaitReady(waitCtx)
			cancel()
			if err != nil {
				LoggerFromCtx(ctx).Warn("session not ready before response", "session_id", sess.ID(), "error", err)
			}
		}

		c.Location("/v1/sessions/" + sess.ID())
		return c.Status(fiber.StatusCreated).JSON(sess.Snapshot())
	}
}

// GetSessionHandler returns the current settled view of a session.
func GetSessionHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.Session) error {
		return c.JSON(s.Snapshot())
	})
}

// SessionListHandler returns the sidebar list: nearby spots once a location
// is known, the whole catalog before.
func SessionListHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.Session) error {
		items, filtered := s.List()
		resp := SessionListResponse{
			Title:    "All Parking",
			Filtered: filtered,
			RadiusKm: s.Snapshot().RadiusKm,
			Spots:    items,
		}
		if filtered {
			resp.Title = "Nearby Parking"
		}
		return c.JSON(resp)
	})
}

// SessionGeoJSONHandler returns the rendered marker layer of a session.
func SessionGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.Session) error {
		c.Set(fiber.HeaderContentType, "application/geo+json")
		if deps.Surface != nil {
			if body, _, ok := deps.Surface.Latest(s.ID()); ok {
				return c.Send(body)
			}
		}
		return c.JSON(render.FeatureCollectionFor(s.Snapshot()), "application/geo+json")
	})
}

// SetRadiusHandler changes the search radius. Out-of-range values are clamped.
func SetRadiusHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.Session) error {
		var req radiusRequest
		if err := c.BodyParser(&req); err != nil || req.RadiusKm == nil {
			return errBadRequest(c, "radius_km is required")
		}
		s.SetRadius(*req.RadiusKm)
		return c.JSON(s.Snapshot())
	})
}

// RecenterHandler re-acquires the session location.
func RecenterHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.Session) error {
		var report PositionReport
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&report); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}
		source, err := locationSource(c, deps, report)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if !s.Recenter(source) {
			return errConflict(c, "location acquisition already in progress")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"session_id": s.ID(), "state": "acquiring"})
	})
}

// SelectSpotHandler activates a spot. Unknown ids are a no-op (204).
func SelectSpotHandler(deps *Dependencies) fiber.Handler {
	return withSession(deps, func(c *fiber.Ctx, s *usecases.Session) error {
		var req selectRequest
		if err := c.BodyParser(&req); err != nil || req.SpotID == nil {
			return errBadRequest(c, "spot_id is required")
		}

		selected, err := s.Select(c.UserContext(), *req.SpotID)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("spot handoff failed", "spot_id", *req.SpotID, "error", err)
			return errBadGateway(c, "booking handoff failed")
		}
		if !selected {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"session_id": s.ID(), "spot_id": *req.SpotID})
	})
}

// DeleteSessionHandler closes a session.
func DeleteSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Sessions.Delete(c.Params("id")); err != nil {
			return errNotFound(c, "session not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func withSession(deps *Dependencies, fn func(*fiber.Ctx, *usecases.Session) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if errors.Is(err, domain.ErrSessionNotFound) {
			return errNotFound(c, "session not found")
		}
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set(fiber.HeaderCacheControl, "no-store")
		return fn(c, s)
	}
}

// locationSource picks where a session gets its position from: the client's
// own report, its IP address, or nothing (default point).
func locationSource(c *fiber.Ctx, deps *Dependencies, r PositionReport) (ports.LocationSource, error) {
	switch {
	case r.Denied:
		return usecases.ReportedPosition{Denied: true}, nil
	case r.Lat != nil && r.Lon != nil:
		p := domain.GeoPoint{Lat: *r.Lat, Lon: *r.Lon}
		return usecases.ReportedPosition{Point: &p}, nil
	case r.Lat != nil || r.Lon != nil:
		return nil, errors.New("lat and lon must be given together")
	case deps.GeoIP != nil:
		// fiber reuses request buffers; the lookup runs after the handler returns.
		return deps.GeoIP.ForIP(strings.Clone(c.IP())), nil
	default:
		return nil, nil
	}
}
