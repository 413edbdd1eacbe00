package http

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/parkfinder/internal/adapters/tiles"
	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
)

// NearbyResponse is the stateless nearby query result.
type NearbyResponse struct {
	Center   domain.GeoPoint        `json:"center"`
	RadiusKm float64                `json:"radius_km"`
	Spots    []domain.AnnotatedSpot `json:"spots"`
	Summary  domain.NearbySummary   `json:"summary"`
}

// MarkersResponse is the marker set for a reference point.
type MarkersResponse struct {
	Center    *domain.GeoPoint     `json:"center,omitempty"`
	RadiusKm  float64              `json:"radius_km"`
	Markers   []domain.MarkerState `json:"markers"`
	Summary   domain.NearbySummary `json:"summary"`
	FitBounds *domain.Bounds       `json:"fit_bounds,omitempty"`
}

// SearchConfigHandler returns the radius control policy and default center.
func SearchConfigHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Search)
	}
}

// ListSpotsHandler returns the catalog with offset/limit pagination.
func ListSpotsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		spots, err := deps.Spots.List(c.UserContext())
		if err != nil {
			return errInternal(c, err.Error())
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 100
		}

		total := len(spots)
		if offset >= total {
			spots = []domain.ParkingSpot{}
		} else {
			spots = spots[offset:min(offset+limit, total)]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: spots, Pagination: pg})
	}
}

// GetSpotHandler returns a single spot by id.
func GetSpotHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return errBadRequest(c, "spot id must be an integer")
		}
		spot, err := deps.Spots.GetByID(c.UserContext(), id)
		if errors.Is(err, domain.ErrSpotNotFound) {
			return errNotFound(c, "spot not found")
		}
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(spot)
	}
}

// NearbySpotsHandler returns spots within radius km of lat/lon, closest first.
func NearbySpotsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		center, ok, err := pointQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if !ok {
			return errBadRequest(c, "lat and lon are required")
		}
		radius, err := radiusQuery(c, deps.Search)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		limit := c.QueryInt("limit", 50)
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		filter, err := filterQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		spots, err := deps.Spots.FindNearby(c.UserContext(), center, radius, limit, filter)
		if err != nil {
			return errInternal(c, err.Error())
		}

		return c.JSON(NearbyResponse{
			Center:   center,
			RadiusKm: radius,
			Spots:    spots,
			Summary:  usecases.Summarize(spots, radius),
		})
	}
}

// MarkersHandler returns one marker per catalog spot. lat/lon are optional;
// without them every marker is far.
func MarkersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		center, ok, err := pointQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		radius, err := radiusQuery(c, deps.Search)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		var from *domain.GeoPoint
		if ok {
			from = &center
		}
		markers, nearby, err := deps.Spots.Markers(c.UserContext(), from, radius)
		if err != nil {
			return errInternal(c, err.Error())
		}

		resp := MarkersResponse{
			Center:   from,
			RadiusKm: radius,
			Markers:  markers,
			Summary:  usecases.Summarize(nearby, radius),
		}
		if b, ok := usecases.FitNearby(nearby, from); ok {
			resp.FitBounds = &b
		}
		return c.JSON(resp)
	}
}

// TileHandler proxies a base-map raster tile.
func TileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		z, errZ := strconv.Atoi(c.Params("z"))
		x, errX := strconv.Atoi(c.Params("x"))
		y, errY := strconv.Atoi(strings.TrimSuffix(c.Params("y"), ".png"))
		if errZ != nil || errX != nil || errY != nil {
			return errBadRequest(c, "tile coordinates must be integers")
		}

		tile, err := deps.Tiles.Fetch(c.UserContext(), z, x, y)
		switch {
		case errors.Is(err, tiles.ErrInvalidTile):
			return errBadRequest(c, err.Error())
		case err != nil:
			return errBadGateway(c, "tile server unavailable")
		}

		c.Set(fiber.HeaderContentType, tile.ContentType)
		c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
		return c.Send(tile.Body)
	}
}

// pointQuery parses optional lat/lon query parameters. ok is false when both
// are absent; giving only one of them is an error.
func pointQuery(c *fiber.Ctx) (p domain.GeoPoint, ok bool, err error) {
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" && lonStr == "" {
		return p, false, nil
	}
	if latStr == "" || lonStr == "" {
		return p, false, errors.New("lat and lon must be given together")
	}
	if p.Lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return p, false, errors.New("lat must be a number")
	}
	if p.Lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return p, false, errors.New("lon must be a number")
	}
	if !p.Valid() {
		return p, false, errors.New("lat must be within [-90, 90] and lon within [-180, 180]")
	}
	return p, true, nil
}

// radiusQuery parses the radius query parameter in km, defaulting to the
// configured radius and rejecting values outside the allowed bounds.
func radiusQuery(c *fiber.Ctx, s SearchSettings) (float64, error) {
	raw := c.Query("radius")
	if raw == "" {
		return s.DefaultRadiusKm, nil
	}
	r, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(r) || r < s.MinRadiusKm || r > s.MaxRadiusKm {
		return 0, errors.New("radius must be between " +
			strconv.FormatFloat(s.MinRadiusKm, 'f', -1, 64) + " and " +
			strconv.FormatFloat(s.MaxRadiusKm, 'f', -1, 64) + " km")
	}
	return r, nil
}

// filterQuery parses the optional min_price, max_price, min_rating and
// features (comma separated) query parameters.
func filterQuery(c *fiber.Ctx) (domain.SpotFilter, error) {
	var f domain.SpotFilter
	nonNegative := func(name string) (float64, bool, error) {
		raw := c.Query(name)
		if raw == "" {
			return 0, false, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return 0, false, errors.New(name + " must be a non-negative number")
		}
		return v, true, nil
	}

	var err error
	if f.MinPrice, _, err = nonNegative("min_price"); err != nil {
		return f, err
	}
	maxPrice, ok, err := nonNegative("max_price")
	if err != nil {
		return f, err
	}
	if ok {
		if maxPrice < f.MinPrice {
			return f, errors.New("max_price must not be below min_price")
		}
		f.MaxPrice = &maxPrice
	}
	if f.MinRating, _, err = nonNegative("min_rating"); err != nil {
		return f, err
	}
	if f.MinRating > 5 {
		return f, errors.New("min_rating must be between 0 and 5")
	}
	for _, feat := range strings.Split(c.Query("features"), ",") {
		if feat = strings.TrimSpace(feat); feat != "" {
			f.Features = append(f.Features, feat)
		}
	}
	return f, nil
}
