package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
)

func spotMap(s domain.ParkingSpot, distanceKm *float64) map[string]interface{} {
	m := map[string]interface{}{
		"id":             s.ID,
		"name":           s.Name,
		"address":        s.Address,
		"price_per_hour": s.PricePerHour,
		"rating":         s.Rating,
		"available":      s.Available,
		"total":          s.Total,
		"location":       map[string]interface{}{"lat": s.Location.Lat, "lon": s.Location.Lon},
		"features":       s.Features,
		"tier":           string(usecases.ClassifyTier(s.Available)),
	}
	if distanceKm != nil {
		m["distance_km"] = *distanceKm
	}
	return m
}

func markerMap(mk domain.MarkerState) map[string]interface{} {
	m := map[string]interface{}{
		"spot_id":     mk.SpotID,
		"title":       mk.Title,
		"position":    map[string]interface{}{"lat": mk.Position.Lat, "lon": mk.Position.Lon},
		"tier":        string(mk.Tier),
		"emphasis":    string(mk.Emphasis),
		"label_count": mk.LabelCount,
		"selectable":  mk.Selectable,
	}
	if mk.DistanceKm != nil {
		m["distance_km"] = *mk.DistanceKm
	}
	return m
}

// pointArgs reads optional lat/lon arguments.
func pointArgs(args map[string]interface{}) (*domain.GeoPoint, error) {
	lat, hasLat := args["lat"].(float64)
	lon, hasLon := args["lon"].(float64)
	if !hasLat && !hasLon {
		return nil, nil
	}
	if hasLat != hasLon {
		return nil, errors.New("lat and lon must be given together")
	}
	p := domain.GeoPoint{Lat: lat, Lon: lon}
	if !p.Valid() {
		return nil, errors.New("lat/lon out of range")
	}
	return &p, nil
}

func filterArgs(args map[string]interface{}) domain.SpotFilter {
	var f domain.SpotFilter
	f.MinPrice, _ = args["min_price"].(float64)
	f.MinRating, _ = args["min_rating"].(float64)
	if v, ok := args["max_price"].(float64); ok {
		f.MaxPrice = &v
	}
	if list, ok := args["features"].([]interface{}); ok {
		for _, item := range list {
			if feat, ok := item.(string); ok && feat != "" {
				f.Features = append(f.Features, feat)
			}
		}
	}
	return f
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	spotType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ParkingSpot",
		Fields: graphql.Fields{
			"id":             &graphql.Field{Type: graphql.Int},
			"name":           &graphql.Field{Type: graphql.String},
			"address":        &graphql.Field{Type: graphql.String},
			"price_per_hour": &graphql.Field{Type: graphql.Float},
			"rating":         &graphql.Field{Type: graphql.Float},
			"available":      &graphql.Field{Type: graphql.Int},
			"total":          &graphql.Field{Type: graphql.Int},
			"location":       &graphql.Field{Type: geoPointType},
			"features":       &graphql.Field{Type: graphql.NewList(graphql.String)},
			"tier":           &graphql.Field{Type: graphql.String},
			"distance_km":    &graphql.Field{Type: graphql.Float},
		},
	})

	markerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Marker",
		Fields: graphql.Fields{
			"spot_id":     &graphql.Field{Type: graphql.Int},
			"title":       &graphql.Field{Type: graphql.String},
			"position":    &graphql.Field{Type: geoPointType},
			"tier":        &graphql.Field{Type: graphql.String},
			"emphasis":    &graphql.Field{Type: graphql.String},
			"label_count": &graphql.Field{Type: graphql.Int},
			"distance_km": &graphql.Field{Type: graphql.Float},
			"selectable":  &graphql.Field{Type: graphql.Boolean},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"spots": &graphql.Field{
				Type:        graphql.NewList(spotType),
				Description: "List the parking catalog",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					spots, err := deps.Spots.List(p.Context)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(spots))
					for _, s := range spots {
						out = append(out, spotMap(s, nil))
					}
					return out, nil
				},
			},
			"spot": &graphql.Field{
				Type:        spotType,
				Description: "Get a parking spot by id",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					spot, err := deps.Spots.GetByID(p.Context, int64(p.Args["id"].(int)))
					if errors.Is(err, domain.ErrSpotNotFound) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return spotMap(*spot, nil), nil
				},
			},
			"nearbySpots": &graphql.Field{
				Type:        graphql.NewList(spotType),
				Description: "Spots within radius_km of a point, closest first",
				Args: graphql.FieldConfigArgument{
					"lat":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius_km": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: deps.Search.DefaultRadiusKm},
					"limit":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
					"min_price":  &graphql.ArgumentConfig{Type: graphql.Float},
					"max_price":  &graphql.ArgumentConfig{Type: graphql.Float},
					"min_rating": &graphql.ArgumentConfig{Type: graphql.Float},
					"features":   &graphql.ArgumentConfig{Type: graphql.NewList(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					from, err := pointArgs(p.Args)
					if err != nil {
						return nil, err
					}
					if from == nil {
						return nil, errors.New("lat and lon are required")
					}
					radius := usecases.ClampRadius(p.Args["radius_km"].(float64),
						deps.Search.DefaultRadiusKm, deps.Search.MinRadiusKm, deps.Search.MaxRadiusKm)
					nearby, err := deps.Spots.FindNearby(p.Context, *from, radius, p.Args["limit"].(int), filterArgs(p.Args))
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(nearby))
					for _, n := range nearby {
						d := n.DistanceKm
						out = append(out, spotMap(n.ParkingSpot, &d))
					}
					return out, nil
				},
			},
			"markers": &graphql.Field{
				Type:        graphql.NewList(markerType),
				Description: "One marker per spot; lat/lon are optional",
				Args: graphql.FieldConfigArgument{
					"lat":       &graphql.ArgumentConfig{Type: graphql.Float},
					"lon":       &graphql.ArgumentConfig{Type: graphql.Float},
					"radius_km": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: deps.Search.DefaultRadiusKm},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					from, err := pointArgs(p.Args)
					if err != nil {
						return nil, err
					}
					radius := usecases.ClampRadius(p.Args["radius_km"].(float64),
						deps.Search.DefaultRadiusKm, deps.Search.MinRadiusKm, deps.Search.MaxRadiusKm)
					markers, _, err := deps.Spots.Markers(p.Context, from, radius)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(markers))
					for _, m := range markers {
						out = append(out, markerMap(m))
					}
					return out, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
