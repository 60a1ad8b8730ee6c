package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to the zone and bed services.
// Field names follow the JSON tags of the domain types, which the default
// resolver matches.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	zoneType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Zone",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"bed":         &graphql.Field{Type: graphql.String},
			"raw_geojson": &graphql.Field{Type: graphql.String},
		},
	})

	bedType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bed",
		Fields: graphql.Fields{
			"name":  &graphql.Field{Type: graphql.String},
			"zones": &graphql.Field{Type: graphql.NewList(zoneType)},
		},
	})

	varietyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Variety",
		Fields: graphql.Fields{
			"variety": &graphql.Field{Type: graphql.String},
			"beds":    &graphql.Field{Type: graphql.NewList(bedType)},
		},
	})

	zoneSummaryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ZoneSummary",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.String},
			"bed":      &graphql.Field{Type: graphql.String},
			"vertices": &graphql.Field{Type: graphql.Int},
			"usable":   &graphql.Field{Type: graphql.Boolean},
		},
	})

	resultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ResolutionResult",
		Fields: graphql.Fields{
			"zone_id":         &graphql.Field{Type: graphql.String},
			"confidence":      &graphql.Field{Type: graphql.Float},
			"distance_meters": &graphql.Field{Type: graphql.Float},
			"buffer_meters":   &graphql.Field{Type: graphql.Float},
			"accuracy_meters": &graphql.Field{Type: graphql.Float},
			"tier": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r, ok := p.Source.(domain.ResolutionResult); ok {
						return string(r.Tier), nil
					}
					return nil, nil
				},
			},
			"projection": &graphql.Field{Type: graphql.String},
			"candidates": &graphql.Field{Type: graphql.Int},
			"skipped":    &graphql.Field{Type: graphql.Int},
			"message":    &graphql.Field{Type: graphql.String},
		},
	})

	detailsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ZoneDetails",
		Fields: graphql.Fields{
			"distance": &graphql.Field{Type: graphql.String},
			"buffer":   &graphql.Field{Type: graphql.String},
		},
	})

	resolutionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ScoutingResolution",
		Fields: graphql.Fields{
			"bed":                    &graphql.Field{Type: graphql.String},
			"result":                 &graphql.Field{Type: resultType},
			"requires_review":        &graphql.Field{Type: graphql.Boolean},
			"warning":                &graphql.Field{Type: graphql.String},
			"zone_detection_details": &graphql.Field{Type: detailsType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"beds": &graphql.Field{
				Type:        graphql.NewList(varietyType),
				Description: "Beds with mapped zones, grouped by variety",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Beds.ByVariety(p.Context)
				},
			},
			"zones": &graphql.Field{
				Type:        graphql.NewList(zoneSummaryType),
				Description: "Zone summaries, optionally for one bed",
				Args: graphql.FieldConfigArgument{
					"bed": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					bed, _ := p.Args["bed"].(string)
					return deps.Beds.Zones(p.Context, bed)
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"resolveZone": &graphql.Field{
				Type:        resolutionType,
				Description: "Resolve a GPS fix to the zone the scout is standing in",
				Args: graphql.FieldConfigArgument{
					"latitude":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"longitude": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"accuracy":  &graphql.ArgumentConfig{Type: graphql.Float},
					"bed":       &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					fix := domain.GpsFix{
						Latitude:  p.Args["latitude"].(float64),
						Longitude: p.Args["longitude"].(float64),
					}
					if acc, ok := p.Args["accuracy"].(float64); ok {
						fix.AccuracyMeters = acc
					}
					bed, _ := p.Args["bed"].(string)
					return deps.Zones.ResolveForFix(p.Context, bed, fix)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
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
		if req.Query == "" {
			return errBadRequest(c, "query is required")
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
