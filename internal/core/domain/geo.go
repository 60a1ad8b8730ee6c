package domain

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ZoneGeometry is one candidate zone's shape: the (lon, lat) center-line of a
// planting row. Geometry is nil when the stored record has none or it could
// not be parsed.
type ZoneGeometry struct {
	ID       string         `json:"id"`
	Bed      string         `json:"bed,omitempty"`
	Geometry orb.LineString `json:"geometry,omitempty"`
}

// UsableLine returns the zone's valid vertices, or ErrMalformedGeometry when
// fewer than two remain.
func (z ZoneGeometry) UsableLine() (orb.LineString, error) {
	if len(z.Geometry) < 2 {
		return nil, ErrMalformedGeometry
	}
	line := make(orb.LineString, 0, len(z.Geometry))
	for _, p := range z.Geometry {
		if validLonLat(p) {
			line = append(line, p)
		}
	}
	if len(line) < 2 {
		return nil, ErrMalformedGeometry
	}
	return line, nil
}

func validLonLat(p orb.Point) bool {
	lon, lat := p[0], p[1]
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// ParseZoneGeoJSON extracts a zone center-line from stored GeoJSON text.
// A FeatureCollection contributes its first feature; a bare Feature or a
// LineString geometry object is also accepted.
func ParseZoneGeoJSON(raw string) (orb.LineString, error) {
	if raw == "" {
		return nil, ErrMalformedGeometry
	}
	data := []byte(raw)

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
	}

	var g orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
		}
		if len(fc.Features) == 0 {
			return nil, fmt.Errorf("%w: empty feature collection", ErrMalformedGeometry)
		}
		g = fc.Features[0].Geometry
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
		}
		g = f.Geometry
	default:
		geom, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
		}
		g = geom.Geometry()
	}

	line, ok := g.(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("%w: expected LineString", ErrMalformedGeometry)
	}
	if len(line) < 2 {
		return nil, fmt.Errorf("%w: %d vertices", ErrMalformedGeometry, len(line))
	}
	return line, nil
}

// ZoneGeometryFromRecord converts a stored zone into a resolver candidate.
// Parse failures leave Geometry nil so the resolver can skip the zone.
func ZoneGeometryFromRecord(z Zone) (ZoneGeometry, error) {
	zg := ZoneGeometry{ID: z.ID, Bed: z.Bed}
	line, err := ParseZoneGeoJSON(z.RawGeoJSON)
	if err != nil {
		return zg, err
	}
	zg.Geometry = line
	return zg, nil
}

// ZoneFilter scopes a geometry read. An empty Bed means all zones.
type ZoneFilter struct {
	Bed string
}

// All reports whether the filter spans every bed.
func (f ZoneFilter) All() bool {
	return f.Bed == ""
}

// Describe returns the scope suffix used in user-facing messages.
func (f ZoneFilter) Describe() string {
	if f.All() {
		return " (all beds)"
	}
	return " for bed: " + f.Bed
}
