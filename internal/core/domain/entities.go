package domain

import (
	"math"
	"time"
)

// Bed is a physical planting row grouping used to scope candidate zones.
type Bed struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Greenhouse string    `json:"greenhouse,omitempty"`
	Variety    string    `json:"variety"`
	CreatedAt  time.Time `json:"created_at"`
}

// Zone is a stored zone record: a sub-region of a bed whose shape is kept as
// raw GeoJSON text.
type Zone struct {
	ID         string    `json:"id"`
	Bed        string    `json:"bed"`
	RawGeoJSON string    `json:"raw_geojson,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ZoneSummary describes a zone without its geometry payload.
type ZoneSummary struct {
	ID       string `json:"id"`
	Bed      string `json:"bed"`
	Vertices int    `json:"vertices"`
	Usable   bool   `json:"usable"`
}

// BedZones is a bed with the zones that carry geometry.
type BedZones struct {
	Name  string `json:"name"`
	Zones []Zone `json:"zones"`
}

// VarietyBeds groups beds by the crop variety planted in them.
type VarietyBeds struct {
	Variety string     `json:"variety"`
	Beds    []BedZones `json:"beds"`
}

// GpsFix is a single sensor reading. AccuracyMeters is the reported 1-sigma
// horizontal error and may be zero when the device did not report it.
type GpsFix struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy"`
}

// Validate rejects fixes that cannot describe a point on the globe.
func (f GpsFix) Validate() error {
	if math.IsNaN(f.Latitude) || f.Latitude < -90 || f.Latitude > 90 {
		return ErrInvalidFix
	}
	if math.IsNaN(f.Longitude) || f.Longitude < -180 || f.Longitude > 180 {
		return ErrInvalidFix
	}
	if math.IsNaN(f.AccuracyMeters) || math.IsInf(f.AccuracyMeters, 0) {
		return ErrInvalidFix
	}
	return nil
}

// ResolutionTier tells how the winning zone was picked.
type ResolutionTier string

const (
	TierNone        ResolutionTier = "none"
	TierInBuffer    ResolutionTier = "in_buffer"
	TierOutOfBuffer ResolutionTier = "out_of_buffer"
)

// ResolutionResult is the outcome of resolving one fix against a candidate set.
// An empty ZoneID means no zone was found.
type ResolutionResult struct {
	ZoneID         string         `json:"zone_id,omitempty"`
	Confidence     float64        `json:"confidence"`
	DistanceMeters float64        `json:"distance_meters"`
	BufferMeters   float64        `json:"buffer_meters"`
	AccuracyMeters float64        `json:"accuracy_meters"`
	Tier           ResolutionTier `json:"tier"`
	Projection     string         `json:"projection,omitempty"`
	Candidates     int            `json:"candidates"`
	Skipped        int            `json:"skipped"`
	Message        string         `json:"message,omitempty"`
}

// Found reports whether a zone was matched.
func (r ResolutionResult) Found() bool {
	return r.ZoneID != ""
}

// ScoutingResolution is a resolution enriched for the scouting workflow.
type ScoutingResolution struct {
	Bed            string           `json:"bed,omitempty"`
	Fix            GpsFix           `json:"fix"`
	Result         ResolutionResult `json:"result"`
	RequiresReview bool             `json:"requires_review"`
	Warning        string           `json:"warning,omitempty"`
	Details        ZoneDetails      `json:"zone_detection_details"`
	ResolvedAt     time.Time        `json:"resolved_at"`
}

// ZoneDetails carries the human-readable distance and buffer, in meters with
// one decimal.
type ZoneDetails struct {
	Distance string `json:"distance"`
	Buffer   string `json:"buffer"`
}

// FixSubmission is one fix queued for resolution, as carried on the bulk
// intake subject.
type FixSubmission struct {
	ID  string `json:"id"`
	Bed string `json:"bed,omitempty"`
	Fix GpsFix `json:"fix"`
}
