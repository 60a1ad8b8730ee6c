package geospatial

import "github.com/greenhouse-ops/zonefix/internal/core/ports"

// UTMProjector selects a UTM-style transverse Mercator frame by longitude band
// and hemisphere.
type UTMProjector struct{}

// NewUTMProjector creates a UTMProjector.
func NewUTMProjector() UTMProjector {
	return UTMProjector{}
}

// Frame implements ports.Projector.
func (UTMProjector) Frame(lat, lon float64) ports.PlanarFrame {
	return SelectProjection(lat, lon)
}
