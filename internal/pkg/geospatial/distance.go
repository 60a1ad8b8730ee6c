package geospatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DistanceToLine is the shortest planar distance from p to any segment of ls.
// Both must already be in the same metric frame.
func DistanceToLine(ls orb.LineString, p orb.Point) float64 {
	return planar.DistanceFrom(ls, p)
}
