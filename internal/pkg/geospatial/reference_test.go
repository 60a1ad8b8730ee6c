package geospatial

import (
	"math"

	"github.com/paulmach/orb"
)

const earthRadiusKm = 6371.0

// haversine is the great-circle distance in meters between two points, used
// as ground truth for the planar frames.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000
}

// haversineToLine densifies ls to stepMeters and returns the smallest
// great-circle distance from p to any sample.
func haversineToLine(p orb.Point, ls orb.LineString, stepMeters float64) float64 {
	best := math.Inf(1)
	for i := 0; i+1 < len(ls); i++ {
		a, b := ls[i], ls[i+1]
		steps := max(int(math.Ceil(haversine(a[1], a[0], b[1], b[0])/stepMeters)), 1)
		for s := 0; s <= steps; s++ {
			f := float64(s) / float64(steps)
			if d := haversine(p[1], p[0], a[1]+(b[1]-a[1])*f, a[0]+(b[0]-a[0])*f); d < best {
				best = d
			}
		}
	}
	return best
}
