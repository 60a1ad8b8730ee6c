package geospatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// QuarterSegments is how many straight edges approximate a quarter circle in
// buffer outlines.
const QuarterSegments = 16

// LineBuffer expands a planar polyline by radius on all sides. The result is
// the union of one capsule per segment, which is the round-join buffer of the
// whole line.
func LineBuffer(ls orb.LineString, radius float64) orb.MultiPolygon {
	if len(ls) == 1 {
		return orb.MultiPolygon{circle(ls[0], radius)}
	}
	mp := make(orb.MultiPolygon, 0, len(ls)-1)
	for i := 0; i+1 < len(ls); i++ {
		mp = append(mp, Capsule(ls[i], ls[i+1], radius))
	}
	return mp
}

// Capsule returns the stadium-shaped polygon of points within radius of the
// segment a-b, wound counter-clockwise.
func Capsule(a, b orb.Point, radius float64) orb.Polygon {
	dx, dy := b[0]-a[0], b[1]-a[1]
	if dx == 0 && dy == 0 {
		return circle(a, radius)
	}
	heading := math.Atan2(dy, dx)
	half := 2 * QuarterSegments

	ring := make(orb.Ring, 0, 2*(half+1)+1)
	// around b through the front, right side to left side
	for i := 0; i <= half; i++ {
		ang := heading - math.Pi/2 + math.Pi*float64(i)/float64(half)
		ring = append(ring, orb.Point{b[0] + radius*math.Cos(ang), b[1] + radius*math.Sin(ang)})
	}
	// around a through the back, left side to right side
	for i := 0; i <= half; i++ {
		ang := heading + math.Pi/2 + math.Pi*float64(i)/float64(half)
		ring = append(ring, orb.Point{a[0] + radius*math.Cos(ang), a[1] + radius*math.Sin(ang)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

func circle(c orb.Point, radius float64) orb.Polygon {
	n := 4 * QuarterSegments
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		ang := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, orb.Point{c[0] + radius*math.Cos(ang), c[1] + radius*math.Sin(ang)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// BufferContains reports whether p lies inside any part of the buffer.
func BufferContains(buf orb.MultiPolygon, p orb.Point) bool {
	return planar.MultiPolygonContains(buf, p)
}
