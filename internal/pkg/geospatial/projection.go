package geospatial

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
)

// WGS84 ellipsoid and UTM grid constants.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563

	utmScale         = 0.9996
	utmFalseEasting  = 500000.0
	utmFalseNorthing = 10000000.0 // southern hemisphere only

	// Beyond this offset from the central meridian the series loses accuracy
	// and the frame is refused rather than returning distorted meters.
	maxMeridianOffset = 30.0
)

// Krüger series coefficients, fourth order in the third flattening n.
var (
	tmEcc   float64
	tmRect  float64
	tmAlpha [4]float64
)

func init() {
	n := wgs84F / (2 - wgs84F)
	n2, n3, n4 := n*n, n*n*n, n*n*n*n

	tmEcc = math.Sqrt(wgs84F * (2 - wgs84F))
	tmRect = wgs84A / (1 + n) * (1 + n2/4 + n4/64)
	tmAlpha = [4]float64{
		n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180,
		13*n2/48 - 3*n3/5 + 557*n4/1440,
		61*n3/240 - 103*n4/140,
		49561 * n4 / 161280,
	}
}

// Projection is a UTM-style transverse Mercator frame: a 6° longitude band
// and a hemisphere. Planar coordinates are meters.
type Projection struct {
	Zone  int  `json:"zone"`
	South bool `json:"south"`
}

// SelectProjection picks the frame for a WGS84 location. Any two points in the
// same 6° band and hemisphere get the same frame.
func SelectProjection(lat, lon float64) Projection {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	return Projection{Zone: zone, South: lat < 0}
}

// ID returns the EPSG-style identifier of the frame (326zz north, 327zz south).
func (p Projection) ID() string {
	prefix := 326
	if p.South {
		prefix = 327
	}
	return fmt.Sprintf("EPSG:%d%02d", prefix, p.Zone)
}

// CentralMeridian is the longitude, in degrees, where the frame's scale is k0.
func (p Projection) CentralMeridian() float64 {
	return float64(p.Zone-1)*6 - 180 + 3
}

// Forward projects a WGS84 (lon, lat) pair into the frame.
func (p Projection) Forward(lon, lat float64) (x, y float64, err error) {
	dLon, err := p.meridianOffset(lon, lat)
	if err != nil {
		return 0, 0, err
	}
	x, y = p.forward(lat, dLon)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, fmt.Errorf("%w: (%f, %f) in %s", domain.ErrProjectionFailed, lon, lat, p.ID())
	}
	return x, y, nil
}

// Point projects a single (lon, lat) point.
func (p Projection) Point(pt orb.Point) (orb.Point, error) {
	x, y, err := p.Forward(pt[0], pt[1])
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{x, y}, nil
}

// LineString projects every vertex of a (lon, lat) polyline. The input is not
// modified. Vertex order is kept, so no self-intersections are introduced.
func (p Projection) LineString(ls orb.LineString) (orb.LineString, error) {
	for _, pt := range ls {
		if _, err := p.meridianOffset(pt[0], pt[1]); err != nil {
			return nil, err
		}
	}

	out := project.LineString(ls.Clone(), p.planar)
	for _, pt := range out {
		if math.IsNaN(pt[0]) || math.IsNaN(pt[1]) || math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
			return nil, fmt.Errorf("%w: non-finite vertex in %s", domain.ErrProjectionFailed, p.ID())
		}
	}
	return out, nil
}

// planar is the orb.Projection form of the forward transform. Inputs must
// have passed meridianOffset.
func (p Projection) planar(pt orb.Point) orb.Point {
	x, y := p.forward(pt[1], normalizeLon(pt[0]-p.CentralMeridian()))
	return orb.Point{x, y}
}

func (p Projection) meridianOffset(lon, lat float64) (float64, error) {
	if math.IsNaN(lon) || math.IsNaN(lat) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, fmt.Errorf("%w: coordinate (%f, %f) out of range", domain.ErrProjectionFailed, lon, lat)
	}
	dLon := normalizeLon(lon - p.CentralMeridian())
	if math.Abs(dLon) > maxMeridianOffset {
		return 0, fmt.Errorf("%w: longitude %f is %.1f° from %s central meridian",
			domain.ErrProjectionFailed, lon, dLon, p.ID())
	}
	return dLon, nil
}

func (p Projection) forward(latDeg, dLonDeg float64) (x, y float64) {
	phi := toRad(latDeg)
	lambda := toRad(dLonDeg)

	sinPhi := math.Sin(phi)
	t := math.Sinh(math.Atanh(sinPhi) - tmEcc*math.Atanh(tmEcc*sinPhi))
	xiP := math.Atan2(t, math.Cos(lambda))
	etaP := math.Atanh(math.Sin(lambda) / math.Sqrt(1+t*t))

	xi, eta := xiP, etaP
	for j, a := range tmAlpha {
		k := 2 * float64(j+1)
		xi += a * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += a * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	x = utmFalseEasting + utmScale*tmRect*eta
	y = utmScale * tmRect * xi
	if p.South {
		y += utmFalseNorthing
	}
	return x, y
}

func normalizeLon(d float64) float64 {
	for d >= 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return d
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
