package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
	"github.com/greenhouse-ops/zonefix/internal/core/ports"
	"github.com/greenhouse-ops/zonefix/internal/core/usecases"
)

// --- Helpers ---

// shift moves a point by meters north and east using a spherical
// approximation; good to well under 1% at these scales.
func shift(lat, lon, north, east float64) (float64, float64) {
	const m = 111320.0
	return lat + north/m, lon + east/(m*math.Cos(lat*math.Pi/180))
}

// eastWest builds a horizontal zone line centered on (lat, lon).
func eastWest(id string, lat, lon, halfLengthMeters float64) domain.ZoneGeometry {
	_, w := shift(lat, lon, 0, -halfLengthMeters)
	_, e := shift(lat, lon, 0, halfLengthMeters)
	return domain.ZoneGeometry{ID: id, Geometry: orb.LineString{{w, lat}, {e, lat}}}
}

// northSouth builds a vertical zone line centered on (lat, lon).
func northSouth(id string, lat, lon, halfLengthMeters float64) domain.ZoneGeometry {
	s, _ := shift(lat, lon, -halfLengthMeters, 0)
	n, _ := shift(lat, lon, halfLengthMeters, 0)
	return domain.ZoneGeometry{ID: id, Geometry: orb.LineString{{lon, s}, {lon, n}}}
}

func newResolver() *usecases.ZoneResolver {
	return usecases.NewZoneResolver(usecases.DefaultResolverOptions())
}

func mustResolve(t *testing.T, r *usecases.ZoneResolver, fix domain.GpsFix, zones []domain.ZoneGeometry) domain.ResolutionResult {
	t.Helper()
	res, err := r.Resolve(context.Background(), fix, zones)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

// --- Tests ---

func TestResolve_ConcreteScenario(t *testing.T) {
	fix := domain.GpsFix{Latitude: -1.0500, Longitude: 36.7000, AccuracyMeters: 10.0}
	zones := []domain.ZoneGeometry{
		{ID: "ZONE-A", Geometry: orb.LineString{{36.6995, -1.0500}, {36.7005, -1.0500}}},
	}

	res := mustResolve(t, newResolver(), fix, zones)

	if res.ZoneID != "ZONE-A" {
		t.Fatalf("expected ZONE-A, got %q (%s)", res.ZoneID, res.Message)
	}
	if res.Confidence < 0.7 {
		t.Errorf("expected confidence >= 0.7, got %v", res.Confidence)
	}
	if res.DistanceMeters >= res.BufferMeters {
		t.Errorf("expected distance %v < buffer %v", res.DistanceMeters, res.BufferMeters)
	}
	if res.BufferMeters != 10.0 {
		t.Errorf("expected buffer 10.0, got %v", res.BufferMeters)
	}
	if res.Tier != domain.TierInBuffer {
		t.Errorf("expected in-buffer tier, got %s", res.Tier)
	}
	if res.Projection != "EPSG:32737" {
		t.Errorf("expected EPSG:32737, got %s", res.Projection)
	}
}

func TestResolve_EmptyCandidates(t *testing.T) {
	fix := domain.GpsFix{Latitude: -1.05, Longitude: 36.7, AccuracyMeters: 5}

	for _, zones := range [][]domain.ZoneGeometry{nil, {}} {
		res := mustResolve(t, newResolver(), fix, zones)
		if res.Found() {
			t.Errorf("expected no zone, got %q", res.ZoneID)
		}
		if res.Confidence != 0 {
			t.Errorf("expected confidence 0, got %v", res.Confidence)
		}
		if res.Message != "no candidates" {
			t.Errorf("unexpected message %q", res.Message)
		}
	}
}

func TestResolve_SkipsMalformedGeometry(t *testing.T) {
	fix := domain.GpsFix{Latitude: -1.1005, Longitude: 36.7005, AccuracyMeters: 10}
	zones := []domain.ZoneGeometry{
		{ID: "Z1", Geometry: nil},
		{ID: "Z1b", Geometry: orb.LineString{{36.7005, -1.1005}}},
		{ID: "Z1c", Geometry: orb.LineString{{math.NaN(), -1.1005}, {36.7005, -1.1005}}},
		{ID: "Z2", Geometry: orb.LineString{{36.70, -1.10}, {36.701, -1.101}}},
	}

	res := mustResolve(t, newResolver(), fix, zones)

	if res.ZoneID != "Z2" {
		t.Fatalf("expected Z2, got %q", res.ZoneID)
	}
	if res.Skipped != 3 {
		t.Errorf("expected 3 skipped, got %d", res.Skipped)
	}
	if res.Candidates != 4 {
		t.Errorf("expected 4 candidates, got %d", res.Candidates)
	}
}

func TestResolve_AllMalformed(t *testing.T) {
	fix := domain.GpsFix{Latitude: -1.1, Longitude: 36.7, AccuracyMeters: 10}
	zones := []domain.ZoneGeometry{{ID: "Z1"}, {ID: "Z2", Geometry: orb.LineString{{36.7, -1.1}}}}

	res := mustResolve(t, newResolver(), fix, zones)
	if res.Found() || res.Confidence != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if res.Message != "no zone found within range (accuracy: 10.0m)" {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestResolve_InBufferOutranksRawCoordinateCloser(t *testing.T) {
	// At 60°N a degree of longitude is half a degree of latitude, so the zone
	// nearer in raw degrees is the farther one on the ground.
	lat, lon := 60.0, 24.0
	fix := domain.GpsFix{Latitude: lat, Longitude: lon, AccuracyMeters: 10}

	near := domain.ZoneGeometry{ID: "IN", Geometry: orb.LineString{{lon + 0.00015, lat - 0.0002}, {lon + 0.00015, lat + 0.0002}}}
	far := domain.ZoneGeometry{ID: "OUT", Geometry: orb.LineString{{lon - 0.0003, lat + 0.0001}, {lon + 0.0003, lat + 0.0001}}}

	for _, zones := range [][]domain.ZoneGeometry{{far, near}, {near, far}} {
		res := mustResolve(t, newResolver(), fix, zones)
		if res.ZoneID != "IN" {
			t.Fatalf("expected in-buffer zone to win, got %q (%+v)", res.ZoneID, res)
		}
		if res.Tier != domain.TierInBuffer {
			t.Errorf("expected in-buffer tier, got %s", res.Tier)
		}
	}
}

func TestResolve_OutOfBufferNearestWins(t *testing.T) {
	lat, lon := -1.05, 36.7
	fix := domain.GpsFix{Latitude: lat, Longitude: lon, AccuracyMeters: 10}

	aLat, _ := shift(lat, lon, 30, 0)
	bLat, _ := shift(lat, lon, 14, 0)
	zones := []domain.ZoneGeometry{
		eastWest("A", aLat, lon, 20),
		eastWest("B", bLat, lon, 20),
	}

	res := mustResolve(t, newResolver(), fix, zones)
	if res.ZoneID != "B" {
		t.Fatalf("expected B, got %q", res.ZoneID)
	}
	if res.Tier != domain.TierOutOfBuffer {
		t.Errorf("expected out-of-buffer tier, got %s", res.Tier)
	}
	if res.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %v", res.Confidence)
	}
}

func TestResolve_TieGoesToFirstCandidate(t *testing.T) {
	lat, lon := -1.05, 36.7
	fix := domain.GpsFix{Latitude: lat, Longitude: lon, AccuracyMeters: 10}
	zoneLat, _ := shift(lat, lon, 2, 0)

	a := eastWest("FIRST", zoneLat, lon, 20)
	b := eastWest("SECOND", zoneLat, lon, 20)

	res := mustResolve(t, newResolver(), fix, []domain.ZoneGeometry{a, b})
	if res.ZoneID != "FIRST" {
		t.Errorf("expected FIRST, got %q", res.ZoneID)
	}
}

func TestResolve_BufferClamp(t *testing.T) {
	lat, lon := -1.05, 36.7
	zones := []domain.ZoneGeometry{eastWest("Z", lat, lon, 20)}

	tests := []struct {
		accuracy float64
		buffer   float64
	}{
		{0.5, 3.0},
		{500, 50.0},
		{12, 12.0},
		{0, 15.0},
		{-4, 15.0},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("accuracy=%v", tc.accuracy), func(t *testing.T) {
			fix := domain.GpsFix{Latitude: lat, Longitude: lon, AccuracyMeters: tc.accuracy}
			res := mustResolve(t, newResolver(), fix, zones)
			if res.BufferMeters != tc.buffer {
				t.Errorf("expected buffer %v, got %v", tc.buffer, res.BufferMeters)
			}
		})
	}
}

func TestResolve_InBufferConfidenceSteps(t *testing.T) {
	// accuracy 2 m floors the buffer at 3 m, leaving room for the 0.7 step.
	lat, lon := -1.05, 36.7
	zones := []domain.ZoneGeometry{eastWest("Z", lat, lon, 20)}

	tests := []struct {
		north float64
		want  float64
	}{
		{0.0, 1.0},
		{0.4, 1.0},
		{1.0, 0.9},
		{1.8, 0.8},
		{2.5, 0.7},
	}

	prev := 1.0
	for _, tc := range tests {
		fLat, fLon := shift(lat, lon, tc.north, 0)
		res := mustResolve(t, newResolver(), domain.GpsFix{Latitude: fLat, Longitude: fLon, AccuracyMeters: 2}, zones)
		if res.Tier != domain.TierInBuffer {
			t.Fatalf("north=%v: expected in-buffer, got %s (distance %v)", tc.north, res.Tier, res.DistanceMeters)
		}
		if res.Confidence != tc.want {
			t.Errorf("north=%v: expected confidence %v, got %v (distance %v)", tc.north, tc.want, res.Confidence, res.DistanceMeters)
		}
		if res.Confidence > prev {
			t.Errorf("north=%v: confidence increased from %v to %v", tc.north, prev, res.Confidence)
		}
		prev = res.Confidence
	}
}

func TestResolve_OutOfBufferConfidenceSteps(t *testing.T) {
	lat, lon := -1.05, 36.7
	zones := []domain.ZoneGeometry{eastWest("Z", lat, lon, 60)}

	tests := []struct {
		north float64
		want  float64
	}{
		{12, 0.5},
		{18, 0.3},
		{30, 0.1},
	}
	for _, tc := range tests {
		fLat, fLon := shift(lat, lon, tc.north, 0)
		res := mustResolve(t, newResolver(), domain.GpsFix{Latitude: fLat, Longitude: fLon, AccuracyMeters: 10}, zones)
		if res.Tier != domain.TierOutOfBuffer {
			t.Fatalf("north=%v: expected out-of-buffer, got %s", tc.north, res.Tier)
		}
		if res.Confidence != tc.want {
			t.Errorf("north=%v: expected confidence %v, got %v", tc.north, tc.want, res.Confidence)
		}
	}
}

func TestResolve_MultiSegmentLine(t *testing.T) {
	lat, lon := -1.05, 36.7
	// L-shaped row: east 40 m, then north 40 m.
	_, cornerLon := shift(lat, lon, 0, 40)
	topLat, _ := shift(lat, lon, 40, 0)
	zone := domain.ZoneGeometry{ID: "L", Geometry: orb.LineString{{lon, lat}, {cornerLon, lat}, {cornerLon, topLat}}}

	// 3 m west of the vertical leg, 20 m up.
	fLat, fLon := shift(lat, cornerLon, 20, -3)
	res := mustResolve(t, newResolver(), domain.GpsFix{Latitude: fLat, Longitude: fLon, AccuracyMeters: 10}, []domain.ZoneGeometry{zone})

	if res.ZoneID != "L" || res.Tier != domain.TierInBuffer {
		t.Fatalf("expected in-buffer L, got %+v", res)
	}
	if math.Abs(res.DistanceMeters-3) > 0.1 {
		t.Errorf("expected ~3 m, got %v", res.DistanceMeters)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	lat, lon := -1.05, 36.7
	fix := domain.GpsFix{Latitude: lat, Longitude: lon, AccuracyMeters: 8}
	aLat, _ := shift(lat, lon, 3, 0)
	bLat, _ := shift(lat, lon, -5, 0)
	zones := []domain.ZoneGeometry{eastWest("A", aLat, lon, 10), eastWest("B", bLat, lon, 10), {ID: "bad"}}

	r := newResolver()
	first := mustResolve(t, r, fix, zones)
	for i := 0; i < 20; i++ {
		if got := mustResolve(t, r, fix, zones); got != first {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestResolve_InvalidFix(t *testing.T) {
	zones := []domain.ZoneGeometry{eastWest("Z", 0, 0, 10)}
	for _, fix := range []domain.GpsFix{
		{Latitude: 91, Longitude: 0},
		{Latitude: -90.5, Longitude: 0},
		{Latitude: 0, Longitude: 181},
		{Latitude: math.NaN(), Longitude: 0},
	} {
		_, err := newResolver().Resolve(context.Background(), fix, zones)
		if !errors.Is(err, domain.ErrInvalidFix) {
			t.Errorf("fix %+v: expected ErrInvalidFix, got %v", fix, err)
		}
	}
}

func TestResolve_SkipsZoneWithoutID(t *testing.T) {
	fix := domain.GpsFix{Latitude: -1.05, Longitude: 36.70, AccuracyMeters: 10}

	res := mustResolve(t, newResolver(), fix, []domain.ZoneGeometry{eastWest("", -1.05, 36.70, 20)})
	if res.Found() || res.Confidence != 0 || res.Tier != domain.TierNone {
		t.Fatalf("expected no zone, got %+v", res)
	}
	if res.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", res.Skipped)
	}

	// A named zone farther away still wins over the unnamed one on the fix.
	nLat, _ := shift(-1.05, 36.70, 12, 0)
	zones := []domain.ZoneGeometry{
		eastWest("", -1.05, 36.70, 20),
		eastWest("ZONE-N", nLat, 36.70, 20),
	}
	res = mustResolve(t, newResolver(), fix, zones)
	if res.ZoneID != "ZONE-N" || res.Tier != domain.TierOutOfBuffer {
		t.Errorf("expected ZONE-N out of buffer, got %+v", res)
	}
	if res.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", res.Skipped)
	}
}

func TestResolve_CandidateOutsideFrameIsSkipped(t *testing.T) {
	lat, lon := -1.05, 36.7
	fix := domain.GpsFix{Latitude: lat, Longitude: lon, AccuracyMeters: 10}
	zones := []domain.ZoneGeometry{
		{ID: "FAR", Geometry: orb.LineString{{-120, -1.05}, {-120.001, -1.05}}},
		eastWest("NEAR", lat, lon, 10),
	}

	res := mustResolve(t, newResolver(), fix, zones)
	if res.ZoneID != "NEAR" {
		t.Fatalf("expected NEAR, got %q", res.ZoneID)
	}
	if res.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", res.Skipped)
	}
}

// failingFrame refuses every projection.
type failingFrame struct{}

func (failingFrame) ID() string { return "FAIL" }
func (failingFrame) Point(orb.Point) (orb.Point, error) {
	return orb.Point{}, domain.ErrProjectionFailed
}
func (failingFrame) LineString(orb.LineString) (orb.LineString, error) {
	return nil, domain.ErrProjectionFailed
}

type failingProjector struct{}

func (failingProjector) Frame(lat, lon float64) ports.PlanarFrame { return failingFrame{} }

func TestResolve_FixProjectionFailureIsEmptyResult(t *testing.T) {
	opts := usecases.DefaultResolverOptions()
	opts.Projector = failingProjector{}
	r := usecases.NewZoneResolver(opts)

	res, err := r.Resolve(context.Background(), domain.GpsFix{Latitude: -1, Longitude: 36, AccuracyMeters: 5},
		[]domain.ZoneGeometry{eastWest("Z", -1, 36, 10)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Found() || res.Confidence != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	if res.Message == "" {
		t.Error("expected diagnostic message")
	}
}

// greatCircleToLine samples ls every stepMeters and returns the smallest
// great-circle distance from p.
func greatCircleToLine(p orb.Point, ls orb.LineString, stepMeters float64) float64 {
	best := math.Inf(1)
	for i := 0; i+1 < len(ls); i++ {
		a, b := ls[i], ls[i+1]
		steps := max(int(math.Ceil(geo.DistanceHaversine(a, b)/stepMeters)), 1)
		for s := 0; s <= steps; s++ {
			f := float64(s) / float64(steps)
			q := orb.Point{a[0] + (b[0]-a[0])*f, a[1] + (b[1]-a[1])*f}
			best = min(best, geo.DistanceHaversine(p, q))
		}
	}
	return best
}

func TestResolve_AcrossLongitudeBandBoundary(t *testing.T) {
	// Band 36 ends and band 37 starts at 36°E.
	lat := -1.05
	line := orb.LineString{{36.0, lat - 0.001}, {36.0, lat + 0.001}}
	zones := []domain.ZoneGeometry{{ID: "EDGE", Geometry: line}}

	west := domain.GpsFix{Latitude: lat, Longitude: 35.99998, AccuracyMeters: 10}
	east := domain.GpsFix{Latitude: lat, Longitude: 36.00002, AccuracyMeters: 10}

	rw := mustResolve(t, newResolver(), west, zones)
	re := mustResolve(t, newResolver(), east, zones)

	if rw.Projection == re.Projection {
		t.Fatalf("expected different frames, both %s", rw.Projection)
	}
	for _, tc := range []struct {
		fix domain.GpsFix
		res domain.ResolutionResult
	}{{west, rw}, {east, re}} {
		truth := greatCircleToLine(orb.Point{tc.fix.Longitude, tc.fix.Latitude}, line, 0.05)
		if math.Abs(tc.res.DistanceMeters-truth) > 0.5 {
			t.Errorf("%s: distance %v, ground truth %v", tc.res.Projection, tc.res.DistanceMeters, truth)
		}
		if tc.res.ZoneID != "EDGE" {
			t.Errorf("%s: expected EDGE, got %q", tc.res.Projection, tc.res.ZoneID)
		}
	}
	if math.Abs(rw.DistanceMeters-re.DistanceMeters) > 0.5 {
		t.Errorf("symmetric fixes differ too much: %v vs %v", rw.DistanceMeters, re.DistanceMeters)
	}
}

func TestResolve_AcrossEquator(t *testing.T) {
	line := orb.LineString{{36.699, -0.00001}, {36.701, -0.00001}}
	fix := domain.GpsFix{Latitude: 0.00001, Longitude: 36.7, AccuracyMeters: 5}

	res := mustResolve(t, newResolver(), fix, []domain.ZoneGeometry{{ID: "EQ", Geometry: line}})
	if res.Projection != "EPSG:32637" {
		t.Errorf("expected northern frame, got %s", res.Projection)
	}
	truth := greatCircleToLine(orb.Point{fix.Longitude, fix.Latitude}, line, 0.05)
	if math.Abs(res.DistanceMeters-truth) > 0.2 {
		t.Errorf("distance %v, ground truth %v", res.DistanceMeters, truth)
	}
}

func TestResolve_CustomPolicy(t *testing.T) {
	opts := usecases.DefaultResolverOptions()
	opts.Policy = usecases.ConfidencePolicy{
		InBuffer:         []usecases.ConfidenceStep{{MaxRatio: 0.1, Confidence: 0.95}},
		InBufferFloor:    0.6,
		OutOfBufferFloor: 0.05,
	}
	r := usecases.NewZoneResolver(opts)

	lat, lon := -1.05, 36.7
	fLat, fLon := shift(lat, lon, 4, 0)
	res := mustResolve(t, r, domain.GpsFix{Latitude: fLat, Longitude: fLon, AccuracyMeters: 10},
		[]domain.ZoneGeometry{eastWest("Z", lat, lon, 20)})
	if res.Confidence != 0.6 {
		t.Errorf("expected floor 0.6, got %v", res.Confidence)
	}
}
