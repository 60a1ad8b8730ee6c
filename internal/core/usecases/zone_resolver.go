package usecases

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
	"github.com/greenhouse-ops/zonefix/internal/core/ports"
	"github.com/greenhouse-ops/zonefix/internal/pkg/geospatial"
	"github.com/greenhouse-ops/zonefix/internal/pkg/logging"
)

// ConfidenceStep maps fixes within MaxRatio×accuracy of a zone to Confidence.
type ConfidenceStep struct {
	MaxRatio   float64
	Confidence float64
}

// ConfidencePolicy turns a distance and sensor accuracy into a confidence
// score. Steps are checked in order; the floor applies past the last step.
// The thresholds are empirical and tunable.
type ConfidencePolicy struct {
	InBuffer         []ConfidenceStep
	InBufferFloor    float64
	OutOfBuffer      []ConfidenceStep
	OutOfBufferFloor float64
}

// DefaultConfidencePolicy returns the field-calibrated thresholds.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{
		InBuffer: []ConfidenceStep{
			{MaxRatio: 0.3, Confidence: 1.0},
			{MaxRatio: 0.6, Confidence: 0.9},
			{MaxRatio: 1.0, Confidence: 0.8},
		},
		InBufferFloor: 0.7,
		OutOfBuffer: []ConfidenceStep{
			{MaxRatio: 1.5, Confidence: 0.5},
			{MaxRatio: 2.0, Confidence: 0.3},
		},
		OutOfBufferFloor: 0.1,
	}
}

func (p ConfidencePolicy) score(steps []ConfidenceStep, floor, distance, accuracy float64) float64 {
	for _, s := range steps {
		if distance <= accuracy*s.MaxRatio {
			return s.Confidence
		}
	}
	return floor
}

// ResolverOptions configures a ZoneResolver. Zero values fall back to the
// defaults in DefaultResolverOptions.
type ResolverOptions struct {
	DefaultAccuracy float64
	MinBuffer       float64
	MaxBuffer       float64
	Policy          ConfidencePolicy
	Projector       ports.Projector
}

// DefaultResolverOptions returns a 15 m default accuracy, a 3 to 50 m buffer
// clamp, the default confidence policy and the UTM projector.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		DefaultAccuracy: 15.0,
		MinBuffer:       3.0,
		MaxBuffer:       50.0,
		Policy:          DefaultConfidencePolicy(),
		Projector:       geospatial.NewUTMProjector(),
	}
}

// ZoneResolver matches a GPS fix to the zone the scout is standing in. It
// holds only immutable configuration and is safe for concurrent use.
type ZoneResolver struct {
	opts ResolverOptions
}

// NewZoneResolver creates a ZoneResolver.
func NewZoneResolver(opts ResolverOptions) *ZoneResolver {
	def := DefaultResolverOptions()
	if opts.DefaultAccuracy <= 0 {
		opts.DefaultAccuracy = def.DefaultAccuracy
	}
	if opts.MinBuffer <= 0 {
		opts.MinBuffer = def.MinBuffer
	}
	if opts.MaxBuffer < opts.MinBuffer {
		opts.MaxBuffer = def.MaxBuffer
	}
	if len(opts.Policy.InBuffer) == 0 && len(opts.Policy.OutOfBuffer) == 0 {
		opts.Policy = def.Policy
	}
	if opts.Projector == nil {
		opts.Projector = def.Projector
	}
	return &ZoneResolver{opts: opts}
}

// BufferFor returns the containment radius used for a reported accuracy.
func (r *ZoneResolver) BufferFor(accuracy float64) float64 {
	accuracy = r.effectiveAccuracy(accuracy)
	return max(r.opts.MinBuffer, min(accuracy, r.opts.MaxBuffer))
}

func (r *ZoneResolver) effectiveAccuracy(accuracy float64) float64 {
	if accuracy <= 0 {
		return r.opts.DefaultAccuracy
	}
	return accuracy
}

type zoneMatch struct {
	id       string
	distance float64
}

// Resolve picks the best zone for fix among candidates.
//
// Zones whose buffer contains the fix always outrank zones that do not; within
// each tier the smallest distance wins and ties go to the earlier candidate.
// Only an out-of-range fix is an error. Candidates without an ID or with
// malformed or unprojectable geometry are skipped, and an empty or unmatched candidate set yields a result with no
// zone.
func (r *ZoneResolver) Resolve(ctx context.Context, fix domain.GpsFix, candidates []domain.ZoneGeometry) (domain.ResolutionResult, error) {
	if err := fix.Validate(); err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("resolve zone (%f, %f): %w", fix.Latitude, fix.Longitude, err)
	}
	log := logging.FromContext(ctx)

	accuracy := r.effectiveAccuracy(fix.AccuracyMeters)
	buffer := r.BufferFor(accuracy)
	res := domain.ResolutionResult{
		Tier:           domain.TierNone,
		AccuracyMeters: accuracy,
		BufferMeters:   buffer,
		Candidates:     len(candidates),
	}

	if len(candidates) == 0 {
		res.Message = "no candidates"
		return res, nil
	}

	// One frame per call so every distance below is comparable.
	frame := r.opts.Projector.Frame(fix.Latitude, fix.Longitude)
	res.Projection = frame.ID()
	origin, err := frame.Point(orb.Point{fix.Longitude, fix.Latitude})
	if err != nil {
		log.Warn("fix projection failed", "frame", frame.ID(), "error", err)
		res.Message = "fix could not be projected: " + err.Error()
		return res, nil
	}

	var in, out *zoneMatch
	for _, c := range candidates {
		// An empty ZoneID means "no zone", so such a record can never win.
		if c.ID == "" {
			res.Skipped++
			log.Debug("skipping zone without id", "bed", c.Bed)
			continue
		}
		line, err := c.UsableLine()
		if err != nil {
			res.Skipped++
			log.Debug("skipping zone", "zone", c.ID, "error", err)
			continue
		}
		planarLine, err := frame.LineString(line)
		if err != nil {
			res.Skipped++
			log.Debug("skipping zone", "zone", c.ID, "frame", frame.ID(), "error", err)
			continue
		}

		distance := geospatial.DistanceToLine(planarLine, origin)

		// The buffer outline is inscribed in the true buffer, so anything
		// farther than the radius is outside it.
		contained := distance <= buffer &&
			geospatial.BufferContains(geospatial.LineBuffer(planarLine, buffer), origin)

		if contained {
			if in == nil || distance < in.distance {
				in = &zoneMatch{id: c.ID, distance: distance}
			}
			continue
		}
		if in != nil {
			continue
		}
		if out == nil || distance < out.distance {
			out = &zoneMatch{id: c.ID, distance: distance}
		}
	}

	p := r.opts.Policy
	switch {
	case in != nil:
		res.ZoneID = in.id
		res.DistanceMeters = in.distance
		res.Tier = domain.TierInBuffer
		res.Confidence = p.score(p.InBuffer, p.InBufferFloor, in.distance, accuracy)
	case out != nil:
		res.ZoneID = out.id
		res.DistanceMeters = out.distance
		res.Tier = domain.TierOutOfBuffer
		res.Confidence = p.score(p.OutOfBuffer, p.OutOfBufferFloor, out.distance, accuracy)
	default:
		res.Message = fmt.Sprintf("no zone found within range (accuracy: %.1fm)", accuracy)
	}
	return res, nil
}
