package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
	"github.com/greenhouse-ops/zonefix/internal/core/ports"
	"github.com/greenhouse-ops/zonefix/internal/pkg/logging"
	"github.com/greenhouse-ops/zonefix/internal/pkg/metrics"
)

var tracer = otel.Tracer("github.com/greenhouse-ops/zonefix/internal/core/usecases")

// ZoneServiceConfig tunes the scouting workflow around the resolver.
type ZoneServiceConfig struct {
	// ReviewThreshold flags matched zones below this confidence for review.
	// Zero selects 0.5.
	ReviewThreshold float64
	// CacheTTL is how long candidate geometry stays cached, in seconds.
	CacheTTL int
	// BatchWorkers bounds parallel resolutions in a batch.
	BatchWorkers int
}

// ZoneService resolves scout fixes to zones for the scouting workflow.
type ZoneService struct {
	zones    ports.ZoneGeometryStore
	cache    ports.CacheService
	events   ports.EventPublisher
	resolver *ZoneResolver
	cfg      ZoneServiceConfig
	now      func() time.Time
}

// NewZoneService creates a new ZoneService. cache and events may be nil.
func NewZoneService(
	zones ports.ZoneGeometryStore,
	cache ports.CacheService,
	events ports.EventPublisher,
	resolver *ZoneResolver,
	cfg ZoneServiceConfig,
) *ZoneService {
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = 0.5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 300
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 8
	}
	if resolver == nil {
		resolver = NewZoneResolver(DefaultResolverOptions())
	}
	return &ZoneService{
		zones:    zones,
		cache:    cache,
		events:   events,
		resolver: resolver,
		cfg:      cfg,
		now:      time.Now,
	}
}

func geometryCacheKey(filter domain.ZoneFilter) string {
	if filter.All() {
		return "zones:geometry:all"
	}
	return "zones:geometry:bed:" + filter.Bed
}

// Candidates returns the zone geometries for a scope, read through the cache.
func (s *ZoneService) Candidates(ctx context.Context, filter domain.ZoneFilter) ([]domain.ZoneGeometry, error) {
	cacheKey := geometryCacheKey(filter)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var zones []domain.ZoneGeometry
			if err := json.Unmarshal(data, &zones); err == nil {
				metrics.CacheHits.WithLabelValues("zone_geometry").Inc()
				return zones, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("zone_geometry").Inc()
	}

	zones, err := s.zones.Read(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("read zones%s: %w", filter.Describe(), err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(zones); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.cfg.CacheTTL)
		}
	}

	return zones, nil
}

// Invalidate drops cached geometry for a bed. An empty bed drops the
// all-zones entry only.
func (s *ZoneService) Invalidate(ctx context.Context, bed string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, geometryCacheKey(domain.ZoneFilter{Bed: bed})); err != nil {
		return err
	}
	if bed != "" {
		// the all-zones entry contains this bed's zones too
		return s.cache.Delete(ctx, geometryCacheKey(domain.ZoneFilter{}))
	}
	return nil
}

// ResolveForFix resolves a fix against the zones of bed, or every zone when
// bed is empty. When a bed is given and no zone matched, the resolution is
// returned together with ErrZoneNotDetermined.
func (s *ZoneService) ResolveForFix(ctx context.Context, bed string, fix domain.GpsFix) (*domain.ScoutingResolution, error) {
	ctx, span := tracer.Start(ctx, "ZoneService.ResolveForFix", trace.WithAttributes(
		attribute.String("zone.bed", bed),
		attribute.Float64("fix.accuracy", fix.AccuracyMeters),
	))
	defer span.End()

	start := time.Now()
	defer func() { metrics.ResolveDuration.Observe(time.Since(start).Seconds()) }()

	if err := fix.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	filter := domain.ZoneFilter{Bed: bed}
	candidates, err := s.Candidates(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, err := s.resolver.Resolve(ctx, fix, candidates)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(candidates) == 0 {
		result.Message = "No zones found" + filter.Describe()
	}

	metrics.ZoneResolutions.WithLabelValues(string(result.Tier)).Inc()
	metrics.SkippedCandidates.Add(float64(result.Skipped))
	span.SetAttributes(
		attribute.String("zone.id", result.ZoneID),
		attribute.String("zone.tier", string(result.Tier)),
		attribute.Float64("zone.confidence", result.Confidence),
		attribute.Int("zone.candidates", result.Candidates),
	)

	res := &domain.ScoutingResolution{
		Bed:        bed,
		Fix:        fix,
		Result:     result,
		ResolvedAt: s.now().UTC(),
	}
	if result.Found() {
		metrics.ResolveConfidence.Observe(result.Confidence)
		res.Details = domain.ZoneDetails{
			Distance: fmt.Sprintf("%.1f", result.DistanceMeters),
			Buffer:   fmt.Sprintf("%.1f", result.BufferMeters),
		}
		if result.Confidence < s.cfg.ReviewThreshold {
			metrics.ReviewFlagged.Inc()
			res.RequiresReview = true
			res.Warning = fmt.Sprintf("Low confidence (%.0f%%) - Zone may need manual verification", result.Confidence*100)
		}
	} else {
		res.Details = domain.ZoneDetails{Distance: "0.0", Buffer: "0.0"}
	}

	if bed != "" && !result.Found() {
		return res, fmt.Errorf("%w: %s", domain.ErrZoneNotDetermined, result.Message)
	}

	if s.events != nil {
		if err := s.events.PublishResolution(ctx, res); err != nil {
			logging.FromContext(ctx).Warn("publish resolution", "zone", result.ZoneID, "error", err)
		}
	}

	return res, nil
}

// BatchResult is the outcome of one submission in a batch.
type BatchResult struct {
	Submission domain.FixSubmission
	Resolution *domain.ScoutingResolution
	Err        error
}

// ResolveBatch resolves submissions in parallel. Results keep input order and
// each submission fails or succeeds on its own.
func (s *ZoneService) ResolveBatch(ctx context.Context, subs []domain.FixSubmission) []BatchResult {
	results := make([]BatchResult, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchWorkers)
	for i, sub := range subs {
		g.Go(func() error {
			res, err := s.ResolveForFix(gctx, sub.Bed, sub.Fix)
			results[i] = BatchResult{Submission: sub, Resolution: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
