package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/gofiber/fiber/v2"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
	"github.com/greenhouse-ops/zonefix/internal/pkg/logging"
)

// ResolveRequest is one fix submitted for zone resolution. Coordinates are
// pointers so that a missing value can be told apart from zero.
type ResolveRequest struct {
	ID        string   `json:"id,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
	Bed       string   `json:"bed,omitempty"`
}

// ResolveItem is the outcome of one submitted fix.
type ResolveItem struct {
	Status  string `json:"status"` // success | error
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
	Bed     string `json:"bed,omitempty"`

	DeterminedZone *string  `json:"determined_zone,omitempty"`
	ZoneConfidence float64  `json:"zone_confidence"` // percent, one decimal
	GPSAccuracy    *float64 `json:"gps_accuracy,omitempty"`
	RequiresReview bool     `json:"requires_review"`
	Warning        string   `json:"warning,omitempty"`
	Coordinates    string   `json:"coordinates,omitempty"`

	Details    *domain.ZoneDetails      `json:"zone_detection_details,omitempty"`
	Resolution *domain.ResolutionResult `json:"resolution,omitempty"`
}

// ResolveResponse wraps the per-item results in request order.
type ResolveResponse struct {
	Data []ResolveItem `json:"data"`
}

const (
	msgMissingBody   = "Scouting data is missing from the request body."
	msgBadShape      = "Expected a single scouting entry or a list of entries."
	msgMissingCoords = "Latitude and longitude are required."
)

// decodeResolveRequests accepts a single object or an array of objects.
func decodeResolveRequests(body []byte) ([]ResolveRequest, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, errors.New(msgMissingBody)
	}
	switch body[0] {
	case '{':
		var r ResolveRequest
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return []ResolveRequest{r}, nil
	case '[':
		var rs []ResolveRequest
		if err := json.Unmarshal(body, &rs); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		if len(rs) == 0 {
			return nil, errors.New(msgMissingBody)
		}
		return rs, nil
	default:
		return nil, errors.New(msgBadShape)
	}
}

// ResolveZonesHandler resolves one or more fixes to zones. Every item is
// handled on its own: 200 when all succeed, 207 on partial success and 400
// when every item failed.
func ResolveZonesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.BodyLimit > 0 && len(c.Body()) > deps.BodyLimit {
			return newError(c, fiber.StatusRequestEntityTooLarge, "too_large",
				fmt.Sprintf("request body exceeds %d bytes", deps.BodyLimit))
		}

		reqs, err := decodeResolveRequests(c.Body())
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		ctx := c.UserContext()
		items := make([]ResolveItem, len(reqs))
		var subs []domain.FixSubmission
		var index []int

		for i, r := range reqs {
			items[i] = ResolveItem{ID: r.ID, Bed: r.Bed, GPSAccuracy: r.Accuracy}
			if r.Latitude == nil || r.Longitude == nil {
				items[i].Status = "error"
				items[i].Message = msgMissingCoords
				continue
			}
			fix := domain.GpsFix{Latitude: *r.Latitude, Longitude: *r.Longitude}
			if r.Accuracy != nil {
				fix.AccuracyMeters = *r.Accuracy
			}
			subs = append(subs, domain.FixSubmission{ID: r.ID, Bed: r.Bed, Fix: fix})
			index = append(index, i)
		}

		for j, res := range deps.Zones.ResolveBatch(ctx, subs) {
			items[index[j]] = resolveItem(items[index[j]], res.Submission, res.Resolution, res.Err)
			if res.Err != nil && !clientFault(res.Err) {
				logging.FromContext(ctx).Error("resolve fix", "id", res.Submission.ID, "error", res.Err)
			}
		}

		failed := 0
		for _, it := range items {
			if it.Status == "error" {
				failed++
			}
		}

		status := fiber.StatusOK
		switch {
		case failed == len(items):
			status = fiber.StatusBadRequest
		case failed > 0:
			status = fiber.StatusMultiStatus
		}
		return c.Status(status).JSON(ResolveResponse{Data: items})
	}
}

func resolveItem(it ResolveItem, sub domain.FixSubmission, res *domain.ScoutingResolution, err error) ResolveItem {
	if err != nil {
		it.Status = "error"
		it.Message = err.Error()
		if errors.Is(err, domain.ErrZoneNotDetermined) && res != nil {
			it.Message = "Could not determine zone: " + res.Result.Message
			it.Coordinates = fmt.Sprintf("(%g, %g)", sub.Fix.Latitude, sub.Fix.Longitude)
		}
		return it
	}

	r := res.Result
	it.Status = "success"
	it.Resolution = &r
	it.Details = &res.Details
	it.RequiresReview = res.RequiresReview
	it.Warning = res.Warning
	if r.Found() {
		zone := r.ZoneID
		it.DeterminedZone = &zone
		it.ZoneConfidence = math.Round(r.Confidence*1000) / 10
		it.Message = "Zone resolved" + domain.ZoneFilter{Bed: sub.Bed}.Describe()
	} else {
		it.Message = r.Message
	}
	return it
}

// ListZonesHandler returns zone summaries, optionally for one bed.
func ListZonesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bed := c.Query("bed")
		if len(bed) > 140 {
			return errBadRequest(c, "bed too long (max 140 characters)")
		}

		zones, err := deps.Beds.Zones(c.UserContext(), bed)
		if err != nil {
			return errInternal(c, err.Error())
		}

		offset, limit := pageParams(c)
		page, pg := paginate(zones, offset, limit)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// InvalidateZonesHandler drops cached zone geometry for a bed, or for the
// all-zones scope when no bed is given.
func InvalidateZonesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Zones.Invalidate(c.UserContext(), c.Query("bed")); err != nil {
			return errUnavailable(c, "cache unavailable: "+err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ListBedsHandler returns beds and their zones grouped by variety.
func ListBedsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		groups, err := deps.Beds.ByVariety(c.UserContext())
		if err != nil {
			return errInternal(c, err.Error())
		}
		if groups == nil {
			groups = []domain.VarietyBeds{}
		}
		return c.JSON(groups)
	}
}
