package mapslink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/mapslink/internal/metrics"
	"github.com/JakeFAU/mapslink/internal/places"
)

// textSearchType scopes name-only lookups to businesses.
const textSearchType = "establishment"

// PlacesAPI is the subset of the Places client the resolver depends on.
type PlacesAPI interface {
	NearbySearch(ctx context.Context, lat, lng float64, radiusMeters int) ([]places.Candidate, error)
	TextSearch(ctx context.Context, query, placeType string) ([]places.Candidate, error)
	Details(ctx context.Context, placeID string) (places.Details, error)
}

// Resolver runs the link resolution pipeline:
// validate, expand short links, extract, identify the place, fetch details.
type Resolver struct {
	cfg      Config
	places   PlacesAPI
	expander LinkExpander
	logger   *zap.Logger
	inflight singleflight.Group
}

// NewResolver wires a Resolver. A nil expander gets the default HTTP Expander.
func NewResolver(cfg Config, api PlacesAPI, expander LinkExpander, logger *zap.Logger) *Resolver {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if expander == nil {
		expander = NewExpander(cfg.ExpandTimeout, cfg.MaxRedirects, cfg.AllowedHosts, logger.Named("expander"))
	}
	metrics.Init()
	return &Resolver{
		cfg:      cfg,
		places:   api,
		expander: expander,
		logger:   logger,
	}
}

// Resolve turns a user-supplied maps URL into a ResolvedPlace.
// Every failure is an *Error carrying its Kind and the Stage it happened in.
func (r *Resolver) Resolve(ctx context.Context, raw string) (ResolvedPlace, error) {
	if !r.cfg.DedupeInFlight {
		return r.resolve(ctx, raw)
	}
	// The shared run outlives any single caller; the expand and Places
	// timeouts still bound it.
	shared := context.WithoutCancel(ctx)
	ch := r.inflight.DoChan(dedupeKey(raw), func() (any, error) {
		return r.resolve(shared, raw)
	})
	select {
	case res := <-ch:
		if res.Shared {
			r.logger.Debug("shared in-flight resolution", zap.String("url", raw))
		}
		place, _ := res.Val.(ResolvedPlace)
		return place, res.Err
	case <-ctx.Done():
		return ResolvedPlace{}, newError(KindNetworkTimeout, StageFailed, fmt.Errorf("wait for shared resolution: %w", ctx.Err()))
	}
}

func (r *Resolver) resolve(ctx context.Context, raw string) (ResolvedPlace, error) {
	start := time.Now()
	place, err := r.run(ctx, strings.TrimSpace(raw))
	if err != nil {
		kind := KindOf(err)
		metrics.ObserveResolution(string(kind))
		stage := StageFailed
		var perr *Error
		if errors.As(err, &perr) {
			stage = perr.Stage
		}
		r.logger.Warn("maps link resolution failed",
			zap.String("url", raw),
			zap.String("kind", string(kind)),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
		return ResolvedPlace{}, err
	}
	metrics.ObserveResolution("ok")
	r.logger.Info("maps link resolved",
		zap.String("url", raw),
		zap.String("place_id", place.PlaceID),
		zap.String("name", place.Name),
		zap.Duration("duration", time.Since(start)),
	)
	return place, nil
}

func (r *Resolver) run(ctx context.Context, raw string) (ResolvedPlace, error) {
	stageStart := time.Now()
	host, ok := hostOf(raw)
	if !ok || !hostMatches(host, r.cfg.AllowedHosts) {
		return ResolvedPlace{}, newError(KindInvalidURL, StageValidating, fmt.Errorf("host not allowed: %q", raw))
	}
	r.endStage(StageValidating, stageStart)

	canonical := raw
	if hostMatches(host, r.cfg.ShortenerHosts) {
		stageStart = time.Now()
		expanded, err := r.expander.Expand(ctx, raw)
		if err != nil {
			var perr *Error
			if errors.As(err, &perr) {
				return ResolvedPlace{}, perr
			}
			return ResolvedPlace{}, newError(KindLinkExpansionFailed, StageResolving, err)
		}
		canonical = expanded
		r.endStage(StageResolving, stageStart)
	}

	stageStart = time.Now()
	info := Extract(canonical)
	if info == nil {
		return ResolvedPlace{}, newError(KindUnresolvableLink, StageExtracting,
			fmt.Errorf("no place information in %q", canonical))
	}
	r.endStage(StageExtracting, stageStart)
	r.logger.Debug("place info extracted",
		zap.String("canonical_url", canonical),
		zap.String("shape", string(info.Kind())),
		zap.String("name_hint", info.NameHint),
	)

	stageStart = time.Now()
	placeID, err := r.Identify(ctx, *info)
	if err != nil {
		return ResolvedPlace{}, err
	}
	r.endStage(StageIdentifyingPlace, stageStart)

	stageStart = time.Now()
	place, err := r.FetchDetails(ctx, placeID)
	if err != nil {
		return ResolvedPlace{}, err
	}
	r.endStage(StageFetchingDetails, stageStart)
	return place, nil
}

func (r *Resolver) endStage(stage Stage, start time.Time) {
	metrics.ObserveStage(string(stage), time.Since(start))
}

// Identify returns the provider place id for info. Coordinates win over a lone name;
// with coordinates and a name hint the first nearby result containing the hint is
// preferred over the nearest one.
func (r *Resolver) Identify(ctx context.Context, info PlaceInfo) (string, error) {
	switch info.Kind() {
	case PlaceInfoPlaceID:
		return info.PlaceID, nil
	case PlaceInfoCoordinates:
		c := *info.Coordinates
		candidates, err := r.places.NearbySearch(ctx, c.Lat, c.Lng, r.cfg.NearbyRadiusMeters)
		if err != nil {
			return "", newError(KindPlaceNotFound, StageIdentifyingPlace, fmt.Errorf("nearby search: %w", err))
		}
		if id := pickCandidate(candidates, c, info.NameHint); id != "" {
			return id, nil
		}
		return "", newError(KindPlaceNotFound, StageIdentifyingPlace, places.ErrZeroResults)
	default:
		if info.NameHint == "" {
			return "", newError(KindPlaceNotFound, StageIdentifyingPlace, errors.New("no name hint"))
		}
		candidates, err := r.places.TextSearch(ctx, info.NameHint, textSearchType)
		if err != nil {
			return "", newError(KindPlaceNotFound, StageIdentifyingPlace, fmt.Errorf("text search: %w", err))
		}
		for _, cand := range candidates {
			if cand.PlaceID != "" {
				return cand.PlaceID, nil
			}
		}
		return "", newError(KindPlaceNotFound, StageIdentifyingPlace, places.ErrZeroResults)
	}
}

func pickCandidate(candidates []places.Candidate, origin Coordinates, hint string) string {
	if hint != "" {
		needle := strings.ToLower(hint)
		for _, cand := range candidates {
			if cand.PlaceID != "" && strings.Contains(strings.ToLower(cand.Name), needle) {
				return cand.PlaceID
			}
		}
	}

	best := ""
	bestDist := -1.0
	for _, cand := range candidates {
		if cand.PlaceID == "" {
			continue
		}
		if !cand.HasLocation {
			if best == "" {
				best = cand.PlaceID
			}
			continue
		}
		d := DistanceMeters(origin, Coordinates{Lat: cand.Lat, Lng: cand.Lng})
		if bestDist < 0 || d < bestDist {
			best, bestDist = cand.PlaceID, d
		}
	}
	return best
}

// FetchDetails loads and normalizes the details for placeID. A response without a
// location is a KindDetailsUnavailable failure.
func (r *Resolver) FetchDetails(ctx context.Context, placeID string) (ResolvedPlace, error) {
	details, err := r.places.Details(ctx, placeID)
	if err != nil {
		return ResolvedPlace{}, newError(KindDetailsUnavailable, StageFetchingDetails, fmt.Errorf("place details: %w", err))
	}
	if !details.HasLocation {
		return ResolvedPlace{}, newError(KindDetailsUnavailable, StageFetchingDetails,
			fmt.Errorf("details for %s lack geometry.location", placeID))
	}
	return normalize(placeID, details, r.cfg.DescriptionMaxChars), nil
}

func normalize(placeID string, d places.Details, maxDescription int) ResolvedPlace {
	place := ResolvedPlace{
		PlaceID:   d.PlaceID,
		Name:      d.Name,
		Address:   d.Address,
		Latitude:  d.Lat,
		Longitude: d.Lng,
		Phone:     optional(d.Phone),
		Website:   optional(d.Website),
	}
	if place.PlaceID == "" {
		place.PlaceID = placeID
	}
	if d.PriceLevel != nil && *d.PriceLevel >= 1 && *d.PriceLevel <= 4 {
		tier := *d.PriceLevel
		place.PriceTier = &tier
	}

	switch {
	case strings.TrimSpace(d.EditorialSummary) != "":
		place.Description = strings.TrimSpace(d.EditorialSummary)
	default:
		for _, review := range d.Reviews {
			if text := strings.TrimSpace(review); text != "" {
				place.Description = truncateRunes(text, maxDescription)
				break
			}
		}
	}
	if len(d.PhotoReferences) > 0 {
		place.ImageRef = optional(d.PhotoReferences[0])
	}
	return place
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// dedupeKey normalizes a URL so equivalent links share an in-flight resolution.
func dedupeKey(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.RawQuery = u.Query().Encode()
	return u.String()
}
