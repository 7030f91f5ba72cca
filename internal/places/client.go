// Package places is a client for the Google Places web service.
package places

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/mapslink/internal/metrics"
)

// DefaultBaseURL is the public Places web service root.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/place"

const (
	maxResponseBytes = 4 << 20
	detailsFields    = "place_id,name,formatted_address,formatted_phone_number,international_phone_number," +
		"website,price_level,geometry/location,editorial_summary,reviews,photos"
)

// Config holds the endpoint, credentials and client-side limits.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RPS caps outbound requests per second; <= 0 disables throttling.
	RPS   float64
	Burst int
}

// Client talks to the Places API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("places api key is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse places base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	metrics.Init()
	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}, nil
}

// NearbySearch lists places within radiusMeters of (lat, lng).
func (c *Client) NearbySearch(ctx context.Context, lat, lng float64, radiusMeters int) ([]Candidate, error) {
	params := url.Values{}
	params.Set("location", formatFloat(lat)+","+formatFloat(lng))
	params.Set("radius", strconv.Itoa(radiusMeters))
	body, err := c.getJSON(ctx, "nearbysearch", params)
	if err != nil {
		return nil, err
	}
	return parseCandidates(body)
}

// TextSearch runs a free-text query, optionally restricted to placeType.
func (c *Client) TextSearch(ctx context.Context, query, placeType string) ([]Candidate, error) {
	params := url.Values{}
	params.Set("query", query)
	if placeType != "" {
		params.Set("type", placeType)
	}
	body, err := c.getJSON(ctx, "textsearch", params)
	if err != nil {
		return nil, err
	}
	return parseCandidates(body)
}

// Details fetches the import fields for placeID.
func (c *Client) Details(ctx context.Context, placeID string) (Details, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailsFields)
	body, err := c.getJSON(ctx, "details", params)
	if err != nil {
		return Details{}, err
	}
	return parseDetails(body), nil
}

// Photo streams the image behind a photo reference.
func (c *Client) Photo(ctx context.Context, ref string, maxWidth int) (*Photo, error) {
	if ref == "" {
		return nil, ErrMissingPhotoReference
	}
	params := url.Values{}
	params.Set("photo_reference", ref)
	params.Set("maxwidth", strconv.Itoa(maxWidth))
	resp, err := c.do(ctx, "photo", params)
	if err != nil {
		metrics.ObservePlacesRequest("photo", "transport_error")
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.closeBody(resp)
		metrics.ObservePlacesRequest("photo", "http_error")
		return nil, &HTTPError{Endpoint: "photo", StatusCode: resp.StatusCode}
	}
	metrics.ObservePlacesRequest("photo", "ok")
	return &Photo{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	resp, err := c.do(ctx, endpoint+"/json", params)
	if err != nil {
		metrics.ObservePlacesRequest(endpoint, "transport_error")
		return nil, err
	}
	defer c.closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObservePlacesRequest(endpoint, "http_error")
		return nil, &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.ObservePlacesRequest(endpoint, "transport_error")
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if !gjson.ValidBytes(body) {
		metrics.ObservePlacesRequest(endpoint, "invalid_json")
		return nil, fmt.Errorf("decode %s response: invalid json", endpoint)
	}

	status := gjson.GetBytes(body, "status").String()
	switch status {
	case StatusOK:
		metrics.ObservePlacesRequest(endpoint, "ok")
		return body, nil
	case StatusZeroResults:
		metrics.ObservePlacesRequest(endpoint, "zero_results")
		return nil, ErrZeroResults
	default:
		metrics.ObservePlacesRequest(endpoint, "status_error")
		return nil, &StatusError{
			Endpoint: endpoint,
			Status:   status,
			Message:  gjson.GetBytes(body, "error_message").String(),
		}
	}
}

func (c *Client) do(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("places rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}

	params.Set("key", c.apiKey)
	endpoint := c.baseURL + "/" + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error includes the query string, which carries the key.
		return nil, fmt.Errorf("call places %s: %w", path, redactKey(err, c.apiKey))
	}
	c.logger.Debug("places request",
		zap.String("endpoint", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Debug("close places body failed", zap.Error(err))
	}
}

func parseCandidates(body []byte) ([]Candidate, error) {
	results := gjson.GetBytes(body, "results").Array()
	if len(results) == 0 {
		return nil, ErrZeroResults
	}
	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		loc := r.Get("geometry.location")
		out = append(out, Candidate{
			PlaceID:     r.Get("place_id").String(),
			Name:        r.Get("name").String(),
			Lat:         loc.Get("lat").Float(),
			Lng:         loc.Get("lng").Float(),
			HasLocation: hasLocation(loc),
		})
	}
	return out, nil
}

func parseDetails(body []byte) Details {
	r := gjson.GetBytes(body, "result")
	loc := r.Get("geometry.location")
	d := Details{
		PlaceID:          r.Get("place_id").String(),
		Name:             r.Get("name").String(),
		Address:          r.Get("formatted_address").String(),
		Phone:            r.Get("formatted_phone_number").String(),
		Website:          r.Get("website").String(),
		Lat:              loc.Get("lat").Float(),
		Lng:              loc.Get("lng").Float(),
		HasLocation:      hasLocation(loc),
		EditorialSummary: r.Get("editorial_summary.overview").String(),
	}
	if d.Phone == "" {
		d.Phone = r.Get("international_phone_number").String()
	}
	if pl := r.Get("price_level"); pl.Exists() {
		level := int(pl.Int())
		d.PriceLevel = &level
	}
	for _, review := range r.Get("reviews").Array() {
		d.Reviews = append(d.Reviews, review.Get("text").String())
	}
	for _, photo := range r.Get("photos").Array() {
		if ref := photo.Get("photo_reference").String(); ref != "" {
			d.PhotoReferences = append(d.PhotoReferences, ref)
		}
	}
	return d
}

// hasLocation requires numeric lat and lng; null or missing fields do not count.
func hasLocation(loc gjson.Result) bool {
	return loc.Get("lat").Type == gjson.Number && loc.Get("lng").Type == gjson.Number
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), key, "REDACTED"), err: err}
}
