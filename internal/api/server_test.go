package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/mapslink/internal/config"
	"github.com/JakeFAU/mapslink/internal/mapslink"
	"github.com/JakeFAU/mapslink/internal/places"
	"github.com/JakeFAU/mapslink/internal/restaurant"
	"github.com/JakeFAU/mapslink/internal/restaurant/memory"
)

type fakeResolver struct {
	place mapslink.ResolvedPlace
	err   error
	got   string
}

func (f *fakeResolver) Resolve(_ context.Context, raw string) (mapslink.ResolvedPlace, error) {
	f.got = raw
	return f.place, f.err
}

type fakeImporter struct {
	rec     restaurant.Restaurant
	err     error
	url     string
	country string
}

func (f *fakeImporter) Import(_ context.Context, rawURL, countryID string) (restaurant.Restaurant, error) {
	f.url, f.country = rawURL, countryID
	return f.rec, f.err
}

type fakePhotos struct {
	body     string
	err      error
	gotRef   string
	gotWidth int
}

func (f *fakePhotos) Photo(_ context.Context, ref string, maxWidth int) (*places.Photo, error) {
	f.gotRef, f.gotWidth = ref, maxWidth
	if f.err != nil {
		return nil, f.err
	}
	return &places.Photo{
		Body:          io.NopCloser(strings.NewReader(f.body)),
		ContentType:   "image/jpeg",
		ContentLength: int64(len(f.body)),
	}, nil
}

// heldBody yields one chunk, then blocks until release is closed.
type heldBody struct {
	first   string
	sent    bool
	release chan struct{}
}

func (b *heldBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, b.first), nil
	}
	<-b.release
	return 0, io.EOF
}

func (b *heldBody) Close() error { return nil }

type heldPhotos struct {
	body        *heldBody
	hasDeadline atomic.Bool
}

func (f *heldPhotos) Photo(ctx context.Context, _ string, _ int) (*places.Photo, error) {
	_, ok := ctx.Deadline()
	f.hasDeadline.Store(ok)
	return &places.Photo{Body: f.body, ContentType: "image/jpeg"}, nil
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5},
		Places: config.PlacesConfig{PhotoMaxWidth: 400, PhotoCacheSeconds: 3600},
	}
}

func strPtr(s string) *string { return &s }

func samplePlace() mapslink.ResolvedPlace {
	return mapslink.ResolvedPlace{
		PlaceID:   "ChIJ123",
		Name:      "Kopi Corner",
		Address:   "1 Orchard Rd",
		Latitude:  1.3521,
		Longitude: 103.8198,
		ImageRef:  strPtr("photo-1"),
	}
}

func newTestServer(deps Dependencies, cfg config.Config) *Server {
	if deps.Resolver == nil {
		deps.Resolver = &fakeResolver{place: samplePlace()}
	}
	if deps.Importer == nil {
		deps.Importer = &fakeImporter{}
	}
	if deps.Store == nil {
		deps.Store = memory.NewStore()
	}
	if deps.Photos == nil {
		deps.Photos = &fakePhotos{}
	}
	return NewServer(deps, cfg, zap.NewNop())
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_ResolvePlace_Succeeds(t *testing.T) {
	t.Parallel()

	res := &fakeResolver{place: samplePlace()}
	server := newTestServer(Dependencies{Resolver: res}, testConfig())

	rec := doRequest(server, http.MethodPost, "/v1/places/resolve", `{"url":"https://maps.app.goo.gl/abc"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://maps.app.goo.gl/abc", res.got)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ChIJ123", body["place_id"])
	require.Equal(t, "1.3521", body["latitude"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_ResolvePlace_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(Dependencies{}, testConfig())
	rec := doRequest(server, http.MethodPost, "/v1/places/resolve", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid JSON")
}

func TestServer_ResolvePlace_MapsFailureKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind   mapslink.Kind
		stage  mapslink.Stage
		status int
	}{
		{mapslink.KindInvalidURL, mapslink.StageValidating, http.StatusBadRequest},
		{mapslink.KindUnresolvableLink, mapslink.StageExtracting, http.StatusUnprocessableEntity},
		{mapslink.KindPlaceNotFound, mapslink.StageIdentifyingPlace, http.StatusNotFound},
		{mapslink.KindDetailsUnavailable, mapslink.StageFetchingDetails, http.StatusBadGateway},
		{mapslink.KindLinkExpansionFailed, mapslink.StageResolving, http.StatusBadGateway},
		{mapslink.KindNetworkTimeout, mapslink.StageResolving, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			res := &fakeResolver{err: &mapslink.Error{Kind: tt.kind, Stage: tt.stage, Err: errors.New("boom")}}
			server := newTestServer(Dependencies{Resolver: res}, testConfig())

			rec := doRequest(server, http.MethodPost, "/v1/places/resolve", `{"url":"x"}`)

			require.Equal(t, tt.status, rec.Code)
			var body pipelineErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tt.kind, body.Kind)
			require.Equal(t, string(tt.stage), body.Stage)
			require.Equal(t, mapslink.MessageFor(tt.kind), body.Error)
			require.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestServer_ImportRestaurant(t *testing.T) {
	t.Parallel()

	imp := &fakeImporter{rec: restaurant.Restaurant{ID: "r-1", CountryID: "sg", Name: "Kopi Corner"}}
	server := newTestServer(Dependencies{Importer: imp}, testConfig())

	rec := doRequest(server, http.MethodPost, "/v1/restaurants/import", `{"url":"https://maps.google.com/x","country_id":"sg"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "/v1/restaurants/r-1", rec.Header().Get("Location"))
	require.Equal(t, "https://maps.google.com/x", imp.url)
	require.Equal(t, "sg", imp.country)
	require.Contains(t, rec.Body.String(), `"id":"r-1"`)
}

func TestServer_ImportRestaurant_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"conflict", restaurant.ErrConflict, http.StatusConflict},
		{"country required", restaurant.ErrCountryRequired, http.StatusBadRequest},
		{"pipeline", &mapslink.Error{Kind: mapslink.KindPlaceNotFound}, http.StatusNotFound},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := newTestServer(Dependencies{Importer: &fakeImporter{err: tt.err}}, testConfig())
			rec := doRequest(server, http.MethodPost, "/v1/restaurants/import", `{"url":"u","country_id":"sg"}`)
			require.Equal(t, tt.status, rec.Code)
			require.NotContains(t, rec.Body.String(), "disk on fire")
		})
	}
}

func TestServer_GetAndListRestaurants(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, restaurant.Restaurant{ID: "r-1", CountryID: "sg", Name: "A", CreatedAt: created}))
	require.NoError(t, store.Create(ctx, restaurant.Restaurant{ID: "r-2", CountryID: "sg", Name: "B", CreatedAt: created.Add(time.Second)}))
	server := newTestServer(Dependencies{Store: store}, testConfig())

	rec := doRequest(server, http.MethodGet, "/v1/restaurants/r-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"A"`)

	rec = doRequest(server, http.MethodGet, "/v1/restaurants/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(server, http.MethodGet, "/v1/countries/sg/restaurants", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list restaurantList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	require.Equal(t, "r-1", list.Restaurants[0].ID)

	rec = doRequest(server, http.MethodGet, "/v1/countries/my/restaurants", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"restaurants":[]`)
}

func TestServer_PlacePhoto_Streams(t *testing.T) {
	t.Parallel()

	photos := &fakePhotos{body: "jpegbytes"}
	server := newTestServer(Dependencies{Photos: photos}, testConfig())

	rec := doRequest(server, http.MethodGet, "/v1/places/photo?ref=photo-1&maxwidth=9999", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "jpegbytes", rec.Body.String())
	require.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	require.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	require.Equal(t, "photo-1", photos.gotRef)
	require.Equal(t, maxPhotoWidth, photos.gotWidth)
}

func TestServer_PlacePhoto_SendsBytesBeforeUpstreamFinishes(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	photos := &heldPhotos{body: &heldBody{first: "FIRSTCHUNK", release: release}}
	srv := httptest.NewServer(newTestServer(Dependencies{Photos: photos}, testConfig()).Handler())
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/places/photo?ref=photo-1", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := make([]byte, len("FIRSTCHUNK"))
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	require.Equal(t, "FIRSTCHUNK", string(buf))
	require.True(t, photos.hasDeadline.Load())
}

func TestServer_PlacePhoto_Errors(t *testing.T) {
	t.Parallel()

	server := newTestServer(Dependencies{}, testConfig())
	require.Equal(t, http.StatusBadRequest, doRequest(server, http.MethodGet, "/v1/places/photo", "").Code)
	require.Equal(t, http.StatusBadRequest, doRequest(server, http.MethodGet, "/v1/places/photo?ref=a&maxwidth=abc", "").Code)

	photos := &fakePhotos{}
	server = newTestServer(Dependencies{Photos: photos}, testConfig())
	require.Equal(t, http.StatusOK, doRequest(server, http.MethodGet, "/v1/places/photo?ref=a", "").Code)
	require.Equal(t, 400, photos.gotWidth)

	missing := &fakePhotos{err: &places.HTTPError{Endpoint: "photo", StatusCode: http.StatusNotFound}}
	server = newTestServer(Dependencies{Photos: missing}, testConfig())
	require.Equal(t, http.StatusNotFound, doRequest(server, http.MethodGet, "/v1/places/photo?ref=a", "").Code)

	broken := &fakePhotos{err: errors.New("upstream reset")}
	server = newTestServer(Dependencies{Photos: broken}, testConfig())
	require.Equal(t, http.StatusBadGateway, doRequest(server, http.MethodGet, "/v1/places/photo?ref=a", "").Code)
}

func TestServer_APIKeyRequired(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := newTestServer(Dependencies{}, cfg)

	rec := doRequest(server, http.MethodPost, "/v1/places/resolve", `{"url":"x"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/places/resolve", bytes.NewBufferString(`{"url":"x"}`))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open.
	require.Equal(t, http.StatusOK, doRequest(server, http.MethodGet, "/healthz", "").Code)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	server := newTestServer(Dependencies{Checks: map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
	}}, testConfig())
	require.Equal(t, http.StatusOK, doRequest(server, http.MethodGet, "/readyz", "").Code)

	server = newTestServer(Dependencies{Checks: map[string]ReadinessCheck{
		"database": func(context.Context) error { return errors.New("down") },
		"pubsub":   func(context.Context) error { return nil },
	}}, testConfig())
	rec := doRequest(server, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "database")
	require.NotContains(t, rec.Body.String(), "pubsub")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(Dependencies{}, testConfig())
	_ = doRequest(server, http.MethodGet, "/healthz", "")
	rec := doRequest(server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDMiddlewareKeepsValidInbound(t *testing.T) {
	t.Parallel()

	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "0190b6c2-7d3e-7b4a-9c1d-2e3f4a5b6c7d")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "0190b6c2-7d3e-7b4a-9c1d-2e3f4a5b6c7d", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "not-a-uuid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.NotEqual(t, "not-a-uuid", seen)
	require.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusForKindUnknown(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusInternalServerError, StatusForKind("mystery"))
}
