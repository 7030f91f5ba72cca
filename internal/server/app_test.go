package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/mapslink/internal/config"
	memorystore "github.com/JakeFAU/mapslink/internal/restaurant/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5, ShutdownTimeoutSeconds: 1},
		Places:   config.PlacesConfig{BaseURL: "http://127.0.0.1:1", APIKey: "k", TimeoutSeconds: 1},
		Links:    config.LinksConfig{ExpandTimeoutSeconds: 1, MaxRedirects: 3},
		Resolver: config.ResolverConfig{NearbyRadiusMeters: 100},
		PubSub:   config.PubSubConfig{TopicName: "restaurant-events"},
	}
}

func TestBuildWithMemoryBackends(t *testing.T) {
	t.Parallel()

	app, err := BuildWithLogger(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, app.pgStore)
	require.Nil(t, app.gcpPub)
	_, ok := app.store.(*memorystore.Store)
	require.True(t, ok)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/restaurants/none", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, app.Close())
}

func TestBuildRejectsMissingPlacesKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Places.APIKey = ""
	_, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "places client")
}

func TestBuildRejectsBadDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Database.DSN = "postgres://%zz"
	_, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "postgres")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	app, err := BuildWithLogger(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test helper
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

// closedListener fails every Accept, the way a listener torn down under the server does.
type closedListener struct{ net.Listener }

func (l closedListener) Accept() (net.Conn, error) {
	return nil, errors.New("listener broken")
}

func TestServeReturnsServeError(t *testing.T) {
	t.Parallel()

	app, err := BuildWithLogger(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan error, 1)
	go func() { done <- app.serve(context.Background(), closedListener{ln}) }()

	select {
	case err := <-done:
		require.Error(t, err)
		require.Contains(t, err.Error(), "listener broken")
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after the listener failed")
	}
}
