package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/mapslink/internal/config"
	"github.com/JakeFAU/mapslink/internal/mapslink"
	"github.com/JakeFAU/mapslink/internal/metrics"
	"github.com/JakeFAU/mapslink/internal/places"
	"github.com/JakeFAU/mapslink/internal/restaurant"
)

// Resolver runs the maps link pipeline.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (mapslink.ResolvedPlace, error)
}

// Importer turns a maps link into a stored restaurant.
type Importer interface {
	Import(ctx context.Context, rawURL, countryID string) (restaurant.Restaurant, error)
}

// PhotoSource fetches place photos by reference.
type PhotoSource interface {
	Photo(ctx context.Context, ref string, maxWidth int) (*places.Photo, error)
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Dependencies are the collaborators the HTTP handlers call into.
type Dependencies struct {
	Resolver Resolver
	Importer Importer
	Store    restaurant.Store
	Photos   PhotoSource
	Checks   map[string]ReadinessCheck
}

// Server wires HTTP handlers to the resolver, importer and stores.
type Server struct {
	router chi.Router
	deps   Dependencies
	cfg    config.Config
	logger *zap.Logger

	photoTimeout time.Duration
}

const (
	maxBodyBytes      = 64 << 10
	maxPhotoWidth     = 1600
	readinessDeadline = 2 * time.Second
)

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	s.photoTimeout = timeout

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Handle("/metrics", metrics.Handler())
	})

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(timeout))
			r.Post("/places/resolve", s.resolvePlace)
			r.Post("/restaurants/import", s.importRestaurant)
			r.Get("/restaurants/{id}", s.getRestaurant)
			r.Get("/countries/{country_id}/restaurants", s.listRestaurants)
		})
		// http.TimeoutHandler buffers the whole response, so the photo proxy
		// bounds itself with a context deadline instead.
		r.Get("/places/photo", s.placePhoto)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessDeadline)
	defer cancel()

	failed := make([]string, 0)
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
