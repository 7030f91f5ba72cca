package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/mapslink/internal/mapslink"
	"github.com/JakeFAU/mapslink/internal/metrics"
	"github.com/JakeFAU/mapslink/internal/places"
	"github.com/JakeFAU/mapslink/internal/restaurant"
)

type resolveRequest struct {
	URL string `json:"url"`
}

type importRequest struct {
	URL       string `json:"url"`
	CountryID string `json:"country_id"`
}

type pipelineErrorResponse struct {
	Error string        `json:"error"`
	Kind  mapslink.Kind `json:"kind"`
	Stage string        `json:"stage,omitempty"`
}

type restaurantList struct {
	CountryID   string                  `json:"country_id"`
	Count       int                     `json:"count"`
	Restaurants []restaurant.Restaurant `json:"restaurants"`
}

var kindStatus = map[mapslink.Kind]int{
	mapslink.KindInvalidURL:          http.StatusBadRequest,
	mapslink.KindUnresolvableLink:    http.StatusUnprocessableEntity,
	mapslink.KindPlaceNotFound:       http.StatusNotFound,
	mapslink.KindDetailsUnavailable:  http.StatusBadGateway,
	mapslink.KindLinkExpansionFailed: http.StatusBadGateway,
	mapslink.KindNetworkTimeout:      http.StatusGatewayTimeout,
}

// StatusForKind maps a pipeline failure kind onto an HTTP status.
func StatusForKind(kind mapslink.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) resolvePlace(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	place, err := s.deps.Resolver.Resolve(r.Context(), req.URL)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (s *Server) importRestaurant(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	rec, err := s.deps.Importer.Import(r.Context(), req.URL, req.CountryID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/restaurants/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) getRestaurant(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) listRestaurants(w http.ResponseWriter, r *http.Request) {
	countryID := chi.URLParam(r, "country_id")
	list, err := s.deps.Store.ListByCountry(r.Context(), countryID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, restaurantList{CountryID: countryID, Count: len(list), Restaurants: list})
}

// placePhoto proxies a Places photo so the Places key never reaches the client.
func (s *Server) placePhoto(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		writeError(w, http.StatusBadRequest, "ref is required")
		return
	}
	width, err := s.photoWidth(r.URL.Query().Get("maxwidth"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.photoTimeout)
	defer cancel()

	photo, err := s.deps.Photos.Photo(ctx, ref, width)
	if err != nil {
		var httpErr *places.HTTPError
		switch {
		case errors.Is(err, places.ErrMissingPhotoReference):
			writeError(w, http.StatusBadRequest, "ref is required")
		case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound:
			writeError(w, http.StatusNotFound, "photo not found")
		default:
			s.logger.Warn("photo fetch failed", zap.String("request_id", RequestIDFromContext(r.Context())), zap.Error(err))
			writeError(w, http.StatusBadGateway, "photo unavailable")
		}
		return
	}
	defer photo.Body.Close()

	contentType := photo.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if photo.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(photo.ContentLength, 10))
	}
	if maxAge := s.cfg.PhotoCacheMaxAge(); maxAge > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	}
	w.WriteHeader(http.StatusOK)
	n, err := copyFlushing(w, photo.Body)
	metrics.AddPhotoBytes(n)
	if err != nil {
		s.logger.Warn("photo stream interrupted", zap.Int64("bytes", n), zap.Error(err))
	}
}

// copyFlushing writes src to w, flushing after every chunk so clients see
// bytes as soon as the upstream produces them.
func copyFlushing(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, 32<<10)
	var written int64
	for {
		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := w.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, fmt.Errorf("write photo: %w", writeErr)
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, fmt.Errorf("flush photo: %w", err)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read photo: %w", readErr)
		}
	}
}

func (s *Server) photoWidth(raw string) (int, error) {
	if raw == "" {
		if s.cfg.Places.PhotoMaxWidth > 0 {
			return min(s.cfg.Places.PhotoMaxWidth, maxPhotoWidth), nil
		}
		return 400, nil
	}
	width, err := strconv.Atoi(raw)
	if err != nil || width <= 0 {
		return 0, fmt.Errorf("maxwidth must be a positive integer")
	}
	return min(width, maxPhotoWidth), nil
}

// writeFailure maps domain errors onto statuses. Pipeline failures carry their user message.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var pipeErr *mapslink.Error
	switch {
	case errors.As(err, &pipeErr):
		status := StatusForKind(pipeErr.Kind)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("pipeline failure",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("kind", string(pipeErr.Kind)),
				zap.Error(err),
			)
		}
		writeJSON(w, status, pipelineErrorResponse{
			Error: pipeErr.Message(),
			Kind:  pipeErr.Kind,
			Stage: string(pipeErr.Stage),
		})
	case errors.Is(err, restaurant.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, restaurant.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, restaurant.ErrCountryRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
