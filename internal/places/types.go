package places

import (
	"errors"
	"fmt"
	"io"
)

// Provider response statuses.
const (
	StatusOK          = "OK"
	StatusZeroResults = "ZERO_RESULTS"
)

// ErrZeroResults is returned when the provider answers ZERO_RESULTS or an empty list.
var ErrZeroResults = errors.New("places: no results returned")

// ErrMissingPhotoReference is returned by Photo for an empty reference.
var ErrMissingPhotoReference = errors.New("places: photo reference is required")

// StatusError is a non-OK provider status such as REQUEST_DENIED or OVER_QUERY_LIMIT.
type StatusError struct {
	Endpoint string
	Status   string
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("places %s: status %s", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("places %s: status %s: %s", e.Endpoint, e.Status, e.Message)
}

// HTTPError is a non-2xx transport response.
type HTTPError struct {
	Endpoint   string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("places %s: http status %d", e.Endpoint, e.StatusCode)
}

// Candidate is one search result.
type Candidate struct {
	PlaceID     string
	Name        string
	Lat         float64
	Lng         float64
	HasLocation bool
}

// Details is the subset of a place details response used for import.
type Details struct {
	PlaceID          string
	Name             string
	Address          string
	Phone            string
	Website          string
	PriceLevel       *int
	Lat              float64
	Lng              float64
	HasLocation      bool
	EditorialSummary string
	Reviews          []string
	PhotoReferences  []string
}

// Photo is a streamed provider image. Callers must close Body.
type Photo struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}
