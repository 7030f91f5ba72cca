// Package restaurant owns restaurant records created from resolved maps links.
package restaurant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/mapslink/internal/mapslink"
)

// Store errors.
var (
	// ErrConflict means a restaurant with the same name already exists in the country.
	ErrConflict = errors.New("restaurant already exists in this country")
	// ErrNotFound means no restaurant has the requested id.
	ErrNotFound = errors.New("restaurant not found")
	// ErrCountryRequired is returned when an import omits the country.
	ErrCountryRequired = errors.New("country id is required")
)

// Restaurant is a persisted restaurant row. Latitude and Longitude are always set.
type Restaurant struct {
	ID          string    `json:"id"`
	CountryID   string    `json:"country_id"`
	PlaceID     string    `json:"place_id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Latitude    float64   `json:"latitude,string"`
	Longitude   float64   `json:"longitude,string"`
	Phone       *string   `json:"phone,omitempty"`
	Website     *string   `json:"website,omitempty"`
	PriceTier   *int      `json:"price_tier,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageRef    *string   `json:"image_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists restaurants. Create must reject duplicate (name, country) pairs with
// ErrConflict, comparing names case-insensitively.
type Store interface {
	Create(ctx context.Context, r Restaurant) error
	Get(ctx context.Context, id string) (Restaurant, error)
	ListByCountry(ctx context.Context, countryID string) ([]Restaurant, error)
}

// FromPlace builds a restaurant row from a resolved place. The name is trimmed
// so every Store keys uniqueness on the same (name, country) pair.
func FromPlace(place mapslink.ResolvedPlace, countryID, id string, createdAt time.Time) Restaurant {
	return Restaurant{
		ID:          id,
		CountryID:   countryID,
		PlaceID:     place.PlaceID,
		Name:        strings.TrimSpace(place.Name),
		Address:     place.Address,
		Latitude:    place.Latitude,
		Longitude:   place.Longitude,
		Phone:       place.Phone,
		Website:     place.Website,
		PriceTier:   place.PriceTier,
		Description: place.Description,
		ImageRef:    place.ImageRef,
		CreatedAt:   createdAt,
	}
}

// IDGenerator produces restaurant IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// UUIDGenerator creates time-ordered UUIDv7 ids.
type UUIDGenerator struct{}

// NewID returns a UUIDv7 string.
func (UUIDGenerator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// SystemClock reports UTC wall time.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
