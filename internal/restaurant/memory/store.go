// Package memory provides an in-memory restaurant store for development/testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/mapslink/internal/restaurant"
)

// Store keeps restaurants in maps guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]restaurant.Restaurant
	byNames map[string]string
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{
		byID:    make(map[string]restaurant.Restaurant),
		byNames: make(map[string]string),
	}
}

// Create inserts r, rejecting duplicate ids and duplicate (name, country) pairs.
func (s *Store) Create(_ context.Context, r restaurant.Restaurant) error {
	key := uniqueKey(r.Name, r.CountryID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[r.ID]; exists {
		return restaurant.ErrConflict
	}
	if _, exists := s.byNames[key]; exists {
		return restaurant.ErrConflict
	}
	s.byID[r.ID] = r
	s.byNames[key] = r.ID
	return nil
}

// Get fetches a restaurant by ID.
func (s *Store) Get(_ context.Context, id string) (restaurant.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return restaurant.Restaurant{}, restaurant.ErrNotFound
	}
	return r, nil
}

// ListByCountry returns the country's restaurants, oldest first.
func (s *Store) ListByCountry(_ context.Context, countryID string) ([]restaurant.Restaurant, error) {
	s.mu.RLock()
	out := make([]restaurant.Restaurant, 0)
	for _, r := range s.byID {
		if r.CountryID == countryID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func uniqueKey(name, countryID string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x00" + countryID
}
