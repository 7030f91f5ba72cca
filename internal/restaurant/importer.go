package restaurant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mapslink/internal/mapslink"
	"github.com/JakeFAU/mapslink/internal/metrics"
)

// PlaceResolver turns a maps URL into a resolved place.
type PlaceResolver interface {
	Resolve(ctx context.Context, raw string) (mapslink.ResolvedPlace, error)
}

// Publisher pushes import events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ImportedEvent is published after a restaurant row is created.
type ImportedEvent struct {
	Type         string    `json:"type"`
	RestaurantID string    `json:"restaurant_id"`
	CountryID    string    `json:"country_id"`
	PlaceID      string    `json:"place_id"`
	Name         string    `json:"name"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	ImportedAt   time.Time `json:"imported_at"`
}

// EventType names the event for message attributes.
func (ImportedEvent) EventType() string { return importedEventType }

const importedEventType = "restaurant.imported"

// ImporterConfig configures event publishing.
type ImporterConfig struct {
	Topic          string
	PublishTimeout time.Duration
}

// Importer resolves a maps link and creates the restaurant it points at.
type Importer struct {
	resolver  PlaceResolver
	store     Store
	publisher Publisher
	idGen     IDGenerator
	clock     Clock
	cfg       ImporterConfig
	logger    *zap.Logger
}

// NewImporter wires an Importer. publisher may be nil to skip events.
func NewImporter(
	resolver PlaceResolver,
	store Store,
	publisher Publisher,
	idGen IDGenerator,
	clock Clock,
	cfg ImporterConfig,
	logger *zap.Logger,
) *Importer {
	if idGen == nil {
		idGen = UUIDGenerator{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Importer{
		resolver:  resolver,
		store:     store,
		publisher: publisher,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Import resolves rawURL and stores it under countryID. Resolution failures are returned
// as *mapslink.Error; duplicates as ErrConflict.
func (i *Importer) Import(ctx context.Context, rawURL, countryID string) (Restaurant, error) {
	countryID = strings.TrimSpace(countryID)
	if countryID == "" {
		metrics.ObserveImport("invalid")
		return Restaurant{}, ErrCountryRequired
	}

	place, err := i.resolver.Resolve(ctx, rawURL)
	if err != nil {
		outcome := string(mapslink.KindOf(err))
		if outcome == "" {
			outcome = "resolve_error"
		}
		metrics.ObserveImport(outcome)
		return Restaurant{}, err
	}

	id, err := i.idGen.NewID()
	if err != nil {
		metrics.ObserveImport("error")
		return Restaurant{}, fmt.Errorf("generate restaurant id: %w", err)
	}
	rec := FromPlace(place, countryID, id, i.clock.Now())
	if err := i.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.ObserveImport("conflict")
			return Restaurant{}, err
		}
		metrics.ObserveImport("error")
		return Restaurant{}, fmt.Errorf("create restaurant: %w", err)
	}
	metrics.ObserveImport("ok")
	i.logger.Info("restaurant imported",
		zap.String("restaurant_id", rec.ID),
		zap.String("country_id", rec.CountryID),
		zap.String("place_id", rec.PlaceID),
	)

	i.publish(ctx, rec)
	return rec, nil
}

func (i *Importer) publish(ctx context.Context, rec Restaurant) {
	if i.publisher == nil || i.cfg.Topic == "" {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, i.cfg.PublishTimeout)
	defer cancel()
	event := ImportedEvent{
		Type:         importedEventType,
		RestaurantID: rec.ID,
		CountryID:    rec.CountryID,
		PlaceID:      rec.PlaceID,
		Name:         rec.Name,
		Latitude:     rec.Latitude,
		Longitude:    rec.Longitude,
		ImportedAt:   rec.CreatedAt,
	}
	msgID, err := i.publisher.Publish(pubCtx, i.cfg.Topic, event)
	if err != nil {
		i.logger.Warn("publish import event failed", zap.String("restaurant_id", rec.ID), zap.Error(err))
		return
	}
	i.logger.Debug("import event published", zap.String("message_id", msgID))
}
