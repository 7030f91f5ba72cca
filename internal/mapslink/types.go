package mapslink

import "time"

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PlaceInfoKind identifies which of the mutually exclusive PlaceInfo shapes is populated.
type PlaceInfoKind string

// PlaceInfo shapes.
const (
	PlaceInfoPlaceID     PlaceInfoKind = "place_id"
	PlaceInfoCoordinates PlaceInfoKind = "coordinates"
	PlaceInfoName        PlaceInfoKind = "name"
)

// PlaceInfo is what the extractor recovers from a canonical maps URL.
// Exactly one of PlaceID, Coordinates or a lone NameHint is meaningful; NameHint may
// accompany Coordinates.
type PlaceInfo struct {
	PlaceID     string       `json:"place_id,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	NameHint    string       `json:"name_hint,omitempty"`
}

// Kind reports the populated shape.
func (p PlaceInfo) Kind() PlaceInfoKind {
	switch {
	case p.PlaceID != "":
		return PlaceInfoPlaceID
	case p.Coordinates != nil:
		return PlaceInfoCoordinates
	default:
		return PlaceInfoName
	}
}

// ResolvedPlace is the normalized place record handed to restaurant creation.
// Latitude and Longitude are always set.
type ResolvedPlace struct {
	PlaceID     string  `json:"place_id"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	Latitude    float64 `json:"latitude,string"`
	Longitude   float64 `json:"longitude,string"`
	Phone       *string `json:"phone,omitempty"`
	Website     *string `json:"website,omitempty"`
	PriceTier   *int    `json:"price_tier,omitempty"`
	Description string  `json:"description,omitempty"`
	ImageRef    *string `json:"image_ref,omitempty"`
}

// Stage names a step of the resolution pipeline.
type Stage string

// Pipeline stages in execution order, plus the terminal states.
const (
	StageValidating       Stage = "validating"
	StageResolving        Stage = "resolving"
	StageExtracting       Stage = "extracting"
	StageIdentifyingPlace Stage = "identifying_place"
	StageFetchingDetails  Stage = "fetching_details"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// Config tunes the resolution pipeline.
type Config struct {
	AllowedHosts        []string
	ShortenerHosts      []string
	ExpandTimeout       time.Duration
	MaxRedirects        int
	NearbyRadiusMeters  int
	DescriptionMaxChars int
	DedupeInFlight      bool
}

// DefaultAllowedHosts are the maps hosts accepted by the validator.
var DefaultAllowedHosts = []string{"google.com", "maps.google.com", "goo.gl", "maps.app.goo.gl"}

// DefaultShortenerHosts are hosts whose links must be expanded before extraction.
var DefaultShortenerHosts = []string{"goo.gl", "maps.app.goo.gl"}

// DefaultConfig returns the stock pipeline settings.
func DefaultConfig() Config {
	return Config{
		AllowedHosts:        append([]string(nil), DefaultAllowedHosts...),
		ShortenerHosts:      append([]string(nil), DefaultShortenerHosts...),
		ExpandTimeout:       10 * time.Second,
		MaxRedirects:        10,
		NearbyRadiusMeters:  100,
		DescriptionMaxChars: 500,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if len(c.AllowedHosts) == 0 {
		c.AllowedHosts = def.AllowedHosts
	}
	if len(c.ShortenerHosts) == 0 {
		c.ShortenerHosts = def.ShortenerHosts
	}
	if c.ExpandTimeout <= 0 {
		c.ExpandTimeout = def.ExpandTimeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = def.MaxRedirects
	}
	if c.NearbyRadiusMeters <= 0 {
		c.NearbyRadiusMeters = def.NearbyRadiusMeters
	}
	if c.DescriptionMaxChars <= 0 {
		c.DescriptionMaxChars = def.DescriptionMaxChars
	}
	return c
}
