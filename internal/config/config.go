// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/mapslink/internal/mapslink"
	"github.com/JakeFAU/mapslink/internal/places"
	"github.com/JakeFAU/mapslink/internal/restaurant"
	"github.com/JakeFAU/mapslink/internal/restaurant/postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Places   PlacesConfig   `mapstructure:"places"`
	Links    LinksConfig    `mapstructure:"links"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Database DatabaseConfig `mapstructure:"database"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PlacesConfig configures the Google Places web service client and photo proxy.
type PlacesConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RPS               float64 `mapstructure:"rps"`
	Burst             int     `mapstructure:"burst"`
	PhotoMaxWidth     int     `mapstructure:"photo_max_width"`
	PhotoCacheSeconds int     `mapstructure:"photo_cache_seconds"`
}

// LinksConfig governs which maps links are accepted and how short links are expanded.
type LinksConfig struct {
	AllowedHosts         []string `mapstructure:"allowed_hosts"`
	ShortenerHosts       []string `mapstructure:"shortener_hosts"`
	ExpandTimeoutSeconds int      `mapstructure:"expand_timeout_seconds"`
	MaxRedirects         int      `mapstructure:"max_redirects"`
}

// ResolverConfig tunes place identification and normalization.
type ResolverConfig struct {
	NearbyRadiusMeters  int  `mapstructure:"nearby_radius_meters"`
	DescriptionMaxChars int  `mapstructure:"description_max_chars"`
	DedupeInFlight      bool `mapstructure:"dedupe_in_flight"`
}

// DatabaseConfig controls the restaurant store. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for import notifications. An empty project keeps events in memory.
type PubSubConfig struct {
	ProjectID             string `mapstructure:"project_id"`
	TopicName             string `mapstructure:"topic_name"`
	PublishTimeoutSeconds int    `mapstructure:"publish_timeout_seconds"`
	VerifyTopic           bool   `mapstructure:"verify_topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MAPSLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return Config{}, err
	}
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindEnv lets the conventional Google variable names stand in for the prefixed ones.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"places.api_key":  {"MAPSLINK_PLACES_API_KEY", "GOOGLE_PLACES_API_KEY"},
		"places.base_url": {"MAPSLINK_PLACES_BASE_URL", "GOOGLE_PLACES_BASE_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("places.base_url", places.DefaultBaseURL)
	v.SetDefault("places.timeout_seconds", 15)
	v.SetDefault("places.rps", 10)
	v.SetDefault("places.burst", 5)
	v.SetDefault("places.photo_max_width", 400)
	v.SetDefault("places.photo_cache_seconds", 86400)
	v.SetDefault("links.allowed_hosts", mapslink.DefaultAllowedHosts)
	v.SetDefault("links.shortener_hosts", mapslink.DefaultShortenerHosts)
	v.SetDefault("links.expand_timeout_seconds", 10)
	v.SetDefault("links.max_redirects", 10)
	v.SetDefault("resolver.nearby_radius_meters", 100)
	v.SetDefault("resolver.description_max_chars", 500)
	v.SetDefault("resolver.dedupe_in_flight", false)
	v.SetDefault("database.table", "restaurants")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.max_conn_lifetime_minutes", 30)
	v.SetDefault("pubsub.topic_name", "restaurant-events")
	v.SetDefault("pubsub.publish_timeout_seconds", 5)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Places.BaseURL == "" {
		return fmt.Errorf("places.base_url must be set")
	}
	if c.Places.APIKey == "" {
		return fmt.Errorf("places.api_key must be set (or GOOGLE_PLACES_API_KEY)")
	}
	if c.Places.Burst < 0 || c.Places.RPS < 0 {
		return fmt.Errorf("places.rps and places.burst must be >= 0")
	}
	if c.Links.ExpandTimeoutSeconds <= 0 {
		return fmt.Errorf("links.expand_timeout_seconds must be > 0")
	}
	if c.Resolver.NearbyRadiusMeters <= 0 {
		return fmt.Errorf("resolver.nearby_radius_meters must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RequestTimeout is the per-request budget enforced by the HTTP middleware.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// PhotoCacheMaxAge is the Cache-Control max-age for proxied photos.
func (c Config) PhotoCacheMaxAge() time.Duration {
	return time.Duration(c.Places.PhotoCacheSeconds) * time.Second
}

// PlacesClient converts the places section into client settings.
func (c Config) PlacesClient() places.Config {
	return places.Config{
		BaseURL: c.Places.BaseURL,
		APIKey:  c.Places.APIKey,
		Timeout: time.Duration(c.Places.TimeoutSeconds) * time.Second,
		RPS:     c.Places.RPS,
		Burst:   c.Places.Burst,
	}
}

// Pipeline converts the links and resolver sections into pipeline settings.
func (c Config) Pipeline() mapslink.Config {
	return mapslink.Config{
		AllowedHosts:        c.Links.AllowedHosts,
		ShortenerHosts:      c.Links.ShortenerHosts,
		ExpandTimeout:       time.Duration(c.Links.ExpandTimeoutSeconds) * time.Second,
		MaxRedirects:        c.Links.MaxRedirects,
		NearbyRadiusMeters:  c.Resolver.NearbyRadiusMeters,
		DescriptionMaxChars: c.Resolver.DescriptionMaxChars,
		DedupeInFlight:      c.Resolver.DedupeInFlight,
	}
}

// Postgres converts the database section into store settings.
func (c Config) Postgres() postgres.Config {
	return postgres.Config{
		DSN:             c.Database.DSN,
		Table:           c.Database.Table,
		MaxConns:        c.Database.MaxConns,
		MinConns:        c.Database.MinConns,
		MaxConnLifetime: time.Duration(c.Database.MaxConnLifetimeMinutes) * time.Minute,
	}
}

// Importer converts the pubsub section into importer settings.
func (c Config) Importer() restaurant.ImporterConfig {
	return restaurant.ImporterConfig{
		Topic:          c.PubSub.TopicName,
		PublishTimeout: time.Duration(c.PubSub.PublishTimeoutSeconds) * time.Second,
	}
}
