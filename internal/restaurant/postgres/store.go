// Package postgres provides a Postgres-backed restaurant store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/mapslink/internal/restaurant"
)

const uniqueViolation = "23505"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const columns = `id, country_id, place_id, name, address, latitude, longitude,
	phone, website, price_tier, description, image_ref, created_at`

// Config controls the Postgres connection pool used for restaurant rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store reads and writes restaurant rows.
type Store struct {
	pool  pool
	table string
}

// New creates a pooled Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "restaurants"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the table and its (lower(btrim(name)), country_id) unique index.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id          TEXT PRIMARY KEY,
	country_id  TEXT NOT NULL,
	place_id    TEXT NOT NULL,
	name        TEXT NOT NULL,
	address     TEXT NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	phone       TEXT,
	website     TEXT,
	price_tier  INTEGER CHECK (price_tier BETWEEN 1 AND 4),
	description TEXT NOT NULL DEFAULT '',
	image_ref   TEXT,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_name_country_key ON %[1]s (lower(btrim(name)), country_id);`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Create inserts a restaurant row. Unique violations map to restaurant.ErrConflict.
func (s *Store) Create(ctx context.Context, r restaurant.Restaurant) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	%s
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, s.table, columns)

	args := []any{
		r.ID,
		r.CountryID,
		r.PlaceID,
		r.Name,
		r.Address,
		r.Latitude,
		r.Longitude,
		r.Phone,
		r.Website,
		r.PriceTier,
		r.Description,
		r.ImageRef,
		r.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return restaurant.ErrConflict
		}
		return fmt.Errorf("insert restaurant: %w", err)
	}
	return nil
}

// Get fetches a restaurant by ID.
func (s *Store) Get(ctx context.Context, id string) (restaurant.Restaurant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, s.table)
	r, err := scanRestaurant(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return restaurant.Restaurant{}, restaurant.ErrNotFound
		}
		return restaurant.Restaurant{}, fmt.Errorf("select restaurant: %w", err)
	}
	return r, nil
}

// ListByCountry returns the country's restaurants, oldest first.
func (s *Store) ListByCountry(ctx context.Context, countryID string) ([]restaurant.Restaurant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE country_id = $1 ORDER BY created_at, name`, columns, s.table)
	rows, err := s.pool.Query(ctx, query, countryID)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	defer rows.Close()

	out := make([]restaurant.Restaurant, 0)
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restaurants: %w", err)
	}
	return out, nil
}

func scanRestaurant(row pgx.Row) (restaurant.Restaurant, error) {
	var r restaurant.Restaurant
	err := row.Scan(
		&r.ID,
		&r.CountryID,
		&r.PlaceID,
		&r.Name,
		&r.Address,
		&r.Latitude,
		&r.Longitude,
		&r.Phone,
		&r.Website,
		&r.PriceTier,
		&r.Description,
		&r.ImageRef,
		&r.CreatedAt,
	)
	return r, err
}
