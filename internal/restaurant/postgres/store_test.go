package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mapslink/internal/restaurant"
)

var columnNames = []string{
	"id", "country_id", "place_id", "name", "address", "latitude", "longitude",
	"phone", "website", "price_tier", "description", "image_ref", "created_at",
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func sampleRestaurant() restaurant.Restaurant {
	return restaurant.Restaurant{
		ID:          "r-1",
		CountryID:   "sg",
		PlaceID:     "ChIJ123",
		Name:        "Kopi Corner",
		Address:     "1 Orchard Rd",
		Latitude:    1.3521,
		Longitude:   103.8198,
		Phone:       strPtr("+65 6000 0000"),
		PriceTier:   intPtr(2),
		Description: "Kaya toast.",
		CreatedAt:   time.Unix(1700000000, 0).UTC(),
	}
}

func fields(r restaurant.Restaurant) []any {
	return []any{
		r.ID, r.CountryID, r.PlaceID, r.Name, r.Address, r.Latitude, r.Longitude,
		r.Phone, r.Website, r.PriceTier, r.Description, r.ImageRef, r.CreatedAt,
	}
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock, "restaurants")
	require.NoError(t, err)
	return store, mock
}

func TestCreateInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := sampleRestaurant()

	mock.ExpectExec("INSERT INTO restaurants").
		WithArgs(fields(rec)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := sampleRestaurant()

	mock.ExpectExec("INSERT INTO restaurants").
		WithArgs(fields(rec)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "restaurants_name_country_key"})

	err := store.Create(context.Background(), rec)
	require.ErrorIs(t, err, restaurant.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWrapsOtherErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := sampleRestaurant()

	mock.ExpectExec("INSERT INTO restaurants").
		WithArgs(fields(rec)...).
		WillReturnError(errors.New("connection reset"))

	err := store.Create(context.Background(), rec)
	require.Error(t, err)
	require.NotErrorIs(t, err, restaurant.ErrConflict)
	require.Contains(t, err.Error(), "insert restaurant")
}

func TestGetScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := sampleRestaurant()

	mock.ExpectQuery("SELECT (.+) FROM restaurants WHERE id").
		WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows(columnNames).AddRow(fields(rec)...))

	got, err := store.Get(context.Background(), "r-1")
	require.NoError(t, err)
	require.Equal(t, rec, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM restaurants WHERE id").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, restaurant.ErrNotFound)
}

func TestListByCountry(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	first := sampleRestaurant()
	second := sampleRestaurant()
	second.ID = "r-2"
	second.Name = "Hawker Hall"
	second.PriceTier = nil
	second.CreatedAt = first.CreatedAt.Add(time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM restaurants WHERE country_id").
		WithArgs("sg").
		WillReturnRows(pgxmock.NewRows(columnNames).
			AddRow(fields(first)...).
			AddRow(fields(second)...))

	list, err := store.ListByCountry(context.Background(), "sg")
	require.NoError(t, err)
	require.Equal(t, []restaurant.Restaurant{first, second}, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS restaurants.*ON restaurants \(lower\(btrim\(name\)\), country_id\)`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectPing()

	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad;table")
	require.Error(t, err)
	_, err = NewWithPool(nil, "restaurants")
	require.Error(t, err)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "restaurants", store.table)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
