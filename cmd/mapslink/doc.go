// Package main hosts the mapslink service.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, link resolution, restaurant import and
//     photo proxy endpoints behind request-id, logging, recovery, timeout and optional API key middleware.
//   - Pipeline: internal/mapslink validates the link host, expands maps.app.goo.gl / goo.gl short links by
//     following redirects, extracts a place id, coordinates or name from the canonical URL, identifies the
//     place through the Places API and normalizes its details. Every failure carries a kind and the stage
//     it happened in.
//   - Places: internal/places is a rate limited client for the Places web service (nearby search, text
//     search, details, photo). The API key is only ever sent upstream.
//   - Persistence & fanout: restaurants are stored in Postgres when database.dsn is set, otherwise in
//     memory. A restaurant.imported event goes to Pub/Sub when pubsub.project_id is set.
//
// Quick checklist:
//   - Configure env vars: GOOGLE_PLACES_API_KEY (or MAPSLINK_PLACES_API_KEY), MAPSLINK_SERVER_PORT,
//     MAPSLINK_DATABASE_DSN, MAPSLINK_PUBSUB_PROJECT_ID, MAPSLINK_AUTH_ENABLED / MAPSLINK_AUTH_API_KEY.
//   - Run locally: go run ./cmd/mapslink -config config.yaml (or rely solely on env overrides).
package main
