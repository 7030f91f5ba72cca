// Package api hosts the HTTP server, middleware, and JSON handlers. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/places/resolve to turn a Google Maps link into normalized place details.
//   - POST /v1/restaurants/import to resolve a link and store it as a restaurant.
//   - GET /v1/restaurants/{id} and /v1/countries/{country_id}/restaurants for reads.
//   - GET /v1/places/photo?ref=...&maxwidth=... to proxy place photos.
//
// Pipeline failures are rendered as {"error", "kind", "stage"} where error is the
// user-facing message for the failure kind.
package api
