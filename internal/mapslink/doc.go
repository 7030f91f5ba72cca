// Package mapslink resolves user-shared Google Maps links into normalized place records.
//
// A resolution is a straight line of fallible stages:
//   - validating: the host must be an allow-listed maps or shortener domain.
//   - resolving: shortener links are expanded by following redirects (10s budget).
//   - extracting: the canonical URL is mined for a place id, data-blob coordinates,
//     viewport coordinates, or a bare name, in that order.
//   - identifying_place: coordinates go through a nearby search, names through a text search.
//   - fetching_details: details are fetched and normalized; a place without coordinates
//     is never returned.
//
// Any stage can fail with an *Error whose Kind has its own user-facing message. Nothing is
// retried; callers re-submit.
package mapslink
