package mapslink

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	// !3d<lat>!4d<lng> is the pinned location inside a maps data blob.
	dataCoordsRe = regexp.MustCompile(`!3d(-?\d+(?:\.\d+)?)!4d(-?\d+(?:\.\d+)?)`)
	// @<lat>,<lng> is the viewport center.
	viewportRe = regexp.MustCompile(`@(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)
	// query=<lat>,<lng> in Maps URLs search links.
	latLngParamRe = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*$`)
)

var placeIDParams = []string{"place_id", "query_place_id"}

var nameParams = []string{"q", "query"}

// Extract recovers place information from a canonical maps URL. It tries, in order:
// an explicit place id parameter, coordinates in the data blob, the viewport marker,
// a "lat,lng" q or query parameter, and finally a bare name. It returns nil when the URL carries none of them.
func Extract(canonical string) *PlaceInfo {
	u, err := url.Parse(strings.TrimSpace(canonical))
	if err != nil {
		return nil
	}
	query := u.Query()

	for _, key := range placeIDParams {
		if id := strings.TrimSpace(query.Get(key)); id != "" {
			return &PlaceInfo{PlaceID: id}
		}
	}

	segments := pathSegments(u)
	placeName := segmentAfter(segments, "place")

	if coords, ok := dataBlobCoordinates(query, segments); ok {
		return &PlaceInfo{Coordinates: &coords, NameHint: placeName}
	}

	if coords, ok := matchCoordinates(viewportRe, u.Path); ok {
		return &PlaceInfo{Coordinates: &coords, NameHint: placeName}
	}
	for _, key := range nameParams {
		if coords, ok := matchCoordinates(latLngParamRe, query.Get(key)); ok {
			return &PlaceInfo{Coordinates: &coords, NameHint: placeName}
		}
	}

	if placeName != "" {
		return &PlaceInfo{NameHint: placeName}
	}
	if name := segmentAfter(segments, "search"); name != "" {
		return &PlaceInfo{NameHint: name}
	}
	for _, key := range nameParams {
		if name := cleanName(query.Get(key)); name != "" {
			return &PlaceInfo{NameHint: name}
		}
	}
	return nil
}

func dataBlobCoordinates(query url.Values, segments []string) (Coordinates, bool) {
	if blob := query.Get("data"); blob != "" {
		if coords, ok := matchCoordinates(dataCoordsRe, blob); ok {
			return coords, true
		}
	}
	for _, seg := range segments {
		if !strings.HasPrefix(seg, "data=") {
			continue
		}
		if coords, ok := matchCoordinates(dataCoordsRe, seg); ok {
			return coords, true
		}
	}
	return Coordinates{}, false
}

func matchCoordinates(re *regexp.Regexp, s string) (Coordinates, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return Coordinates{}, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Coordinates{}, false
	}
	lng, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Coordinates{}, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Coordinates{}, false
	}
	return Coordinates{Lat: lat, Lng: lng}, true
}

func pathSegments(u *url.URL) []string {
	raw := strings.Split(u.EscapedPath(), "/")
	out := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg == "" {
			continue
		}
		if decoded, err := url.PathUnescape(seg); err == nil {
			seg = decoded
		}
		out = append(out, seg)
	}
	return out
}

// segmentAfter returns the cleaned segment following marker, e.g. "Test Cafe" for
// /maps/place/Test+Cafe/@1,2.
func segmentAfter(segments []string, marker string) string {
	for i, seg := range segments {
		if seg == marker && i+1 < len(segments) {
			next := segments[i+1]
			if strings.HasPrefix(next, "@") || strings.HasPrefix(next, "data=") {
				return ""
			}
			return cleanName(next)
		}
	}
	return ""
}

func cleanName(s string) string {
	s = strings.ReplaceAll(s, "+", " ")
	return strings.Join(strings.Fields(s), " ")
}
