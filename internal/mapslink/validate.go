package mapslink

import (
	"net/url"
	"strings"
)

// IsValidURL reports whether raw is an http(s) URL whose host, minus a leading "www.",
// equals or is a subdomain of one of the allowed hosts. Unparseable input is invalid.
func IsValidURL(raw string, allowed []string) bool {
	host, ok := hostOf(raw)
	if !ok {
		return false
	}
	return hostMatches(host, allowed)
}

func hostOf(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", false
	}
	return host, true
}

func hostMatches(host string, allowed []string) bool {
	for _, a := range allowed {
		a = strings.TrimPrefix(strings.ToLower(a), "www.")
		if a == "" {
			continue
		}
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}
