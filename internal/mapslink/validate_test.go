package mapslink

import "testing"

func TestIsValidURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"short link", "https://maps.app.goo.gl/abc123", true},
		{"legacy short link", "https://goo.gl/maps/xyz", true},
		{"google maps", "https://www.google.com/maps/place/Test+Cafe/@1.35,103.81,17z", true},
		{"maps subdomain", "https://maps.google.com/?cid=123", true},
		{"uppercase host", "https://WWW.GOOGLE.COM/maps", true},
		{"evil host", "https://evil.com/place/x", false},
		{"lookalike host", "https://notgoogle.com/maps/place/x", false},
		{"suffix trick", "https://google.com.evil.com/maps", false},
		{"ftp scheme", "ftp://google.com/maps", false},
		{"no scheme", "google.com/maps", false},
		{"empty", "", false},
		{"garbage", "http://%zz", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsValidURL(tt.raw, DefaultAllowedHosts); got != tt.want {
				t.Fatalf("IsValidURL(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
