package acquire

import "testing"

// TestIsChallenge tests bot-challenge detection.
func TestIsChallenge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want bool
	}{
		{name: "empty", html: "", want: false},
		{name: "listing", html: "<html><head><title>Mobiles | Shop</title></head><body><a href='/p/1'>x</a></body></html>", want: false},
		{name: "just a moment", html: "<html><head><title>Just a moment...</title></head></html>", want: true},
		{name: "attention required", html: "<title>Attention Required! | Cloudflare</title>", want: true},
		{name: "challenge form", html: `<html><body><form id="challenge-form"></form></body></html>`, want: true},
		{name: "challenge script", html: `<script src="/cdn-cgi/challenge-platform/h/b/orchestrate/jsch/v1"></script>`, want: true},
		{name: "turnstile iframe", html: `<iframe src="https://challenges.cloudflare.com/cdn/x"></iframe>`, want: true},
		{name: "title mention is not a challenge", html: "<title>Cloudflare stickers</title>", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsChallenge(tt.html); got != tt.want {
				t.Errorf("IsChallenge() = %v, want %v", got, tt.want)
			}
		})
	}
}
