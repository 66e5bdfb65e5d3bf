package httpserver

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestHasTURNURL(t *testing.T) {
	tests := []struct {
		name string
		urls []string
		want bool
	}{
		{"stun only", []string{"stun:stun.example.com:3478"}, false},
		{"turn udp", []string{"turn:turn.example.com:3478?transport=udp"}, true},
		{"turns tls", []string{"turns:turn.example.com:5349"}, true},
		{"uppercase scheme", []string{"TURN:turn.example.com:3478"}, true},
		{"leading whitespace", []string{"  turn:turn.example.com:3478"}, true},
		{"mixed", []string{"stun:stun.example.com:3478", "turn:turn.example.com:3478"}, true},
		{"no scheme", []string{"turn.example.com:3478"}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hasTURNURL(webrtc.ICEServer{URLs: tt.urls})
			if got != tt.want {
				t.Fatalf("hasTURNURL(%v) = %v, want %v", tt.urls, got, tt.want)
			}
		})
	}
}
