package httpserver

import (
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/turnrest"
)

// withEphemeralCredentials copies the ICE server list, overwriting the
// username/credential of every TURN entry with the minted TURN REST pair.
// STUN entries pass through untouched.
func withEphemeralCredentials(servers []webrtc.ICEServer, creds turnrest.Credentials) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if hasTURNURL(server) {
			out[i].Username = creds.Username
			out[i].Credential = creds.Credential
		}
	}
	return out
}

func hasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		if isTURNScheme(strings.TrimSpace(raw)) {
			return true
		}
	}
	return false
}

// isTURNScheme matches turn: and turns: URLs. Scheme comparison is
// case-insensitive per RFC 3986.
func isTURNScheme(url string) bool {
	i := strings.IndexByte(url, ':')
	if i <= 0 {
		return false
	}
	switch strings.ToLower(url[:i]) {
	case "turn", "turns":
		return true
	}
	return false
}
