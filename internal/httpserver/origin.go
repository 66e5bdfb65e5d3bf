package httpserver

import (
	"net/http"
	"strings"

	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/origin"
)

// HandleWithOriginPolicy registers h behind the browser origin policy
// (allowlist check, CORS headers, preflight). The signaling WebSocket
// endpoint is mounted through this so cross-site pages cannot open rooms.
// Like Mux, it must only be called during startup before Serve.
func (s *Server) HandleWithOriginPolicy(pattern string, h http.Handler) {
	s.mux.Handle(pattern, s.withOriginPolicy(h.ServeHTTP))
}

func (s *Server) withOriginPolicy(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Origin"))
		if header == "" {
			// Non-browser clients (curl, probes) send no Origin header and are
			// not subject to the browser policy.
			next(w, r)
			return
		}

		o, ok := origin.Parse(header)
		if !ok || !o.Allowed(r.Host, s.cfg.AllowedOrigins) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		// CORS headers are only needed for cross-origin browsers, but echoing
		// the normalized origin is harmless for same-origin requests and lets
		// the frontend run on a separate origin during development.
		w.Header().Set("Access-Control-Allow-Origin", o.String())
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		w.Header().Add("Vary", "Origin")

		// Basic preflight support. The per-route handler doesn't need to run
		// for preflight.
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			if requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers")); requestHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
			}
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}
