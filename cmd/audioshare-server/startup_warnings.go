package main

import (
	"log/slog"

	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	// The signaling protocol has no authentication layer: any origin-allowed
	// client may claim or reclaim any room id (last claim wins). Deployments
	// must front this server with their own auth when that matters.
	logger.Warn("startup security warning: signaling endpoints are unauthenticated; room claims are last-claim-wins",
		"warning_code", "signaling_unauthenticated",
		"mode", cfg.Mode,
	)

	if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxRooms <= 0 {
		logger.Warn("startup security warning: AUDIOSHARE_MAX_ROOMS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_rooms_unlimited_in_prod",
			"max_rooms", cfg.MaxRooms,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxPendingCandidates <= 0 {
		logger.Warn("startup security warning: AUDIOSHARE_MAX_PENDING_CANDIDATES is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_pending_candidates_unlimited_in_prod",
			"max_pending_candidates", cfg.MaxPendingCandidates,
			"mode", cfg.Mode,
		)
	}

	// SDP offers and trickle candidates are a few KB each; a much larger cap
	// weakens the per-message allocation hardening.
	if cfg.MaxSignalingMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (increases per-message allocation risk)",
			"warning_code", "signaling_message_size_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.Redis.Enabled() && cfg.Redis.Password == "" {
		logger.Warn("startup security warning: room announcements publish to Redis without a password while --mode=prod",
			"warning_code", "redis_announce_without_password",
			"redis_addr", cfg.Redis.Addr,
			"mode", cfg.Mode,
		)
	}
}

func containsString(xs []string, v string) bool {
	for _, s := range xs {
		if s == v {
			return true
		}
	}
	return false
}
