package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/announce"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/config"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/httpserver"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/metrics"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/rooms"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/signaling"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting audioshare-server",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"signaling_ws_idle_timeout", cfg.SignalingWSIdleTimeout,
		"signaling_ws_ping_interval", cfg.SignalingWSPingInterval,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
		"max_rooms", cfg.MaxRooms,
		"max_subscribers_per_room", cfg.MaxSubscribersPerRoom,
		"max_pending_candidates", cfg.MaxPendingCandidates,
		"redis_announce_enabled", cfg.Redis.Enabled(),
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
	)

	logStartupSecurityWarnings(logger, cfg)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)

	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})

	if cfg.TURNREST.Enabled() {
		gen, err := turnrest.New(turnrest.Config{
			SharedSecret:   cfg.TURNREST.SharedSecret,
			TTLSeconds:     cfg.TURNREST.TTLSeconds,
			UsernamePrefix: cfg.TURNREST.UsernamePrefix,
		})
		if err != nil {
			logger.Error("failed to configure turn rest credentials", "err", err)
			os.Exit(2)
		}
		srv.SetTURNREST(gen)
	}

	m := metrics.New()

	pub := announce.Publisher(announce.Nop{})
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pub = announce.NewRedis(logger, redisClient, cfg.Redis.Channel, m)
	}

	registry := rooms.NewRegistry(rooms.Limits{
		MaxRooms:              cfg.MaxRooms,
		MaxSubscribersPerRoom: cfg.MaxSubscribersPerRoom,
		MaxPendingCandidates:  cfg.MaxPendingCandidates,
	}, nil)

	sig := signaling.NewServer(signaling.Config{
		Logger:   logger,
		Registry: registry,
		Metrics:  m,
		Announce: pub,

		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		PingInterval:         cfg.SignalingWSPingInterval,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
	})
	srv.HandleWithOriginPolicy("GET /signal", sig)

	// Expose internal counters in Prometheus' text format, plus a plain
	// occupancy snapshot for dashboards.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))
	srv.Mux().Handle("GET /stats", sig.StatsHandler())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sig.Close()
		pub.Close()
		if err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	sig.Close()
	pub.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}

	if err := <-errCh; err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
