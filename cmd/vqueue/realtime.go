package main

import (
	"context"
	"expvar"
	"net/http"
	"time"

	"qms/virtual-queue/internal/auth"
	"qms/virtual-queue/internal/config"
	"qms/virtual-queue/internal/feed"
	"qms/virtual-queue/internal/httpapi"
	"qms/virtual-queue/internal/realtime"
	"qms/virtual-queue/internal/stats"
	"qms/virtual-queue/internal/store/postgres"
	"qms/virtual-queue/internal/telemetry"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func runRealtimeServerCmd(ctx context.Context, cfg config.Config) error {
	shutdownTelemetry := telemetry.Setup(ctx, "vqueue-realtime", telemetry.Config{Endpoint: cfg.OTel.Endpoint, Insecure: cfg.OTel.Insecure})
	defer shutdownWithTimeout(shutdownTelemetry)

	pool, err := newDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	sessions, closeSessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	return serveRealtime(ctx, cfg, postgres.NewStore(pool), sessions)
}

func serveRealtime(ctx context.Context, cfg config.Config, st backend, sessions auth.SessionStore) error {
	hub := realtime.New(log.Logger)
	handler := realtime.NewHandler(hub, newAuthService(cfg, st, sessions), log.Logger)

	tail := feed.NewTail(st, feed.InitialOffset(), cfg.Realtime.BatchSize)
	if err := tail.SkipExisting(ctx); err != nil {
		return err
	}
	go tail.Run(ctx, cfg.Realtime.PollInterval, hub.PublishEvents)

	poller := feed.NewPoller(st, st, feed.PollerConfig{
		Interval:  cfg.Realtime.PollInterval,
		BatchSize: cfg.Realtime.BatchSize,
		Stats:     statsOptions(cfg),
	})
	go func() {
		<-ctx.Done()
		_ = poller.Close()
	}()
	go func() {
		if err := stats.Watch(ctx, poller, statsOptions(cfg), nil, hub.PublishStats); err != nil {
			log.Error().Err(err).Msg("stats watch stopped")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/realtime/", handler.SockJS("/realtime"))

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimit.PerMinute,
		IPBurst:     cfg.RateLimit.Burst,
	})
	server := &http.Server{
		Addr:        ":" + cfg.Server.RealtimePort,
		Handler:     otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "vqueue-realtime"),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return listenUntilDone(ctx, server, "realtime")
}
