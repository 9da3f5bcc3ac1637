package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"qms/virtual-queue/internal/auth"
	"qms/virtual-queue/internal/config"
	"qms/virtual-queue/internal/httpapi"
	"qms/virtual-queue/internal/notify"
	"qms/virtual-queue/internal/queue"
	"qms/virtual-queue/internal/store/postgres"
	"qms/virtual-queue/internal/telemetry"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 10 * time.Second

func runHTTPServerCmd(ctx context.Context, cfg config.Config) error {
	shutdownTelemetry := telemetry.Setup(ctx, "vqueue-http", telemetry.Config{Endpoint: cfg.OTel.Endpoint, Insecure: cfg.OTel.Insecure})
	defer shutdownWithTimeout(shutdownTelemetry)

	pool, err := newDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	st := postgres.NewStore(pool)

	sessions, closeSessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	dispatcher, closeDispatcher, err := newDispatcher(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer closeDispatcher()

	return serveHTTP(ctx, cfg, st, sessions, dispatcher)
}

func serveHTTP(ctx context.Context, cfg config.Config, st backend, sessions auth.SessionStore, dispatcher notify.Dispatcher) error {
	queueService := queue.NewService(st, st, st, dispatcher, queue.Options{
		ServiceMinutes: cfg.Queue.ServiceMinutes,
		HistoryLimit:   cfg.Queue.HistoryLimit,
	})
	handler := httpapi.NewHandler(queueService, newAuthService(cfg, st, sessions), httpapi.Options{Stats: statsOptions(cfg)})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimit.PerMinute,
		IPBurst:          cfg.RateLimit.Burst,
		SessionPerMinute: cfg.RateLimit.SessionPerMinute,
		SessionBurst:     cfg.RateLimit.SessionBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(handler.Routes())), "vqueue-http"),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return listenUntilDone(ctx, server, "http")
}

// listenUntilDone serves until ctx is cancelled, then shuts down gracefully.
func listenUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("server", name).Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Str("server", name).Msg("stopped")
	return nil
}

func shutdownWithTimeout(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("telemetry shutdown")
	}
}
