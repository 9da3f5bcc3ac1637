package main

import (
	"context"
	"fmt"

	"qms/virtual-queue/internal/auth"
	"qms/virtual-queue/internal/config"
	"qms/virtual-queue/internal/notify"
	"qms/virtual-queue/internal/stats"
	"qms/virtual-queue/internal/store"
	"qms/virtual-queue/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

// backend is everything the servers need from storage. Both the Postgres
// and the in-memory store provide it.
type backend interface {
	store.TicketStore
	store.LocationStore
	store.ProfileStore
	store.AccountStore
}

func newDB(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("db.dsn (DB_DSN) is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse db dsn: %w", err)
	}
	if cfg.DB.MaxConns > 0 {
		poolCfg.MaxConns = cfg.DB.MaxConns
	}
	if cfg.DB.MinConns > 0 {
		poolCfg.MinConns = cfg.DB.MinConns
	}
	poolCfg.ConnConfig.Tracer = telemetry.PgxTracer{}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

// newSessionStore uses Redis when an address is configured and falls back
// to process memory otherwise.
func newSessionStore(ctx context.Context, cfg config.Config) (auth.SessionStore, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Warn().Msg("redis.addr not set, sessions are kept in memory")
		return auth.NewMemorySessionStore(nil), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return auth.NewRedisSessionStore(client), func() { _ = client.Close() }, nil
}

func newJetStream(cfg config.Config) (jetstream.JetStream, func(), error) {
	conn, err := nats.Connect(cfg.NATS.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return js, conn.Close, nil
}

func newBranding(cfg config.Config) notify.Branding {
	branding := notify.Branding{
		FromName:     cfg.Notify.FromName,
		AppName:      cfg.Notify.AppName,
		SupportEmail: cfg.Notify.SupportEmail,
	}
	if tag, err := language.Parse(cfg.Notify.Language); err == nil {
		branding.Language = tag
	} else {
		log.Warn().Err(err).Str("language", cfg.Notify.Language).Msg("unknown notify.language, using English")
	}
	if loc, err := cfg.StatsLocation(); err == nil {
		branding.Location = loc
	}
	return branding
}

func newWorker(cfg config.Config, recorder notify.Recorder) *notify.Worker {
	provider := notify.NewProvider(notify.ProviderConfig{
		Kind:         cfg.Notify.Provider,
		WebhookURL:   cfg.Notify.WebhookURL,
		WebhookToken: cfg.Notify.WebhookToken,
		SMTPHost:     cfg.Notify.SMTP.Host,
		SMTPPort:     cfg.Notify.SMTP.Port,
		SMTPUser:     cfg.Notify.SMTP.User,
		SMTPPassword: cfg.Notify.SMTP.Password,
		SMTPFrom:     cfg.Notify.SMTP.From,
	})
	return notify.NewWorker(provider, recorder, newBranding(cfg), cfg.Notify.Timeout)
}

// newDispatcher publishes notices to JetStream when NATS is configured, so
// that serve-notifier sends them. Without NATS the notices are sent by an
// in-process worker pool.
func newDispatcher(ctx context.Context, cfg config.Config, recorder notify.Recorder) (notify.Dispatcher, func(), error) {
	if cfg.NATS.Addr == "" {
		dispatcher := notify.NewAsyncDispatcher(newWorker(cfg, recorder), cfg.Notify.Workers, cfg.Notify.Buffer)
		return dispatcher, dispatcher.Close, nil
	}
	js, closeConn, err := newJetStream(cfg)
	if err != nil {
		return nil, nil, err
	}
	if _, err := notify.EnsureStream(ctx, js); err != nil {
		closeConn()
		return nil, nil, fmt.Errorf("ensure stream: %w", err)
	}
	return notify.NewJetStreamDispatcher(js), closeConn, nil
}

func statsOptions(cfg config.Config) stats.Options {
	loc, err := cfg.StatsLocation()
	if err != nil {
		loc = nil
	}
	return stats.Options{WindowDays: cfg.Stats.WindowDays, Location: loc}
}

func newAuthService(cfg config.Config, st backend, sessions auth.SessionStore) *auth.Service {
	return auth.NewService(st, st, sessions, auth.Options{SessionTTL: cfg.Session.TTL})
}
