package main

import (
	"context"
	"fmt"

	"qms/virtual-queue/internal/config"
	"qms/virtual-queue/internal/notify"
	"qms/virtual-queue/internal/store/postgres"
	"qms/virtual-queue/internal/telemetry"

	"github.com/rs/zerolog/log"
)

func runNotifierCmd(ctx context.Context, cfg config.Config) error {
	if cfg.NATS.Addr == "" {
		return fmt.Errorf("nats.addr (NATS_URL) is required for serve-notifier")
	}
	shutdownTelemetry := telemetry.Setup(ctx, "vqueue-notifier", telemetry.Config{Endpoint: cfg.OTel.Endpoint, Insecure: cfg.OTel.Insecure})
	defer shutdownWithTimeout(shutdownTelemetry)

	pool, err := newDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	js, closeConn, err := newJetStream(cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	stream, err := notify.EnsureStream(ctx, js)
	if err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}

	log.Info().Str("provider", cfg.Notify.Provider).Msg("notification consumer started")
	err = notify.Consume(ctx, stream, notify.ConsumerConfig{
		MaxDeliver: cfg.Notify.MaxDeliver,
		AckWait:    cfg.Notify.AckWait,
	}, newWorker(cfg, postgres.NewStore(pool)))
	log.Info().Msg("notification consumer stopped")
	return err
}
