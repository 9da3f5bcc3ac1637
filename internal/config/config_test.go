package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 8*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5, cfg.Queue.ServiceMinutes)
	assert.Equal(t, 7, cfg.Stats.WindowDays)
	assert.Equal(t, "log", cfg.Notify.Provider)
	assert.Equal(t, "QueueManager Team", cfg.Notify.FromName)
	assert.Equal(t, 587, cfg.Notify.SMTP.Port)
	assert.Equal(t, time.Second, cfg.Realtime.PollInterval)
	assert.Equal(t, 120, cfg.RateLimit.PerMinute)
	assert.False(t, cfg.Development())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vqueue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: development
server:
  port: "9000"
db:
  dsn: postgres://file
session:
  ttl: 1h
stats:
  window_days: 14
  timezone: Asia/Jakarta
notify:
  provider: smtp
  smtp:
    host: mail.example.com
    port: 2525
`), 0o600))

	t.Setenv("DB_DSN", "postgres://legacy")
	t.Setenv("VQUEUE_NOTIFY_SMTP_PORT", "465")
	t.Setenv("RATE_LIMIT_BURST", "7")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Development())
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "postgres://legacy", cfg.DB.DSN)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 14, cfg.Stats.WindowDays)
	assert.Equal(t, "smtp", cfg.Notify.Provider)
	assert.Equal(t, "mail.example.com", cfg.Notify.SMTP.Host)
	assert.Equal(t, 465, cfg.Notify.SMTP.Port)
	assert.Equal(t, 7, cfg.RateLimit.Burst)
	assert.True(t, cfg.OTel.Insecure)

	loc, err := cfg.StatsLocation()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", loc.String())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stats:\n  timezone: Mars/Olympus\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
