// Package config loads settings from an optional YAML file, defaults and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "VQUEUE"

type Config struct {
	Env       string `mapstructure:"env"`
	Log       LogConfig
	Server    ServerConfig
	DB        DBConfig `mapstructure:"db"`
	Redis     RedisConfig
	NATS      NATSConfig `mapstructure:"nats"`
	Session   SessionConfig
	Queue     QueueConfig
	Stats     StatsConfig
	Store     StoreConfig
	Notify    NotifyConfig
	OTel      OTelConfig      `mapstructure:"otel"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Realtime  RealtimeConfig
}

type LogConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	RealtimePort string `mapstructure:"realtime_port"`
}

type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int `mapstructure:"db"`
}

type NATSConfig struct {
	Addr string
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type QueueConfig struct {
	ServiceMinutes int `mapstructure:"service_minutes"`
	HistoryLimit   int `mapstructure:"history_limit"`
}

type StatsConfig struct {
	WindowDays int    `mapstructure:"window_days"`
	Timezone   string `mapstructure:"timezone"`
}

type StoreConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

type NotifyConfig struct {
	Provider     string
	WebhookURL   string     `mapstructure:"webhook_url"`
	WebhookToken string     `mapstructure:"webhook_token"`
	SMTP         SMTPConfig `mapstructure:"smtp"`
	FromName     string     `mapstructure:"from_name"`
	AppName      string     `mapstructure:"app_name"`
	SupportEmail string     `mapstructure:"support_email"`
	Language     string
	Timeout      time.Duration
	Workers      int
	Buffer       int
	MaxDeliver   int           `mapstructure:"max_deliver"`
	AckWait      time.Duration `mapstructure:"ack_wait"`
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type OTelConfig struct {
	Endpoint string
	Insecure bool
}

type RateLimitConfig struct {
	PerMinute        int `mapstructure:"per_minute"`
	Burst            int
	SessionPerMinute int `mapstructure:"session_per_minute"`
	SessionBurst     int `mapstructure:"session_burst"`
}

type RealtimeConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

var defaults = map[string]interface{}{
	"env":                           "production",
	"log.level":                     "info",
	"server.port":                   "8080",
	"server.realtime_port":          "8081",
	"db.dsn":                        "",
	"db.max_conns":                  10,
	"db.min_conns":                  1,
	"redis.addr":                    "",
	"redis.password":                "",
	"redis.db":                      0,
	"nats.addr":                     "",
	"session.ttl":                   8 * time.Hour,
	"queue.service_minutes":         5,
	"queue.history_limit":           20,
	"stats.window_days":             7,
	"stats.timezone":                "UTC",
	"store.seed_file":               "",
	"notify.provider":               "log",
	"notify.webhook_url":            "",
	"notify.webhook_token":          "",
	"notify.smtp.host":              "",
	"notify.smtp.port":              587,
	"notify.smtp.user":              "",
	"notify.smtp.password":          "",
	"notify.smtp.from":              "",
	"notify.from_name":              "QueueManager Team",
	"notify.app_name":               "QueueManager",
	"notify.support_email":          "support@queuemanager.com",
	"notify.language":               "en",
	"notify.timeout":                10 * time.Second,
	"notify.workers":                4,
	"notify.buffer":                 256,
	"notify.max_deliver":            5,
	"notify.ack_wait":               30 * time.Second,
	"otel.endpoint":                 "",
	"otel.insecure":                 false,
	"rate_limit.per_minute":         120,
	"rate_limit.burst":              30,
	"rate_limit.session_per_minute": 30,
	"rate_limit.session_burst":      10,
	"realtime.poll_interval":        time.Second,
	"realtime.batch_size":           100,
}

// Plain environment names kept for existing deployments.
var legacyEnv = map[string]string{
	"server.port":           "PORT",
	"db.dsn":                "DB_DSN",
	"redis.addr":            "REDIS_ADDR",
	"nats.addr":             "NATS_URL",
	"rate_limit.per_minute": "RATE_LIMIT_PER_MIN",
	"rate_limit.burst":      "RATE_LIMIT_BURST",
	"otel.endpoint":         "OTEL_EXPORTER_OTLP_ENDPOINT",
	"otel.insecure":         "OTEL_EXPORTER_OTLP_INSECURE",
}

// Load reads path when given, otherwise config.yaml in the working directory
// if there is one. Environment variables override both.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.NewReplacer(".", "_").Replace(key)), env); err != nil {
			return Config{}, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if _, err := cfg.StatsLocation(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) StatsLocation() (*time.Location, error) {
	if c.Stats.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Stats.Timezone)
	if err != nil {
		return nil, fmt.Errorf("stats.timezone: %w", err)
	}
	return loc, nil
}

func (c Config) Development() bool {
	return c.Env == "development" || c.Env == "dev"
}
