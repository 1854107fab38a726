package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tailscale/hujson"
)

const (
	defaultURL                  = "ws://localhost:8000"
	defaultInvalidURLPollMillis = 1000
	defaultReconnectSeconds     = 2
	defaultPingSeconds          = 5
	defaultResultTTLSeconds     = 600
)

type Config struct {
	Game    string        `json:"game" env:"NEURO_GAME"`
	Session SessionConfig `json:"session"`
	Store   StoreConfig   `json:"store"`
}

type SessionConfig struct {
	URL                      string `json:"url" env:"NEURO_SDK_WS_URL"`
	InvalidURLPollMillis     int    `json:"invalid_url_poll_ms" env:"NEURO_INVALID_URL_POLL_MS"`
	ReconnectIntervalSeconds int    `json:"reconnect_interval_seconds" env:"NEURO_RECONNECT_INTERVAL_SECONDS"`
	PingIntervalSeconds      int    `json:"ping_interval_seconds" env:"NEURO_PING_INTERVAL_SECONDS"`
}

type StoreConfig struct {
	RedisAddr        string `json:"redis_addr" env:"NEURO_REDIS_ADDR"`
	ResultTTLSeconds int    `json:"result_ttl_seconds" env:"NEURO_RESULT_TTL_SECONDS"`
}

func Default() Config {
	return Config{
		Session: SessionConfig{
			URL:                      defaultURL,
			InvalidURLPollMillis:     defaultInvalidURLPollMillis,
			ReconnectIntervalSeconds: defaultReconnectSeconds,
			PingIntervalSeconds:      defaultPingSeconds,
		},
		Store: StoreConfig{
			ResultTTLSeconds: defaultResultTTLSeconds,
		},
	}
}

// Load reads defaults, then the optional JSON (comments and trailing commas
// allowed) file at path, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config failed: %w", err)
		}
		standard, err := hujson.Standardize(content)
		if err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
		if err := json.Unmarshal(standard, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env failed: %w", err)
	}

	if cfg.Session.InvalidURLPollMillis <= 0 {
		cfg.Session.InvalidURLPollMillis = defaultInvalidURLPollMillis
	}
	if cfg.Session.ReconnectIntervalSeconds <= 0 {
		cfg.Session.ReconnectIntervalSeconds = defaultReconnectSeconds
	}
	if cfg.Session.PingIntervalSeconds <= 0 {
		cfg.Session.PingIntervalSeconds = defaultPingSeconds
	}
	if cfg.Store.ResultTTLSeconds <= 0 {
		cfg.Store.ResultTTLSeconds = defaultResultTTLSeconds
	}

	return cfg, nil
}

func (c SessionConfig) InvalidURLPoll() time.Duration {
	return time.Duration(c.InvalidURLPollMillis) * time.Millisecond
}

func (c SessionConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalSeconds) * time.Second
}

func (c SessionConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

func (c StoreConfig) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLSeconds) * time.Second
}
