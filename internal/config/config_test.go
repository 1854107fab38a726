package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "neuro.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileWithComments(t *testing.T) {
	path := writeConfig(t, `{
		// the name shown to the agent
		"game": "Chess",
		"session": {
			"url": "ws://example.test:9000",
			"reconnect_interval_seconds": 0,
		},
		"store": {"redis_addr": "localhost:6379"},
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Game != "Chess" {
		t.Fatalf("game = %q", cfg.Game)
	}
	if cfg.Session.URL != "ws://example.test:9000" {
		t.Fatalf("url = %q", cfg.Session.URL)
	}
	if got := cfg.Session.ReconnectInterval(); got != 2*time.Second {
		t.Fatalf("reconnect interval = %v, want default", got)
	}
	if got := cfg.Session.InvalidURLPoll(); got != time.Second {
		t.Fatalf("invalid url poll = %v", got)
	}
	if cfg.Store.RedisAddr != "localhost:6379" {
		t.Fatalf("redis addr = %q", cfg.Store.RedisAddr)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"game": "Chess", "session": {"url": "ws://file.test"}}`)
	t.Setenv("NEURO_SDK_WS_URL", "ws://env.test")
	t.Setenv("NEURO_RESULT_TTL_SECONDS", "30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.URL != "ws://env.test" {
		t.Fatalf("url = %q, want env override", cfg.Session.URL)
	}
	if got := cfg.Store.ResultTTL(); got != 30*time.Second {
		t.Fatalf("result ttl = %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.URL != defaultURL {
		t.Fatalf("url = %q, want %q", cfg.Session.URL, defaultURL)
	}
	if got := cfg.Session.PingInterval(); got != 5*time.Second {
		t.Fatalf("ping interval = %v", got)
	}
	if got := cfg.Store.ResultTTL(); got != 10*time.Minute {
		t.Fatalf("result ttl = %v", got)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("NEURO_PING_INTERVAL_SECONDS", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() with a non-numeric interval should fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("Load() of a missing file should fail")
	}
}
