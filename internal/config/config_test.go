package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	for _, key := range []string{"QUIZ_API_URL", "QUIZ_STORAGE_DRIVER", "QUIZ_PASS_PERCENT"} {
		t.Setenv(key, "")
	}
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "file" || cfg.Submit.TimeoutRetries != 3 || cfg.Server.PassPercent != 50 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverlaysFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
api:
  base_url: http://quiz.internal
  token: from-file
storage:
  driver: redis
timer:
  grace: 3s
result:
  expose_passed: true
redis:
  addr: localhost:6379
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("QUIZ_API_URL", "")
	t.Setenv("QUIZ_STORAGE_DRIVER", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("QUIZ_API_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "http://quiz.internal" || cfg.API.Token != "from-env" {
		t.Fatalf("unexpected api section %+v", cfg.API)
	}
	if cfg.Storage.Driver != "redis" || !cfg.Result.ExposePassed || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Timer.Tick != "1s" {
		t.Fatalf("unset keys must keep defaults, got tick %q", cfg.Timer.Tick)
	}
	if got := TTLDuration(cfg.Timer.Grace, time.Second); got != 3*time.Second {
		t.Fatalf("expected 3s grace, got %s", got)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected yaml error")
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := TTLDuration("nonsense", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for junk, got %s", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
}
