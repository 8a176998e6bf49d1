package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.WorkerPoolSize != 10 {
		t.Errorf("expected pool size 10, got %d", cfg.WorkerPoolSize)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected 3 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay.Std() != time.Second {
		t.Errorf("expected base delay 1s, got %v", cfg.Retry.BaseDelay.Std())
	}
	if cfg.JitterMax() != 60*time.Second {
		t.Errorf("expected default jitter max 60s, got %v", cfg.JitterMax())
	}
}

func TestLoad_YAMLAndDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
database_url: "postgresql://worker@db:5432/posthog"
worker_pool_size: 4
task_timeout: "10s"
reload_jitter_max: "0s"
retry:
  max_attempts: 5
  base_delay: "200ms"
  max_delay: "2s"
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseURL != "postgresql://worker@db:5432/posthog" {
		t.Errorf("unexpected database url: %s", cfg.DatabaseURL)
	}
	if cfg.TaskTimeout.Std() != 10*time.Second {
		t.Errorf("expected task timeout 10s, got %v", cfg.TaskTimeout.Std())
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay.Std() != 200*time.Millisecond {
		t.Errorf("expected base delay 200ms, got %v", cfg.Retry.BaseDelay.Std())
	}

	// Явный "0s" отключает jitter, умолчание не подставляется.
	if cfg.JitterMax() != 0 {
		t.Errorf("explicit zero jitter should stay zero, got %v", cfg.JitterMax())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_URL", "postgresql://env@db:5432/posthog")
	t.Setenv("REDIS_URL", "redis://env:6379/1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseURL != "postgresql://env@db:5432/posthog" {
		t.Errorf("DB_URL override not applied: %s", cfg.DatabaseURL)
	}
	if cfg.RedisURL != "redis://env:6379/1" {
		t.Errorf("REDIS_URL override not applied: %s", cfg.RedisURL)
	}
}
