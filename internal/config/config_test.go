package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "ULTRA_CACHE_DIR", "DATABASE_URL", "NATS_URL", "ULTRA_WORKERS", "ULTRA_BATCH_SIZE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("env = %s, want development", cfg.Env)
	}
	if cfg.CacheDir == "" {
		t.Error("cache dir is empty")
	}
	if cfg.BatchSize != 20 {
		t.Errorf("batch size = %d, want 20", cfg.BatchSize)
	}
	if cfg.Workers != 0 {
		t.Errorf("workers = %d, want 0 (auto)", cfg.Workers)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("ULTRA_CACHE_DIR", "/tmp/ultra-test-cache")
	t.Setenv("ULTRA_WORKERS", "4")
	t.Setenv("ULTRA_BATCH_SIZE", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9090 || cfg.Env != "production" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.CacheDir != "/tmp/ultra-test-cache" {
		t.Errorf("cache dir = %s", cfg.CacheDir)
	}
	if cfg.Workers != 4 || cfg.BatchSize != 10 {
		t.Errorf("workers/batch = %d/%d, want 4/10", cfg.Workers, cfg.BatchSize)
	}
}

func TestLoad_MalformedIntFallsBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want default 8080 on malformed value", cfg.Port)
	}
}

func TestValidate_NormalizesBounds(t *testing.T) {
	cfg := &Config{BatchSize: -5, Workers: -1}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.BatchSize != 20 {
		t.Errorf("batch size = %d, want normalized 20", cfg.BatchSize)
	}
	if cfg.Workers != 0 {
		t.Errorf("workers = %d, want normalized 0", cfg.Workers)
	}
}
