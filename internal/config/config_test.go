package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.PageSize != 10 {
		t.Fatalf("expected default page size 10, got %d", cfg.PageSize)
	}
	if cfg.MediaMaxBytes != 4<<20 {
		t.Fatalf("expected 4MiB media limit, got %d", cfg.MediaMaxBytes)
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %s", cfg.JWTTTL)
	}
	if !cfg.AutoMigrate {
		t.Fatalf("expected auto migrate on by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("PAGE_SIZE", "25")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.JWTTTL != 2*time.Hour {
		t.Fatalf("expected override ttl, got %s", cfg.JWTTTL)
	}
	if cfg.PageSize != 25 {
		t.Fatalf("expected override page size")
	}
	if !cfg.LogDevelopment {
		t.Fatalf("expected development logging")
	}
}

func TestFallbacks(t *testing.T) {
	cfg := Config{}.withFallbacks()
	if cfg.PageSize != 10 || cfg.MediaMaxBytes != 4<<20 || cfg.JWTTTL != 24*time.Hour || cfg.DBMaxConns != 10 {
		t.Fatalf("unexpected fallbacks: %+v", cfg)
	}
}
