package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Search.Concurrency != 1 {
		t.Errorf("default search concurrency = %d, want 1 (sequential)", cfg.Search.Concurrency)
	}
	if cfg.Search.ItemTimeout != 0 {
		t.Errorf("default item timeout = %v, want 0 (unbounded)", cfg.Search.ItemTimeout)
	}
	if cfg.Kafka.Topics.SearchEvents == "" {
		t.Error("default search events topic must be set")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9999
search:
  concurrency: 4
  stemming: true
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Search.Concurrency != 4 {
		t.Errorf("search concurrency = %d, want 4", cfg.Search.Concurrency)
	}
	if !cfg.Search.Stemming {
		t.Error("stemming should be enabled")
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("postgres port = %d, want default 5432", cfg.Postgres.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DF_SERVER_PORT", "7070")
	t.Setenv("DF_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("DF_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DF_SEARCH_CONCURRENCY", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("kafka brokers = %v, want 2 brokers", cfg.Kafka.Brokers)
	}
	if cfg.Search.Concurrency != 8 {
		t.Errorf("search concurrency = %d, want 8", cfg.Search.Concurrency)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("DF_SERVER_PORT", "-1")
	if _, err := Load(""); err == nil {
		t.Error("negative port should fail validation")
	}
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "p",
		Database: "docs", SSLMode: "disable",
	}
	want := "host=db port=5432 user=u password=p dbname=docs sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
