package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Terminal.DefaultAmount != 1 || cfg.Cache.TTL != 300 {
		t.Errorf("Unexpected defaults %+v %+v", cfg.Terminal, cfg.Cache)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadConfig_YAMLWithEnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: "9090"
terminal:
  location_id: 5
  default_amount: 3
  timezone: Europe/Paris
cache:
  redis_addr: localhost:6379
  ttl: 60
log:
  level: debug
`)
	t.Setenv("TERMINAL_DEFAULT_AMOUNT", "7")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Terminal.LocationID != 5 {
		t.Errorf("Expected file values, got %+v %+v", cfg.Server, cfg.Terminal)
	}
	if cfg.Terminal.DefaultAmount != 7 {
		t.Errorf("Expected env override 7, got %d", cfg.Terminal.DefaultAmount)
	}
	if cfg.Cache.RedisAddr != "localhost:6379" || cfg.Cache.TTLDuration().Seconds() != 60 {
		t.Errorf("Unexpected cache config %+v", cfg.Cache)
	}
	loc, err := cfg.Terminal.LoadLocation()
	if err != nil || loc.String() != "Europe/Paris" {
		t.Errorf("Expected Europe/Paris, got %v (%v)", loc, err)
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"database":{"path":"/tmp/cards.db"},"rate_limit":{"enabled":false}}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Path != "/tmp/cards.db" || cfg.RateLimit.Enabled {
		t.Errorf("Unexpected config %+v %+v", cfg.Database, cfg.RateLimit)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no port", func(c *Config) { c.Server.Port = "" }},
		{"no database", func(c *Config) { c.Database.Path = "" }},
		{"zero rate", func(c *Config) { c.RateLimit.Rate = 0 }},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -1 }},
		{"negative amount", func(c *Config) { c.Terminal.DefaultAmount = -1 }},
		{"key number", func(c *Config) { c.Terminal.MifareKeyNumber = 256 }},
		{"timezone", func(c *Config) { c.Terminal.Timezone = "Mars/Olympus" }},
		{"tracing endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Endpoint = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			if err != nil {
				t.Fatalf("Failed to load config: %v", err)
			}
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}
