package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  address: "127.0.0.1"
  port: 9090
  db_path: "/tmp/tasks-db"
  max_body_bytes: "2MB"
security:
  cors:
    allowed_origins: ["http://localhost:3000"]
  rate_limit:
    rps: 25
    burst: 50
  jwt:
    secret: "file-secret"
    ttl: "720h"
chat:
  model: "gemini-2.0-flash"
  heartbeat: "15s"
  history_limit: 40
retention:
  enabled: true
  cron: "0 2 * * *"
  period: "30d"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesTypedValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr: %q", cfg.Addr())
	}
	if cfg.Server.MaxBodyBytes.Int64() != 2*1000*1000 {
		t.Fatalf("max body bytes: %d", cfg.Server.MaxBodyBytes.Int64())
	}
	if time.Duration(cfg.Security.JWT.TTL) != 720*time.Hour {
		t.Fatalf("jwt ttl: %v", cfg.Security.JWT.TTL)
	}
	if time.Duration(cfg.Chat.Heartbeat) != 15*time.Second {
		t.Fatalf("heartbeat: %v", cfg.Chat.Heartbeat)
	}
	if cfg.Chat.HistoryLimit != 40 {
		t.Fatalf("history limit: %d", cfg.Chat.HistoryLimit)
	}
	if !cfg.Retention.Enabled || cfg.Retention.Period != "30d" {
		t.Fatalf("retention: %+v", cfg.Retention)
	}
}

func TestDurationAcceptsNumericSeconds(t *testing.T) {
	cfg, err := Load(writeConfig(t, "chat:\n  heartbeat: 30\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if time.Duration(cfg.Chat.Heartbeat) != 30*time.Second {
		t.Fatalf("heartbeat: %v", cfg.Chat.Heartbeat)
	}
}

func TestAddrDefaults(t *testing.T) {
	cfg := &Config{}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("default addr: %q", cfg.Addr())
	}
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("TASKDECK_ADDR", "0.0.0.0:7000")
	t.Setenv("TASKDECK_DB_PATH", "/data/tasks")
	t.Setenv("TASKDECK_JWT_SECRET", "env-secret")
	t.Setenv("TASKDECK_GEMINI_API_KEY", "env-key")
	t.Setenv("TASKDECK_CORS_ORIGINS", "http://a.example, http://b.example")

	cfg, used := ParseConfigEnvs()
	if !used {
		t.Fatalf("expected env to be detected")
	}
	if cfg.Addr() != "0.0.0.0:7000" {
		t.Fatalf("addr: %q", cfg.Addr())
	}
	if cfg.Server.DBPath != "/data/tasks" {
		t.Fatalf("db path: %q", cfg.Server.DBPath)
	}
	if cfg.Security.JWT.Secret != "env-secret" || cfg.Chat.APIKey != "env-key" {
		t.Fatalf("secrets not picked up: %+v", cfg.Security.JWT)
	}
	if len(cfg.Security.CORS.AllowedOrigins) != 2 {
		t.Fatalf("origins: %v", cfg.Security.CORS.AllowedOrigins)
	}
}

func TestLoadEffectiveConfigPrecedence(t *testing.T) {
	fileCfg := &Config{}
	fileCfg.Server.Address = "10.0.0.1"
	fileCfg.Server.Port = 9000
	fileCfg.Server.DBPath = "/file/db"
	fileCfg.Security.JWT.Secret = "file-secret"

	envCfg := &Config{}
	envCfg.Server.Address = "10.0.0.2"
	envCfg.Server.Port = 7000
	envCfg.Server.DBPath = "/env/db"
	envCfg.Security.JWT.Secret = "env-secret"
	envCfg.Chat.APIKey = "env-key"

	// explicit --config wins
	eff, err := LoadEffectiveConfig(Flags{Config: "x.yaml", Set: map[string]bool{"config": true}}, fileCfg, true, envCfg)
	if err != nil {
		t.Fatalf("LoadEffectiveConfig: %v", err)
	}
	if eff.Source != "config" || eff.Addr != "10.0.0.1:9000" || eff.DBPath != "/file/db" {
		t.Fatalf("config source: %+v", eff)
	}
	// chat secret backfilled from env
	if eff.Config.Chat.APIKey != "env-key" {
		t.Fatalf("expected env secret backfill, got %q", eff.Config.Chat.APIKey)
	}

	// explicit --config with a missing file is fatal
	if _, err := LoadEffectiveConfig(Flags{Config: "x.yaml", Set: map[string]bool{"config": true}}, fileCfg, false, envCfg); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}

	// addr/db flags win next
	eff, err = LoadEffectiveConfig(Flags{Addr: ":6000", DB: "/flag/db", Set: map[string]bool{"addr": true, "db": true}}, fileCfg, true, envCfg)
	if err != nil {
		t.Fatalf("LoadEffectiveConfig: %v", err)
	}
	if eff.Source != "flags" || eff.Addr != ":6000" || eff.DBPath != "/flag/db" {
		t.Fatalf("flags source: %+v", eff)
	}
	if eff.Config.Security.JWT.Secret != "env-secret" {
		t.Fatalf("expected jwt secret backfill, got %q", eff.Config.Security.JWT.Secret)
	}

	// then a present config file
	eff, _ = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, fileCfg, true, envCfg)
	if eff.Source != "config" {
		t.Fatalf("expected config source, got %+v", eff)
	}

	// env is the fallback
	eff, _ = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, &Config{}, false, envCfg)
	if eff.Source != "env" || eff.DBPath != "/env/db" {
		t.Fatalf("expected env source, got %+v", eff)
	}
}
