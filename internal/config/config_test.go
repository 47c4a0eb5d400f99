package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
  request_timeout: 15s
storage:
  database_path: "test.db"
ai:
  provider: openai
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.RequestTimeout != 15*time.Second {
		t.Errorf("request_timeout = %v, want 15s", cfg.Server.RequestTimeout)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.AI.Model != "gpt-4o-mini" {
		t.Errorf("openai default model: got %s", cfg.AI.Model)
	}
	if cfg.AI.Enabled() {
		t.Error("ai should be disabled without an api key")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/toolkeeper.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "toolkeeper.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
}

func TestLoad_environmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
ai:
  api_key: from-file
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TOOLKEEPER_SERVER_PORT", "9100")
	t.Setenv("TOOLKEEPER_AI_API_KEY", "from-env")
	t.Setenv("TOOLKEEPER_STORAGE_DRIVER", "memory")
	t.Setenv("TOOLKEEPER_SERVER_ALLOWED_ORIGINS", "http://a.example,http://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.AI.APIKey != "from-env" || !cfg.AI.Enabled() {
		t.Errorf("api key = %q, want from-env", cfg.AI.APIKey)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Errorf("driver = %s, want memory", cfg.Storage.Driver)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("allowed origins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_withoutFile(t *testing.T) {
	t.Setenv("TOOLKEEPER_AUTH_SECRET", "s3cret")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.Secret != "s3cret" {
		t.Errorf("secret = %q", cfg.Auth.Secret)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"driver", "storage:\n  driver: mongo\n"},
		{"provider", "ai:\n  provider: llama\n"},
		{"limits", "inventory:\n  default_limit: 50\n  max_limit: 10\n"},
		{"yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TOOLKEEPER_AI_MODEL=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TOOLKEEPER_AI_MODEL", "")
	os.Unsetenv("TOOLKEEPER_AI_MODEL")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("TOOLKEEPER_AI_MODEL"); got != "from-dotenv" {
		t.Errorf("TOOLKEEPER_AI_MODEL = %q, want from-dotenv", got)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("default driver: got %s", cfg.Storage.Driver)
	}
	if cfg.AI.Provider != ProviderGemini || cfg.AI.Model == "" {
		t.Errorf("default ai: got %+v", cfg.AI)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("default token ttl: got %v", cfg.Auth.TokenTTL)
	}
	if cfg.Inventory.DefaultStatus != "available" {
		t.Errorf("default status: got %s", cfg.Inventory.DefaultStatus)
	}
	if cfg.Inventory.DefaultLimit != 50 || cfg.Inventory.MaxLimit != 500 {
		t.Errorf("default limits: got %d/%d", cfg.Inventory.DefaultLimit, cfg.Inventory.MaxLimit)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("allowed origins: got %v", cfg.Server.AllowedOrigins)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{Driver: DriverSQLite, DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
