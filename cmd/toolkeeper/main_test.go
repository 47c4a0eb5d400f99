package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/toolkeeper/internal/config"
	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/internal/server"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"where is the drill", "-output", "json"},
			expected: []string{"-output", "json", "where is the drill"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "where is the drill"},
			expected: []string{"-output", "json", "where is the drill"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"where is the drill"},
			expected: []string{"where is the drill"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"drill", "voltage", "-server", "http://x"},
			expected: []string{"-server", "http://x", "drill", "voltage"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"drill"}, "drill"},
		{"multiple words", []string{"cordless", "drill"}, "cordless drill"},
		{"single quoted phrase", []string{"cordless drill"}, "cordless drill"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_missingDefaultUsesDefaults(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists")
	}
	chdir(t, t.TempDir())

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved path = %q, want none", resolved)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
}

func TestLoadConfig_readsDotEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  port: 9000\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TOOLKEEPER_SERVER_PORT=9123\n"), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)
	// Registers a restore of the original value; godotenv only fills unset variables.
	t.Setenv("TOOLKEEPER_SERVER_PORT", "")
	if err := os.Unsetenv("TOOLKEEPER_SERVER_PORT"); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9123 {
		t.Errorf("port = %d, want 9123 from .env", cfg.Server.Port)
	}
}

func TestWriteStarterConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	if err := writeStarterConfig(path, false); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Auth.Secret) != 64 {
		t.Errorf("secret length = %d", len(cfg.Auth.Secret))
	}
	if err := writeStarterConfig(path, false); err == nil {
		t.Error("existing file should not be overwritten")
	}
	if err := writeStarterConfig(path, true); err != nil {
		t.Errorf("force: %v", err)
	}
}

func TestAPIClient(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: config.DriverMemory}}
	config.ApplyDefaults(cfg)
	cfg.Auth.Secret = "test-secret"
	components, err := initializeComponents(t.Context(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer components.Close()
	srv := server.NewServer(components.Inventory, components.Engine, components.Auth, components.Storage, cfg, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	anonymous := newAPIClient(ts.URL+"/", "")
	if err := anonymous.do(http.MethodPost, "/api/auth/register", map[string]string{"username": "alice", "password": "correct horse"}, nil); err != nil {
		t.Fatal(err)
	}
	token, err := anonymous.login("alice", "correct horse")
	if err != nil || token == "" {
		t.Fatalf("login: %q %v", token, err)
	}

	_, err = anonymous.list(models.ListParams{})
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("list without token: %v", err)
	}

	c := newAPIClient(ts.URL, token)
	tool := map[string]any{
		"name": "Hammer", "category": "Hand Tools", "brand": "Estwing", "model": "E3-16C",
		"purchaseDate": "2021-09-01", "quantity": 1, "location": "Shelf B",
		"specifications": []any{map[string]any{"name": "Weight", "value": 16, "unit": "oz"}},
		"tags":           []any{"striking"},
	}
	if err := c.do(http.MethodPost, "/api/tools", tool, nil); err != nil {
		t.Fatal(err)
	}
	page, err := c.list(models.ListParams{Category: "Hand Tools", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Limit != 5 || page.Tools[0].Name != "Hammer" {
		t.Errorf("list: %+v", page)
	}

	_, err = c.search("where is the hammer")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Errorf("search without AI: %v", err)
	}
}
