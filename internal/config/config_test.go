package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.GetDriver() != "sqlite" {
		t.Errorf("Storage.GetDriver() = %q, want sqlite", cfg.Storage.GetDriver())
	}
}

func TestLoadResolvesSQLitePath(t *testing.T) {
	dir := t.TempDir()
	content := "storage:\n  driver: sqlite\n  path: data/docs.db\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir() error = %v", err)
	}
	if got := cfg.Storage.GetDSN(); got != filepath.Join(dir, "data/docs.db") {
		t.Errorf("GetDSN() = %q, want it resolved against the config dir", got)
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  port: 9090
  debug: true
  public_base_url: https://docs.example.com/
storage:
  driver: memory
components:
  seed_file: components/seed.yaml
  watch_dir: /abs/components
compiler:
  max_steps: 500
  cache_ttl: 10m
api:
  cors:
    origins: ["http://localhost:3000"]
  rate_limit:
    requests_per_second: 5
notifications:
  - type: slack
    channel: "#docs"
  - type: webhook
    url: https://ci.example.com/hook
    secret_env: HOOK_SECRET
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir() error = %v", err)
	}
	if cfg.Server.Port != 9090 || !cfg.Server.Debug {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("Server.Host = %q, defaults should survive partial files", cfg.Server.Host)
	}
	if got := cfg.Server.GetPublicBaseURL(); got != "https://docs.example.com" {
		t.Errorf("GetPublicBaseURL() = %q", got)
	}
	if got := cfg.Components.SeedFile; got != filepath.Join(dir, "components/seed.yaml") {
		t.Errorf("SeedFile = %q, want it resolved against the config dir", got)
	}
	if got := cfg.Components.WatchDir; got != "/abs/components" {
		t.Errorf("WatchDir = %q", got)
	}
	if cfg.Compiler.GetMaxSteps() != 500 || cfg.Compiler.GetMaxElements() != 5000 || cfg.Compiler.GetMaxBytes() != 32<<20 {
		t.Errorf("Compiler = %+v", cfg.Compiler)
	}
	if cfg.Compiler.GetCacheTTL() != 10*time.Minute {
		t.Errorf("GetCacheTTL() = %v", cfg.Compiler.GetCacheTTL())
	}
	if cfg.API.GetRateLimitRPS() != 5 || cfg.API.GetRateLimitBurst() != 20 {
		t.Errorf("rate limit = %v/%v", cfg.API.GetRateLimitRPS(), cfg.API.GetRateLimitBurst())
	}
	if origins := cfg.API.GetCORSOrigins(); len(origins) != 1 || origins[0] != "http://localhost:3000" {
		t.Errorf("GetCORSOrigins() = %v", origins)
	}
	if len(cfg.Notifications) != 2 || cfg.Notifications[1].SecretEnv != "HOOK_SECRET" {
		t.Errorf("Notifications = %+v", cfg.Notifications)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		errorMsg string
	}{
		{"bad yaml", "server: [", "failed to parse"},
		{"bad driver", "storage:\n  driver: mongo\n", "not supported"},
		{"bad port", "server:\n  port: 70000\n", "out of range"},
		{"bad ttl", "compiler:\n  cache_ttl: soon\n", "cache_ttl"},
		{"bad notification", "notifications:\n  - type: pager\n", "not supported"},
		{"webhook without url", "notifications:\n  - type: webhook\n", "url is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("error %q should contain %q", err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg := DefaultConfig()
	cfg.Storage = StorageConfig{Driver: "postgres"}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error without a DSN")
	}

	t.Setenv("BLOCKPRESS_TEST_DSN", "postgres://u@h/db")
	cfg.Storage.DSN = "${BLOCKPRESS_TEST_DSN}"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if got := cfg.Storage.GetDSN(); got != "postgres://u@h/db" {
		t.Errorf("GetDSN() = %q", got)
	}
}

func TestStorageGetDSN(t *testing.T) {
	tests := []struct {
		name     string
		storage  StorageConfig
		expected string
	}{
		{"sqlite default path", StorageConfig{}, "blockpress.db"},
		{"sqlite path", StorageConfig{Driver: "sqlite", Path: "data/docs.db"}, "data/docs.db"},
		{"memory", StorageConfig{Driver: "memory"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.storage.GetDSN(); got != tt.expected {
				t.Errorf("GetDSN() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestServerDefaults(t *testing.T) {
	s := ServerConfig{Host: "0.0.0.0", Port: 8080}
	if got := s.GetPublicBaseURL(); got != "http://localhost:8080" {
		t.Errorf("GetPublicBaseURL() = %q", got)
	}
	if got := s.Addr(); got != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestAPIConfigNilSafe(t *testing.T) {
	var api *APIConfig
	if api.GetCORSOrigins() != nil {
		t.Error("GetCORSOrigins() on nil should be nil")
	}
	if api.GetRateLimitRPS() != 10 {
		t.Errorf("GetRateLimitRPS() = %v, want 10", api.GetRateLimitRPS())
	}
	if api.GetRateLimitBurst() != 20 {
		t.Errorf("GetRateLimitBurst() = %v, want 20", api.GetRateLimitBurst())
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := DefaultConfig()
	cfg.Server.Port = 7000
	cfg.Compiler.MaxElements = 42
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server.Port != 7000 || loaded.Compiler.GetMaxElements() != 42 {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}
