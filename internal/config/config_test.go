package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	fs := Flags()
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != "localhost:8080" {
		t.Errorf("Unexpected listen address: %s", cfg.ListenAddr)
	}
	if cfg.DatabasePath != "memosync.db" {
		t.Errorf("Unexpected database path: %s", cfg.DatabasePath)
	}
	if cfg.Sync.Debounce != 2*time.Second {
		t.Errorf("Unexpected debounce: %v", cfg.Sync.Debounce)
	}
	if cfg.Sync.Enabled() {
		t.Error("Sync must be disabled without a URL")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen_addr: "localhost:9999"
sync:
  url: "https://example.supabase.co"
  api_key: "anon-key"
  email: "user@example.com"
  password: "secret"
  debounce: 500ms
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	fs := Flags()
	if err := fs.Parse([]string{"--config", path}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != "localhost:9999" {
		t.Errorf("File value not applied: %s", cfg.ListenAddr)
	}
	if !cfg.Sync.Enabled() || cfg.Sync.APIKey != "anon-key" {
		t.Errorf("Sync section not applied: %+v", cfg.Sync)
	}
	if cfg.Sync.Debounce != 500*time.Millisecond {
		t.Errorf("Unexpected debounce: %v", cfg.Sync.Debounce)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("MEMOSYNC_LOG_LEVEL", "warn")
	t.Setenv("MEMOSYNC_SYNC_URL", "https://example.supabase.co")
	t.Setenv("MEMOSYNC_SYNC_API_KEY", "env-key")
	t.Setenv("MEMOSYNC_SYNC_EMAIL", "user@example.com")
	t.Setenv("MEMOSYNC_SYNC_PASSWORD", "secret")

	fs := Flags()
	if err := fs.Parse([]string{"--config", path}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Environment must override the file, got %s", cfg.LogLevel)
	}
	if cfg.Sync.APIKey != "env-key" {
		t.Errorf("Nested environment key not mapped: %+v", cfg.Sync)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("MEMOSYNC_LISTEN_ADDR", "localhost:7777")

	fs := Flags()
	if err := fs.Parse([]string{"--listen_addr", "localhost:6666"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != "localhost:6666" {
		t.Errorf("Flags must win over environment, got %s", cfg.ListenAddr)
	}
}

func TestLoadRejectsIncompleteSync(t *testing.T) {
	t.Setenv("MEMOSYNC_SYNC_URL", "https://example.supabase.co")

	fs := Flags()
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if _, err := Load(fs); err == nil {
		t.Error("A sync URL without credentials must fail validation")
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	fs := Flags()
	if err := fs.Parse([]string{"--log_level", "loud"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if _, err := Load(fs); err == nil {
		t.Error("An unknown log level must fail validation")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	if got := ExpandPath("~/data.db"); got != filepath.Join(home, "data.db") {
		t.Errorf("Unexpected expansion: %s", got)
	}
	if got := ExpandPath("/tmp/data.db"); got != "/tmp/data.db" {
		t.Errorf("Absolute paths must pass through, got %s", got)
	}
}
