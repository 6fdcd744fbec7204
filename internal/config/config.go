// Package config loads the application configuration from, in increasing
// precedence: built-in defaults, a YAML file, MEMOSYNC_ environment variables
// and command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	flag "github.com/spf13/pflag"
)

// Config is the fully resolved application configuration.
type Config struct {
	ListenAddr   string     `koanf:"listen_addr" validate:"required,hostname_port"`
	DatabasePath string     `koanf:"database_path" validate:"required"`
	LogLevel     string     `koanf:"log_level" validate:"oneof=debug info warn error"`
	Sync         SyncConfig `koanf:"sync"`
}

// SyncConfig configures the optional remote backend. Sync is enabled when URL
// is non-empty; the remaining fields are then required.
type SyncConfig struct {
	URL      string        `koanf:"url" validate:"omitempty,url"`
	APIKey   string        `koanf:"api_key" validate:"required_with=URL"`
	Email    string        `koanf:"email" validate:"required_with=URL,omitempty,email"`
	Password string        `koanf:"password" validate:"required_with=URL"`
	Debounce time.Duration `koanf:"debounce" validate:"min=0"`
}

// Enabled reports whether a remote backend is configured.
func (s SyncConfig) Enabled() bool {
	return s.URL != ""
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"listen_addr":   "localhost:8080",
		"database_path": "memosync.db",
		"log_level":     "info",
		"sync.debounce": 2 * time.Second,
	}
}

// Flags returns the command-line flag set understood by Load. The caller
// parses it so usage and errors stay under its control.
func Flags() *flag.FlagSet {
	fs := flag.NewFlagSet("memosync", flag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("listen_addr", "", "HTTP listen address")
	fs.String("database_path", "", "path to the SQLite database")
	fs.String("log_level", "", "log level (debug, info, warn, error)")
	fs.String("sync.url", "", "remote sync backend URL")
	fs.String("sync.email", "", "remote account email")
	fs.Duration("sync.debounce", 0, "delay before pushing local edits")
	return fs
}

// Load resolves the configuration from all sources and validates it.
func Load(fs *flag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// MEMOSYNC_SYNC_API_KEY -> sync.api_key. Only the section separator
	// becomes a dot; underscores inside key names survive.
	err := k.Load(env.Provider("MEMOSYNC_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "MEMOSYNC_"))
		for _, section := range []string{"sync_"} {
			if strings.HasPrefix(s, section) {
				return strings.Replace(s, "_", ".", 1)
			}
		}
		return s
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ExpandPath resolves a leading ~ in a filesystem path.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home + strings.TrimPrefix(path, "~")
	}
	return path
}
