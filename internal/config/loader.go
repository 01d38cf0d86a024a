package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from configPath (or the default locations when
// empty) plus the environment.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Loader reads configuration from file and environment. Environment
// variables use the FMWATCH_ prefix with underscores for nesting, e.g.
// FMWATCH_API_BASE_URL or FMWATCH_LOG_LEVEL.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty configPath searches the
// default locations instead.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		v:          viper.New(),
	}
}

// Load merges defaults, config file, and environment into a validated Config.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
	} else {
		l.v.SetConfigName("fmwatch")
		l.v.SetConfigType("json")
		l.v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(homeDir, ".config", "fmwatch"))
			l.v.AddConfigPath(filepath.Join(homeDir, ".fmwatch"))
		}
	}

	l.v.SetEnvPrefix("FMWATCH")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so bind
	// every key we support explicitly.
	for _, key := range []string{
		"api.base_url", "api.timeout", "api.max_retries", "api.user_agent",
		"auth.username", "auth.password",
		"tasks.poll_interval", "tasks.reconnect_min", "tasks.reconnect_max",
		"upload.max_size",
		"log.level", "log.format", "log.file",
	} {
		_ = l.v.BindEnv(key)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Missing file is fine when searching default locations; an
		// explicit path must exist.
		if l.configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
