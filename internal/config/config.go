package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	API    APIConfig    `json:"api" mapstructure:"api"`
	Auth   AuthConfig   `json:"auth" mapstructure:"auth"`
	Tasks  TasksConfig  `json:"tasks" mapstructure:"tasks"`
	Upload UploadConfig `json:"upload" mapstructure:"upload"`
	Log    LogConfig    `json:"log" mapstructure:"log"`
}

// APIConfig for server communication.
type APIConfig struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
	UserAgent  string        `json:"user_agent" mapstructure:"user_agent"`
}

// AuthConfig for session credentials. Password is normally prompted, not
// stored; the field exists for non-interactive use.
type AuthConfig struct {
	Username string `json:"username,omitempty" mapstructure:"username"`
	Password string `json:"password,omitempty" mapstructure:"password"`
}

// TasksConfig for the update channels.
type TasksConfig struct {
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	// Push reconnect backoff bounds.
	ReconnectMin time.Duration `json:"reconnect_min" mapstructure:"reconnect_min"`
	ReconnectMax time.Duration `json:"reconnect_max" mapstructure:"reconnect_max"`
}

// UploadConfig for the transfer manager.
type UploadConfig struct {
	// MaxSize overrides the server-advertised limit when > 0. The server
	// value from /api/config wins otherwise.
	MaxSize int64 `json:"max_size" mapstructure:"max_size"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // log file path (empty = stderr)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "http://localhost:8080",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			UserAgent:  "fmwatch/1.0",
		},
		Tasks: TasksConfig{
			PollInterval: 3 * time.Second,
			ReconnectMin: time.Second,
			ReconnectMax: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must not be negative")
	}
	if c.Tasks.PollInterval <= 0 {
		return errors.New("tasks.poll_interval must be positive")
	}
	if c.Tasks.ReconnectMin <= 0 || c.Tasks.ReconnectMax < c.Tasks.ReconnectMin {
		return errors.New("tasks.reconnect bounds are invalid")
	}
	if c.Upload.MaxSize < 0 {
		return errors.New("upload.max_size must not be negative")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}
