package config

import "time"

// Config holds client configuration values.
type Config struct {
	APIBaseURL     string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	PushURL        string        `mapstructure:"push_url" yaml:"push_url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	PageSize       int           `mapstructure:"page_size" yaml:"page_size"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIBaseURL:     "http://localhost:8080",
		PushURL:        "ws://localhost:8080/ws/chat",
		ReconnectDelay: 5 * time.Second,
		PageSize:       20,
		LogLevel:       "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.PushURL != "" {
		c.PushURL = other.PushURL
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.PageSize != 0 {
		c.PageSize = other.PageSize
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}
