// Package config loads and validates console configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/purifier-console/internal/progress"
)

// EnvPrefix prefixes every environment override, e.g. PURIFIER_MANAGER_BASE_URL.
const EnvPrefix = "PURIFIER"

// Config captures all console configuration knobs loaded via Viper.
type Config struct {
	Manager  ManagerConfig  `mapstructure:"manager"`
	Progress ProgressConfig `mapstructure:"progress"`
	View     ViewConfig     `mapstructure:"view"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Hub      HubConfig      `mapstructure:"hub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ManagerConfig locates the manager backend.
type ManagerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ProgressConfig tunes the live progress channel.
type ProgressConfig struct {
	// URL overrides the socket endpoint derived from manager.base_url.
	URL                string `mapstructure:"url"`
	RetryDelayMs       int    `mapstructure:"retry_delay_ms"`
	HandshakeTimeoutMs int    `mapstructure:"handshake_timeout_ms"`
}

// ViewConfig controls the polling episode table.
type ViewConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	PageSize            int `mapstructure:"page_size"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// AuditConfig selects the audit log backend. An empty DSN keeps the log in
// memory.
type AuditConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	Capacity int    `mapstructure:"capacity"`
}

// HubConfig sizes the progress fan-out hub.
type HubConfig struct {
	BufferSize      int `mapstructure:"buffer_size"`
	MaxBatchEvents  int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs  int `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutSecs int `mapstructure:"sink_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// AutomaticEnv only resolves keys viper already knows, so every key gets a
// default here.
func setDefaults(v *viper.Viper) {
	v.SetDefault("manager.base_url", "http://localhost:8000")
	v.SetDefault("manager.timeout_seconds", 30)
	v.SetDefault("progress.url", "")
	v.SetDefault("progress.retry_delay_ms", int(progress.DefaultRetryDelay/time.Millisecond))
	v.SetDefault("progress.handshake_timeout_ms", 0)
	v.SetDefault("view.poll_interval_seconds", 5)
	v.SetDefault("view.page_size", 25)
	v.SetDefault("server.port", 8090)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("audit.dsn", "")
	v.SetDefault("audit.table", "console_actions")
	v.SetDefault("audit.capacity", 1000)
	v.SetDefault("hub.buffer_size", 1024)
	v.SetDefault("hub.max_batch_events", 64)
	v.SetDefault("hub.max_batch_wait_ms", 250)
	v.SetDefault("hub.sink_timeout_seconds", 5)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validateHTTPURL("manager.base_url", c.Manager.BaseURL); err != nil {
		return err
	}
	if c.Manager.TimeoutSeconds <= 0 {
		return errors.New("manager.timeout_seconds must be > 0")
	}
	if c.Progress.URL != "" {
		u, err := url.Parse(c.Progress.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("progress.url must be an absolute ws(s) url, got %q", c.Progress.URL)
		}
	}
	if c.Progress.RetryDelayMs <= 0 {
		return errors.New("progress.retry_delay_ms must be > 0")
	}
	if c.Progress.HandshakeTimeoutMs < 0 {
		return errors.New("progress.handshake_timeout_ms must be >= 0")
	}
	if c.View.PollIntervalSeconds <= 0 {
		return errors.New("view.poll_interval_seconds must be > 0")
	}
	if c.View.PageSize <= 0 {
		return errors.New("view.page_size must be > 0")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if c.Hub.BufferSize <= 0 || c.Hub.MaxBatchEvents <= 0 || c.Hub.MaxBatchWaitMs <= 0 {
		return errors.New("hub.buffer_size, hub.max_batch_events and hub.max_batch_wait_ms must be > 0")
	}
	return nil
}

func validateHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) url, got %q", key, raw)
	}
	return nil
}

// ManagerTimeout is the per-request deadline of the manager client.
func (c Config) ManagerTimeout() time.Duration {
	return time.Duration(c.Manager.TimeoutSeconds) * time.Second
}

// ProgressURL returns the configured socket URL or derives it from the
// manager base URL.
func (c Config) ProgressURL() (string, error) {
	if c.Progress.URL != "" {
		return c.Progress.URL, nil
	}
	return progress.EndpointURL(c.Manager.BaseURL)
}

// RetryDelay is the fixed reconnect delay of the progress channel.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Progress.RetryDelayMs) * time.Millisecond
}

// HandshakeTimeout bounds the websocket opening handshake; zero means none.
func (c Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Progress.HandshakeTimeoutMs) * time.Millisecond
}

// PollInterval is the episode listing refresh period.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.View.PollIntervalSeconds) * time.Second
}

// HubSettings converts the hub section into progress.HubConfig.
func (c Config) HubSettings() progress.HubConfig {
	return progress.HubConfig{
		BufferSize:     c.Hub.BufferSize,
		MaxBatchEvents: c.Hub.MaxBatchEvents,
		MaxBatchWait:   time.Duration(c.Hub.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(c.Hub.SinkTimeoutSecs) * time.Second,
	}
}
