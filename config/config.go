// Package config defines the connector framework's logical configuration
// surface (spec §6) and loads it via github.com/spf13/viper from an optional
// document (TOML/YAML/JSON, whatever extension CONFIG_FILE carries) plus
// environment variable overrides using the upper-snake-case of the dotted
// key path, mirroring danube-connect-core/src/config.rs's
// from_env/from_file/apply_env_overrides split.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/danube-messaging/danube-connect/connerr"
)

// RetryConfig is the retry.max_retries/base_backoff_ms/max_backoff_ms
// subsection.
type RetryConfig struct {
	MaxRetries    int `mapstructure:"max_retries"`
	BaseBackoffMs int `mapstructure:"base_backoff_ms"`
	MaxBackoffMs  int `mapstructure:"max_backoff_ms"`
}

// BaseBackoff returns BaseBackoffMs as a time.Duration.
func (r RetryConfig) BaseBackoff() time.Duration { return time.Duration(r.BaseBackoffMs) * time.Millisecond }

// MaxBackoff returns MaxBackoffMs as a time.Duration.
func (r RetryConfig) MaxBackoff() time.Duration { return time.Duration(r.MaxBackoffMs) * time.Millisecond }

// TopicOverride overrides the global batch size/timeout for a single topic
// (spec §4.3's "effective_batch_size(T) = per-topic override ?? global
// batch_size"). A zero field means "use the global value".
type TopicOverride struct {
	BatchSize      int `mapstructure:"batch_size"`
	BatchTimeoutMs int `mapstructure:"batch_timeout_ms"`
}

// ProcessingConfig is the processing.* subsection.
type ProcessingConfig struct {
	BatchSize      int                      `mapstructure:"batch_size"`
	BatchTimeoutMs int                      `mapstructure:"batch_timeout_ms"`
	PollIntervalMs int                      `mapstructure:"poll_interval_ms"`
	LogLevel       string                   `mapstructure:"log_level"`
	TopicOverrides map[string]TopicOverride `mapstructure:"topic_overrides"`
}

// EffectiveBatchSize returns the per-topic override if set, else the global
// batch_size.
func (p ProcessingConfig) EffectiveBatchSize(topic string) int {
	if o, ok := p.TopicOverrides[topic]; ok && o.BatchSize > 0 {
		return o.BatchSize
	}
	return p.BatchSize
}

// EffectiveBatchTimeout returns the per-topic override if set, else the
// global batch_timeout_ms, both as a time.Duration.
func (p ProcessingConfig) EffectiveBatchTimeout(topic string) time.Duration {
	if o, ok := p.TopicOverrides[topic]; ok && o.BatchTimeoutMs > 0 {
		return time.Duration(o.BatchTimeoutMs) * time.Millisecond
	}
	return p.BatchTimeout()
}

// BatchTimeout returns BatchTimeoutMs as a time.Duration.
func (p ProcessingConfig) BatchTimeout() time.Duration {
	return time.Duration(p.BatchTimeoutMs) * time.Millisecond
}

// PollInterval returns PollIntervalMs as a time.Duration.
func (p ProcessingConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// Config is the top-level logical configuration document (spec §6).
type Config struct {
	DanubeServiceURL string           `mapstructure:"danube_service_url"`
	ConnectorName    string           `mapstructure:"connector_name"`
	Retry            RetryConfig      `mapstructure:"retry"`
	Processing       ProcessingConfig `mapstructure:"processing"`
	MetricsPort      int              `mapstructure:"metrics_port"`

	// Plugin is the opaque, connector-specific subsection — untyped here so
	// the core never needs to know a given connector's schema, matching the
	// Rust connectors' #[serde(flatten)] pattern (e.g. sink-qdrant/src/config.rs).
	Plugin map[string]any `mapstructure:"plugin"`
}

// Defaults mirrors config.rs's Default impl.
func Defaults() Config {
	return Config{
		DanubeServiceURL: "http://localhost:6650",
		ConnectorName:    "default-connector",
		Retry: RetryConfig{
			MaxRetries:    3,
			BaseBackoffMs: 1000,
			MaxBackoffMs:  30000,
		},
		Processing: ProcessingConfig{
			BatchSize:      1000,
			BatchTimeoutMs: 1000,
			PollIntervalMs: 100,
			LogLevel:       "info",
		},
		MetricsPort: 9090,
	}
}

// Load builds a viper instance seeded with Defaults(), optionally reads
// configFile (ignored if empty), and applies AutomaticEnv overrides using the
// upper-snake-case of the dotted key path (DANUBE_SERVICE_URL,
// RETRY_MAX_RETRIES, PROCESSING_BATCH_SIZE, ...).
func Load(configFile string) (*Config, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("danube_service_url", defaults.DanubeServiceURL)
	v.SetDefault("connector_name", defaults.ConnectorName)
	v.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	v.SetDefault("retry.base_backoff_ms", defaults.Retry.BaseBackoffMs)
	v.SetDefault("retry.max_backoff_ms", defaults.Retry.MaxBackoffMs)
	v.SetDefault("processing.batch_size", defaults.Processing.BatchSize)
	v.SetDefault("processing.batch_timeout_ms", defaults.Processing.BatchTimeoutMs)
	v.SetDefault("processing.poll_interval_ms", defaults.Processing.PollIntervalMs)
	v.SetDefault("processing.log_level", defaults.Processing.LogLevel)
	v.SetDefault("metrics_port", defaults.MetricsPort)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, connerr.Configf(err, "failed to read config file %s", configFile)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// viper's AutomaticEnv doesn't reliably reach nested keys through
	// Unmarshal unless each key is also explicitly bound — bind every
	// recognized dotted path from spec §6 to its upper-snake-case env var.
	for _, key := range []string{
		"danube_service_url",
		"connector_name",
		"retry.max_retries",
		"retry.base_backoff_ms",
		"retry.max_backoff_ms",
		"processing.batch_size",
		"processing.batch_timeout_ms",
		"processing.poll_interval_ms",
		"processing.log_level",
		"metrics_port",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, connerr.Configf(err, "failed to bind env for %s", key)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, connerr.Configf(err, "failed to unmarshal configuration")
	}

	return &cfg, nil
}

// Validate rejects empty required strings, batch_size == 0, and
// max_retries > 100, per spec §6. Returns a Config-kinded connerr.Error.
func (c *Config) Validate() error {
	if c.DanubeServiceURL == "" {
		return connerr.Configf(nil, "danube_service_url cannot be empty")
	}
	if c.ConnectorName == "" {
		return connerr.Configf(nil, "connector_name cannot be empty")
	}
	if c.Retry.MaxRetries > 100 {
		return connerr.Configf(nil, "max_retries too high (max 100), got %d", c.Retry.MaxRetries)
	}
	if c.Retry.MaxRetries < 0 {
		return connerr.Configf(nil, "max_retries cannot be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Processing.BatchSize == 0 {
		return connerr.Configf(nil, "processing.batch_size must be > 0")
	}
	return nil
}
