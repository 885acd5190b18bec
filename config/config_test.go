package config

import (
	"testing"

	"github.com/danube-messaging/danube-connect/connerr"
)

func TestDefaults(t *testing.T) {
	c := Defaults()
	if c.DanubeServiceURL != "http://localhost:6650" {
		t.Errorf("DanubeServiceURL = %q", c.DanubeServiceURL)
	}
	if c.ConnectorName != "default-connector" {
		t.Errorf("ConnectorName = %q", c.ConnectorName)
	}
	if c.Retry.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d", c.Retry.MaxRetries)
	}
	if c.Processing.BatchSize != 1000 {
		t.Errorf("BatchSize = %d", c.Processing.BatchSize)
	}
}

func TestValidate(t *testing.T) {
	c := Defaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}

	c.DanubeServiceURL = ""
	if err := c.Validate(); !connerr.Is(err, connerr.Config) {
		t.Errorf("expected Config error for empty URL, got %v", err)
	}

	c = Defaults()
	c.Processing.BatchSize = 0
	if err := c.Validate(); !connerr.Is(err, connerr.Config) {
		t.Errorf("expected Config error for zero batch_size, got %v", err)
	}

	c = Defaults()
	c.Retry.MaxRetries = 101
	if err := c.Validate(); !connerr.Is(err, connerr.Config) {
		t.Errorf("expected Config error for max_retries > 100, got %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DANUBE_SERVICE_URL", "http://broker.example:6650")
	t.Setenv("CONNECTOR_NAME", "my-connector")
	t.Setenv("RETRY_MAX_RETRIES", "7")
	t.Setenv("PROCESSING_BATCH_SIZE", "50")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DanubeServiceURL != "http://broker.example:6650" {
		t.Errorf("DanubeServiceURL = %q", cfg.DanubeServiceURL)
	}
	if cfg.ConnectorName != "my-connector" {
		t.Errorf("ConnectorName = %q", cfg.ConnectorName)
	}
	if cfg.Retry.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d", cfg.Retry.MaxRetries)
	}
	if cfg.Processing.BatchSize != 50 {
		t.Errorf("BatchSize = %d", cfg.Processing.BatchSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.toml"); !connerr.Is(err, connerr.Config) {
		t.Errorf("expected Config error for missing file, got %v", err)
	}
}
