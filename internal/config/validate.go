package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validatePoller(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateTracing(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBackend() error {
	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https, got %q", c.Backend.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("backend.base_url must include a host, got %q", c.Backend.BaseURL)
	}
	return ensurePositiveMap(map[string]int{
		"backend.request_timeout":       c.Backend.RequestTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validatePoller() error {
	if err := ensurePositiveMap(map[string]int{
		"poller.interval_ms":        c.Poller.IntervalMillis,
		"poller.max_attempts":       c.Poller.MaxAttempts,
		"poller.video_max_attempts": c.Poller.VideoMaxAttempts,
	}); err != nil {
		return err
	}
	if c.Poller.IntervalMillis > maxPollIntervalMillis {
		return fmt.Errorf("poller.interval_ms must be <= %d", maxPollIntervalMillis)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	switch c.Workflow.DuplicatePolicy {
	case duplicatePolicyReject, duplicatePolicyAllow:
		return nil
	default:
		return fmt.Errorf("workflow.duplicate_policy must be %q or %q, got %q", duplicatePolicyReject, duplicatePolicyAllow, c.Workflow.DuplicatePolicy)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func (c *Config) validateTracing() error {
	if !c.Tracing.Enabled {
		return nil
	}
	switch c.Tracing.Exporter {
	case tracingExporterStdout, tracingExporterStdoutPretty:
		return nil
	default:
		return errors.New("tracing.exporter must be stdout or stdout-pretty")
	}
}

// RequireGeneration reports whether submission selectors are configured.
func (c *Config) RequireGeneration() error {
	if strings.TrimSpace(c.Generation.APIKeyID) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("generation.api_key_id is required. Set %s env var or edit %s (create with 'storyreel config init')", envAPIKeyID, defaultPath)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
