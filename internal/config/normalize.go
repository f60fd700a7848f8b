package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBackend()
	c.normalizeGeneration()
	c.normalizePoller()
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.normalizeObservability()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = ExpandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBackend() {
	if value, ok := os.LookupEnv(envBaseURL); ok && strings.TrimSpace(value) != "" {
		c.Backend.BaseURL = value
	}
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaultBaseURL
	}
	if c.Backend.APIToken == "" {
		if value, ok := os.LookupEnv(envAPIToken); ok {
			c.Backend.APIToken = value
		}
	}
	c.Backend.APIToken = strings.TrimSpace(c.Backend.APIToken)
	if c.Backend.RequestTimeout == 0 {
		c.Backend.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeGeneration() {
	if c.Generation.APIKeyID == "" {
		if value, ok := os.LookupEnv(envAPIKeyID); ok {
			c.Generation.APIKeyID = value
		}
	}
	c.Generation.APIKeyID = strings.TrimSpace(c.Generation.APIKeyID)
	c.Generation.Model = strings.TrimSpace(c.Generation.Model)
	c.Generation.VideoModel = strings.TrimSpace(c.Generation.VideoModel)
	c.Generation.AvatarStyle = strings.TrimSpace(c.Generation.AvatarStyle)
	if c.Generation.AvatarStyle == "" {
		c.Generation.AvatarStyle = defaultAvatarStyle
	}
}

func (c *Config) normalizePoller() {
	if c.Poller.IntervalMillis == 0 {
		c.Poller.IntervalMillis = defaultPollIntervalMillis
	}
	if c.Poller.MaxAttempts == 0 {
		c.Poller.MaxAttempts = defaultPollMaxAttempts
	}
	if c.Poller.VideoMaxAttempts == 0 {
		c.Poller.VideoMaxAttempts = c.Poller.MaxAttempts
		if c.Poller.VideoMaxAttempts < defaultVideoPollMaxAttempts {
			c.Poller.VideoMaxAttempts = defaultVideoPollMaxAttempts
		}
	}
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.DuplicatePolicy = strings.ToLower(strings.TrimSpace(c.Workflow.DuplicatePolicy))
	if c.Workflow.DuplicatePolicy == "" {
		c.Workflow.DuplicatePolicy = defaultDuplicatePolicy
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeObservability() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if !filepath.IsAbs(c.Metrics.Path) {
		c.Metrics.Path = filepath.Join(c.Paths.StateDir, c.Metrics.Path)
	}
	c.Tracing.Exporter = strings.ToLower(strings.TrimSpace(c.Tracing.Exporter))
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaultTracingExporter
	}
	c.Tracing.ServiceName = strings.TrimSpace(c.Tracing.ServiceName)
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaultTracingServiceName
	}
}
