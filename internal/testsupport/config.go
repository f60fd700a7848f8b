package testsupport

import (
	"path/filepath"
	"testing"

	"storyreel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Backend.BaseURL = "http://127.0.0.1:0/api/v1"
	cfgVal.Generation.APIKeyID = "test-key"
	cfgVal.Generation.Model = "test-model"
	cfgVal.Generation.VideoModel = "test-video-model"
	cfgVal.Poller.IntervalMillis = 1
	cfgVal.Poller.MaxAttempts = 5
	cfgVal.Poller.VideoMaxAttempts = 10
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Metrics.Path = filepath.Join(base, "state", "metrics.prom")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBackendURL points the config at a test server.
func WithBackendURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backend.BaseURL = url
	}
}

// WithDuplicatePolicy sets the workflow duplicate submission policy.
func WithDuplicatePolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.DuplicatePolicy = policy
	}
}

// WithPoller overrides the poll cadence.
func WithPoller(intervalMillis, maxAttempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Poller.IntervalMillis = intervalMillis
		b.cfg.Poller.MaxAttempts = maxAttempts
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WithGeneration overrides the generation selectors. Empty values clear them.
func WithGeneration(apiKeyID, model, videoModel string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generation.APIKeyID = apiKeyID
		b.cfg.Generation.Model = model
		b.cfg.Generation.VideoModel = videoModel
	}
}
