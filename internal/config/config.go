package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Backend contains connection settings for the production backend REST API.
type Backend struct {
	BaseURL        string `toml:"base_url"`
	APIToken       string `toml:"api_token"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Generation contains the opaque credential and model selectors forwarded on
// every submission.
type Generation struct {
	APIKeyID    string `toml:"api_key_id"`
	Model       string `toml:"model"`
	VideoModel  string `toml:"video_model"`
	AvatarStyle string `toml:"avatar_style"`
}

// Poller contains task polling cadence settings.
type Poller struct {
	IntervalMillis int `toml:"interval_ms"`
	MaxAttempts    int `toml:"max_attempts"`
	// VideoMaxAttempts bounds transition video polls, which run far longer
	// than image or text tasks.
	VideoMaxAttempts int `toml:"video_max_attempts"`
}

// Workflow contains stage workflow behavior settings.
type Workflow struct {
	// DuplicatePolicy is "reject" or "allow".
	DuplicatePolicy string `toml:"duplicate_policy"`
}

// Paths contains local state directories.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Submissions    bool   `toml:"submissions"`
	Completions    bool   `toml:"completions"`
	Errors         bool   `toml:"errors"`
}

// Metrics contains Prometheus exposition settings.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Tracing contains OpenTelemetry settings.
type Tracing struct {
	Enabled     bool   `toml:"enabled"`
	Exporter    string `toml:"exporter"`
	ServiceName string `toml:"service_name"`
}

// Config encapsulates all configuration values for storyreel.
//
// Configuration sections by subsystem:
//   - Backend: REST base URL, bearer token, request timeout
//   - Generation: api_key_id and model selectors forwarded to submissions
//   - Poller: interval and attempt budget for task polls
//   - Workflow: duplicate submission policy
//   - Paths: task ledger and lock file locations
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
//   - Metrics, Tracing: observability toggles
type Config struct {
	Backend       Backend       `toml:"backend"`
	Generation    Generation    `toml:"generation"`
	Poller        Poller        `toml:"poller"`
	Workflow      Workflow      `toml:"workflow"`
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Tracing       Tracing       `toml:"tracing"`
}

// DefaultConfigPath returns ~/.config/storyreel/config.toml, expanded.
func DefaultConfigPath() (string, error) {
	return ExpandPath(defaultConfigPath)
}

// Load reads the config at path, or searches the default location and then
// ./storyreel.toml when path is empty. A missing file yields defaults. It
// returns the config, the path that was (or would be) read, and whether the
// file existed. Unknown keys are rejected so typos do not silently fall back
// to defaults.
func Load(path string) (*Config, string, bool, error) {
	source, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	data, err := os.ReadFile(source)
	exists := err == nil
	switch {
	case exists:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config %s: %s", source, strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config %s: %w", source, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, "", false, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, source, exists, nil
}

// locate picks the file Load reads. An explicit path is used as given even
// when it does not exist.
func locate(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return ExpandPath(path)
	}
	fallback, err := DefaultConfigPath()
	if err != nil {
		return "", err
	}
	local, err := filepath.Abs("storyreel.toml")
	if err != nil {
		return "", err
	}
	for _, candidate := range []string{fallback, local} {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return fallback, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the SQLite task ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "tasks.db")
}

// LockPath returns the lock file guarding batch submissions for a chapter.
// Characters outside [A-Za-z0-9_-] are replaced so any chapter id maps to a
// single file name.
func (c *Config) LockPath(chapterID string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(chapterID))
	if name == "" {
		name = "default"
	}
	return filepath.Join(c.Paths.StateDir, "locks", "chapter-"+name+".lock")
}

// PollInterval returns the delay between task polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalMillis) * time.Millisecond
}

// RequestTimeout returns the backend HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeout) * time.Second
}

// ExpandPath resolves a leading ~ to the home directory and returns an
// absolute, cleaned path. An empty value stays empty.
func ExpandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, value[1:])
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// CreateSample writes the commented sample configuration to path.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o600)
}
