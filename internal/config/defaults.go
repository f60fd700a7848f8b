package config

const (
	defaultConfigPath             = "~/.config/storyreel/config.toml"
	defaultStateDir               = "~/.local/share/storyreel"
	defaultBaseURL                = "http://127.0.0.1:8000/api/v1"
	defaultRequestTimeout         = 30
	defaultPollIntervalMillis     = 1000
	defaultPollMaxAttempts        = 60
	defaultVideoPollMaxAttempts   = 600
	defaultDuplicatePolicy        = "reject"
	defaultAvatarStyle            = "realistic"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultNotifyRequestTimeout   = 10
	defaultMetricsPath            = "metrics.prom"
	defaultTracingExporter        = "stdout"
	defaultTracingServiceName     = "storyreel"
	envAPIToken                   = "STORYREEL_API_TOKEN"
	envBaseURL                    = "STORYREEL_BASE_URL"
	envAPIKeyID                   = "STORYREEL_API_KEY_ID"
	maxPollIntervalMillis         = 60_000
	duplicatePolicyReject         = "reject"
	duplicatePolicyAllow          = "allow"
	tracingExporterStdout         = "stdout"
	tracingExporterStdoutPretty   = "stdout-pretty"
	defaultNotificationsEnabled   = true
	defaultNotificationSubmission = false
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Backend: Backend{
			BaseURL:        defaultBaseURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Generation: Generation{
			AvatarStyle: defaultAvatarStyle,
		},
		Poller: Poller{
			IntervalMillis:   defaultPollIntervalMillis,
			MaxAttempts:      defaultPollMaxAttempts,
			VideoMaxAttempts: defaultVideoPollMaxAttempts,
		},
		Workflow: Workflow{
			DuplicatePolicy: defaultDuplicatePolicy,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Submissions:    defaultNotificationSubmission,
			Completions:    defaultNotificationsEnabled,
			Errors:         defaultNotificationsEnabled,
		},
		Metrics: Metrics{
			Path: defaultMetricsPath,
		},
		Tracing: Tracing{
			Exporter:    defaultTracingExporter,
			ServiceName: defaultTracingServiceName,
		},
	}
}
