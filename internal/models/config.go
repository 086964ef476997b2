package models

// Config holds the application configuration
type Config struct {
	Backend  BackendConfig  `json:"backend"`
	Push     PushConfig     `json:"push"`
	Database DatabaseConfig `json:"database"`
	Display  DisplayConfig  `json:"display"`
	Retry    RetryConfig    `json:"retry"`
	Server   ServerConfig   `json:"server"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
}

// BackendConfig holds settings for the upstream support-platform API
type BackendConfig struct {
	APIBaseURL          string `json:"api_base_url"`
	TimeoutSec          int    `json:"timeout_sec"`
	CircuitMaxFailures  uint32 `json:"circuit_max_failures"`
	CircuitResetTimeSec int    `json:"circuit_reset_time_sec"`
}

// PushConfig holds settings for the websocket push feed
type PushConfig struct {
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// DatabaseConfig holds settings for the local console store
type DatabaseConfig struct {
	Path string `json:"path"`
}

// DisplayConfig holds presentation settings shared by all sessions.
// Timezone is an IANA identifier; day banners are computed in this zone,
// never in the viewer's local zone.
type DisplayConfig struct {
	Timezone string `json:"timezone"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port int `json:"port"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
