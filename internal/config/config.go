package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"chatdesk/internal/constants"
	"chatdesk/internal/models"
	"chatdesk/internal/security"
)

var (
	ErrMissingBackendURL = models.ConfigError{Message: "missing backend API base URL"}
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Backend.APIBaseURL == "" {
		return ErrMissingBackendURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Push.Enabled && c.Push.URL == "" {
		return models.ConfigError{Message: "push feed is enabled but no URL is configured"}
	}

	if c.Backend.TimeoutSec <= 0 {
		c.Backend.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Backend.CircuitMaxFailures == 0 {
		c.Backend.CircuitMaxFailures = constants.DefaultCircuitMaxFailures
	}
	if c.Backend.CircuitResetTimeSec <= 0 {
		c.Backend.CircuitResetTimeSec = constants.DefaultCircuitResetTimeSec
	}

	if c.Display.Timezone == "" {
		c.Display.Timezone = constants.DefaultDisplayTimezone
	}
	if _, err := time.LoadLocation(c.Display.Timezone); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid display timezone %q: %v", c.Display.Timezone, err)}
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("CHATDESK_BACKEND_URL"); url != "" {
		c.Backend.APIBaseURL = url
	}
	if url := os.Getenv("CHATDESK_PUSH_URL"); url != "" {
		c.Push.URL = url
		c.Push.Enabled = true
	}
	if path := os.Getenv("CHATDESK_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if tz := os.Getenv("CHATDESK_TIMEZONE"); tz != "" {
		c.Display.Timezone = tz
	}
	if level := os.Getenv("CHATDESK_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if port := os.Getenv("CHATDESK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
}
