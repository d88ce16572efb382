package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"

	"harmony/internal/services"
)

// Validate ensures the configuration is usable. Every failure wraps
// services.ErrConfiguration.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateLibrary,
		c.validateHarmony,
		c.validateReport,
		c.validateLogging,
	} {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %w", services.ErrConfiguration, err)
		}
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if c.Library.URL == "" {
		return errors.New("library.url must be set (or set ABS_URL)")
	}
	parsed, err := url.Parse(c.Library.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("library.url must be an http(s) URL, got %q", c.Library.URL)
	}
	if c.Library.Token == "" {
		return errors.New("library.token must be set (or set ABS_TOKEN)")
	}
	if c.Library.RequestTimeout < 1 {
		return errors.New("library.request_timeout must be positive (seconds)")
	}
	if c.Library.PageSize < 1 {
		return errors.New("library.page_size must be positive")
	}
	if c.Library.Concurrency < 1 {
		return errors.New("library.concurrency must be positive")
	}
	return nil
}

func (c *Config) validateHarmony() error {
	return ValidateThreshold(c.Harmony.ConfidenceThreshold)
}

// ValidateThreshold rejects confidence thresholds outside [0, 1].
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("harmony.confidence_threshold must be between 0 and 1, got %v", threshold)
	}
	return nil
}

func (c *Config) validateReport() error {
	for _, format := range c.Report.Formats {
		switch format {
		case "json", "yaml":
		default:
			return fmt.Errorf("report.formats must contain only json or yaml, got %q", format)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
