package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeLibrary(); err != nil {
		return err
	}
	if err := c.normalizeHarmony(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeReport()
	return c.normalizeLogging()
}

func (c *Config) normalizeLibrary() error {
	if value, ok := lookupEnv("ABS_URL"); ok {
		c.Library.URL = value
	}
	c.Library.URL = strings.TrimRight(strings.TrimSpace(c.Library.URL), "/")
	if value, ok := lookupEnv("ABS_TOKEN"); ok {
		c.Library.Token = value
	}
	c.Library.Token = strings.TrimSpace(c.Library.Token)
	if value, ok := lookupEnv("REQUEST_TIMEOUT"); ok {
		seconds, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		c.Library.RequestTimeout = seconds
	}
	ids := make([]string, 0, len(c.Library.LibraryIDs))
	for _, id := range c.Library.LibraryIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	c.Library.LibraryIDs = ids
	return nil
}

func (c *Config) normalizeHarmony() error {
	if value, ok := lookupEnv("HARMONY_DRY_RUN"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("HARMONY_DRY_RUN: %w", err)
		}
		c.Harmony.DryRun = parsed
	}
	if value, ok := lookupEnv("HARMONY_CONFIDENCE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("HARMONY_CONFIDENCE: %w", err)
		}
		c.Harmony.ConfidenceThreshold = parsed
	}
	if value, ok := lookupEnv("HARMONY_FORCE_RESCAN"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("HARMONY_FORCE_RESCAN: %w", err)
		}
		c.Harmony.ForceRescan = parsed
	}
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := lookupEnv("HARMONY_CACHE_FILE"); ok {
		c.Paths.CacheFile = value
	}
	if strings.TrimSpace(c.Paths.CacheFile) == "" {
		c.Paths.CacheFile = defaultCacheFile
	}
	if value, ok := lookupEnv("HARMONY_OUTPUT_DIR"); ok {
		c.Paths.OutputDir = value
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	var err error
	if c.Paths.CacheFile, err = expandPath(c.Paths.CacheFile); err != nil {
		return fmt.Errorf("paths.cache_file: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeReport() {
	seen := make(map[string]struct{}, len(c.Report.Formats))
	formats := make([]string, 0, len(c.Report.Formats))
	for _, format := range c.Report.Formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if format == "yml" {
			format = "yaml"
		}
		if format == "" {
			continue
		}
		if _, ok := seen[format]; ok {
			continue
		}
		seen[format] = struct{}{}
		formats = append(formats, format)
	}
	if len(formats) == 0 {
		formats = append(formats, defaultReportFormat)
	}
	c.Report.Formats = formats
}

func (c *Config) normalizeLogging() error {
	if value, ok := lookupEnv("LOG_LEVEL"); ok {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.File) != "" {
		var err error
		if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
