package config

const (
	// DefaultConfigPath is the user-level configuration file location.
	DefaultConfigPath = "~/.config/harmony/config.toml"

	defaultRequestTimeout      = 30
	defaultPageSize            = 100
	defaultConcurrency         = 4
	defaultDryRun              = true
	defaultConfidenceThreshold = 0.8
	defaultCacheFile           = ".harmony_cache.sqlite"
	defaultOutputDir           = "./reports"
	defaultReportFormat        = "json"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Library: Library{
			RequestTimeout: defaultRequestTimeout,
			PageSize:       defaultPageSize,
			Concurrency:    defaultConcurrency,
		},
		Harmony: Harmony{
			DryRun:              defaultDryRun,
			ConfidenceThreshold: defaultConfidenceThreshold,
		},
		Paths: Paths{
			CacheFile: defaultCacheFile,
			OutputDir: defaultOutputDir,
		},
		Report: Report{
			Formats: []string{defaultReportFormat},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
