// Package config loads, normalizes, and validates harmony configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// ABS_URL, ABS_TOKEN and HARMONY_CONFIDENCE. The Config type centralizes the
// library connection, run mode, cache and report locations, and logging
// settings in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical report formats, and clear validation errors.
package config
