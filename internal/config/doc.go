// Package config loads, normalizes, and validates newsdigest configuration.
//
// It supplies repository defaults, expands user paths, reads TOML files, and
// layers the environment variables older deployments relied on (OLLAMA_MODEL,
// TIME_WINDOW_HOURS, TELEGRAM_BOT_TOKEN and friends) on top of file values.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, lower-cased selectors, and clear validation errors.
package config
