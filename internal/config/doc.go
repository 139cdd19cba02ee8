// Package config loads, normalizes, and validates Subtrove configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENSUBTITLES_API_KEY and ASSRT_TOKEN. The Config type centralizes every knob
// the engine, CLI, and long-running service need, and Policy converts the
// subtitle and cache sections into the selection policy the engine consumes.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
