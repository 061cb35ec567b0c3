// Package config loads, normalizes, and validates pixelpath configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PIXELPATH_ANALYSIS_API_KEY. The Config type centralizes every knob the
// daemon and CLI need, so the watch directory, destinations, and scan cadence
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical extension lists, and clear validation errors.
package config
