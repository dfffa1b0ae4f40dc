// Package config loads, normalizes, and validates Convoy configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and validates dispatcher bounds such as the
// [1,10] concurrency limit. The Config type centralizes every knob the daemon
// and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
