// Package config loads, normalizes, and validates tvcorpus configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the TVCORPUS_DATA_DIR environment
// fallback. The Config type centralizes the storage locations, alignment
// defaults, and logging knobs the CLI and services need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical language codes, and clear validation errors.
package config
