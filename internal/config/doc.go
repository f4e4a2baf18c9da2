// Package config loads, normalizes, and validates avatarmap configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), resolves project-relative directories against paths.root, reads
// TOML files, and honours environment fallbacks such as AVATARMAP_NTFY_TOPIC.
// The Config type centralizes every knob the CLI needs, including the list of
// sources whose identifiers are resolved to cached avatar images.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical enum values, and clear validation errors.
package config
