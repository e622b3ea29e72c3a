// Package config loads, normalizes, and validates the snapsync TOML
// configuration. Values resolve in order: repository defaults, then the
// config file, then SNAPSYNC_* environment overrides. Path fields are
// tilde-expanded and made absolute during normalization so the rest of the
// codebase never deals with relative paths.
package config
