// Package config loads and validates the TOML configuration consumed by the
// CLI and the processing pipeline.
package config
