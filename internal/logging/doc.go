// Package logging wraps log/slog with console and JSON handlers plus helpers
// that derive structured fields from pipeline contexts.
package logging
