// Package services defines shared utilities consumed by the processing
// pipeline and the external service clients.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, file indexes, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent across conversion and generation.
package services
