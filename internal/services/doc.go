// Package services defines shared utilities consumed by the ingest engine and
// the processor integrations.
//
// Key responsibilities:
//   - Context helpers that stamp correlation identifiers, media types, and
//     source paths for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent ledger classifications.
package services
