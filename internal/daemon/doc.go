// Package daemon coordinates the long-running pixelpath process.
//
// It wires configuration, the outcome ledger, the ingest orchestrator, and
// the scan triggers into a single lifecycle with flock-based locking to
// prevent multiple instances. The daemon records every finished item in the
// ledger and exposes the maintenance operations used over IPC: status,
// history, forget, retry, and on-demand scans.
//
// Keep orchestration logic here: scanning and scheduling live in ingest and
// the media work lives in processor.
package daemon
