// Command pixelpath runs the ingestion daemon and talks to it over IPC.
//
// `pixelpath run` starts the daemon in the foreground. The remaining
// commands (status, history, forget, retry, scan, stop) connect to the
// running daemon's socket; history falls back to reading the ledger directly
// when the daemon is offline.
package main
