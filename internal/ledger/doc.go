// Package ledger persists the terminal outcome of every processed file in a
// SQLite database under the state directory.
//
// The ledger is history, not a work queue: the daemon records each completion
// and, when remember_completed is enabled, seeds the in-memory tracker with
// previously completed identities at startup so restarts do not reprocess
// files that were left in place.
package ledger
