// Package logs reads daemon log files for the CLI.
//
// Tail returns the last lines of a log with bounded memory. Follow streams
// lines appended afterwards, waking on filesystem events and reopening the
// file when the pixelpath.log pointer moves to a new run.
package logs
