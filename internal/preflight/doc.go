// Package preflight provides readiness checks for the filesystem paths and
// analysis endpoints pixelpath depends on.
//
// The daemon runs RunAll at startup and refuses to start when a required
// check fails. The CLI status command renders the same results.
package preflight
