// Package processor implements the media handlers run by the ingest worker
// pool.
//
// A Dispatcher routes each work item to the image or video pipeline. Each
// pipeline calls the enabled remote analysis endpoints, normalizes tags,
// moves the file into the dated destination tree, and writes a YAML sidecar
// describing what was learned.
package processor
