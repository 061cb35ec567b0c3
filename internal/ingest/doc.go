// Package ingest discovers files in the watch directory and schedules them for
// processing.
//
// The Scanner walks the watch directory on an interval, gates files by age,
// and claims each eligible identity in the Tracker before pushing a WorkItem
// onto the Queue. A fixed-size Pool of workers pops items, runs the configured
// Processor under a per-item timeout, and marks every item done regardless of
// outcome. The Orchestrator runs both under an errgroup and, on cancellation,
// closes the queue, releases claims on items that never started, and waits for
// in-flight work within the shutdown grace period.
package ingest
