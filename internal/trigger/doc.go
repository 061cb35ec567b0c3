// Package trigger wakes the scanner ahead of its polling interval.
//
// FSNotifier reacts to filesystem events in the watch directory,
// DeviceMonitor reacts to block devices appearing (a camera card inserted),
// and RetrySchedule periodically makes failed items eligible again. All of
// them only request scans; polling keeps running as the safety net.
package trigger

// Target receives scan requests. ingest.Scanner satisfies it.
type Target interface {
	Trigger()
}

// Releaser makes failed items eligible again. ingest.Tracker satisfies it.
type Releaser interface {
	ReleaseFailed() int
}
