package ipc

import (
	"time"

	"pixelpath/internal/ledger"
)

// ServiceName is the JSON-RPC service the daemon registers.
const ServiceName = "PixelPath"

// HistoryEntry mirrors the ledger entry for IPC callers.
type HistoryEntry = ledger.Entry

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// ScanSummary describes the most recent scan cycle.
type ScanSummary struct {
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	Listed      int       `json:"listed"`
	Enqueued    int       `json:"enqueued"`
	TooYoung    int       `json:"too_young"`
	Known       int       `json:"known"`
	Unsupported int       `json:"unsupported"`
	StatErrors  int       `json:"stat_errors"`
}

// LastItem describes the most recently finished item.
type LastItem struct {
	Path        string    `json:"path"`
	MediaType   string    `json:"media_type"`
	Outcome     string    `json:"outcome"`
	Destination string    `json:"destination,omitempty"`
	Error       string    `json:"error,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// StatusResponse represents combined daemon and ingest status.
type StatusResponse struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	StartedAt     time.Time      `json:"started_at"`
	WatchDir      string         `json:"watch_dir"`
	WatchMode     string         `json:"watch_mode"`
	DeviceTrigger bool           `json:"device_trigger"`
	RetrySchedule string         `json:"retry_schedule,omitempty"`
	LedgerPath    string         `json:"ledger_path"`
	LockPath      string         `json:"lock_path"`
	Workers       int            `json:"workers"`
	QueueDepth    int            `json:"queue_depth"`
	InFlight      int            `json:"in_flight"`
	Claimed       int            `json:"claimed"`
	Done          int            `json:"done"`
	Processed     int64          `json:"processed"`
	Failed        int64          `json:"failed"`
	Outcomes      map[string]int `json:"outcomes"`
	Ledger        map[string]int `json:"ledger"`
	ScanCycles    int            `json:"scan_cycles"`
	LastScan      ScanSummary    `json:"last_scan"`
	LastError     string         `json:"last_error,omitempty"`
	LastItem      *LastItem      `json:"last_item,omitempty"`
}

// ScanRequest requests a scan, or a preview when DryRun is set.
type ScanRequest struct {
	DryRun bool `json:"dry_run"`
}

// Candidate is a file a scan would enqueue.
type Candidate struct {
	Path      string        `json:"path"`
	MediaType string        `json:"media_type"`
	Age       time.Duration `json:"age"`
}

// ScanResponse reports whether a scan was requested and, for dry runs, what
// it would pick up.
type ScanResponse struct {
	Triggered  bool        `json:"triggered"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// HistoryRequest filters ledger history.
type HistoryRequest struct {
	Outcome string `json:"outcome"`
	Path    string `json:"path"`
	Limit   int    `json:"limit"`
}

// HistoryResponse contains ledger entries, newest first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ForgetRequest removes all records of a path.
type ForgetRequest struct {
	Path string `json:"path"`
}

// ForgetResponse reports how many records were removed.
type ForgetResponse struct {
	Path    string `json:"path"`
	Tracker int    `json:"tracker"`
	Ledger  int64  `json:"ledger"`
}

// RetryRequest releases failed items.
type RetryRequest struct{}

// RetryResponse reports how many failed items became eligible again.
type RetryResponse struct {
	Released int `json:"released"`
}

// TestNotificationRequest asks the daemon to publish a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether the notification was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message,omitempty"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
