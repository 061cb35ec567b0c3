package ledger

import "time"

// Outcome values mirror the tracker's terminal states.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeSimulated = "simulated"
)

// Entry is one recorded item outcome. Key is the tracker identity key; a
// later record for the same key replaces the earlier one and bumps Attempts.
type Entry struct {
	ID            int64     `json:"id"`
	Key           string    `json:"key"`
	Path          string    `json:"path"`
	MediaType     string    `json:"media_type"`
	Outcome       string    `json:"outcome"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Destination   string    `json:"destination,omitempty"`
	Sidecar       string    `json:"sidecar,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Attempts      int       `json:"attempts"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Duration is the processing time recorded for the entry.
func (e Entry) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.FinishedAt.Before(e.StartedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Outcome string
	Path    string
	Limit   int
}
