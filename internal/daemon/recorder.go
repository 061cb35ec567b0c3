package daemon

import (
	"context"
	"errors"

	"pixelpath/internal/ingest"
	"pixelpath/internal/ledger"
	"pixelpath/internal/logging"
	"pixelpath/internal/notifications"
	"pixelpath/internal/services"
)

// record persists a finished item. It runs on the worker goroutine, so the
// failure notification is sent in the background. Ledger failures never
// affect the item's outcome; they are logged and processing continues.
func (d *Daemon) record(c ingest.Completion) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	entry := entryFromCompletion(c)
	if err := d.ledger.Record(ctx, entry); err != nil {
		logging.WarnWithContext(d.logger, "ledger record failed", "ledger_record_failed",
			logging.Path(entry.Path),
			logging.String(logging.FieldOutcome, entry.Outcome),
			logging.Error(err),
			logging.String(logging.FieldImpact, "item missing from history"),
		)
	}
	if c.Outcome == ingest.OutcomeFailed && d.cfg.Notifications.NotifyFailures {
		d.publishAsync(notifications.EventItemFailed, notifications.Payload{
			"path":      entry.Path,
			"mediaType": entry.MediaType,
			"kind":      entry.ErrorKind,
			"error":     entry.ErrorMessage,
		})
	}
}

func entryFromCompletion(c ingest.Completion) ledger.Entry {
	entry := ledger.Entry{
		Key:           c.Item.Identity.Key(),
		Path:          c.Item.Path(),
		MediaType:     string(c.Item.Media),
		Outcome:       string(c.Outcome),
		CorrelationID: c.Item.ID,
		Destination:   c.Result.Destination,
		Sidecar:       c.Result.Sidecar,
		Tags:          c.Result.Tags,
		StartedAt:     c.Started,
		FinishedAt:    c.Finished,
	}
	if c.Err != nil {
		entry.ErrorKind = failureKind(c.Err)
		entry.ErrorMessage = c.Err.Error()
	}
	return entry
}

func failureKind(err error) string {
	if errors.Is(err, ingest.ErrAbandoned) {
		return "abandoned"
	}
	return services.FailureKind(err)
}
