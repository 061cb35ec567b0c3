package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const entryColumns = "id, item_key, path, media_type, outcome, correlation_id, destination, sidecar, tags_json, error_kind, error_message, attempts, started_at, finished_at"

// Record stores e, replacing any earlier entry with the same key.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.Key) == "" {
		return errors.New("ledger entry key is required")
	}
	if e.Path == "" {
		e.Path = e.Key
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}
	var tags any
	if len(e.Tags) > 0 {
		data, err := json.Marshal(e.Tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		tags = string(data)
	}

	_, err := s.execWithRetry(ctx,
		`INSERT INTO entries (
            item_key, path, media_type, outcome, correlation_id, destination, sidecar,
            tags_json, error_kind, error_message, attempts, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
        ON CONFLICT(item_key) DO UPDATE SET
            path = excluded.path,
            media_type = excluded.media_type,
            outcome = excluded.outcome,
            correlation_id = excluded.correlation_id,
            destination = excluded.destination,
            sidecar = excluded.sidecar,
            tags_json = excluded.tags_json,
            error_kind = excluded.error_kind,
            error_message = excluded.error_message,
            attempts = entries.attempts + 1,
            started_at = excluded.started_at,
            finished_at = excluded.finished_at`,
		e.Key,
		e.Path,
		e.MediaType,
		e.Outcome,
		nullableString(e.CorrelationID),
		nullableString(e.Destination),
		nullableString(e.Sidecar),
		tags,
		nullableString(e.ErrorKind),
		nullableString(e.ErrorMessage),
		formatTime(e.StartedAt),
		formatTime(e.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	ctx = ensureContext(ctx)
	var (
		clauses []string
		args    []any
	)
	if filter.Outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	if filter.Path != "" {
		clauses = append(clauses, "path = ?")
		args = append(args, filter.Path)
	}
	query := "SELECT " + entryColumns + " FROM entries"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY finished_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Completed returns the keys of entries that should not be processed again
// after a restart.
func (s *Store) Completed(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_key FROM entries WHERE outcome IN (?, ?) ORDER BY item_key`,
		OutcomeSucceeded, OutcomeSkipped,
	)
	if err != nil {
		return nil, fmt.Errorf("completed entries: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Forget deletes all entries for path and returns how many were removed.
func (s *Store) Forget(ctx context.Context, path string) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM entries WHERE path = ?`, path)
	if err != nil {
		return 0, fmt.Errorf("forget entries: %w", err)
	}
	return res.RowsAffected()
}

// Clear deletes every entry.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM entries`)
	if err != nil {
		return 0, fmt.Errorf("clear entries: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns the number of entries per outcome.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM entries GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		stats[outcome] = count
	}
	return stats, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry         Entry
		correlationID sql.NullString
		destination   sql.NullString
		sidecar       sql.NullString
		tagsJSON      sql.NullString
		errorKind     sql.NullString
		errorMessage  sql.NullString
		startedRaw    string
		finishedRaw   string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.Key,
		&entry.Path,
		&entry.MediaType,
		&entry.Outcome,
		&correlationID,
		&destination,
		&sidecar,
		&tagsJSON,
		&errorKind,
		&errorMessage,
		&entry.Attempts,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Entry{}, err
	}
	entry.CorrelationID = correlationID.String
	entry.Destination = destination.String
	entry.Sidecar = sidecar.String
	entry.ErrorKind = errorKind.String
	entry.ErrorMessage = errorMessage.String
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &entry.Tags); err != nil {
			return Entry{}, fmt.Errorf("decode tags for %s: %w", entry.Key, err)
		}
	}
	entry.StartedAt = parseTime(startedRaw)
	entry.FinishedAt = parseTime(finishedRaw)
	return entry, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
