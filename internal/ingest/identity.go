package ingest

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileIdentity is the dedup key for a discovered file. ModTime is zero unless
// modification tracking is enabled, in which case a rewritten file becomes a
// new identity.
type FileIdentity struct {
	Path    string
	ModTime time.Time
}

// NewFileIdentity returns an identity for the cleaned path.
func NewFileIdentity(path string, modTime time.Time) FileIdentity {
	return FileIdentity{Path: filepath.Clean(path), ModTime: modTime}
}

// Key returns the canonical string used by the tracker and ledger.
func (id FileIdentity) Key() string {
	if id.ModTime.IsZero() {
		return id.Path
	}
	return id.Path + "@" + strconv.FormatInt(id.ModTime.UnixNano(), 10)
}

// PathFromKey strips the modification suffix from a tracker key.
func PathFromKey(key string) string {
	if idx := strings.LastIndexByte(key, '@'); idx > 0 {
		if _, err := strconv.ParseInt(key[idx+1:], 10, 64); err == nil {
			return key[:idx]
		}
	}
	return key
}

func (id FileIdentity) String() string {
	return id.Key()
}

// MediaType tags a work item with the pipeline that handles it.
type MediaType string

const (
	MediaImage   MediaType = "image"
	MediaVideo   MediaType = "video"
	MediaUnknown MediaType = ""
)

// Classifier maps file extensions to media types.
type Classifier struct {
	exts map[string]MediaType
}

// NewClassifier builds a classifier from image and video extension lists.
// Extensions are matched case-insensitively with or without the leading dot.
func NewClassifier(imageExts, videoExts []string) Classifier {
	c := Classifier{exts: make(map[string]MediaType, len(imageExts)+len(videoExts))}
	for _, ext := range imageExts {
		c.exts[normalizeExt(ext)] = MediaImage
	}
	for _, ext := range videoExts {
		c.exts[normalizeExt(ext)] = MediaVideo
	}
	return c
}

// Classify returns the media type for path, or MediaUnknown.
func (c Classifier) Classify(path string) MediaType {
	return c.exts[normalizeExt(filepath.Ext(path))]
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// WorkItem is one unit of work handed from the scanner to the pool.
type WorkItem struct {
	ID           string
	Identity     FileIdentity
	Media        MediaType
	DiscoveredAt time.Time
}

// Path is shorthand for the item's source path.
func (w WorkItem) Path() string {
	return w.Identity.Path
}

// Outcome is the terminal state recorded for a finished item.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeSimulated Outcome = "simulated"
)

// ParseOutcome converts a string into an Outcome.
func ParseOutcome(value string) (Outcome, bool) {
	switch Outcome(strings.ToLower(strings.TrimSpace(value))) {
	case OutcomeSucceeded:
		return OutcomeSucceeded, true
	case OutcomeFailed:
		return OutcomeFailed, true
	case OutcomeSkipped:
		return OutcomeSkipped, true
	case OutcomeSimulated:
		return OutcomeSimulated, true
	default:
		return "", false
	}
}
