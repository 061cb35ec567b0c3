package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateExtensions(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateOrganize(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if topic := c.Notifications.NtfyTopic; topic != "" {
		parsed, err := url.Parse(topic)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("notifications.ntfy_topic must be a full topic URL (got %q)", topic)
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if c.Workflow.Images.MoveProcessedMedia && strings.TrimSpace(c.Paths.ImageDest) == "" {
		return errors.New("paths.image_dest must be set when workflow.images.move_processed_media is true")
	}
	if c.Workflow.Videos.MoveProcessedMedia && strings.TrimSpace(c.Paths.VideoDest) == "" {
		return errors.New("paths.video_dest must be set when workflow.videos.move_processed_media is true")
	}
	for name, dest := range map[string]string{"paths.image_dest": c.Paths.ImageDest, "paths.video_dest": c.Paths.VideoDest} {
		if dest != "" && filepath.Clean(dest) == filepath.Clean(c.Paths.WatchDir) {
			return fmt.Errorf("%s must differ from paths.watch_dir", name)
		}
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MaxConcurrent < 1 {
		return fmt.Errorf("ingest.max_concurrent must be at least 1 (got %d)", c.Ingest.MaxConcurrent)
	}
	if err := ensurePositiveMap(map[string]int{
		"ingest.watch_interval": c.Ingest.WatchInterval,
	}); err != nil {
		return err
	}
	if c.Ingest.MinFileAge < 0 {
		return errors.New("ingest.min_file_age must not be negative")
	}
	switch c.Ingest.WatchMode {
	case WatchModePoll, WatchModeNotify:
	default:
		return fmt.Errorf("ingest.watch_mode: unsupported value %q (want poll or notify)", c.Ingest.WatchMode)
	}
	switch c.Ingest.RetryPolicy {
	case RetryNever:
	case RetrySchedule:
		if _, err := cron.ParseStandard(c.Ingest.RetrySchedule); err != nil {
			return fmt.Errorf("ingest.retry_schedule: %w", err)
		}
	default:
		return fmt.Errorf("ingest.retry_policy: unsupported value %q (want never or schedule)", c.Ingest.RetryPolicy)
	}
	return nil
}

func (c *Config) validateExtensions() error {
	images := make(map[string]struct{}, len(c.Ingest.ImageExtensions))
	for _, ext := range c.Ingest.ImageExtensions {
		images[ext] = struct{}{}
	}
	for _, ext := range c.Ingest.VideoExtensions {
		if _, ok := images[ext]; ok {
			return fmt.Errorf("extension %q listed as both image and video", ext)
		}
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	for name, value := range map[string]string{
		"analysis.tagging_url":       c.Analysis.TaggingURL,
		"analysis.ocr_url":           c.Analysis.OCRURL,
		"analysis.description_url":   c.Analysis.DescriptionURL,
		"analysis.transcription_url": c.Analysis.TranscriptionURL,
	} {
		if value == "" {
			continue
		}
		parsed, err := url.Parse(value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL (got %q)", name, value)
		}
	}
	if c.Analysis.MinConfidence < 0 || c.Analysis.MinConfidence > 1 {
		return errors.New("analysis.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateOrganize() error {
	switch c.Organize.ConflictResolution {
	case ConflictRename, ConflictOverwrite, ConflictSkip:
	default:
		return fmt.Errorf("organize.conflict_resolution: unsupported value %q", c.Organize.ConflictResolution)
	}
	if c.Organize.ConflictResolution == ConflictRename && !strings.Contains(c.Organize.RenameSuffix, "{counter}") {
		return errors.New("organize.rename_suffix must contain {counter}")
	}
	switch c.Organize.TagCase {
	case "lower", "title":
	default:
		return fmt.Errorf("organize.tag_case: unsupported value %q (want lower or title)", c.Organize.TagCase)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.ArchiveCodec {
	case "zstd", "gzip":
	default:
		return fmt.Errorf("logging.archive_codec: unsupported value %q (want zstd or gzip)", c.Logging.ArchiveCodec)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
