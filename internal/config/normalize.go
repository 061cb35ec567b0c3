package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeIngest(); err != nil {
		return err
	}
	c.normalizeAnalysis()
	c.normalizeOrganize()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WatchDir, err = expandPath(c.Paths.WatchDir); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if c.Paths.ImageDest, err = expandPath(c.Paths.ImageDest); err != nil {
		return fmt.Errorf("paths.image_dest: %w", err)
	}
	if c.Paths.VideoDest, err = expandPath(c.Paths.VideoDest); err != nil {
		return fmt.Errorf("paths.video_dest: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeIngest() error {
	c.Ingest.WatchMode = strings.ToLower(strings.TrimSpace(c.Ingest.WatchMode))
	if c.Ingest.WatchMode == "" {
		c.Ingest.WatchMode = defaultWatchMode
	}
	c.Ingest.RetryPolicy = strings.ToLower(strings.TrimSpace(c.Ingest.RetryPolicy))
	if c.Ingest.RetryPolicy == "" {
		c.Ingest.RetryPolicy = defaultRetryPolicy
	}
	c.Ingest.RetrySchedule = strings.TrimSpace(c.Ingest.RetrySchedule)
	if c.Ingest.RetrySchedule == "" {
		c.Ingest.RetrySchedule = defaultRetrySchedule
	}
	if c.Ingest.ProcessTimeout < 0 {
		c.Ingest.ProcessTimeout = 0
	}
	if c.Ingest.ShutdownGrace < 0 {
		c.Ingest.ShutdownGrace = 0
	}

	excludes := make([]string, 0, len(c.Ingest.ExcludeDirs))
	for _, dir := range c.Ingest.ExcludeDirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(dir))
		if err != nil {
			return fmt.Errorf("ingest.exclude_dirs: %w", err)
		}
		excludes = append(excludes, expanded)
	}
	c.Ingest.ExcludeDirs = excludes

	c.Ingest.ImageExtensions = normalizeExtensions(c.Ingest.ImageExtensions)
	if len(c.Ingest.ImageExtensions) == 0 {
		c.Ingest.ImageExtensions = append([]string(nil), defaultImageExtensions...)
	}
	c.Ingest.VideoExtensions = normalizeExtensions(c.Ingest.VideoExtensions)
	if len(c.Ingest.VideoExtensions) == 0 {
		c.Ingest.VideoExtensions = append([]string(nil), defaultVideoExtensions...)
	}
	return nil
}

// normalizeExtensions lower-cases, dot-prefixes, and de-duplicates extensions.
func normalizeExtensions(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		ext := strings.ToLower(strings.TrimSpace(value))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.TaggingURL = strings.TrimSpace(c.Analysis.TaggingURL)
	c.Analysis.OCRURL = strings.TrimSpace(c.Analysis.OCRURL)
	c.Analysis.DescriptionURL = strings.TrimSpace(c.Analysis.DescriptionURL)
	c.Analysis.TranscriptionURL = strings.TrimSpace(c.Analysis.TranscriptionURL)
	c.Analysis.APIKey = strings.TrimSpace(c.Analysis.APIKey)
	if c.Analysis.APIKey == "" {
		if value, ok := os.LookupEnv("PIXELPATH_ANALYSIS_API_KEY"); ok {
			c.Analysis.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Analysis.RequestTimeout <= 0 {
		c.Analysis.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeOrganize() {
	c.Organize.ConflictResolution = strings.ToLower(strings.TrimSpace(c.Organize.ConflictResolution))
	if c.Organize.ConflictResolution == "" {
		c.Organize.ConflictResolution = defaultConflictResolution
	}
	if strings.TrimSpace(c.Organize.RenameSuffix) == "" {
		c.Organize.RenameSuffix = defaultRenameSuffix
	}
	c.Organize.TagCase = strings.ToLower(strings.TrimSpace(c.Organize.TagCase))
	if c.Organize.TagCase == "" {
		c.Organize.TagCase = defaultTagCase
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Logging.ArchiveAfterDays < 0 {
		c.Logging.ArchiveAfterDays = 0
	}
	c.Logging.ArchiveCodec = strings.ToLower(strings.TrimSpace(c.Logging.ArchiveCodec))
	if c.Logging.ArchiveCodec == "" {
		c.Logging.ArchiveCodec = defaultArchiveCodec
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}
