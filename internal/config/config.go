package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WatchDir  string `toml:"watch_dir"`
	ImageDest string `toml:"image_dest"`
	VideoDest string `toml:"video_dest"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
}

// Ingest contains scanner, queue, and worker pool settings.
type Ingest struct {
	WatchInterval      int      `toml:"watch_interval"`
	MinFileAge         int      `toml:"min_file_age"`
	Recursive          bool     `toml:"recursive"`
	MaxConcurrent      int      `toml:"max_concurrent"`
	SimulateProcessing bool     `toml:"simulate_processing"`
	ProcessTimeout     int      `toml:"process_timeout"`
	ShutdownGrace      int      `toml:"shutdown_grace"`
	TrackModifications bool     `toml:"track_modifications"`
	WatchMode          string   `toml:"watch_mode"`
	DeviceTrigger      bool     `toml:"device_trigger"`
	RememberCompleted  bool     `toml:"remember_completed"`
	RetryPolicy        string   `toml:"retry_policy"`
	RetrySchedule      string   `toml:"retry_schedule"`
	ExcludeDirs        []string `toml:"exclude_dirs"`
	ImageExtensions    []string `toml:"image_extensions"`
	VideoExtensions    []string `toml:"video_extensions"`
}

// Analysis contains the remote analysis endpoints used by the processor.
type Analysis struct {
	TaggingURL       string  `toml:"tagging_url"`
	OCRURL           string  `toml:"ocr_url"`
	DescriptionURL   string  `toml:"description_url"`
	TranscriptionURL string  `toml:"transcription_url"`
	APIKey           string  `toml:"api_key"`
	RequestTimeout   int     `toml:"request_timeout"`
	MinConfidence    float64 `toml:"min_confidence"`
}

// ImageWorkflow toggles the processing steps applied to images.
type ImageWorkflow struct {
	EnableTagging      bool `toml:"enable_tagging"`
	EnableOCR          bool `toml:"enable_ocr"`
	EnableDescription  bool `toml:"enable_description"`
	CreateSidecarFiles bool `toml:"create_sidecar_files"`
	MoveProcessedMedia bool `toml:"move_processed_media"`
}

// VideoWorkflow toggles the processing steps applied to videos.
type VideoWorkflow struct {
	EnableTagging       bool `toml:"enable_tagging"`
	EnableTranscription bool `toml:"enable_transcription"`
	CreateSidecarFiles  bool `toml:"create_sidecar_files"`
	MoveProcessedMedia  bool `toml:"move_processed_media"`
}

// Workflow groups per-media processing toggles.
type Workflow struct {
	Images ImageWorkflow `toml:"images"`
	Videos VideoWorkflow `toml:"videos"`
}

// Organize controls how processed media lands in the destination tree.
type Organize struct {
	ConflictResolution string `toml:"conflict_resolution"`
	RenameSuffix       string `toml:"rename_suffix"`
	TagCase            string `toml:"tag_case"`
}

// Notifications configures ntfy delivery of daemon events.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeout  int    `toml:"request_timeout"`
	NotifyFailures  bool   `toml:"notify_failures"`
	NotifyLifecycle bool   `toml:"notify_lifecycle"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format           string `toml:"format"`
	Level            string `toml:"level"`
	RetentionDays    int    `toml:"retention_days"`
	ArchiveAfterDays int    `toml:"archive_after_days"`
	ArchiveCodec     string `toml:"archive_codec"`
}

// Config encapsulates all configuration values for pixelpath.
//
// Configuration sections by subsystem:
//   - Paths: watched directory, destinations, state and log locations
//   - Ingest: scan cadence, eligibility, worker count, triggers, retry policy
//   - Analysis: remote tagging/OCR/description/transcription endpoints
//   - Workflow: per-media processing toggles
//   - Organize: destination layout and conflict handling
//   - Notifications: ntfy topic and which events are published
//   - Logging: log format, level, retention, and archiving
type Config struct {
	Paths    Paths    `toml:"paths"`
	Ingest   Ingest   `toml:"ingest"`
	Analysis Analysis `toml:"analysis"`
	Workflow Workflow `toml:"workflow"`
	Organize Organize `toml:"organize"`
	Logging  Logging  `toml:"logging"`

	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pixelpath.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// Destination directories are created on a best-effort basis so the daemon
// can keep scanning when external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dir := range []string{c.Paths.ImageDest, c.Paths.VideoDest} {
		if strings.TrimSpace(dir) != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
	}
	return nil
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "pixelpath.sock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "pixelpath.pid")
}

// LedgerPath returns the SQLite outcome ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "pixelpath.lock")
}

// WatchInterval returns the scan period.
func (c *Config) WatchInterval() time.Duration {
	return time.Duration(c.Ingest.WatchInterval) * time.Second
}

// MinFileAge returns the idle time a file needs before it becomes eligible.
func (c *Config) MinFileAge() time.Duration {
	return time.Duration(c.Ingest.MinFileAge) * time.Second
}

// ProcessTimeout returns the per-item processing bound; zero means unbounded.
func (c *Config) ProcessTimeout() time.Duration {
	return time.Duration(c.Ingest.ProcessTimeout) * time.Second
}

// ShutdownGrace returns how long shutdown waits for in-flight items; zero waits forever.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Ingest.ShutdownGrace) * time.Second
}

// DestinationFor returns the destination root configured for a media kind.
func (c *Config) DestinationFor(kind string) string {
	switch kind {
	case "image":
		return c.Paths.ImageDest
	case "video":
		return c.Paths.VideoDest
	default:
		return ""
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
