package config

const (
	defaultConfigPath         = "~/.config/pixelpath/config.toml"
	defaultWatchDir           = "~/Pictures/inbox"
	defaultImageDest          = "~/Pictures/library"
	defaultVideoDest          = "~/Videos/library"
	defaultStateDir           = "~/.local/share/pixelpath"
	defaultLogDir             = "~/.local/share/pixelpath/logs"
	defaultWatchInterval      = 5
	defaultMinFileAge         = 60
	defaultMaxConcurrent      = 2
	defaultProcessTimeout     = 600
	defaultShutdownGrace      = 30
	defaultWatchMode          = WatchModePoll
	defaultRetryPolicy        = RetryNever
	defaultRetrySchedule      = "0 3 * * *"
	defaultRequestTimeout     = 30
	defaultMinConfidence      = 0.5
	defaultConflictResolution = ConflictRename
	defaultRenameSuffix       = "_{counter}"
	defaultTagCase            = "lower"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultArchiveAfterDays   = 3
	defaultArchiveCodec       = "zstd"
	defaultNtfyTimeout        = 10
)

// Watch modes.
const (
	WatchModePoll   = "poll"
	WatchModeNotify = "notify"
)

// Retry policies for failed items.
const (
	RetryNever    = "never"
	RetrySchedule = "schedule"
)

// Conflict resolution strategies used when a destination file already exists.
const (
	ConflictRename    = "rename"
	ConflictOverwrite = "overwrite"
	ConflictSkip      = "skip"
)

var (
	defaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".heic", ".webp"}
	defaultVideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:  defaultWatchDir,
			ImageDest: defaultImageDest,
			VideoDest: defaultVideoDest,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		Ingest: Ingest{
			WatchInterval:   defaultWatchInterval,
			MinFileAge:      defaultMinFileAge,
			Recursive:       true,
			MaxConcurrent:   defaultMaxConcurrent,
			ProcessTimeout:  defaultProcessTimeout,
			ShutdownGrace:   defaultShutdownGrace,
			WatchMode:       defaultWatchMode,
			RetryPolicy:     defaultRetryPolicy,
			RetrySchedule:   defaultRetrySchedule,
			ImageExtensions: append([]string(nil), defaultImageExtensions...),
			VideoExtensions: append([]string(nil), defaultVideoExtensions...),
		},
		Analysis: Analysis{
			RequestTimeout: defaultRequestTimeout,
			MinConfidence:  defaultMinConfidence,
		},
		Workflow: Workflow{
			Images: ImageWorkflow{
				EnableTagging:      true,
				CreateSidecarFiles: true,
				MoveProcessedMedia: true,
			},
			Videos: VideoWorkflow{
				CreateSidecarFiles: true,
				MoveProcessedMedia: true,
			},
		},
		Organize: Organize{
			ConflictResolution: defaultConflictResolution,
			RenameSuffix:       defaultRenameSuffix,
			TagCase:            defaultTagCase,
		},
		Logging: Logging{
			Format:           defaultLogFormat,
			Level:            defaultLogLevel,
			RetentionDays:    defaultLogRetentionDays,
			ArchiveAfterDays: defaultArchiveAfterDays,
			ArchiveCodec:     defaultArchiveCodec,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			NotifyFailures: true,
		},
	}
}
