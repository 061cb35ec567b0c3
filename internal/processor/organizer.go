package processor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pixelpath/internal/config"
	"pixelpath/internal/fileutil"
	"pixelpath/internal/logging"
	"pixelpath/internal/services"
)

const maxRenameAttempts = 10000

// ErrConflictSkipped is returned by Place when the destination exists and the
// conflict policy is skip.
var ErrConflictSkipped = errors.New("destination exists; left in place")

// Organizer moves processed files into <root>/<YYYY>/<MM>/<name>.
type Organizer struct {
	policy string
	suffix string
	logger *slog.Logger
}

// NewOrganizer builds an organizer from the organize settings.
func NewOrganizer(cfg config.Organize, logger *slog.Logger) *Organizer {
	policy := cfg.ConflictResolution
	if policy == "" {
		policy = config.ConflictRename
	}
	suffix := cfg.RenameSuffix
	if !strings.Contains(suffix, "{counter}") {
		suffix = "_{counter}"
	}
	return &Organizer{
		policy: policy,
		suffix: suffix,
		logger: logging.NewComponentLogger(logger, "organizer"),
	}
}

// Target computes the dated destination for src under root using the file's
// modification time.
func (o *Organizer) Target(root, src string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "organizer", "stat source", src, err)
	}
	stamp := info.ModTime()
	return filepath.Join(root, fmt.Sprintf("%04d", stamp.Year()), fmt.Sprintf("%02d", int(stamp.Month())), filepath.Base(src)), nil
}

// Place moves src into root and returns the final path, applying the conflict
// policy when the dated target already exists. Under the rename and skip
// policies the destination is claimed atomically, so concurrent workers never
// overwrite each other's files.
func (o *Organizer) Place(root, src string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", services.Wrap(services.ErrConfiguration, "organizer", "resolve destination", "destination root not configured", nil)
	}
	target, err := o.Target(root, src)
	if err != nil {
		return "", err
	}

	if o.policy == config.ConflictOverwrite {
		if exists, _ := fileutil.Exists(target); exists {
			o.logger.Info("overwriting existing destination",
				logging.String("destination", target),
				logging.Event("conflict_overwrite"),
			)
		}
		copied, err := fileutil.MoveFile(src, target)
		return o.finish(src, target, copied, err)
	}

	candidate := target
	for counter := 1; ; counter++ {
		copied, err := fileutil.MoveFileExclusive(src, candidate)
		if !errors.Is(err, fileutil.ErrDestinationExists) {
			return o.finish(src, candidate, copied, err)
		}
		if o.policy == config.ConflictSkip {
			o.logger.Info("destination exists; source left in place",
				logging.Path(src),
				logging.String("destination", target),
				logging.Event("conflict_skipped"),
			)
			return "", ErrConflictSkipped
		}
		if counter > maxRenameAttempts {
			return "", services.Wrap(services.ErrTransient, "organizer", "allocate filename", target,
				fmt.Errorf("exhausted %d rename slots", maxRenameAttempts))
		}
		candidate = o.renamed(target, counter)
	}
}

func (o *Organizer) finish(src, target string, copied bool, err error) (string, error) {
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "organizer", "move file", fmt.Sprintf("%s -> %s", src, target), err)
	}
	if copied {
		o.logger.Debug("cross-device move completed by copy",
			logging.Path(src),
			logging.String("destination", target),
		)
	}
	return target, nil
}

// renamed applies the rename suffix with counter to target.
func (o *Organizer) renamed(target string, counter int) string {
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(filepath.Base(target), ext)
	name := stem + strings.ReplaceAll(o.suffix, "{counter}", strconv.Itoa(counter)) + ext
	return filepath.Join(filepath.Dir(target), name)
}
