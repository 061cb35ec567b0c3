package ingest

import (
	"time"

	"github.com/spf13/afero"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// FileStat reports a file's last modification instant.
type FileStat interface {
	ModTime(path string) (time.Time, error)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

type fsStat struct {
	fs afero.Fs
}

// NewFileStat returns a FileStat backed by fs.
func NewFileStat(fs afero.Fs) FileStat {
	return fsStat{fs: fs}
}

func (s fsStat) ModTime(path string) (time.Time, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
