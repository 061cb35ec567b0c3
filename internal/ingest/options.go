package ingest

import "github.com/spf13/afero"

// Option overrides a collaborator of the scanner, pool, or orchestrator.
type Option func(*options)

type options struct {
	fs    afero.Fs
	clock Clock
	stat  FileStat
	hooks []func(Completion)
}

// WithFilesystem replaces the OS filesystem used for enumeration.
func WithFilesystem(fs afero.Fs) Option {
	return func(o *options) {
		if fs != nil {
			o.fs = fs
		}
	}
}

// WithClock replaces the wall clock used for age gating.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithFileStat replaces the modification-time source. By default it reads
// from the configured filesystem.
func WithFileStat(stat FileStat) Option {
	return func(o *options) {
		if stat != nil {
			o.stat = stat
		}
	}
}

// WithCompletionHook registers fn to receive every finished item. Hooks run
// on the worker goroutine after the tracker is updated.
func WithCompletionHook(fn func(Completion)) Option {
	return func(o *options) {
		if fn != nil {
			o.hooks = append(o.hooks, fn)
		}
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	if o.clock == nil {
		o.clock = SystemClock()
	}
	if o.stat == nil {
		o.stat = NewFileStat(o.fs)
	}
	return o
}
