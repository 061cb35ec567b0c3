package preflight

import (
	"context"

	"pixelpath/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Required bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
// Destination checks only run when the matching workflow moves files.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	watch := CheckDirectoryAccess("Watch directory", cfg.Paths.WatchDir)
	watch.Required = true
	state := CheckDirectoryAccess("State directory", cfg.Paths.StateDir)
	state.Required = true
	results := []Result{watch, state}

	if cfg.Workflow.Images.MoveProcessedMedia {
		results = append(results, CheckDirectoryAccess("Image destination", cfg.Paths.ImageDest))
	}
	if cfg.Workflow.Videos.MoveProcessedMedia && cfg.Paths.VideoDest != cfg.Paths.ImageDest {
		results = append(results, CheckDirectoryAccess("Video destination", cfg.Paths.VideoDest))
	}

	for _, endpoint := range []struct {
		name string
		url  string
	}{
		{"Tagging endpoint", cfg.Analysis.TaggingURL},
		{"OCR endpoint", cfg.Analysis.OCRURL},
		{"Description endpoint", cfg.Analysis.DescriptionURL},
		{"Transcription endpoint", cfg.Analysis.TranscriptionURL},
	} {
		if endpoint.url == "" {
			continue
		}
		results = append(results, CheckEndpoint(ctx, endpoint.name, endpoint.url, cfg.Analysis.APIKey))
	}
	return results
}

// Blocking returns the required checks that failed.
func Blocking(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Required && !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
