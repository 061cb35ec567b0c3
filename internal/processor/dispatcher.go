package processor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"pixelpath/internal/config"
	"pixelpath/internal/ingest"
	"pixelpath/internal/logging"
	"pixelpath/internal/services"
)

// Dispatcher routes work items to the processor registered for their media
// type.
type Dispatcher struct {
	handlers map[ingest.MediaType]ingest.Processor
}

// NewDispatcher builds the image and video pipelines from cfg.
func NewDispatcher(cfg *config.Config, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithAnalyzer(cfg, NewAnalysisClient(cfg.Analysis), logger)
}

// NewDispatcherWithAnalyzer builds the pipelines around a custom analyzer.
func NewDispatcherWithAnalyzer(cfg *config.Config, analyzer Analyzer, logger *slog.Logger) *Dispatcher {
	organizer := NewOrganizer(cfg.Organize, logger)
	images := cfg.Workflow.Images
	videos := cfg.Workflow.Videos

	var imageFeatures []Feature
	if images.EnableTagging {
		imageFeatures = append(imageFeatures, FeatureTagging)
	}
	if images.EnableOCR {
		imageFeatures = append(imageFeatures, FeatureOCR)
	}
	if images.EnableDescription {
		imageFeatures = append(imageFeatures, FeatureDescription)
	}
	var videoFeatures []Feature
	if videos.EnableTagging {
		videoFeatures = append(videoFeatures, FeatureTagging)
	}
	if videos.EnableTranscription {
		videoFeatures = append(videoFeatures, FeatureTranscription)
	}

	d := &Dispatcher{handlers: make(map[ingest.MediaType]ingest.Processor, 2)}
	d.Register(ingest.MediaImage, &Pipeline{
		Media:     ingest.MediaImage,
		Features:  imageFeatures,
		TagCase:   cfg.Organize.TagCase,
		Sidecar:   images.CreateSidecarFiles,
		Move:      images.MoveProcessedMedia,
		Dest:      cfg.Paths.ImageDest,
		Analyzer:  analyzer,
		Organizer: organizer,
		Logger:    logging.NewComponentLogger(logger, "image"),
	})
	d.Register(ingest.MediaVideo, &Pipeline{
		Media:     ingest.MediaVideo,
		Features:  videoFeatures,
		TagCase:   cfg.Organize.TagCase,
		Sidecar:   videos.CreateSidecarFiles,
		Move:      videos.MoveProcessedMedia,
		Dest:      cfg.Paths.VideoDest,
		Analyzer:  analyzer,
		Organizer: organizer,
		Logger:    logging.NewComponentLogger(logger, "video"),
	})
	return d
}

// Register installs p as the handler for media, replacing any previous one.
func (d *Dispatcher) Register(media ingest.MediaType, p ingest.Processor) {
	d.handlers[media] = p
}

// Process implements ingest.Processor.
func (d *Dispatcher) Process(ctx context.Context, path string, media ingest.MediaType) (ingest.Result, error) {
	handler, ok := d.handlers[media]
	if !ok || handler == nil {
		return ingest.Result{}, services.Wrap(services.ErrValidation, "dispatcher", "route", "no handler for media type "+string(media), nil)
	}
	return handler.Process(ctx, path, media)
}

// Pipeline analyzes, moves, and annotates files of one media type.
type Pipeline struct {
	Media     ingest.MediaType
	Features  []Feature
	TagCase   string
	Sidecar   bool
	Move      bool
	Dest      string
	Analyzer  Analyzer
	Organizer *Organizer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Process implements ingest.Processor.
func (p *Pipeline) Process(ctx context.Context, path string, media ingest.MediaType) (ingest.Result, error) {
	logger := logging.WithContext(ctx, p.Logger)
	if _, err := os.Stat(path); err != nil {
		return ingest.Result{}, services.Wrap(services.ErrNotFound, string(p.Media), "stat source", path, err)
	}

	var combined Analysis
	for _, feature := range p.Features {
		if err := ctx.Err(); err != nil {
			return ingest.Result{}, err
		}
		if p.Analyzer == nil || !p.Analyzer.Enabled(feature) {
			logger.Debug("analysis feature skipped; endpoint not configured",
				logging.String("feature", string(feature)),
			)
			continue
		}
		out, err := p.Analyzer.Analyze(ctx, feature, path, string(media))
		if err != nil {
			return ingest.Result{}, err
		}
		combined.Tags = append(combined.Tags, out.Tags...)
		if out.Text != "" {
			combined.Text = out.Text
		}
		if out.Description != "" {
			combined.Description = out.Description
		}
		if out.Transcript != "" {
			combined.Transcript = out.Transcript
		}
	}
	tags := NormalizeTags(combined.Tags, p.TagCase)

	result := ingest.Result{Tags: tags}
	final := path
	if p.Move && p.Organizer != nil {
		placed, err := p.Organizer.Place(p.Dest, path)
		switch {
		case errors.Is(err, ErrConflictSkipped):
		case err != nil:
			return result, err
		default:
			final = placed
			result.Destination = placed
		}
	}

	if p.Sidecar {
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		sidecar, err := WriteSidecar(final, Sidecar{
			Source:      path,
			Destination: result.Destination,
			MediaType:   string(media),
			ProcessedAt: now().UTC(),
			Tags:        tags,
			Text:        combined.Text,
			Description: combined.Description,
			Transcript:  combined.Transcript,
		})
		if err != nil {
			logging.WarnWithContext(logger, "sidecar write failed", "sidecar_failed",
				logging.String("target", SidecarPath(final)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "media was organized without its sidecar"),
			)
		} else {
			result.Sidecar = sidecar
		}
	}

	logger.Debug("media processed",
		logging.Int("tags", len(tags)),
		logging.String("destination", result.Destination),
		logging.String("sidecar", result.Sidecar),
	)
	return result, nil
}
