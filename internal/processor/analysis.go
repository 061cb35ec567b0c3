package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pixelpath/internal/config"
	"pixelpath/internal/services"
)

const userAgent = "pixelpath/0.1"

// Feature names a remote analysis capability.
type Feature string

const (
	FeatureTagging       Feature = "tagging"
	FeatureOCR           Feature = "ocr"
	FeatureDescription   Feature = "description"
	FeatureTranscription Feature = "transcription"
)

// Tag is a single label returned by the tagging endpoint.
type Tag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Analysis is the decoded response from an analysis endpoint. Endpoints fill
// only the fields relevant to their feature.
type Analysis struct {
	Tags        []Tag  `json:"tags,omitempty"`
	Text        string `json:"text,omitempty"`
	Description string `json:"description,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
}

type analysisRequest struct {
	Path          string  `json:"path"`
	MediaType     string  `json:"media_type"`
	Feature       Feature `json:"feature"`
	MinConfidence float64 `json:"min_confidence"`
}

// Analyzer runs a remote analysis feature against a file.
type Analyzer interface {
	Analyze(ctx context.Context, feature Feature, path, mediaType string) (Analysis, error)
	Enabled(feature Feature) bool
}

// AnalysisClient posts analysis requests to the configured HTTP endpoints.
type AnalysisClient struct {
	endpoints     map[Feature]string
	apiKey        string
	minConfidence float64
	client        *http.Client
}

// NewAnalysisClient builds a client from the analysis settings. Features with
// no endpoint are reported as disabled.
func NewAnalysisClient(cfg config.Analysis) *AnalysisClient {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	endpoints := make(map[Feature]string, 4)
	for feature, url := range map[Feature]string{
		FeatureTagging:       cfg.TaggingURL,
		FeatureOCR:           cfg.OCRURL,
		FeatureDescription:   cfg.DescriptionURL,
		FeatureTranscription: cfg.TranscriptionURL,
	} {
		if url = strings.TrimSpace(url); url != "" {
			endpoints[feature] = url
		}
	}
	return &AnalysisClient{
		endpoints:     endpoints,
		apiKey:        strings.TrimSpace(cfg.APIKey),
		minConfidence: cfg.MinConfidence,
		client:        &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether an endpoint is configured for feature.
func (c *AnalysisClient) Enabled(feature Feature) bool {
	if c == nil {
		return false
	}
	_, ok := c.endpoints[feature]
	return ok
}

// Analyze sends path to the endpoint for feature and decodes the response.
// Tags below the configured confidence are dropped.
func (c *AnalysisClient) Analyze(ctx context.Context, feature Feature, path, mediaType string) (Analysis, error) {
	endpoint, ok := c.endpoints[feature]
	if !ok {
		return Analysis{}, services.Wrap(services.ErrConfiguration, "analysis", string(feature), "endpoint not configured", nil)
	}
	body, err := json.Marshal(analysisRequest{
		Path:          path,
		MediaType:     mediaType,
		Feature:       feature,
		MinConfidence: c.minConfidence,
	})
	if err != nil {
		return Analysis{}, services.Wrap(services.ErrValidation, "analysis", string(feature), "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Analysis{}, services.Wrap(services.ErrConfiguration, "analysis", string(feature), "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Analysis{}, services.Wrap(services.ErrTimeout, "analysis", string(feature), "request timed out", err)
		}
		return Analysis{}, services.Wrap(services.ErrTransient, "analysis", string(feature), "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Analysis{}, services.Wrap(services.ErrExternalTool, "analysis", string(feature),
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var out Analysis
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Analysis{}, services.Wrap(services.ErrExternalTool, "analysis", string(feature), "decode response", err)
	}
	if c.minConfidence > 0 && len(out.Tags) > 0 {
		kept := out.Tags[:0]
		for _, tag := range out.Tags {
			if tag.Confidence == 0 || tag.Confidence >= c.minConfidence {
				kept = append(kept, tag)
			}
		}
		out.Tags = kept
	}
	return out, nil
}
