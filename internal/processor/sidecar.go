package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Sidecar is the YAML document written next to a processed file.
type Sidecar struct {
	Source      string    `yaml:"source"`
	Destination string    `yaml:"destination,omitempty"`
	MediaType   string    `yaml:"media_type"`
	ProcessedAt time.Time `yaml:"processed_at"`
	Tags        []string  `yaml:"tags,omitempty"`
	Text        string    `yaml:"text,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Transcript  string    `yaml:"transcript,omitempty"`
}

// SidecarPath returns the sidecar location for a media file.
func SidecarPath(mediaPath string) string {
	return mediaPath + ".yaml"
}

// WriteSidecar atomically writes doc next to mediaPath and returns its path.
func WriteSidecar(mediaPath string, doc Sidecar) (string, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode sidecar: %w", err)
	}
	target := SidecarPath(mediaPath)
	tmp, err := os.CreateTemp(filepath.Dir(target), ".sidecar-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create sidecar: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close sidecar: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename sidecar: %w", err)
	}
	return target, nil
}

// ReadSidecar loads a sidecar document.
func ReadSidecar(path string) (Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sidecar{}, err
	}
	var doc Sidecar
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Sidecar{}, fmt.Errorf("decode sidecar %s: %w", path, err)
	}
	return doc, nil
}
