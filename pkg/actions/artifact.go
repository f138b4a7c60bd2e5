package actions

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/entrhq/browser-sidecar/pkg/config"
)

// Artifact kinds, also used as directory names.
const (
	ArtifactScreenshots = "screenshots"
	ArtifactPDF         = "pdf"
	ArtifactTraces      = "traces"
)

// ArtifactWriter places files produced by actions under
// <app_log_dir>/browser/<kind>/.
type ArtifactWriter struct {
	paths config.Paths
}

// NewArtifactWriter creates a writer rooted at the host's log directory.
func NewArtifactWriter(paths config.Paths) *ArtifactWriter {
	return &ArtifactWriter{paths: paths}
}

// Path reserves a fresh file name for kind, creating its directory.
func (w *ArtifactWriter) Path(kind, ext string) (string, error) {
	dir, err := w.paths.ArtifactDir(kind)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return filepath.Join(dir, uuid.NewString()+"."+ext), nil
}

// Write stores data as a new artifact and returns its path.
func (w *ArtifactWriter) Write(kind, ext string, data []byte) (string, error) {
	path, err := w.Path(kind, ext)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s artifact: %w", kind, err)
	}
	return path, nil
}
