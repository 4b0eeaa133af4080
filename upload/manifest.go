package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestName is the object name of the manifest within the target prefix.
const ManifestName = "export_manifest.json"

// Manifest records what one export run shipped.
type Manifest struct {
	ExportTimestamp string          `json:"export_timestamp"`
	ProjectID       string          `json:"project_id"`
	Bucket          string          `json:"bucket"`
	ExportFormat    string          `json:"export_format"`
	Files           []ManifestEntry `json:"files"`
}

// ManifestEntry is one staged file with its provenance.
type ManifestEntry struct {
	Path             string  `json:"path"`
	SizeMB           float64 `json:"size_mb"`
	SourceCollection string  `json:"source_collection"`
	SourceType       string  `json:"source_type"`
}

// BuildManifest assembles a manifest from the staged files of this run.
func BuildManifest(projectID, bucket, format string, staged []Staged) *Manifest {
	entries := make([]ManifestEntry, 0, len(staged))
	for _, s := range staged {
		entries = append(entries, ManifestEntry{
			Path:             s.ObjectPath,
			SizeMB:           s.SizeMB,
			SourceCollection: s.Collection,
			SourceType:       s.SourceType,
		})
	}
	return &Manifest{
		ExportTimestamp: time.Now().UTC().Format(time.RFC3339),
		ProjectID:       projectID,
		Bucket:          bucket,
		ExportFormat:    format,
		Files:           entries,
	}
}

// WriteLocal saves the manifest next to the exported files for debugging.
func (m *Manifest) WriteLocal(dir string) (string, error) {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// Upload ships the manifest into the target prefix. Failing here does not
// retract already uploaded data files; the caller decides how loud to be.
func (s *Stager) Upload(ctx context.Context, m *Manifest) (string, error) {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	objectPath := s.prefix + "/" + ManifestName
	if err := s.bucket.Put(ctx, objectPath, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("upload manifest: %w", err)
	}
	return objectPath, nil
}
