package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/metrics"
)

// Provenance tags recorded per staged file.
const (
	SourceExported     = "exported"
	SourcePreConverted = "pre-converted"
)

// File is one local file queued for staging.
type File struct {
	LocalPath  string
	Collection string
	SourceType string
}

// Staged is one successfully uploaded file.
type Staged struct {
	ObjectPath string
	SizeMB     float64
	Collection string
	SourceType string
}

// Stager uploads local files under a destination prefix.
type Stager struct {
	bucket  Bucket
	prefix  string
	logger  *logging.ComponentLogger
	metrics *metrics.Metrics
}

// NewStager uploads into prefix (no trailing slash needed) on bucket.
func NewStager(bucket Bucket, prefix string, logger *logging.ComponentLogger, m *metrics.Metrics) *Stager {
	return &Stager{
		bucket:  bucket,
		prefix:  strings.TrimSuffix(prefix, "/"),
		logger:  logger,
		metrics: m,
	}
}

// ObjectPath returns the destination object path for a local file.
func (s *Stager) ObjectPath(localPath string) string {
	return s.prefix + "/" + filepath.Base(localPath)
}

// Stage uploads each file in turn. Failures are per-file: a missing or
// unreadable file, or a failed upload, is logged and omitted from the result
// while the remaining files still upload. Only files that actually landed
// make it into the returned set, and so into the manifest.
func (s *Stager) Stage(ctx context.Context, files []File) []Staged {
	staged := make([]Staged, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f.LocalPath)
		if os.IsNotExist(err) {
			s.logger.Warn().Str("path", f.LocalPath).Msg("File missing, skipping upload")
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("path", f.LocalPath).Msg("Cannot stat file, skipping upload")
			s.metrics.RecordUpload("failed", 0)
			continue
		}

		objectPath := s.ObjectPath(f.LocalPath)
		if err := s.uploadOne(ctx, f.LocalPath, objectPath); err != nil {
			s.logger.Error().Err(err).Str("path", f.LocalPath).Msg("Upload failed, continuing with remaining files")
			s.metrics.RecordUpload("failed", 0)
			continue
		}
		s.metrics.RecordUpload("success", info.Size())

		entry := Staged{
			ObjectPath: objectPath,
			SizeMB:     float64(info.Size()) / (1024 * 1024),
			Collection: f.Collection,
			SourceType: f.SourceType,
		}
		staged = append(staged, entry)
		s.logger.Info().
			Str("object", objectPath).
			Str("source_type", f.SourceType).
			Float64("size_mb", entry.SizeMB).
			Msg("Uploaded file")
	}
	return staged
}

func (s *Stager) uploadOne(ctx context.Context, localPath, objectPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	if err := s.bucket.Put(ctx, objectPath, f); err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	return nil
}

// PreConvertedFiles builds staging entries for files produced outside this
// run, for example historical exports converted by hand. The collection name
// is the file name without its extension.
func PreConvertedFiles(paths []string) []File {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		files = append(files, File{
			LocalPath:  p,
			Collection: strings.TrimSuffix(base, filepath.Ext(base)),
			SourceType: SourcePreConverted,
		})
	}
	return files
}
