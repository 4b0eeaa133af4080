// gcsexport exports MongoDB collections to local Parquet files, stages them
// into Cloud Storage and publishes a manifest describing the run.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/config"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/export"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/metrics"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/source"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/upload"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	logger := logging.NewComponentLogger("gcsexport", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration error")
		os.Exit(1)
	}

	m := metrics.New(cfg.Metrics)
	if m.IsEnabled() {
		go func() {
			if err := m.StartServer(cfg.Metrics.Address); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	ctx := context.Background()
	start := time.Now()

	logger.Info().Int("step", 1).Msg("Connecting to MongoDB")
	store, err := source.Connect(ctx, cfg.Mongo, logger)
	if err != nil {
		logger.Error().Err(err).Msg("MongoDB connection failed")
		os.Exit(1)
	}
	defer store.Close(ctx)

	if err := os.MkdirAll(cfg.Export.TempDir, 0755); err != nil {
		logger.Error().Err(err).Str("dir", cfg.Export.TempDir).Msg("Cannot create export directory")
		os.Exit(1)
	}

	logger.Info().
		Int("step", 2).
		Int("collections", len(cfg.Export.Collections)).
		Msg("Exporting collections")
	reconciler := export.NewReconciler(cfg.Export.ForceStringCols)
	orch := export.NewOrchestrator(store, reconciler, cfg.Export.BatchSize, cfg.Export.TempDir, cfg.Export.Format, logger, m)
	outcomes := orch.ExportAll(ctx, cfg.Export.Collections)

	var failed int
	files := make([]upload.File, 0, len(outcomes))
	for _, out := range outcomes {
		switch out.Status {
		case export.StatusExported:
			files = append(files, upload.File{
				LocalPath:  out.Path,
				Collection: out.Collection,
				SourceType: upload.SourceExported,
			})
		case export.StatusFailed:
			failed++
		}
	}
	files = append(files, upload.PreConvertedFiles(cfg.Export.PreexistingFiles)...)

	logger.Info().Int("step", 3).Int("files", len(files)).Msg("Staging files to Cloud Storage")
	bucket, err := upload.NewGCSBucket(ctx, cfg.GCS.Bucket, cfg.GCS.CredentialsFile)
	if err != nil {
		logger.Error().Err(err).Msg("Cloud Storage client failed")
		os.Exit(1)
	}
	defer bucket.Close()

	stager := upload.NewStager(bucket, cfg.GCS.TargetPrefix, logger, m)
	staged := stager.Stage(ctx, files)
	if len(staged) == 0 {
		logger.Warn().Msg("No files were uploaded in this run")
	}

	logger.Info().Int("step", 4).Msg("Publishing manifest")
	manifest := upload.BuildManifest(cfg.GCS.ProjectID, cfg.GCS.Bucket, cfg.Export.Format, staged)
	if path, err := manifest.WriteLocal(cfg.Export.TempDir); err != nil {
		logger.Warn().Err(err).Msg("Local manifest write failed")
	} else {
		logger.Info().Str("path", path).Msg("Wrote local manifest")
	}
	if object, err := stager.Upload(ctx, manifest); err != nil {
		// Uploaded data files stay put; the manifest can be re-published.
		logger.Error().Err(err).Msg("Manifest upload failed")
	} else {
		logger.Info().Str("object", object).Msg("Manifest published")
	}

	logger.LogRunSummary(len(staged), cfg.Export.Format, time.Since(start))
	if failed > 0 {
		logger.Warn().Int("failed_collections", failed).Msg("Run finished with failed collections")
		os.Exit(2)
	}
}
