// ipresolver resolves the distinct visitor IP addresses of the analytics
// store against a local IP2Location database and writes the locations back.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/checkpoint"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/config"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/geo"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/source"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	logger := logging.NewComponentLogger("ipresolver", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration error")
		os.Exit(1)
	}
	if cfg.Geo.BinFile == "" {
		logger.Error().Msg("geo.bin_file is required")
		os.Exit(1)
	}

	ctx := context.Background()

	store, err := source.Connect(ctx, cfg.Mongo, logger)
	if err != nil {
		logger.Error().Err(err).Msg("MongoDB connection failed")
		os.Exit(1)
	}
	defer store.Close(ctx)

	// The distinct-IP extraction is the expensive query; reruns read the
	// cached file instead.
	ipFile := filepath.Join(cfg.Geo.OutputDir, cfg.Geo.UniqueIPsFile)
	ips, err := geo.ReadIPFile(ipFile)
	if err != nil {
		logger.Error().Err(err).Str("path", ipFile).Msg("Cannot read IP file")
		os.Exit(1)
	}
	if ips == nil {
		ips, err = store.UniqueIPs(ctx, cfg.Geo.Collection, cfg.Geo.IPField)
		if err != nil {
			logger.Error().Err(err).Msg("IP extraction failed")
			os.Exit(1)
		}
		if err := geo.WriteIPFile(ipFile, ips); err != nil {
			logger.Warn().Err(err).Str("path", ipFile).Msg("Cannot cache IP file")
		}
	} else {
		logger.Info().Int("unique_ips", len(ips)).Str("path", ipFile).Msg("Loaded cached IP file")
	}

	lookup, err := geo.OpenIP2Location(cfg.Geo.BinFile)
	if err != nil {
		logger.Error().Err(err).Msg("IP2Location database failed")
		os.Exit(1)
	}
	defer lookup.Close()

	sink := source.NewLocationSink(store, "ip_locations")
	cp := checkpoint.NewStore(filepath.Join(cfg.Geo.OutputDir, "ip_checkpoint.json"), logger)
	resolver := geo.NewResolver(lookup, sink, cp, cfg.Geo.BatchSize, logger)

	if err := resolver.Run(ips); err != nil {
		logger.Error().Err(err).Msg("IP resolution failed")
		os.Exit(1)
	}
}
