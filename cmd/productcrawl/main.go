// productcrawl extracts the product ids referenced by analytics events,
// crawls each product page in headless Chrome and stores the scraped
// metadata back into MongoDB.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/checkpoint"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/config"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/crawler"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/source"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	logger := logging.NewComponentLogger("productcrawl", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration error")
		os.Exit(1)
	}

	ctx := context.Background()

	store, err := source.Connect(ctx, cfg.Mongo, logger)
	if err != nil {
		logger.Error().Err(err).Msg("MongoDB connection failed")
		os.Exit(1)
	}
	defer store.Close(ctx)

	refs, err := store.ProductRefs(ctx, cfg.Crawler.Collection, cfg.Crawler.EventTypes)
	if err != nil {
		logger.Error().Err(err).Msg("Product extraction failed")
		os.Exit(1)
	}

	fetcher := crawler.NewChromeFetcher(cfg.Crawler.UserAgent, time.Duration(cfg.Crawler.PageTimeout)*time.Second)
	defer fetcher.Close()

	sink := source.NewProductSink(store, "product_details")
	cp := checkpoint.NewStore(filepath.Join(cfg.Crawler.OutputDir, "crawl_checkpoint.json"), logger)
	crawl := crawler.NewCrawler(fetcher, sink, cp, cfg.Crawler.BatchSize, logger)

	if err := crawl.Run(ctx, refs); err != nil {
		logger.Error().Err(err).Msg("Product crawl failed")
		os.Exit(1)
	}
}
