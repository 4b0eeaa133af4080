// Package crawler fetches product metadata from live storefront pages for
// product ids referenced by analytics events.
package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/checkpoint"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
)

// ProductRef is one product id extracted from event documents, with the best
// known URL for it.
type ProductRef struct {
	ProductID string
	URL       string
	Domain    string
}

// Product is the metadata scraped from one product page.
type Product struct {
	ProductID   string
	Name        string
	Price       string
	Currency    string
	Category    string
	ImageURL    string
	Rating      string
	Description string
	URL         string
	Domain      string
	CrawledAt   time.Time
	Error       string
}

// Fetcher retrieves product metadata for a URL. Page-parsing heuristics are
// the fetcher's own business; the crawl loop only sees fields or a failure.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Product, error)
}

// Sink persists crawled products keyed by product id.
type Sink interface {
	UpsertProducts(products []*Product) error
}

// Config holds product crawl settings.
type Config struct {
	Collection  string   `yaml:"collection"`
	EventTypes  []string `yaml:"event_types"`
	BatchSize   int      `yaml:"batch_size"`
	PageTimeout int      `yaml:"page_timeout_seconds"`
	UserAgent   string   `yaml:"user_agent"`
	OutputDir   string   `yaml:"output_dir"`
}

// ApplyDefaults sets default values for crawler config.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "summary"
	}
	if len(c.EventTypes) == 0 {
		c.EventTypes = []string{
			"view_product_detail",
			"select_product_option",
			"select_product_option_quality",
			"add_to_cart_action",
			"product_detail_recommendation_visible",
			"product_detail_recommendation_noticed",
			"product_view_all_recommend_clicked",
		}
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.PageTimeout == 0 {
		c.PageTimeout = 30
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if c.OutputDir == "" {
		c.OutputDir = "./output"
	}
}

// Crawler runs the batch crawl loop with checkpoint-based resume.
type Crawler struct {
	fetcher    Fetcher
	sink       Sink
	checkpoint *checkpoint.Store
	batchSize  int
	logger     *logging.ComponentLogger
}

// NewCrawler wires the crawl loop.
func NewCrawler(fetcher Fetcher, sink Sink, cp *checkpoint.Store, batchSize int, logger *logging.ComponentLogger) *Crawler {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Crawler{
		fetcher:    fetcher,
		sink:       sink,
		checkpoint: cp,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Run crawls every reference not already checkpointed. Fetch failures are
// recorded per product with their reason and do not stop the run. The
// checkpoint is cleared on clean completion.
func (c *Crawler) Run(ctx context.Context, refs []ProductRef) error {
	state := c.checkpoint.Load()
	seen := state.Seen()

	var pending []ProductRef
	for _, ref := range refs {
		if !seen[ref.ProductID] {
			pending = append(pending, ref)
		}
	}

	c.logger.Info().
		Int("total_products", len(refs)).
		Int("already_processed", len(seen)).
		Int("remaining", len(pending)).
		Msg("Starting product crawl")

	if len(pending) == 0 {
		c.logger.Info().Msg("All products already crawled")
		return c.checkpoint.Clear()
	}

	totalBatches := (len(pending) + c.batchSize - 1) / c.batchSize
	start := time.Now()
	var failed int

	for i := 0; i < len(pending); i += c.batchSize {
		end := i + c.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[i:end]
		batchNum := i/c.batchSize + 1
		batchStart := time.Now()

		products := make([]*Product, 0, len(batch))
		for _, ref := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			products = append(products, c.crawlOne(ctx, ref))
		}
		for _, p := range products {
			if p.Error != "" {
				failed++
			}
		}

		if err := c.sink.UpsertProducts(products); err != nil {
			return fmt.Errorf("persist batch %d: %w", batchNum, err)
		}

		ids := make([]string, len(products))
		for j, p := range products {
			ids[j] = p.ProductID
		}
		state.Mark(ids, batchNum)
		if err := c.checkpoint.Save(state); err != nil {
			c.logger.Warn().Err(err).Msg("Checkpoint save failed")
		}

		c.logger.Info().
			Int("batch", batchNum).
			Int("total_batches", totalBatches).
			Int("crawled", len(products)).
			Int("failed_so_far", failed).
			Dur("batch_time", time.Since(batchStart)).
			Int("processed", state.ProcessedCount).
			Msg("Crawled batch")
	}

	c.logger.Info().
		Int("total_processed", state.ProcessedCount).
		Int("failed", failed).
		Dur("total_time", time.Since(start)).
		Msg("Product crawl completed")

	return c.checkpoint.Clear()
}

// crawlOne fetches one product; a failure becomes a Product row carrying the
// failure reason rather than an aborted run.
func (c *Crawler) crawlOne(ctx context.Context, ref ProductRef) *Product {
	if ref.URL == "" {
		return &Product{
			ProductID: ref.ProductID,
			Domain:    ref.Domain,
			CrawledAt: time.Now().UTC(),
			Error:     "no URL known for product",
		}
	}

	p, err := c.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		c.logger.Warn().Err(err).Str("product_id", ref.ProductID).Str("url", ref.URL).Msg("Fetch failed")
		return &Product{
			ProductID: ref.ProductID,
			URL:       ref.URL,
			Domain:    ref.Domain,
			CrawledAt: time.Now().UTC(),
			Error:     err.Error(),
		}
	}

	p.ProductID = ref.ProductID
	p.URL = ref.URL
	p.Domain = ref.Domain
	p.CrawledAt = time.Now().UTC()
	return p
}
