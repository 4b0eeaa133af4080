package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// ChromeFetcher renders product pages in headless Chrome and extracts product
// fields from the resulting DOM. Storefront pages populate price and rating
// client-side, so plain HTTP fetches see empty placeholders.
type ChromeFetcher struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	pageTimeout time.Duration
}

// NewChromeFetcher starts a headless Chrome allocator shared by all fetches.
func NewChromeFetcher(userAgent string, pageTimeout time.Duration) *ChromeFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeFetcher{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		pageTimeout: pageTimeout,
	}
}

// Close shuts down the browser allocator.
func (f *ChromeFetcher) Close() error {
	f.cancelAlloc()
	return nil
}

// Fetch navigates to url, waits for the page to settle, and parses product
// metadata out of the rendered HTML.
func (f *ChromeFetcher) Fetch(ctx context.Context, url string) (*Product, error) {
	tabCtx, cancelTab := chromedp.NewContext(f.allocCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.pageTimeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("render %s: %w", url, err)
	}

	return ExtractProduct(html)
}

// ExtractProduct parses product fields from a rendered product page. Missing
// fields stay empty; only a page with no recognizable product name is an
// error.
func ExtractProduct(html string) (*Product, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	p := &Product{}

	p.Name = firstText(doc,
		"h1.product-name",
		".product-info-main .page-title span",
		"h1[itemprop=name]",
		"h1",
	)
	if p.Name == "" {
		return nil, fmt.Errorf("no product name found on page")
	}

	p.Price = firstText(doc,
		".product-info-main .price",
		"span.price",
		"[itemprop=price]",
	)
	if v, ok := doc.Find("meta[itemprop=priceCurrency]").Attr("content"); ok {
		p.Currency = strings.TrimSpace(v)
	}

	p.Category = firstText(doc,
		".breadcrumbs li.category a",
		".breadcrumbs li:nth-last-child(2) a",
	)

	if src, ok := doc.Find(".product.media img.gallery-placeholder__image").Attr("src"); ok {
		p.ImageURL = strings.TrimSpace(src)
	} else if src, ok := doc.Find("img[itemprop=image]").Attr("src"); ok {
		p.ImageURL = strings.TrimSpace(src)
	}

	p.Rating = firstText(doc,
		".rating-result span span",
		"[itemprop=ratingValue]",
	)

	p.Description = firstText(doc,
		".product.attribute.description .value",
		"[itemprop=description]",
	)

	return p, nil
}

// firstText returns the trimmed text of the first selector that matches
// anything non-empty.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}
