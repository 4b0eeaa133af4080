package source

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/crawler"
)

// UniqueIPs returns the distinct non-empty values of ipField across the named
// collection. The aggregation groups server-side so only one document per
// address crosses the wire.
func (s *Store) UniqueIPs(ctx context.Context, collection, ipField string) ([]string, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{
			ipField: bson.M{"$exists": true, "$ne": nil, "$nin": bson.A{""}},
		}},
		bson.M{"$group": bson.M{"_id": "$" + ipField}},
		bson.M{"$project": bson.M{"_id": 0, "ip": "$_id"}},
	}

	cur, err := s.db.Collection(collection).Aggregate(ctx, pipeline,
		options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, fmt.Errorf("aggregate unique IPs: %w", err)
	}
	defer cur.Close(ctx)

	var ips []string
	for cur.Next(ctx) {
		var doc struct {
			IP string `bson:"ip"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode IP document: %w", err)
		}
		if doc.IP != "" {
			ips = append(ips, doc.IP)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}

	sort.Strings(ips)
	s.logger.Info().Int("unique_ips", len(ips)).Str("collection", collection).Msg("Extracted unique IP addresses")
	return ips, nil
}

// recommendationEvents are the event types where the product being looked at
// lives in viewing_product_id and the page URL in referrer_url. All other
// product events carry product_id and current_url.
var recommendationEvents = map[string]bool{
	"product_detail_recommendation_visible": true,
	"product_detail_recommendation_noticed": true,
	"product_view_all_recommend_clicked":    true,
}

// ProductRefs extracts the distinct product ids referenced by the given event
// types, each with the best URL seen for it. SEO-style URLs are preferred over
// raw /catalog/product/view/id/ links because only the former render the full
// product page.
func (s *Store) ProductRefs(ctx context.Context, collection string, eventTypes []string) ([]crawler.ProductRef, error) {
	filter := bson.M{"collection": bson.M{"$in": eventTypes}}
	projection := bson.M{
		"collection":         1,
		"product_id":         1,
		"viewing_product_id": 1,
		"current_url":        1,
		"referrer_url":       1,
		"_id":                0,
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter,
		options.Find().SetProjection(projection).SetNoCursorTimeout(true))
	if err != nil {
		return nil, fmt.Errorf("find product events: %w", err)
	}
	defer cur.Close(ctx)

	byID := make(map[string]crawler.ProductRef)
	var scanned int
	for cur.Next(ctx) {
		var doc struct {
			Collection       string `bson:"collection"`
			ProductID        any    `bson:"product_id"`
			ViewingProductID any    `bson:"viewing_product_id"`
			CurrentURL       string `bson:"current_url"`
			ReferrerURL      string `bson:"referrer_url"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		scanned++

		var id, pageURL string
		if recommendationEvents[doc.Collection] {
			id = stringID(doc.ViewingProductID)
			pageURL = doc.ReferrerURL
		} else {
			id = stringID(doc.ProductID)
			pageURL = doc.CurrentURL
		}
		if id == "" || id == "0" {
			continue
		}

		existing, seen := byID[id]
		ref := crawler.ProductRef{ProductID: id, URL: pageURL, Domain: domainOf(pageURL)}
		switch {
		case !seen:
			byID[id] = ref
		case existing.URL == "" && pageURL != "":
			byID[id] = ref
		case !isSEOURL(existing.URL) && isSEOURL(pageURL):
			// Keep upgrading to an SEO URL when one shows up.
			byID[id] = ref
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}

	refs := make([]crawler.ProductRef, 0, len(byID))
	for _, ref := range byID {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ProductID < refs[j].ProductID })

	s.logger.Info().
		Int("events_scanned", scanned).
		Int("unique_products", len(refs)).
		Msg("Extracted product references")
	return refs, nil
}

// stringID renders a product id that may arrive as a string or a number.
func stringID(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case int32:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

// isSEOURL reports whether u is a human-readable product URL rather than a
// raw catalog id link.
func isSEOURL(u string) bool {
	return u != "" && !strings.Contains(u, "/catalog/product/view/id/")
}

// domainOf extracts the host from a page URL, empty when unparseable.
func domainOf(pageURL string) string {
	if pageURL == "" {
		return ""
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
