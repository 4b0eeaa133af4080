package source

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/crawler"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/geo"
)

const sinkWriteTimeout = 60 * time.Second

// LocationSink persists resolved IP locations into a collection keyed by
// ip_address. Upserts keep resumed runs idempotent.
type LocationSink struct {
	coll *mongo.Collection
}

// NewLocationSink targets the given collection, usually "ip_locations".
func NewLocationSink(store *Store, collection string) *LocationSink {
	return &LocationSink{coll: store.db.Collection(collection)}
}

func (s *LocationSink) UpsertLocations(locations []*geo.Location) error {
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()

	models := make([]mongo.WriteModel, 0, len(locations))
	for _, loc := range locations {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"ip_address": loc.IPAddress}).
			SetUpdate(bson.M{"$set": bson.M{
				"ip_address":   loc.IPAddress,
				"country_code": loc.CountryCode,
				"country_name": loc.CountryName,
				"region_name":  loc.RegionName,
				"city_name":    loc.CityName,
				"processed_at": loc.ProcessedAt,
			}}).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}

	_, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("bulk upsert locations: %w", err)
	}
	return nil
}

// ProductSink persists crawled products into a collection keyed by
// product_id.
type ProductSink struct {
	coll *mongo.Collection
}

// NewProductSink targets the given collection, usually "product_details".
func NewProductSink(store *Store, collection string) *ProductSink {
	return &ProductSink{coll: store.db.Collection(collection)}
}

func (s *ProductSink) UpsertProducts(products []*crawler.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()

	models := make([]mongo.WriteModel, 0, len(products))
	for _, p := range products {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"product_id": p.ProductID}).
			SetUpdate(bson.M{"$set": bson.M{
				"product_id":  p.ProductID,
				"name":        p.Name,
				"price":       p.Price,
				"currency":    p.Currency,
				"category":    p.Category,
				"image_url":   p.ImageURL,
				"rating":      p.Rating,
				"description": p.Description,
				"url":         p.URL,
				"domain":      p.Domain,
				"crawled_at":  p.CrawledAt,
				"error":       p.Error,
			}}).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}

	_, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("bulk upsert products: %w", err)
	}
	return nil
}
