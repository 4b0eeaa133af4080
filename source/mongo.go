// Package source reads analytics documents out of MongoDB and writes derived
// data (resolved IP locations, crawled products) back to it.
package source

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/export"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Validate checks that required connection settings are present.
func (c *Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if c.Database == "" {
		return fmt.Errorf("mongo.database is required")
	}
	return nil
}

// Store is a connected MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logging.ComponentLogger
}

// Connect opens a client and verifies connectivity with a ping.
func Connect(ctx context.Context, cfg Config, logger *logging.ComponentLogger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("Connected to MongoDB")
	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Collection opens a streaming cursor over every document in the named
// collection. NoCursorTimeout keeps the server from reaping the cursor while
// a slow batch is being written out.
func (s *Store) Collection(ctx context.Context, name string) (export.Cursor, error) {
	cur, err := s.db.Collection(name).Find(ctx, bson.M{}, options.Find().SetNoCursorTimeout(true))
	if err != nil {
		return nil, fmt.Errorf("open cursor on %s: %w", name, err)
	}
	return &documentCursor{cur: cur}, nil
}

// documentCursor adapts a mongo cursor to the export.Cursor interface,
// decoding each document into a plain record with driver types normalized.
type documentCursor struct {
	cur *mongo.Cursor
}

func (c *documentCursor) Next(ctx context.Context) (export.Record, bool, error) {
	if !c.cur.Next(ctx) {
		if err := c.cur.Err(); err != nil {
			return nil, false, fmt.Errorf("cursor: %w", err)
		}
		return nil, false, nil
	}

	var doc bson.D
	if err := c.cur.Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("decode document: %w", err)
	}

	rec := make(export.Record, len(doc))
	for _, elem := range doc {
		if elem.Key == "_id" {
			continue
		}
		rec[elem.Key] = normalize(elem.Value)
	}
	return rec, true, nil
}

func (c *documentCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

// normalize converts BSON driver types into plain Go values the export layer
// understands.
func normalize(v any) any {
	switch val := v.(type) {
	case bson.D:
		m := make(map[string]any, len(val))
		for _, elem := range val {
			m[elem.Key] = normalize(elem.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			m[k] = normalize(elem)
		}
		return m
	case bson.A:
		arr := make([]any, len(val))
		for i, elem := range val {
			arr[i] = normalize(elem)
		}
		return arr
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC()
	case bson.Decimal128:
		return val.String()
	case bson.Null:
		return nil
	default:
		return v
	}
}
