// Package upload stages exported files into Google Cloud Storage and records
// what was shipped in a manifest.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Bucket is the destination for staged objects.
type Bucket interface {
	Put(ctx context.Context, objectPath string, r io.Reader) error
}

// GCSBucket uploads objects to one Cloud Storage bucket.
type GCSBucket struct {
	client *storage.Client
	bucket string
}

// NewGCSBucket opens a storage client for the named bucket. credentialsFile
// is optional; when empty the client uses ambient application-default
// credentials.
func NewGCSBucket(ctx context.Context, bucket, credentialsFile string) (*GCSBucket, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("credentials file %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSBucket{client: client, bucket: bucket}, nil
}

// Put streams r into the object at objectPath.
func (b *GCSBucket) Put(ctx context.Context, objectPath string, r io.Reader) error {
	w := b.client.Bucket(b.bucket).Object(objectPath).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", b.bucket, objectPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", b.bucket, objectPath, err)
	}
	return nil
}

// Close releases the storage client.
func (b *GCSBucket) Close() error {
	return b.client.Close()
}
