package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
)

// GCSObjectRepository implements ObjectRepository for Google Cloud Storage
type GCSObjectRepository struct {
	client     *storage.Client
	bucketName string
}

// NewGCSObjectRepository creates a new GCS object repository
func NewGCSObjectRepository(client *storage.Client, bucketName string) GCSObjectRepository {
	return GCSObjectRepository{
		client:     client,
		bucketName: bucketName,
	}
}

// Probe checks that the bucket exists and is reachable
func (r *GCSObjectRepository) Probe(ctx context.Context) error {
	if _, err := r.client.Bucket(r.bucketName).Attrs(ctx); err != nil {
		return fmt.Errorf("failed to reach GCS bucket %s: %w", r.bucketName, err)
	}
	return nil
}

// Stat looks up key as an object, then as a prefix
func (r *GCSObjectRepository) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	bucket := r.client.Bucket(r.bucketName)

	if key != "" && !strings.HasSuffix(key, Delimiter) {
		attrs, err := bucket.Object(key).Attrs(ctx)
		if err == nil {
			return ObjectInfo{Key: key, Exists: true, Size: attrs.Size}, nil
		}
		if !errors.Is(err, storage.ErrObjectNotExist) {
			return ObjectInfo{}, fmt.Errorf("failed to stat gs://%s/%s: %w", r.bucketName, key, err)
		}
		key += Delimiter
	}

	it := bucket.Objects(ctx, &storage.Query{Prefix: key})
	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return ObjectInfo{Key: key}, nil
	}
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to list objects with prefix %s: %w", key, err)
	}
	return ObjectInfo{Key: key, Exists: true, IsPrefix: true}, nil
}

// List returns the objects and prefixes one level below prefix
func (r *GCSObjectRepository) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	bucket := r.client.Bucket(r.bucketName)
	it := bucket.Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: Delimiter})

	var entries []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}

		if attrs.Prefix != "" {
			entries = append(entries, ObjectInfo{Key: attrs.Prefix, Exists: true, IsPrefix: true})
			continue
		}
		if attrs.Name == prefix {
			continue
		}
		entries = append(entries, ObjectInfo{Key: attrs.Name, Exists: true, Size: attrs.Size})
	}

	log.Debugf("Listed %d entries under gs://%s/%s", len(entries), r.bucketName, prefix)
	return entries, nil
}

// GetBucketName returns the bucket name
func (r *GCSObjectRepository) GetBucketName() string {
	return r.bucketName
}

// GetStorageType returns the storage type
func (r *GCSObjectRepository) GetStorageType() string {
	return string(GCSType)
}
