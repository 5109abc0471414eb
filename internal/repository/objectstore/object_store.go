package objectstore

import "context"

// ObjectRepository defines the read-only operations a storage location needs from a bucket
type ObjectRepository interface {
	// Probe performs a lightweight existence check against the bucket.
	Probe(ctx context.Context) error
	// Stat reports whether key names an object or, failing that, a non-empty key prefix.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// List returns the objects and sub-prefixes directly beneath prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	GetBucketName() string
	GetStorageType() string
}

// ObjectInfo describes a key in a bucket
type ObjectInfo struct {
	Key      string
	Exists   bool
	IsPrefix bool
	Size     int64
}

// RepositoryType represents the type of object storage
type RepositoryType string

const (
	S3Type  RepositoryType = "s3"
	GCSType RepositoryType = "gcs"
)

// Delimiter separates key segments in every supported object store.
const Delimiter = "/"
