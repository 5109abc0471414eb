// Package objectstore provides object storage repository implementations and factory.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
)

// BucketConfig holds configuration for a storage bucket
type BucketConfig struct {
	Name     string
	Type     RepositoryType
	Region   string
	Endpoint string
}

// ObjectURI is a parsed object-storage location URI
type ObjectURI struct {
	Type   RepositoryType
	Bucket string
	Region string
	// Prefix is the bucket-relative key prefix, empty or ending with a delimiter.
	Prefix string
}

// BucketConfig returns the bucket configuration implied by the URI.
func (u ObjectURI) BucketConfig() BucketConfig {
	return BucketConfig{Name: u.Bucket, Type: u.Type, Region: u.Region}
}

// Key composes the bucket-relative key of a path relative to the URI.
func (u ObjectURI) Key(rel string) string {
	return u.Prefix + rel
}

var (
	virtualHostedRegional = regexp.MustCompile(`^(.+)\.s3[.-]([a-z0-9-]+)\.amazonaws\.com$`)
	virtualHostedGlobal   = regexp.MustCompile(`^(.+)\.s3\.amazonaws\.com$`)
)

// ParseObjectURI extracts the backend, bucket, region and prefix from a location URI.
// Formats: "s3://bucket/prefix/", "gs://bucket/prefix/" and
// "https://bucket.s3.<region>.amazonaws.com/prefix/".
func ParseObjectURI(raw string) (ObjectURI, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ObjectURI{}, fmt.Errorf("invalid URI format: %s: %w", raw, err)
	}

	var result ObjectURI
	switch strings.ToLower(u.Scheme) {
	case "s3":
		result = ObjectURI{Type: S3Type, Bucket: u.Host}
	case "gs":
		result = ObjectURI{Type: GCSType, Bucket: u.Host}
	case "http", "https":
		host := strings.ToLower(u.Hostname())
		if m := virtualHostedRegional.FindStringSubmatch(host); m != nil {
			result = ObjectURI{Type: S3Type, Bucket: m[1], Region: m[2]}
		} else if m := virtualHostedGlobal.FindStringSubmatch(host); m != nil {
			result = ObjectURI{Type: S3Type, Bucket: m[1]}
		} else {
			return ObjectURI{}, fmt.Errorf("unrecognized object storage host: %s", u.Host)
		}
	default:
		return ObjectURI{}, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	if result.Bucket == "" {
		return ObjectURI{}, fmt.Errorf("bucket name cannot be empty")
	}

	prefix := strings.TrimPrefix(u.Path, Delimiter)
	if prefix != "" && !strings.HasSuffix(prefix, Delimiter) {
		prefix += Delimiter
	}
	result.Prefix = prefix
	return result, nil
}

// ObjectRepositoryFactory creates object repository instances. Provider clients are created
// on first use so that configurations without a given provider never need its credentials.
type ObjectRepositoryFactory struct {
	awsConfig *aws.Config
	gcsClient *storage.Client
}

// NewObjectRepositoryFactory creates a new factory. Either argument may be nil.
func NewObjectRepositoryFactory(awsConfig *aws.Config, gcsClient *storage.Client) *ObjectRepositoryFactory {
	return &ObjectRepositoryFactory{
		awsConfig: awsConfig,
		gcsClient: gcsClient,
	}
}

// AWSConfig returns the shared AWS configuration, loading the default chain if needed.
func (f *ObjectRepositoryFactory) AWSConfig(ctx context.Context) (aws.Config, error) {
	if f.awsConfig == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("unable to load AWS SDK config: %w", err)
		}
		f.awsConfig = &cfg
	}
	return *f.awsConfig, nil
}

func (f *ObjectRepositoryFactory) gcs(ctx context.Context) (*storage.Client, error) {
	if f.gcsClient == nil {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to create GCS client: %w", err)
		}
		f.gcsClient = client
	}
	return f.gcsClient, nil
}

// CreateRepository creates a repository based on bucket configuration
func (f *ObjectRepositoryFactory) CreateRepository(ctx context.Context, config BucketConfig) (ObjectRepository, error) {
	switch config.Type {
	case S3Type:
		awsCfg, err := f.AWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if config.Region != "" {
				o.Region = config.Region
			}
			if config.Endpoint != "" {
				o.BaseEndpoint = aws.String(config.Endpoint)
				o.UsePathStyle = true
			}
		})
		log.Debugf("Created S3 repository for bucket %s", config.Name)
		repo := NewS3ObjectRepository(client, config.Name)
		return &repo, nil
	case GCSType:
		client, err := f.gcs(ctx)
		if err != nil {
			return nil, err
		}
		log.Debugf("Created GCS repository for bucket %s", config.Name)
		repo := NewGCSObjectRepository(client, config.Name)
		return &repo, nil
	default:
		return nil, fmt.Errorf("unsupported repository type: %s", config.Type)
	}
}
