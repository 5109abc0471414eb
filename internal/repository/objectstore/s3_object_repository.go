package objectstore

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	log "github.com/sirupsen/logrus"
)

// S3API is the subset of the S3 client used by S3ObjectRepository.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3ObjectRepository manages S3 interactions for objects.
type S3ObjectRepository struct {
	client     S3API
	bucketName string
}

// NewS3ObjectRepository initializes a new S3ObjectRepository.
func NewS3ObjectRepository(client S3API, bucketName string) S3ObjectRepository {
	return S3ObjectRepository{
		client:     client,
		bucketName: bucketName,
	}
}

// GetBucketName returns the bucket name.
func (r *S3ObjectRepository) GetBucketName() string {
	return r.bucketName
}

// GetStorageType returns the object store type.
func (r *S3ObjectRepository) GetStorageType() string {
	return string(S3Type)
}

// Probe checks that the bucket exists and is reachable
func (r *S3ObjectRepository) Probe(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.bucketName),
	})
	return err
}

// Stat looks up key as an object, then as a prefix
func (r *S3ObjectRepository) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if key != "" && !strings.HasSuffix(key, Delimiter) {
		out, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(r.bucketName),
			Key:    aws.String(key),
		})
		if err == nil {
			return ObjectInfo{Key: key, Exists: true, Size: aws.ToInt64(out.ContentLength)}, nil
		}
		if !isS3NotFound(err) {
			return ObjectInfo{}, err
		}
		key += Delimiter
	}

	result, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(r.bucketName),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	if len(result.Contents) == 0 && len(result.CommonPrefixes) == 0 {
		return ObjectInfo{Key: key}, nil
	}
	return ObjectInfo{Key: key, Exists: true, IsPrefix: true}, nil
}

// List returns the objects and common prefixes one level below prefix
func (r *S3ObjectRepository) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	listInput := &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucketName),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(Delimiter),
	}

	var entries []ObjectInfo
	for {
		result, err := r.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, err
		}

		for _, cp := range result.CommonPrefixes {
			entries = append(entries, ObjectInfo{Key: aws.ToString(cp.Prefix), Exists: true, IsPrefix: true})
		}
		for _, obj := range result.Contents {
			key := aws.ToString(obj.Key)
			// Zero-byte placeholder for the "directory" itself.
			if key == prefix {
				continue
			}
			entries = append(entries, ObjectInfo{Key: key, Exists: true, Size: aws.ToInt64(obj.Size)})
		}

		if result.IsTruncated == nil || !*result.IsTruncated {
			break
		}
		listInput.ContinuationToken = result.NextContinuationToken
	}

	log.Debugf("Listed %d entries under s3://%s/%s", len(entries), r.bucketName, prefix)
	return entries, nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
