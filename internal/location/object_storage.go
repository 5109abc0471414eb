package location

import (
	"context"
	"fmt"
	"strings"

	zerrors "github.com/zzenonn/zpreserve/internal/errors"
	"github.com/zzenonn/zpreserve/internal/repository/objectstore"
)

// ObjectStorageLocation stores objects in an S3 or GCS bucket. Its logical paths are the
// configured URI followed by the bucket-relative remainder of the key.
type ObjectStorageLocation struct {
	pathMapper
	name string
	kind Type
	uri  objectstore.ObjectURI
	repo objectstore.ObjectRepository
	md   MetadataLocation
}

// NewObjectStorageLocation creates a location for the bucket prefix named by rawURI.
func NewObjectStorageLocation(name, rawURI string, repo objectstore.ObjectRepository, md MetadataLocation) (*ObjectStorageLocation, error) {
	uri, err := objectstore.ParseObjectURI(rawURI)
	if err != nil {
		return nil, zerrors.ConfigurationError("location %s: %v", name, err)
	}

	kind := S3Type
	if uri.Type == objectstore.GCSType {
		kind = GCSType
	}

	return &ObjectStorageLocation{
		pathMapper: pathMapper{root: EnsureTrailingSeparator(CleanPath(strings.TrimSpace(rawURI))), isAbsolute: hasScheme},
		name:       name,
		kind:       kind,
		uri:        uri,
		repo:       repo,
		md:         md,
	}, nil
}

func hasScheme(p string) bool {
	return strings.Contains(p, "://")
}

func (l *ObjectStorageLocation) Name() string { return l.name }

func (l *ObjectStorageLocation) Path() string { return l.root }

func (l *ObjectStorageLocation) Type() Type { return l.kind }

func (l *ObjectStorageLocation) MetadataLocation() MetadataLocation { return l.md }

func (l *ObjectStorageLocation) MetadataDigests() []string { return l.md.Digests() }

// Bucket returns the bucket name extracted from the location URI.
func (l *ObjectStorageLocation) Bucket() string { return l.uri.Bucket }

// Region returns the region extracted from the location URI, if any.
func (l *ObjectStorageLocation) Region() string { return l.uri.Region }

// Prefix returns the bucket-relative key prefix of the location.
func (l *ObjectStorageLocation) Prefix() string { return l.uri.Prefix }

func (l *ObjectStorageLocation) Contains(p string) bool { return l.contains(p) }

func (l *ObjectStorageLocation) Relativize(p string) (string, error) { return l.relativize(p) }

// Key composes the bucket-relative key for a logical path.
func (l *ObjectStorageLocation) Key(p string) (string, error) {
	rel, err := l.relativize(p)
	if err != nil {
		return "", err
	}
	return l.uri.Key(rel), nil
}

func (l *ObjectStorageLocation) MetadataPathFor(p string) (string, error) {
	return metadataPathFor(l, p)
}

func (l *ObjectStorageLocation) ObjectPathFromMetadataPath(mdPath string) (string, error) {
	return objectPathFromMetadataPath(l, mdPath)
}

// Available probes the bucket rather than checking a directory.
func (l *ObjectStorageLocation) Available(ctx context.Context) error {
	if err := l.repo.Probe(ctx); err != nil {
		return zerrors.LocationUnavailableError(l.root, fmt.Sprintf("bucket %s is not reachable: %v", l.uri.Bucket, err))
	}
	return l.md.Available(ctx)
}

func (l *ObjectStorageLocation) Stat(ctx context.Context, p string) (Entry, error) {
	key, err := l.Key(p)
	if err != nil {
		return Entry{}, err
	}
	info, err := l.repo.Stat(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Exists: info.Exists, IsDir: info.IsPrefix}, nil
}

func (l *ObjectStorageLocation) List(ctx context.Context, dir string) ([]string, error) {
	key, err := l.Key(EnsureTrailingSeparator(dir))
	if err != nil {
		return nil, err
	}
	infos, err := l.repo.List(ctx, key)
	if err != nil {
		return nil, err
	}

	children := make([]string, 0, len(infos))
	for _, info := range infos {
		children = append(children, l.root+strings.TrimPrefix(info.Key, l.uri.Prefix))
	}
	return children, nil
}
