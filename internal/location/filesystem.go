package location

import (
	"context"
	"path/filepath"
)

// FilesystemStorageLocation stores objects in a local directory tree.
type FilesystemStorageLocation struct {
	pathMapper
	name string
	md   MetadataLocation
}

// NewFilesystemStorageLocation creates a location rooted at path whose metadata lives in md.
func NewFilesystemStorageLocation(name, path string, md MetadataLocation) (*FilesystemStorageLocation, error) {
	root, err := normalizeFilesystemRoot(path)
	if err != nil {
		return nil, err
	}
	return &FilesystemStorageLocation{
		pathMapper: pathMapper{root: root, isAbsolute: filepath.IsAbs},
		name:       name,
		md:         md,
	}, nil
}

func (l *FilesystemStorageLocation) Name() string { return l.name }

func (l *FilesystemStorageLocation) Path() string { return l.root }

func (l *FilesystemStorageLocation) Type() Type { return FilesystemType }

func (l *FilesystemStorageLocation) MetadataLocation() MetadataLocation { return l.md }

func (l *FilesystemStorageLocation) MetadataDigests() []string { return l.md.Digests() }

func (l *FilesystemStorageLocation) Contains(p string) bool { return l.contains(p) }

func (l *FilesystemStorageLocation) Relativize(p string) (string, error) { return l.relativize(p) }

func (l *FilesystemStorageLocation) MetadataPathFor(p string) (string, error) {
	return metadataPathFor(l, p)
}

func (l *FilesystemStorageLocation) ObjectPathFromMetadataPath(mdPath string) (string, error) {
	return objectPathFromMetadataPath(l, mdPath)
}

func (l *FilesystemStorageLocation) Available(ctx context.Context) error {
	if err := checkDirectory(l.root, "storage location "+l.name); err != nil {
		return err
	}
	return l.md.Available(ctx)
}

func (l *FilesystemStorageLocation) Stat(ctx context.Context, p string) (Entry, error) {
	return statFilesystem(p)
}

func (l *FilesystemStorageLocation) List(ctx context.Context, dir string) ([]string, error) {
	return listFilesystem(dir)
}

func metadataPathFor(loc StorageLocation, p string) (string, error) {
	rel, err := loc.Relativize(p)
	if err != nil {
		return "", err
	}
	return loc.MetadataLocation().MetadataPath(rel), nil
}

func objectPathFromMetadataPath(loc StorageLocation, mdPath string) (string, error) {
	rel, err := loc.MetadataLocation().ObjectRelativePath(mdPath)
	if err != nil {
		return "", err
	}
	return loc.Path() + rel, nil
}
