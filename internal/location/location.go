// Package location maps logical object paths onto storage backends and their metadata trees.
//
// A StorageLocation owns an object root (a filesystem directory or an object-storage prefix)
// and a MetadataLocation, the directory tree mirroring the object root in which each object's
// metadata file lives. Paths are absolute strings; directory paths end with a separator.
package location

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	zerrors "github.com/zzenonn/zpreserve/internal/errors"
)

// MetadataSuffix is appended to an object's relative path to name its metadata file.
const MetadataSuffix = "-md.yaml"

// Separator is the path separator used by every backend.
const Separator = "/"

// Type represents the backend of a storage location
type Type string

const (
	FilesystemType Type = "filesystem"
	S3Type         Type = "s3"
	GCSType        Type = "gcs"
)

// Entry describes what a path resolves to on a backend.
type Entry struct {
	Exists bool
	IsDir  bool
}

// StorageLocation is a configured root under which preserved objects live.
type StorageLocation interface {
	Name() string
	// Path returns the object root, ending with a separator.
	Path() string
	Type() Type
	MetadataLocation() MetadataLocation
	MetadataDigests() []string

	Contains(p string) bool
	Relativize(p string) (string, error)
	MetadataPathFor(p string) (string, error)
	ObjectPathFromMetadataPath(mdPath string) (string, error)

	// Available checks that the backend behind the root can be reached.
	Available(ctx context.Context) error
	Stat(ctx context.Context, p string) (Entry, error)
	// List returns the absolute paths of the immediate children of dir. Child directories
	// end with a separator.
	List(ctx context.Context, dir string) ([]string, error)
}

// EnsureTrailingSeparator appends a separator to p if it has none.
func EnsureTrailingSeparator(p string) string {
	if strings.HasSuffix(p, Separator) {
		return p
	}
	return p + Separator
}

// TrimTrailingSeparator removes a trailing separator, keeping a bare root intact.
func TrimTrailingSeparator(p string) string {
	if p == Separator {
		return p
	}
	return strings.TrimSuffix(p, Separator)
}

// CleanPath resolves "." and ".." elements of p, keeping a trailing separator. For object
// storage URIs only the part after the host is cleaned.
func CleanPath(p string) string {
	if p == "" {
		return p
	}
	dir := IsDirPath(p)

	var cleaned string
	if i := strings.Index(p, "://"); i >= 0 {
		j := strings.Index(p[i+3:], Separator)
		if j < 0 {
			return p
		}
		host := p[:i+3+j]
		cleaned = host + path.Clean(p[i+3+j:])
	} else {
		cleaned = filepath.Clean(p)
	}

	if dir {
		return EnsureTrailingSeparator(cleaned)
	}
	return cleaned
}

// AbsolutePath makes a relative filesystem path absolute against the working directory and
// cleans it. URIs and absolute paths are only cleaned.
func AbsolutePath(p string) (string, error) {
	if p == "" || hasScheme(p) || filepath.IsAbs(p) {
		return CleanPath(p), nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", zerrors.InvalidPathError(p, err.Error())
	}
	if IsDirPath(p) {
		abs = EnsureTrailingSeparator(abs)
	}
	return abs, nil
}

// IsDirPath reports whether p is written as a directory.
func IsDirPath(p string) bool {
	return strings.HasSuffix(p, Separator)
}

// pathMapper holds the prefix arithmetic shared by every location kind.
type pathMapper struct {
	root       string
	isAbsolute func(string) bool
}

// contains compares the cleaned form of p, so ".." elements cannot climb out of the root.
func (m pathMapper) contains(p string) bool {
	if p == "" {
		return false
	}
	c := CleanPath(p)
	return strings.HasPrefix(c, m.root) || EnsureTrailingSeparator(c) == m.root
}

func (m pathMapper) relativize(p string) (string, error) {
	if p == "" {
		return "", zerrors.InvalidPathError(p, "a path is required")
	}
	if !m.isAbsolute(p) {
		return "", zerrors.InvalidPathError(p, "path must be absolute")
	}
	if !m.contains(p) {
		return "", zerrors.InvalidPathError(p, "path is not contained by "+m.root)
	}
	c := CleanPath(p)
	if EnsureTrailingSeparator(c) == m.root {
		return "", nil
	}
	rel := strings.TrimPrefix(c, m.root)
	if rel == ".." || strings.HasPrefix(rel, ".."+Separator) {
		return "", zerrors.InvalidPathError(p, "path is not contained by "+m.root)
	}
	return rel, nil
}

func (m pathMapper) absolute(rel string) string {
	return m.root + rel
}

// overlaps reports whether two roots nest inside one another.
func overlaps(a, b string) bool {
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}
