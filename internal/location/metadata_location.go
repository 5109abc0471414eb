package location

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/zzenonn/zpreserve/internal/digest"
	zerrors "github.com/zzenonn/zpreserve/internal/errors"
)

// MetadataLocation is the tree holding metadata files for a storage location. It can be
// paired with an object backend of a different kind.
type MetadataLocation interface {
	Path() string
	Digests() []string
	Contains(p string) bool
	Relativize(mdPath string) (string, error)
	// MetadataPath maps an object-relative path to its metadata path.
	MetadataPath(rel string) string
	// ObjectRelativePath maps a metadata path back to the object-relative path.
	ObjectRelativePath(mdPath string) (string, error)

	Available(ctx context.Context) error
	Stat(ctx context.Context, p string) (Entry, error)
	List(ctx context.Context, dir string) ([]string, error)
	Read(ctx context.Context, p string) ([]byte, error)
	Write(ctx context.Context, p string, data []byte) error
}

// FilesystemMetadataLocation keeps metadata files on a local filesystem.
type FilesystemMetadataLocation struct {
	pathMapper
	digests []string
}

// NewFilesystemMetadataLocation validates the root and digest algorithms.
func NewFilesystemMetadataLocation(path string, digests []string) (*FilesystemMetadataLocation, error) {
	root, err := normalizeFilesystemRoot(path)
	if err != nil {
		return nil, err
	}

	algs := make([]string, 0, len(digests))
	for _, d := range digests {
		alg, err := digest.Normalize(d)
		if err != nil {
			return nil, err
		}
		algs = append(algs, alg)
	}

	return &FilesystemMetadataLocation{
		pathMapper: pathMapper{root: root, isAbsolute: filepath.IsAbs},
		digests:    algs,
	}, nil
}

func (l *FilesystemMetadataLocation) Path() string { return l.root }

func (l *FilesystemMetadataLocation) Digests() []string { return l.digests }

func (l *FilesystemMetadataLocation) Contains(p string) bool { return l.contains(p) }

func (l *FilesystemMetadataLocation) Relativize(mdPath string) (string, error) {
	return l.relativize(mdPath)
}

// MetadataPath appends MetadataSuffix to file paths; directory paths are returned unsuffixed
// so the metadata tree mirrors the object tree.
func (l *FilesystemMetadataLocation) MetadataPath(rel string) string {
	if rel == "" || IsDirPath(rel) {
		return l.absolute(rel)
	}
	return l.absolute(rel) + MetadataSuffix
}

func (l *FilesystemMetadataLocation) ObjectRelativePath(mdPath string) (string, error) {
	rel, err := l.relativize(mdPath)
	if err != nil {
		return "", err
	}
	if rel == "" || IsDirPath(rel) {
		return rel, nil
	}
	if !strings.HasSuffix(rel, MetadataSuffix) {
		return "", zerrors.InvalidPathError(mdPath, "not a metadata file")
	}
	return strings.TrimSuffix(rel, MetadataSuffix), nil
}

func (l *FilesystemMetadataLocation) Available(ctx context.Context) error {
	return checkDirectory(l.root, "metadata location")
}

func (l *FilesystemMetadataLocation) Stat(ctx context.Context, p string) (Entry, error) {
	return statFilesystem(p)
}

func (l *FilesystemMetadataLocation) List(ctx context.Context, dir string) ([]string, error) {
	return listFilesystem(dir)
}

func (l *FilesystemMetadataLocation) Read(ctx context.Context, p string) ([]byte, error) {
	return os.ReadFile(p)
}

// Write stores data at p, creating parent directories and replacing the file atomically.
func (l *FilesystemMetadataLocation) Write(ctx context.Context, p string, data []byte) error {
	if !l.contains(p) {
		return zerrors.InvalidPathError(p, "path is not contained by "+l.root)
	}
	p = CleanPath(p)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".md-*")
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write metadata file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmp.Name(), p)
}

func normalizeFilesystemRoot(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", zerrors.ConfigurationError("location path is required")
	}
	if !filepath.IsAbs(path) {
		return "", zerrors.ConfigurationError("location path %q must be absolute", path)
	}
	return EnsureTrailingSeparator(filepath.Clean(path)), nil
}

func checkDirectory(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		return zerrors.LocationUnavailableError(path, fmt.Sprintf("%s is not reachable: %v", what, err))
	}
	if !info.IsDir() {
		return zerrors.LocationUnavailableError(path, what+" is not a directory")
	}
	return nil
}

func statFilesystem(p string) (Entry, error) {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
			return Entry{}, nil
		}
		return Entry{}, err
	}
	return Entry{Exists: true, IsDir: info.IsDir()}, nil
}

func listFilesystem(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	dir = EnsureTrailingSeparator(dir)

	children := make([]string, 0, len(entries))
	for _, entry := range entries {
		child := dir + entry.Name()
		isDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(child); err == nil {
				isDir = info.IsDir()
			}
		}
		if isDir {
			child += Separator
		}
		children = append(children, child)
	}
	sort.Strings(children)
	return children, nil
}
