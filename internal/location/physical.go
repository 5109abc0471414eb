package location

import (
	"os"
	"path/filepath"
)

// PhysicalPathResolver maps a logical object path to the path that holds its content.
type PhysicalPathResolver interface {
	PhysicalPath(logical string) (string, error)
}

// IdentityResolver treats every logical path as its own physical path.
type IdentityResolver struct{}

func (IdentityResolver) PhysicalPath(logical string) (string, error) {
	return logical, nil
}

// SymlinkResolver follows filesystem symlinks, so that aliased objects are checked at their
// real location. Paths that do not exist resolve to themselves.
type SymlinkResolver struct{}

func (SymlinkResolver) PhysicalPath(logical string) (string, error) {
	resolved, err := filepath.EvalSymlinks(logical)
	if err != nil {
		if os.IsNotExist(err) {
			return logical, nil
		}
		return "", err
	}
	if IsDirPath(logical) {
		resolved = EnsureTrailingSeparator(resolved)
	}
	return resolved, nil
}
