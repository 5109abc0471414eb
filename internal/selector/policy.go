package selector

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	zerrors "github.com/zzenonn/zpreserve/internal/errors"
	"github.com/zzenonn/zpreserve/internal/location"
)

type action int

const (
	descend action = iota
	yield
	skip
)

// Policy decides how each popped path is treated. The variants are Plain, OCFL and
// Registered.
type Policy interface {
	fmt.Stringer
	// resolve translates a target path into the path the traversal starts from.
	resolve(ctx context.Context, s *Selector, target string) (string, error)
	// classify returns the action for p and the path to yield or expand.
	classify(ctx context.Context, s *Selector, p string, target bool) (action, string, error)
	list(ctx context.Context, s *Selector, dir string) ([]string, error)
}

// OCFLMarkers name the files identifying an OCFL object directory.
var OCFLMarkers = []string{"0=ocfl_object_1.1", "0=ocfl_object_1.0"}

var (
	// Plain yields every file beneath the targets.
	Plain Policy = plainPolicy{}
	// OCFL yields OCFL object directories without descending into them.
	OCFL Policy = ocflPolicy{}
	// Registered walks the metadata tree and yields the objects that have metadata files.
	Registered Policy = registeredPolicy{}
)

// ParsePolicy maps a policy name to its variant.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "", "plain":
		return Plain, nil
	case "ocfl":
		return OCFL, nil
	case "registered":
		return Registered, nil
	default:
		return nil, zerrors.ConfigurationError("unknown selector policy %q", name)
	}
}

func statObject(ctx context.Context, s *Selector, p string) (location.StorageLocation, location.Entry, error) {
	loc, err := s.registry.LocationForPath(p)
	if err != nil {
		return nil, location.Entry{}, err
	}
	entry, err := loc.Stat(ctx, p)
	if err != nil {
		return nil, location.Entry{}, err
	}
	return loc, entry, nil
}

func listObjects(ctx context.Context, s *Selector, dir string) ([]string, error) {
	loc, err := s.registry.LocationForPath(dir)
	if err != nil {
		return nil, err
	}
	return loc.List(ctx, dir)
}

type plainPolicy struct{}

func (plainPolicy) String() string { return "plain" }

func (plainPolicy) resolve(ctx context.Context, s *Selector, target string) (string, error) {
	return target, nil
}

func (plainPolicy) classify(ctx context.Context, s *Selector, p string, target bool) (action, string, error) {
	_, entry, err := statObject(ctx, s, p)
	if err != nil {
		return skip, "", err
	}
	if !entry.Exists {
		return skip, "", zerrors.InvalidPathError(p, "does not exist")
	}
	if entry.IsDir {
		return descend, location.EnsureTrailingSeparator(p), nil
	}
	return yield, p, nil
}

func (plainPolicy) list(ctx context.Context, s *Selector, dir string) ([]string, error) {
	return listObjects(ctx, s, dir)
}

type ocflPolicy struct{}

func (ocflPolicy) String() string { return "ocfl" }

func (ocflPolicy) resolve(ctx context.Context, s *Selector, target string) (string, error) {
	return target, nil
}

// classify expands a storage root, yields marked directories and skips unmarked ones. Only
// directories are valid targets; stray files found while expanding a root are ignored.
func (ocflPolicy) classify(ctx context.Context, s *Selector, p string, target bool) (action, string, error) {
	loc, entry, err := statObject(ctx, s, p)
	if err != nil {
		return skip, "", err
	}
	if !entry.Exists {
		return skip, "", zerrors.InvalidPathError(p, "does not exist")
	}
	if !entry.IsDir {
		if target {
			return skip, "", zerrors.InvalidPathError(p, "OCFL objects must be directories")
		}
		log.Debugf("Ignoring file %s outside any OCFL object", p)
		return skip, "", nil
	}

	dir := location.EnsureTrailingSeparator(p)
	if dir == loc.Path() {
		return descend, dir, nil
	}

	resolved, err := s.resolver.PhysicalPath(dir)
	if err != nil {
		return skip, "", err
	}
	physical := location.EnsureTrailingSeparator(resolved)
	physicalLoc := loc
	if physical != dir {
		ploc, pentry, err := statObject(ctx, s, location.TrimTrailingSeparator(resolved))
		if err != nil {
			return skip, "", err
		}
		if !pentry.Exists || !pentry.IsDir {
			return skip, "", zerrors.InvalidPathError(resolved, "physical path of "+dir+" is not a directory")
		}
		physicalLoc = ploc
	}

	for _, marker := range OCFLMarkers {
		m, err := physicalLoc.Stat(ctx, physical+marker)
		if err != nil {
			return skip, "", err
		}
		if m.Exists && !m.IsDir {
			return yield, dir, nil
		}
	}

	log.Warnf("Skipping %s: not an OCFL object", dir)
	return skip, "", nil
}

func (ocflPolicy) list(ctx context.Context, s *Selector, dir string) ([]string, error) {
	return listObjects(ctx, s, dir)
}

type registeredPolicy struct{}

func (registeredPolicy) String() string { return "registered" }

// resolve maps a target to its metadata path. A target written without a trailing separator
// names a metadata file when one exists and a metadata directory otherwise.
func (registeredPolicy) resolve(ctx context.Context, s *Selector, target string) (string, error) {
	loc, err := s.registry.LocationForPath(target)
	if err != nil {
		return "", err
	}
	if location.IsDirPath(target) || location.EnsureTrailingSeparator(target) == loc.Path() {
		return loc.MetadataPathFor(location.EnsureTrailingSeparator(target))
	}

	mdFile, err := loc.MetadataPathFor(target)
	if err != nil {
		return "", err
	}
	entry, err := loc.MetadataLocation().Stat(ctx, mdFile)
	if err != nil {
		return "", err
	}
	if entry.Exists {
		return mdFile, nil
	}

	mdDir, err := loc.MetadataPathFor(target + location.Separator)
	if err != nil {
		return "", err
	}
	entry, err = loc.MetadataLocation().Stat(ctx, mdDir)
	if err != nil {
		return "", err
	}
	if entry.Exists && entry.IsDir {
		return mdDir, nil
	}
	return mdFile, nil
}

func (registeredPolicy) classify(ctx context.Context, s *Selector, mdPath string, target bool) (action, string, error) {
	loc, err := s.registry.LocationForMetadataPath(mdPath)
	if err != nil {
		return skip, "", err
	}
	entry, err := loc.MetadataLocation().Stat(ctx, mdPath)
	if err != nil {
		return skip, "", err
	}

	if !entry.Exists {
		objectPath, err := loc.ObjectPathFromMetadataPath(mdPath)
		if err != nil {
			return skip, "", err
		}
		obj, err := loc.Stat(ctx, objectPath)
		if err != nil {
			return skip, "", err
		}
		if obj.Exists {
			return skip, "", zerrors.RegistrationError(objectPath, "not registered")
		}
		return skip, "", zerrors.InvalidPathError(objectPath, "does not exist")
	}

	if entry.IsDir {
		return descend, location.EnsureTrailingSeparator(mdPath), nil
	}
	if !strings.HasSuffix(mdPath, location.MetadataSuffix) {
		return skip, "", nil
	}
	objectPath, err := loc.ObjectPathFromMetadataPath(mdPath)
	if err != nil {
		return skip, "", err
	}
	return yield, objectPath, nil
}

func (registeredPolicy) list(ctx context.Context, s *Selector, dir string) ([]string, error) {
	loc, err := s.registry.LocationForMetadataPath(dir)
	if err != nil {
		return nil, err
	}
	return loc.MetadataLocation().List(ctx, dir)
}
