package location

import (
	"fmt"
	"sort"
	"sync"

	zerrors "github.com/zzenonn/zpreserve/internal/errors"
)

// Registry holds the configured storage locations keyed by name.
type Registry struct {
	mu        sync.RWMutex
	locations map[string]StorageLocation
	names     []string
}

// NewRegistry creates an empty location registry
func NewRegistry() *Registry {
	return &Registry{
		locations: make(map[string]StorageLocation),
		names:     make([]string, 0),
	}
}

// Register adds a location. Names must be unique and no object or metadata root may
// overlap a root of another registered location.
func (r *Registry) Register(loc StorageLocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.locations[loc.Name()]; exists {
		return zerrors.ConfigurationError("location %s already registered", loc.Name())
	}
	if overlaps(loc.Path(), loc.MetadataLocation().Path()) {
		return zerrors.ConfigurationError("location %s: object path %s and metadata path %s overlap",
			loc.Name(), loc.Path(), loc.MetadataLocation().Path())
	}

	roots := []string{loc.Path(), loc.MetadataLocation().Path()}
	for _, name := range r.names {
		other := r.locations[name]
		for _, root := range roots {
			for _, otherRoot := range []string{other.Path(), other.MetadataLocation().Path()} {
				if overlaps(root, otherRoot) {
					return zerrors.ConfigurationError("location %s: path %s overlaps %s of location %s",
						loc.Name(), root, otherRoot, name)
				}
			}
		}
	}

	r.locations[loc.Name()] = loc
	r.names = append(r.names, loc.Name())
	sort.Strings(r.names)
	return nil
}

// Get returns the location with the given name
func (r *Registry) Get(name string) (StorageLocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc, exists := r.locations[name]
	if !exists {
		return nil, zerrors.LocationUnavailableError(name, "no storage location with this name")
	}
	return loc, nil
}

// Names returns all registered location names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// LocationForPath returns the location whose object root contains p.
func (r *Registry) LocationForPath(p string) (StorageLocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.names {
		if loc := r.locations[name]; loc.Contains(p) {
			return loc, nil
		}
	}
	return nil, zerrors.LocationUnavailableError(p, "path is not within a configured storage location")
}

// LocationForMetadataPath returns the location whose metadata root contains mdPath.
func (r *Registry) LocationForMetadataPath(mdPath string) (StorageLocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.names {
		if loc := r.locations[name]; loc.MetadataLocation().Contains(mdPath) {
			return loc, nil
		}
	}
	return nil, zerrors.LocationUnavailableError(mdPath, "path is not within a configured metadata location")
}

// Len returns the number of registered locations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

func (r *Registry) String() string {
	return fmt.Sprintf("Registry%v", r.Names())
}
