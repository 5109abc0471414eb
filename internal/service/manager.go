// Package service holds the configured preservation services and decides when they are due.
package service

import (
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpreserve/internal/domain"
	zerrors "github.com/zzenonn/zpreserve/internal/errors"
)

// Mapping assigns services to storage locations.
type Mapping struct {
	Locations []string
	Services  []string
}

// Manager resolves which services apply to an object and whether any of them is due.
type Manager struct {
	definitions map[string]domain.ServiceDefinition
	byLocation  map[string][]string
}

// NewManager validates the definitions and mappings. Every mapped service must be defined.
func NewManager(defs []domain.ServiceDefinition, mappings []Mapping) (*Manager, error) {
	m := &Manager{
		definitions: make(map[string]domain.ServiceDefinition, len(defs)),
		byLocation:  make(map[string][]string),
	}

	for _, def := range defs {
		if def.Name == "" {
			return nil, zerrors.ConfigurationError("service definition without a name")
		}
		if _, exists := m.definitions[def.Name]; exists {
			return nil, zerrors.ConfigurationError("service %s defined twice", def.Name)
		}
		if def.Delay < 0 || def.Frequency < 0 {
			return nil, zerrors.ConfigurationError("service %s: delay and frequency must be positive", def.Name)
		}
		m.definitions[def.Name] = def
	}

	for _, mapping := range mappings {
		for _, name := range mapping.Services {
			if _, ok := m.definitions[name]; !ok {
				return nil, zerrors.ConfigurationError("service mapping references undefined service %s", name)
			}
		}
		for _, loc := range mapping.Locations {
			for _, name := range mapping.Services {
				if !contains(m.byLocation[loc], name) {
					m.byLocation[loc] = append(m.byLocation[loc], name)
				}
			}
		}
	}
	for loc := range m.byLocation {
		sort.Strings(m.byLocation[loc])
	}

	log.Debugf("Loaded %d service definitions for %d locations", len(m.definitions), len(m.byLocation))
	return m, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Definition returns the named service definition.
func (m *Manager) Definition(name string) (domain.ServiceDefinition, bool) {
	def, ok := m.definitions[name]
	return def, ok
}

// Definitions returns every definition sorted by name.
func (m *Manager) Definitions() []domain.ServiceDefinition {
	defs := make([]domain.ServiceDefinition, 0, len(m.definitions))
	for _, def := range m.definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// MappedLocations returns the names of locations with at least one service.
func (m *Manager) MappedLocations() []string {
	names := make([]string, 0, len(m.byLocation))
	for name := range m.byLocation {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServicesFor returns the services mapped to a location that apply to event.
func (m *Manager) ServicesFor(locationName, event string) []domain.ServiceDefinition {
	var defs []domain.ServiceDefinition
	for _, name := range m.byLocation[locationName] {
		if def := m.definitions[name]; def.AppliesTo(event) {
			defs = append(defs, def)
		}
	}
	return defs
}

// DueServices returns the services due for file at now. The file must have metadata attached.
func (m *Manager) DueServices(file *domain.FileRecord, event string, now time.Time) []domain.ServiceDefinition {
	if !file.Registered() {
		return nil
	}
	var due []domain.ServiceDefinition
	for _, def := range m.ServicesFor(file.Location.Name(), event) {
		if ServiceDue(def, file.Metadata, now) {
			due = append(due, def)
		}
	}
	return due
}

// AnyServiceNeeded reports whether at least one service applicable to event is due.
func (m *Manager) AnyServiceNeeded(file *domain.FileRecord, event string, now time.Time) bool {
	if !file.Registered() {
		return false
	}
	for _, def := range m.ServicesFor(file.Location.Name(), event) {
		if ServiceDue(def, file.Metadata, now) {
			return true
		}
	}
	return false
}

// NextServiceTime returns the earliest time a preservation service is due for file, or false
// when none ever will be. Index drivers store it as the entry's service time.
func (m *Manager) NextServiceTime(file *domain.FileRecord) (time.Time, bool) {
	if !file.Registered() {
		return time.Time{}, false
	}
	var (
		earliest time.Time
		found    bool
	)
	for _, def := range m.ServicesFor(file.Location.Name(), domain.EventPreserve) {
		next, ok := NextRunTime(def, file.Metadata)
		if !ok {
			continue
		}
		if !found || next.Before(earliest) {
			earliest, found = next, true
		}
	}
	return earliest, found
}
