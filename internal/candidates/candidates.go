// Package candidates enumerates registered objects that need preservation work.
//
// Two strategies share the Iterator contract: FileSystemIterator walks storage through a
// selector and checks every object, IndexIterator pages through a secondary index that has
// already computed which objects are stale.
package candidates

import (
	"context"
	"time"

	"google.golang.org/api/iterator"

	"github.com/zzenonn/zpreserve/internal/domain"
	"github.com/zzenonn/zpreserve/internal/index"
	"github.com/zzenonn/zpreserve/internal/location"
	"github.com/zzenonn/zpreserve/internal/metadata"
	"github.com/zzenonn/zpreserve/internal/metrics"
	"github.com/zzenonn/zpreserve/internal/selector"
)

const (
	strategyFilesystem = "filesystem"
	strategyIndex      = "index"
)

// Iterator yields candidate files one at a time and returns iterator.Done at the end.
type Iterator interface {
	NextCandidate(ctx context.Context) (*domain.FileRecord, error)
}

// ServiceChecker decides whether any service applicable to an event is due for a file.
type ServiceChecker interface {
	AnyServiceNeeded(file *domain.FileRecord, event string, now time.Time) bool
}

// ForEach calls fn for every remaining candidate of it. The first error ends the walk.
func ForEach(ctx context.Context, it Iterator, fn func(file *domain.FileRecord) error) error {
	for {
		file, err := it.NextCandidate(ctx)
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(file); err != nil {
			return err
		}
	}
}

// Locator builds candidate iterators, using the index when one is configured.
type Locator struct {
	registry *location.Registry
	loader   metadata.Loader
	services ServiceChecker
	index    index.Index
	resolver location.PhysicalPathResolver
	metrics  *metrics.ScanMetrics
	now      func() time.Time
}

// LocatorOption customizes a Locator.
type LocatorOption func(*Locator)

// WithIndex makes the locator query idx instead of walking storage.
func WithIndex(idx index.Index) LocatorOption {
	return func(l *Locator) { l.index = idx }
}

// WithResolver sets the resolver used to fill in physical paths of candidates.
func WithResolver(r location.PhysicalPathResolver) LocatorOption {
	return func(l *Locator) { l.resolver = r }
}

func WithMetrics(m *metrics.ScanMetrics) LocatorOption {
	return func(l *Locator) { l.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LocatorOption {
	return func(l *Locator) { l.now = now }
}

func NewLocator(registry *location.Registry, loader metadata.Loader, services ServiceChecker, opts ...LocatorOption) *Locator {
	l := &Locator{
		registry: registry,
		loader:   loader,
		services: services,
		resolver: location.IdentityResolver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IndexConfigured reports whether candidate iteration uses the index.
func (l *Locator) IndexConfigured() bool {
	return l.index != nil
}

// CandidateIterator returns the iterator for sel. With force, every registered object is a
// candidate regardless of whether a service is due.
func (l *Locator) CandidateIterator(sel *selector.Selector, event string, force bool) Iterator {
	if l.index != nil {
		return NewIndexIterator(l.index, sel.Filter(), l.registry, l.loader, force, l.now(),
			WithIndexMetrics(l.metrics))
	}
	return NewFileSystemIterator(sel, l.registry, l.loader, l.services, event, force,
		WithFileSystemMetrics(l.metrics), WithPhysicalResolver(l.resolver), WithNow(l.now))
}
