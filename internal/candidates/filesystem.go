package candidates

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"

	"github.com/zzenonn/zpreserve/internal/domain"
	"github.com/zzenonn/zpreserve/internal/location"
	"github.com/zzenonn/zpreserve/internal/metadata"
	"github.com/zzenonn/zpreserve/internal/metrics"
	"github.com/zzenonn/zpreserve/internal/selector"
)

// FileSystemIterator pulls paths from a selector and yields registered files with a due
// service. Errors on individual paths are logged and the walk continues.
type FileSystemIterator struct {
	selector *selector.Selector
	registry *location.Registry
	loader   metadata.Loader
	services ServiceChecker
	event    string
	force    bool
	resolver location.PhysicalPathResolver
	metrics  *metrics.ScanMetrics
	now      func() time.Time
}

type FileSystemOption func(*FileSystemIterator)

func WithFileSystemMetrics(m *metrics.ScanMetrics) FileSystemOption {
	return func(it *FileSystemIterator) { it.metrics = m }
}

func WithPhysicalResolver(r location.PhysicalPathResolver) FileSystemOption {
	return func(it *FileSystemIterator) { it.resolver = r }
}

func WithNow(now func() time.Time) FileSystemOption {
	return func(it *FileSystemIterator) { it.now = now }
}

func NewFileSystemIterator(sel *selector.Selector, registry *location.Registry, loader metadata.Loader,
	services ServiceChecker, event string, force bool, opts ...FileSystemOption) *FileSystemIterator {
	it := &FileSystemIterator{
		selector: sel,
		registry: registry,
		loader:   loader,
		services: services,
		event:    event,
		force:    force,
		resolver: location.IdentityResolver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

func (it *FileSystemIterator) NextCandidate(ctx context.Context) (*domain.FileRecord, error) {
	for {
		p, err := it.selector.NextPath(ctx)
		if err == iterator.Done {
			return nil, iterator.Done
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			log.Errorf("Skipping path: %v", err)
			it.metrics.ObserveSkipped(strategyFilesystem, metrics.ReasonError)
			continue
		}
		it.metrics.ObserveScanned(strategyFilesystem)

		file, err := it.candidate(ctx, p)
		if err != nil {
			log.Errorf("Skipping %s: %v", p, err)
			it.metrics.ObserveSkipped(strategyFilesystem, metrics.ReasonError)
			continue
		}
		if file != nil {
			it.metrics.ObserveYielded(strategyFilesystem)
			return file, nil
		}
	}
}

// candidate returns the file at p if it qualifies, or nil when it is passed over.
func (it *FileSystemIterator) candidate(ctx context.Context, p string) (*domain.FileRecord, error) {
	loc, err := it.registry.LocationForPath(p)
	if err != nil {
		return nil, err
	}
	file := domain.NewFileRecord(p, loc)
	physical, err := it.resolver.PhysicalPath(p)
	if err != nil {
		log.Warnf("Cannot resolve the physical path of %s: %v", p, err)
	} else if physical != p {
		file.PhysicalPath = physical
	}

	present, err := it.loader.MetadataPresent(ctx, file)
	if err != nil {
		return nil, err
	}
	if !present {
		log.Debugf("Skipping unregistered %s", p)
		it.metrics.ObserveSkipped(strategyFilesystem, metrics.ReasonUnregistered)
		return nil, nil
	}
	if _, err := it.loader.Load(ctx, file); err != nil {
		return nil, err
	}
	if !file.Registered() {
		log.Debugf("Skipping deregistered %s", p)
		it.metrics.ObserveSkipped(strategyFilesystem, metrics.ReasonUnregistered)
		return nil, nil
	}

	if it.force || it.services.AnyServiceNeeded(file, it.event, it.now()) {
		return file, nil
	}
	it.metrics.ObserveSkipped(strategyFilesystem, metrics.ReasonNotDue)
	return nil, nil
}

// ForEach calls fn for every remaining candidate.
func (it *FileSystemIterator) ForEach(ctx context.Context, fn func(file *domain.FileRecord) error) error {
	return ForEach(ctx, it, fn)
}
