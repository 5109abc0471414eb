package candidates

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"

	"github.com/zzenonn/zpreserve/internal/domain"
	"github.com/zzenonn/zpreserve/internal/index"
	"github.com/zzenonn/zpreserve/internal/location"
	"github.com/zzenonn/zpreserve/internal/metadata"
	"github.com/zzenonn/zpreserve/internal/metrics"
)

// IndexIterator pages through the index and yields the listed files that are still
// registered. Entries whose metadata has gone are removed from the index and passed over.
//
// In normal mode only entries stale as of the creation time are listed and no further due
// check is made. With force every registered entry matching the filter is listed.
type IndexIterator struct {
	index    index.Index
	filter   index.Filter
	registry *location.Registry
	loader   metadata.Loader
	force    bool
	asOf     time.Time
	metrics  *metrics.ScanMetrics

	page   []string
	cursor index.Cursor
	done   bool
}

type IndexOption func(*IndexIterator)

func WithIndexMetrics(m *metrics.ScanMetrics) IndexOption {
	return func(it *IndexIterator) { it.metrics = m }
}

func NewIndexIterator(idx index.Index, filter index.Filter, registry *location.Registry, loader metadata.Loader,
	force bool, asOf time.Time, opts ...IndexOption) *IndexIterator {
	it := &IndexIterator{
		index:    idx,
		filter:   filter,
		registry: registry,
		loader:   loader,
		force:    force,
		asOf:     asOf,
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

func (it *IndexIterator) fetch(ctx context.Context) error {
	var (
		page index.Page
		err  error
	)
	if it.force {
		page, err = it.index.RegisteredPaths(ctx, it.filter, it.cursor)
		it.metrics.ObserveIndexPage("registered")
	} else {
		page, err = it.index.PathsWithStaleServices(ctx, it.filter, it.asOf, it.cursor)
		it.metrics.ObserveIndexPage("stale")
	}
	if err != nil {
		return err
	}

	log.Debugf("Fetched %d paths from the index", len(page.Paths))
	if page.Done() {
		it.done = true
		return nil
	}
	it.page = page.Paths
	it.cursor = page.Next
	return nil
}

func (it *IndexIterator) NextCandidate(ctx context.Context) (*domain.FileRecord, error) {
	for {
		if len(it.page) == 0 {
			if it.done {
				return nil, iterator.Done
			}
			if err := it.fetch(ctx); err != nil {
				return nil, err
			}
			continue
		}

		p := it.page[0]
		it.page = it.page[1:]
		it.metrics.ObserveScanned(strategyIndex)

		loc, err := it.registry.LocationForPath(p)
		if err != nil {
			log.Warnf("Index entry %s is outside every configured location: %v", p, err)
			it.metrics.ObserveSkipped(strategyIndex, metrics.ReasonError)
			continue
		}
		file := domain.NewFileRecord(p, loc)

		present, err := it.loader.MetadataPresent(ctx, file)
		if err != nil {
			return nil, err
		}
		if present {
			if _, err := it.loader.Load(ctx, file); err != nil {
				return nil, err
			}
		}
		if !present || !file.Registered() {
			if err := it.index.Remove(ctx, file); err != nil {
				return nil, err
			}
			log.Warnf("Removed %s from the index: not registered", p)
			it.metrics.ObserveIndexRemoval()
			it.metrics.ObserveSkipped(strategyIndex, metrics.ReasonUnregistered)
			continue
		}

		// Index keys drop the trailing separator of directory objects.
		entry, err := loc.Stat(ctx, p)
		if err != nil {
			return nil, err
		}
		if entry.IsDir {
			file.Path = location.EnsureTrailingSeparator(p)
		}

		it.metrics.ObserveYielded(strategyIndex)
		return file, nil
	}
}

// ForEach calls fn for every remaining candidate.
func (it *IndexIterator) ForEach(ctx context.Context, fn func(file *domain.FileRecord) error) error {
	return ForEach(ctx, it, fn)
}
