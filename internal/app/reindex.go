package app

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"

	"github.com/zzenonn/zpreserve/internal/domain"
	"github.com/zzenonn/zpreserve/internal/selector"
)

// ReindexStats summarizes one reindex run.
type ReindexStats struct {
	Indexed int
	Removed int
	Failed  int
}

// Reindex walks the metadata trees of the given locations (every location when empty) and
// upserts an index entry for each registered object. Deregistered objects are removed from
// the index. Per-object failures are logged and counted; progress is called once per object.
func (a *App) Reindex(ctx context.Context, locations []string, progress func(path string)) (ReindexStats, error) {
	var stats ReindexStats
	if a.Index == nil {
		return stats, ErrNoIndex
	}

	sel, err := a.Selector(Selection{Locations: locations, Policy: selector.Registered.String()})
	if err != nil {
		return stats, err
	}

	for {
		p, err := sel.NextPath(ctx)
		if err != nil {
			if err == iterator.Done {
				break
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			log.Errorf("Reindex skipped an entry: %v", err)
			stats.Failed++
			continue
		}
		if progress != nil {
			progress(p)
		}

		if err := a.reindexPath(ctx, p, &stats); err != nil {
			log.Errorf("Failed to reindex %s: %v", p, err)
			stats.Failed++
		}
	}

	log.Infof("Reindexed %d objects, removed %d, %d failures", stats.Indexed, stats.Removed, stats.Failed)
	return stats, nil
}

func (a *App) reindexPath(ctx context.Context, p string, stats *ReindexStats) error {
	loc, err := a.Registry.LocationForPath(p)
	if err != nil {
		return err
	}
	file := domain.NewFileRecord(p, loc)
	if _, err := a.Metadata.Load(ctx, file); err != nil {
		return err
	}

	if !file.Registered() {
		if err := a.Index.Remove(ctx, file); err != nil {
			return err
		}
		stats.Removed++
		return nil
	}
	if err := a.Index.Index(ctx, file); err != nil {
		return err
	}
	stats.Indexed++
	return nil
}
