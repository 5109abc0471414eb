// Package app assembles the preservation components described by a configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpreserve/internal/candidates"
	"github.com/zzenonn/zpreserve/internal/config"
	zerrors "github.com/zzenonn/zpreserve/internal/errors"
	"github.com/zzenonn/zpreserve/internal/index"
	"github.com/zzenonn/zpreserve/internal/location"
	"github.com/zzenonn/zpreserve/internal/metadata"
	"github.com/zzenonn/zpreserve/internal/metrics"
	"github.com/zzenonn/zpreserve/internal/repository/db"
	"github.com/zzenonn/zpreserve/internal/repository/objectstore"
	"github.com/zzenonn/zpreserve/internal/repository/sqlite"
	"github.com/zzenonn/zpreserve/internal/selector"
	"github.com/zzenonn/zpreserve/internal/service"
)

// App holds the wired components. Index is nil when no index driver is configured.
type App struct {
	Config   *config.Config
	Registry *location.Registry
	Services *service.Manager
	Metadata *metadata.Manager
	Index    index.Index
	Locator  *candidates.Locator
	Metrics  *metrics.ScanMetrics

	factory *objectstore.ObjectRepositoryFactory
	store   *sqlite.Store
	dynamo  *db.DynamoDb
}

type Option func(*options)

type options struct {
	factory         *objectstore.ObjectRepositoryFactory
	metricsRegistry prometheus.Registerer
}

// WithObjectRepositoryFactory replaces the factory that creates S3 and GCS clients.
func WithObjectRepositoryFactory(f *objectstore.ObjectRepositoryFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithMetricsRegistry registers scan metrics with r instead of the process-wide registry.
func WithMetricsRegistry(r prometheus.Registerer) Option {
	return func(o *options) { o.metricsRegistry = r }
}

// New builds the registry, service manager, metadata manager, index and candidate locator
// for cfg. Cloud clients are only created for the locations and index that need them.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.factory == nil {
		o.factory = objectstore.NewObjectRepositoryFactory(nil, nil)
	}

	a := &App{
		Config:   cfg,
		Metadata: metadata.NewManager(),
		factory:  o.factory,
	}
	if o.metricsRegistry != nil {
		a.Metrics = metrics.NewScanMetrics(o.metricsRegistry)
	} else {
		a.Metrics = metrics.InitScanMetrics(nil)
	}

	registry, err := BuildRegistry(ctx, cfg, o.factory)
	if err != nil {
		return nil, err
	}
	a.Registry = registry

	mappings := make([]service.Mapping, 0, len(cfg.ServiceMappings))
	for _, m := range cfg.ServiceMappings {
		mappings = append(mappings, service.Mapping{Locations: m.Locations, Services: m.Services})
	}
	a.Services, err = service.NewManager(cfg.ServiceDefinitions, mappings)
	if err != nil {
		return nil, err
	}

	if err := a.openIndex(ctx); err != nil {
		return nil, err
	}

	locatorOpts := []candidates.LocatorOption{candidates.WithMetrics(a.Metrics)}
	if a.Index != nil {
		locatorOpts = append(locatorOpts, candidates.WithIndex(a.Index))
	}
	a.Locator = candidates.NewLocator(a.Registry, a.Metadata, a.Services, locatorOpts...)

	log.Debugf("Configured %d locations with index driver %s", a.Registry.Len(), cfg.Index.Driver)
	return a, nil
}

// BuildRegistry creates and registers every configured location.
func BuildRegistry(ctx context.Context, cfg *config.Config, factory *objectstore.ObjectRepositoryFactory) (*location.Registry, error) {
	registry := location.NewRegistry()
	for _, name := range cfg.LocationNames() {
		loc, err := buildLocation(ctx, name, cfg.Locations[name], factory)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(loc); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func buildLocation(ctx context.Context, name string, lc config.LocationConfig, factory *objectstore.ObjectRepositoryFactory) (location.StorageLocation, error) {
	md, err := location.NewFilesystemMetadataLocation(lc.MetadataPath, lc.MetadataDigests)
	if err != nil {
		return nil, fmt.Errorf("location %s: %w", name, err)
	}

	switch lc.Type {
	case string(location.FilesystemType), "":
		loc, err := location.NewFilesystemStorageLocation(name, lc.Path, md)
		if err != nil {
			return nil, fmt.Errorf("location %s: %w", name, err)
		}
		return loc, nil
	case string(location.S3Type), string(location.GCSType):
		uri, err := objectstore.ParseObjectURI(lc.Path)
		if err != nil {
			return nil, zerrors.ConfigurationError("location %s: %v", name, err)
		}
		if string(uri.Type) != lc.Type {
			return nil, zerrors.ConfigurationError("location %s: path %s is not a %s URI", name, lc.Path, lc.Type)
		}
		bucket := uri.BucketConfig()
		if lc.Region != "" {
			bucket.Region = lc.Region
		}
		bucket.Endpoint = lc.Endpoint

		repo, err := factory.CreateRepository(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("location %s: %w", name, err)
		}
		loc, err := location.NewObjectStorageLocation(name, lc.Path, repo, md)
		if err != nil {
			return nil, err
		}
		return loc, nil
	default:
		return nil, zerrors.ConfigurationError("location %s: unsupported type %q", name, lc.Type)
	}
}

func (a *App) openIndex(ctx context.Context) error {
	idx := a.Config.Index
	switch idx.Driver {
	case config.IndexDriverSQLite:
		store, err := sqlite.Open(ctx, idx.Path, idx.PageSize, a.Services.NextServiceTime)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		a.store = store
		a.Index = store
	case config.IndexDriverDynamoDB:
		awsCfg, err := a.factory.AWSConfig(ctx)
		if err != nil {
			return err
		}
		dynamo, err := db.NewDatabase(awsCfg, idx.Table, idx.Endpoint)
		if err != nil {
			return zerrors.ConfigurationError("index: %v", err)
		}
		repo := db.NewIndexRepository(dynamo.Client, dynamo.Table, idx.PageSize, a.Registry, a.Services.NextServiceTime)
		a.dynamo = dynamo
		a.Index = &repo
	}
	return nil
}

// ErrNoIndex is returned by index maintenance when no index driver is configured.
var ErrNoIndex = errors.New("no index configured")

// MigrateIndex creates the index schema. The SQLite schema is created when the index is
// opened, so only DynamoDB has work to do here.
func (a *App) MigrateIndex(ctx context.Context) error {
	switch {
	case a.dynamo != nil:
		return a.dynamo.MigrateDb(ctx)
	case a.store != nil:
		log.Infof("SQLite index ready at %s", a.store.Path())
		return nil
	default:
		return ErrNoIndex
	}
}

// DropIndex removes the index schema and every entry in it.
func (a *App) DropIndex(ctx context.Context) error {
	switch {
	case a.dynamo != nil:
		return a.dynamo.MigrateDown(ctx)
	case a.store != nil:
		return a.store.Drop(ctx)
	default:
		return ErrNoIndex
	}
}

// Selection describes which objects a command works on.
type Selection struct {
	Paths          []string
	Locations      []string
	Policy         string
	FollowSymlinks bool
}

// Selector builds a selector for sel. Without paths or locations, every configured location
// is selected.
func (a *App) Selector(sel Selection) (*selector.Selector, error) {
	policy, err := selector.ParsePolicy(sel.Policy)
	if err != nil {
		return nil, err
	}
	opts := selector.Options{Paths: sel.Paths, Locations: sel.Locations, Policy: policy}
	if len(opts.Paths) == 0 && len(opts.Locations) == 0 {
		opts.Locations = a.Registry.Names()
	}
	if sel.FollowSymlinks {
		opts.Resolver = location.SymlinkResolver{}
	}
	return selector.New(a.Registry, opts)
}

// CheckAvailable probes every location and its metadata directory.
func (a *App) CheckAvailable(ctx context.Context) error {
	for _, name := range a.Registry.Names() {
		loc, err := a.Registry.Get(name)
		if err != nil {
			return err
		}
		if err := loc.Available(ctx); err != nil {
			return err
		}
		if err := loc.MetadataLocation().Available(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the index connection.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
