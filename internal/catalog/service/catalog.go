// Package service exposes the UI-facing catalog operations as one facade
// over the store, the ranking cache, the refresher and the importer.
//
// Every method returns plain Go data. Listeners registered with AddListener
// are told about writes so outer surfaces (the dashboard event stream, the
// CLI) can react without polling.
package service

import (
	"context"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"time"

	"github.com/opendatath/catalog/internal/catalog/bootstrap"
	"github.com/opendatath/catalog/internal/catalog/browse"
	"github.com/opendatath/catalog/internal/catalog/db"
	"github.com/opendatath/catalog/internal/catalog/metrics"
	"github.com/opendatath/catalog/internal/catalog/migrate"
	"github.com/opendatath/catalog/internal/catalog/ranking"
	"github.com/opendatath/catalog/internal/catalog/schema"
	"github.com/opendatath/catalog/internal/catalog/sync"
)

// Listener receives write notifications. Methods are called synchronously
// after the write commits and must not block.
type Listener interface {
	OnDatasetRefreshed(status sync.Status)
	OnRankingUpdated(datasetID string, ranking int)
	OnImportComplete(result migrate.Result)
	OnStoreWiped()
}

// Config wires a Catalog.
type Config struct {
	// Fetcher backs RefreshDataset. Nil makes every refresh fail with
	// catalog.ErrUnavailable.
	Fetcher sync.PackageFetcher

	// Snapshot locates the JSON snapshot used by Ensure, Import and Compare.
	Snapshot migrate.Options

	CacheSize int              // ranking cache entries
	Workers   int              // RefreshMany concurrency
	Metrics   *metrics.Metrics // optional
	Logger    *log.Logger      // defaults to stderr with "[catalog] " prefix
}

// Catalog is the UI-facing facade.
type Catalog struct {
	// mu is held shared by every store operation and exclusively by
	// WipeStore, so a wipe never races an in-flight query.
	mu stdsync.RWMutex

	store        *db.DB
	cache        *ranking.Cache
	refresher    sync.Refresher
	importer     *migrate.Importer
	orchestrator *bootstrap.Orchestrator
	snapshot     migrate.Options
	workers      int
	metrics      *metrics.Metrics
	logger       *log.Logger

	listenersMu stdsync.RWMutex
	listeners   []Listener
}

// New creates a Catalog over an open store.
func New(store *db.DB, cfg Config) (*Catalog, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[catalog] ", log.LstdFlags)
	}
	cache, err := ranking.New(store, ranking.Config{
		Size:    cfg.CacheSize,
		Metrics: cfg.Metrics,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	importer := migrate.NewImporter(store, logger)
	return &Catalog{
		store:     store,
		cache:     cache,
		refresher: sync.New(store, cfg.Fetcher, logger),
		importer:  importer,
		orchestrator: bootstrap.New(store, bootstrap.Config{
			Snapshot: cfg.Snapshot,
			Importer: importer,
			Logger:   logger,
		}),
		snapshot: cfg.Snapshot,
		workers:  cfg.Workers,
		metrics:  cfg.Metrics,
		logger:   logger,
	}, nil
}

// AddListener registers l for write notifications.
func (c *Catalog) AddListener(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Catalog) notify(fn func(Listener)) {
	c.listenersMu.RLock()
	ls := append([]Listener(nil), c.listeners...)
	c.listenersMu.RUnlock()
	for _, l := range ls {
		fn(l)
	}
}

// Store returns the underlying Record Store.
func (c *Catalog) Store() *db.DB { return c.store }

// Cache returns the ranking cache.
func (c *Catalog) Cache() *ranking.Cache { return c.cache }

// Snapshot returns the configured snapshot paths.
func (c *Catalog) Snapshot() migrate.Options { return c.snapshot }

// Ensure runs store initialization once per Catalog.
func (c *Catalog) Ensure(ctx context.Context) (bootstrap.State, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, err := c.orchestrator.Ensure(ctx)
	if err == nil {
		c.updateSizeGauges(ctx)
	}
	return state, err
}

// LoadAllDatasets returns every dataset in the store.
func (c *Catalog) LoadAllDatasets(ctx context.Context) ([]*schema.Dataset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.GetAllDatasets(ctx)
}

// GetDataset returns one dataset or an error matching catalog.ErrNotFound.
func (c *Catalog) GetDataset(ctx context.Context, packageID string) (*schema.Dataset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.GetDataset(ctx, packageID)
}

// ResourcesFor returns a dataset's resources, empty when it has none.
func (c *Catalog) ResourcesFor(ctx context.Context, packageID string) ([]*schema.Resource, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.GetResourcesFor(ctx, packageID)
}

// RefreshDataset pulls one dataset from the remote catalog. It never panics
// and never returns an error; failures are reported in the Status.
func (c *Catalog) RefreshDataset(ctx context.Context, packageID string) sync.Status {
	c.mu.RLock()
	start := time.Now()
	status := c.refresher.Refresh(ctx, packageID)
	c.cache.Invalidate(packageID)
	c.mu.RUnlock()

	c.metrics.ObserveRefresh(status.OK, time.Since(start))
	c.notify(func(l Listener) { l.OnDatasetRefreshed(status) })
	return status
}

// RefreshMany refreshes several datasets concurrently.
func (c *Catalog) RefreshMany(ctx context.Context, packageIDs []string) []sync.Status {
	c.mu.RLock()
	start := time.Now()
	statuses := c.refresher.RefreshMany(ctx, packageIDs, c.workers)
	c.mu.RUnlock()
	per := time.Since(start) / time.Duration(max(len(statuses), 1))

	for _, st := range statuses {
		c.cache.Invalidate(st.PackageID)
		c.metrics.ObserveRefresh(st.OK, per)
		c.notify(func(l Listener) { l.OnDatasetRefreshed(st) })
	}
	return statuses
}

// RankingFor returns the dataset's ranking, 0 when unknown.
func (c *Catalog) RankingFor(ctx context.Context, packageID string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.RankingFor(ctx, packageID)
}

// RankingsFor returns rankings for many datasets; unknown ids map to 0.
func (c *Catalog) RankingsFor(ctx context.Context, packageIDs []string) (map[string]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.RankingsFor(ctx, packageIDs)
}

// SetRanking applies ranking to every resource of the dataset. It returns
// false for an out-of-range ranking or a storage failure.
func (c *Catalog) SetRanking(ctx context.Context, packageID string, ranking int) bool {
	c.mu.RLock()
	ok := c.cache.SetRanking(ctx, packageID, ranking)
	c.mu.RUnlock()
	if ok {
		c.notify(func(l Listener) { l.OnRankingUpdated(packageID, ranking) })
	}
	return ok
}

// WipeStore deletes the store file and starts over with an empty schema.
// It waits for in-flight operations to finish first.
func (c *Catalog) WipeStore(ctx context.Context) error {
	c.mu.Lock()
	err := c.store.Recreate(ctx)
	c.cache.Purge()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to wipe store: %w", err)
	}

	c.logger.Printf("Store %s wiped", c.store.Path())
	c.metrics.SetStoreSize(0, 0)
	c.notify(func(l Listener) { l.OnStoreWiped() })
	return nil
}

// Import loads the configured snapshot. force bypasses the unchanged
// snapshot check.
func (c *Catalog) Import(ctx context.Context, force bool) migrate.Result {
	opts := c.snapshot
	opts.Force = force
	return c.ImportFrom(ctx, opts)
}

// ImportFrom loads a snapshot from explicit paths.
func (c *Catalog) ImportFrom(ctx context.Context, opts migrate.Options) migrate.Result {
	c.mu.RLock()
	result := c.importer.Import(ctx, opts)
	if result.OK && !result.Skipped {
		c.cache.Purge()
	}
	c.updateSizeGauges(ctx)
	c.mu.RUnlock()

	c.metrics.ObserveImport(result.OK, result.Skipped)
	c.notify(func(l Listener) { l.OnImportComplete(result) })
	return result
}

// Export writes the store to dir in the given format.
func (c *Catalog) Export(ctx context.Context, opts migrate.ExportOptions) (*migrate.ExportResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return migrate.Export(ctx, c.store, opts)
}

// Compare contrasts the snapshot files with the store.
func (c *Catalog) Compare(ctx context.Context) (*migrate.Comparison, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return migrate.Compare(ctx, c.store, c.snapshot)
}

// Stats summarizes the catalog.
func (c *Catalog) Stats(ctx context.Context, topN int) (browse.Summary, error) {
	datasets, err := c.LoadAllDatasets(ctx)
	if err != nil {
		return browse.Summary{}, err
	}
	return browse.Summarize(datasets, topN), nil
}

// Organizations groups datasets by publisher and applies f.
func (c *Catalog) Organizations(ctx context.Context, f browse.OrgFilter) ([]browse.Organization, error) {
	datasets, err := c.LoadAllDatasets(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(browse.Organizations(datasets)), nil
}

// FileTypes returns the distinct format codes in the store.
func (c *Catalog) FileTypes(ctx context.Context) ([]string, error) {
	datasets, err := c.LoadAllDatasets(ctx)
	if err != nil {
		return nil, err
	}
	return browse.UniqueFileTypes(datasets), nil
}

func (c *Catalog) updateSizeGauges(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	datasets, err := c.store.CountDatasets(ctx)
	if err != nil {
		return
	}
	resources, err := c.store.CountResources(ctx)
	if err != nil {
		return
	}
	c.metrics.SetStoreSize(datasets, resources)
}
