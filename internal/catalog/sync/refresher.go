package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	stdsync "sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/opendatath/catalog/internal/catalog"
	"github.com/opendatath/catalog/internal/catalog/db"
	"github.com/opendatath/catalog/internal/catalog/remote"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// refresher implements the Refresher interface.
type refresher struct {
	db      *db.DB
	fetcher PackageFetcher
	logger  *log.Logger
	locks   keyedMutex

	refreshed atomic.Int64
	failed    atomic.Int64
}

// New creates a Refresher.
//
// fetcher may be nil when no catalog credential is configured; every refresh
// then fails with catalog.ErrUnavailable. If logger is nil, a default logger
// writing to stderr is used.
//
// Example:
//
//	client, err := remote.New(remote.DefaultBaseURL, apiKey)
//	if err != nil {
//	    return err
//	}
//	refresher := sync.New(store, client, nil)
func New(database *db.DB, fetcher PackageFetcher, logger *log.Logger) Refresher {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &refresher{
		db:      database,
		fetcher: fetcher,
		logger:  logger,
		locks:   keyedMutex{locks: make(map[string]*keyedEntry)},
	}
}

// Refresh implements Refresher.Refresh.
func (r *refresher) Refresh(ctx context.Context, packageID string) (status Status) {
	packageID = strings.TrimSpace(packageID)
	status.PackageID = packageID

	defer func() {
		if p := recover(); p != nil {
			status = r.failure(packageID, fmt.Errorf("refresh panicked: %v", p))
		}
	}()

	if packageID == "" {
		return r.failure(packageID, fmt.Errorf("%w: package id is required", catalog.ErrParse))
	}
	if r.fetcher == nil {
		return r.failure(packageID, catalog.ErrUnavailable)
	}

	unlock := r.locks.Lock(packageID)
	defer unlock()

	pkg, err := r.fetcher.PackageShow(ctx, packageID)
	if err != nil {
		return r.failure(packageID, err)
	}

	dataset, resources := fromPackage(packageID, pkg)

	preserved := 0
	err = r.db.WithTx(ctx, func(tx *db.Tx) error {
		existing, err := tx.GetResourcesFor(ctx, packageID)
		if err != nil {
			return err
		}
		rankings := schema.RankingsByFileName(existing)
		for _, res := range resources {
			if ranking, ok := rankings[res.FileName]; ok {
				res.Ranking = ranking
				preserved++
			}
		}

		if err := tx.UpsertDataset(ctx, dataset); err != nil {
			return err
		}
		return tx.ReplaceResources(ctx, packageID, resources)
	})
	if err != nil {
		return r.failure(packageID, err)
	}

	r.refreshed.Add(1)
	r.logger.Printf("Refreshed %s: %d resources (%d rankings kept)", packageID, len(resources), preserved)
	return Status{
		OK:        true,
		PackageID: packageID,
		Message:   fmt.Sprintf("Refreshed %s: %d resources (%d rankings kept)", packageID, len(resources), preserved),
		Resources: len(resources),
		Preserved: preserved,
	}
}

// RefreshMany implements Refresher.RefreshMany.
func (r *refresher) RefreshMany(ctx context.Context, packageIDs []string, workers int) []Status {
	if workers <= 0 {
		workers = 4
	}

	statuses := make([]Status, len(packageIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range packageIDs {
		g.Go(func() error {
			statuses[i] = r.Refresh(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

// Stats implements Refresher.Stats.
func (r *refresher) Stats() Stats {
	return Stats{Refreshed: r.refreshed.Load(), Failed: r.failed.Load()}
}

func (r *refresher) failure(packageID string, err error) Status {
	r.failed.Add(1)
	r.logger.Printf("WARNING: refresh of %q failed: %v", packageID, err)
	return Status{
		OK:        false,
		PackageID: packageID,
		Message:   fmt.Sprintf("Refresh of %s failed: %v", packageID, err),
		Err:       err,
	}
}

// fromPackage maps a package_show result onto store records. The dataset is
// keyed by the id the caller asked for, not the remote's internal id.
func fromPackage(packageID string, pkg *remote.Package) (*schema.Dataset, []*schema.Resource) {
	resources := make([]*schema.Resource, 0, len(pkg.Resources))
	for _, pr := range pkg.Resources {
		resources = append(resources, &schema.Resource{
			DatasetID:   packageID,
			FileName:    pr.Name,
			Format:      schema.NormalizeFormat(pr.Format),
			URL:         pr.URL,
			Description: pr.Description,
		})
	}

	url := pkg.URL
	if url == "" && len(resources) > 0 {
		url = resources[0].URL
	}

	dataset := &schema.Dataset{
		PackageID:     packageID,
		Title:         pkg.Title,
		Organization:  pkg.OrganizationTitle(),
		URL:           url,
		ResourceCount: len(resources),
		FileTypes:     schema.DeriveFileTypes(resources),
		LastUpdated:   pkg.MetadataModified,
	}
	return dataset, resources
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    stdsync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   stdsync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
