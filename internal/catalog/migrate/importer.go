// Package migrate loads JSON snapshots into the Record Store and writes the
// store back out as snapshots, CSV or YAML.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/opendatath/catalog/internal/catalog"
	"github.com/opendatath/catalog/internal/catalog/db"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// Default snapshot locations, relative to the working directory.
const (
	DefaultDatasetsPath  = "data/processed/datasets.json"
	DefaultResourcesPath = "data/processed/resources.json"
)

// Options configures an import.
type Options struct {
	DatasetsPath  string // datasets.json (required)
	ResourcesPath string // resources.json (required)
	RankingsPath  string // optional {dataset_id: ranking} overlay
	Force         bool   // import even if the snapshot is unchanged since the last import
}

// DefaultOptions returns Options pointing at the default snapshot paths.
func DefaultOptions() Options {
	return Options{
		DatasetsPath:  DefaultDatasetsPath,
		ResourcesPath: DefaultResourcesPath,
	}
}

// Result describes the outcome of an import. Import never returns a Go error;
// failures are reported through OK=false and Err.
type Result struct {
	OK        bool
	Message   string
	Datasets  int
	Resources int
	Skipped   bool // snapshot unchanged, nothing written
	Warnings  []string
	Err       error
}

// String renders the result with a leading ✅ or ❌ marker.
func (r Result) String() string {
	if r.OK {
		return "✅ " + r.Message
	}
	return "❌ " + r.Message
}

// Importer loads snapshots into a store.
type Importer struct {
	store  *db.DB
	logger *log.Logger
}

// NewImporter creates an Importer. If logger is nil a default stderr logger
// is used.
func NewImporter(store *db.DB, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(os.Stderr, "[import] ", log.LstdFlags)
	}
	return &Importer{store: store, logger: logger}
}

// Import reads both snapshot files, validates every record and then writes
// all datasets and their resource sets in a single transaction. On any error
// nothing is committed.
//
// Importing the same snapshot twice leaves the store unchanged. When the
// snapshot fingerprint matches the last successful import and the store is
// not empty, the import is skipped unless opts.Force is set.
func (im *Importer) Import(ctx context.Context, opts Options) Result {
	start := time.Now()

	for _, p := range []string{opts.DatasetsPath, opts.ResourcesPath} {
		if !schema.Exists(p) {
			return fail(fmt.Errorf("%w: snapshot file %s", catalog.ErrNotFound, p))
		}
	}

	fingerprint, err := schema.Fingerprint(opts.DatasetsPath, opts.ResourcesPath)
	if err != nil {
		return fail(err)
	}

	if !opts.Force {
		if skip, err := im.unchanged(ctx, fingerprint); err != nil {
			return fail(err)
		} else if skip {
			im.logger.Printf("Snapshot unchanged (%s), skipping import", short(fingerprint))
			return Result{OK: true, Skipped: true, Message: "Snapshot unchanged, nothing to import"}
		}
	}

	var overlay map[string]int
	if opts.RankingsPath != "" {
		overlay, err = schema.ReadRankings(opts.RankingsPath)
		if errors.Is(err, catalog.ErrNotFound) {
			im.logger.Printf("Warning: rankings file %s not found, using default rankings", opts.RankingsPath)
		} else if err != nil {
			return fail(err)
		}
	}

	datasets, err := schema.ReadDatasets(opts.DatasetsPath)
	if err != nil {
		return fail(err)
	}
	resources, err := schema.ReadResources(opts.ResourcesPath, overlay)
	if err != nil {
		return fail(err)
	}

	warnings := consistencyWarnings(datasets, resources)
	for _, w := range warnings {
		im.logger.Printf("Warning: %s", w)
	}

	keys, groups := schema.GroupByDataset(resources)
	err = im.store.WithTx(ctx, func(tx *db.Tx) error {
		for _, d := range datasets {
			if err := tx.UpsertDataset(ctx, d); err != nil {
				return err
			}
		}
		for _, id := range keys {
			if err := tx.ReplaceResources(ctx, id, groups[id]); err != nil {
				return err
			}
		}
		if err := tx.SetMeta(ctx, db.MetaSnapshotFingerprint, fingerprint); err != nil {
			return err
		}
		return tx.SetMeta(ctx, db.MetaLastImport, time.Now().UTC().Format(time.RFC3339))
	})
	if err != nil {
		return fail(err)
	}

	im.logger.Printf("Imported %d datasets and %d resources in %v", len(datasets), len(resources), time.Since(start).Round(time.Millisecond))
	return Result{
		OK:        true,
		Message:   fmt.Sprintf("Imported %d datasets and %d resources", len(datasets), len(resources)),
		Datasets:  len(datasets),
		Resources: len(resources),
		Warnings:  warnings,
	}
}

func (im *Importer) unchanged(ctx context.Context, fingerprint string) (bool, error) {
	last, ok, err := im.store.GetMeta(ctx, db.MetaSnapshotFingerprint)
	if err != nil || !ok || last != fingerprint {
		return false, err
	}
	n, err := im.store.CountDatasets(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// consistencyWarnings reports datasets whose declared resource_count differs
// from the resources file and resources whose dataset is not in the datasets
// file. Neither blocks the import.
func consistencyWarnings(datasets []*schema.Dataset, resources []*schema.Resource) []string {
	counts := make(map[string]int, len(datasets))
	for _, r := range resources {
		counts[r.DatasetID]++
	}

	var warnings []string
	known := make(map[string]bool, len(datasets))
	for _, d := range datasets {
		known[d.PackageID] = true
		if n := counts[d.PackageID]; n != d.ResourceCount {
			warnings = append(warnings,
				fmt.Sprintf("dataset %s declares %d resources, snapshot has %d", d.PackageID, d.ResourceCount, n))
		}
	}

	orphans := 0
	for id, n := range counts {
		if !known[id] {
			orphans += n
		}
	}
	if orphans > 0 {
		warnings = append(warnings, fmt.Sprintf("%d resources reference datasets missing from the datasets file", orphans))
	}
	return warnings
}

func fail(err error) Result {
	return Result{OK: false, Message: fmt.Sprintf("Import failed: %v", err), Err: err}
}

func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
