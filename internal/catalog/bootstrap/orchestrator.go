// Package bootstrap decides once per process how the Record Store gets its
// first data: keep what is there, import the JSON snapshot, or seed a sample.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/opendatath/catalog/internal/catalog/db"
	"github.com/opendatath/catalog/internal/catalog/migrate"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// State is a step of the initialization state machine.
type State int

const (
	Unchecked State = iota
	CheckingStore
	CheckingSnapshot
	Importing
	Seeding
	Ready
	Failed
)

var stateNames = [...]string{
	Unchecked:        "UNCHECKED",
	CheckingStore:    "CHECKING_STORE",
	CheckingSnapshot: "CHECKING_SNAPSHOT",
	Importing:        "IMPORTING",
	Seeding:          "SEEDING",
	Ready:            "READY",
	Failed:           "FAILED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether Ensure will never leave this state again.
func (s State) Terminal() bool {
	return s == Ready || s == Failed
}

// Sample record ids used when there is nothing else to load.
const (
	SamplePackageID = "sample-dataset"
	SampleFileName  = "sample.csv"
)

// Config configures an Orchestrator.
type Config struct {
	// Snapshot locates the JSON snapshot files.
	Snapshot migrate.Options

	// Importer loads the snapshot. Defaults to migrate.NewImporter(store, Logger).
	Importer *migrate.Importer

	// Logger defaults to stderr with a "[bootstrap] " prefix.
	Logger *log.Logger

	// OnTransition, if set, is called for every state change while the
	// orchestrator's lock is held. It must not call back into the
	// Orchestrator.
	OnTransition func(from, to State)
}

// Orchestrator runs the initialization state machine and memoizes the
// outcome. READY and FAILED are both final for the Orchestrator's lifetime:
// later Ensure calls return the recorded result without touching the store.
//
// Create one Orchestrator per process and pass it to whatever needs the
// store initialized.
type Orchestrator struct {
	mu       sync.Mutex
	store    *db.DB
	importer *migrate.Importer
	cfg      Config
	logger   *log.Logger

	state State
	err   error
}

// New creates an Orchestrator in the UNCHECKED state.
func New(store *db.DB, cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[bootstrap] ", log.LstdFlags)
	}
	importer := cfg.Importer
	if importer == nil {
		importer = migrate.NewImporter(store, logger)
	}
	return &Orchestrator{
		store:    store,
		importer: importer,
		cfg:      cfg,
		logger:   logger,
		state:    Unchecked,
	}
}

// State returns the current state without running anything.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Ensure initializes the store on first call and returns the final state.
// Concurrent callers block until the first run completes.
//
// A failed run returns FAILED with the same error on every call.
func (o *Orchestrator) Ensure(ctx context.Context) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case Ready:
		return Ready, nil
	case Failed:
		return Failed, o.err
	}

	if err := o.run(ctx); err != nil {
		o.err = err
		o.transition(Failed)
		o.logger.Printf("Initialization failed: %v", err)
		return Failed, err
	}
	o.transition(Ready)
	return Ready, nil
}

func (o *Orchestrator) run(ctx context.Context) error {
	o.transition(CheckingStore)
	count, err := o.store.CountDatasets(ctx)
	if err != nil {
		o.logger.Printf("Store unreadable (%v), recreating %s", err, o.store.Path())
		if err := o.store.Recreate(ctx); err != nil {
			return fmt.Errorf("failed to recreate store: %w", err)
		}
		count = 0
	}
	if count > 0 {
		o.logger.Printf("Store has %d datasets, ready", count)
		return nil
	}

	o.transition(CheckingSnapshot)
	if o.snapshotImportable() {
		o.transition(Importing)
		opts := o.cfg.Snapshot
		opts.Force = true
		result := o.importer.Import(ctx, opts)
		if !result.OK {
			return fmt.Errorf("snapshot import failed: %w", result.Err)
		}
		o.logger.Printf("%s", result.Message)
		return nil
	}

	o.transition(Seeding)
	if err := o.seed(ctx); err != nil {
		return fmt.Errorf("failed to seed sample data: %w", err)
	}
	o.logger.Printf("No snapshot found, seeded sample dataset %q", SamplePackageID)
	return nil
}

// snapshotImportable reports whether both snapshot files exist and parse to
// non-empty arrays.
func (o *Orchestrator) snapshotImportable() bool {
	opts := o.cfg.Snapshot
	if !schema.Exists(opts.DatasetsPath) || !schema.Exists(opts.ResourcesPath) {
		return false
	}
	datasets, err := schema.ReadDatasets(opts.DatasetsPath)
	if err != nil || len(datasets) == 0 {
		if err != nil {
			o.logger.Printf("Datasets snapshot unusable: %v", err)
		}
		return false
	}
	resources, err := schema.ReadResources(opts.ResourcesPath, nil)
	if err != nil || len(resources) == 0 {
		if err != nil {
			o.logger.Printf("Resources snapshot unusable: %v", err)
		}
		return false
	}
	return true
}

func (o *Orchestrator) seed(ctx context.Context) error {
	dataset, resource := SampleRecords()
	return o.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.UpsertDataset(ctx, dataset); err != nil {
			return err
		}
		return tx.ReplaceResources(ctx, dataset.PackageID, []*schema.Resource{resource})
	})
}

func (o *Orchestrator) transition(to State) {
	from := o.state
	o.state = to
	if o.cfg.OnTransition != nil {
		o.cfg.OnTransition(from, to)
	}
}

// SampleRecords returns the synthetic dataset and resource seeded into an
// empty store.
func SampleRecords() (*schema.Dataset, *schema.Resource) {
	resource := &schema.Resource{
		DatasetID:   SamplePackageID,
		FileName:    SampleFileName,
		Format:      "CSV",
		URL:         "https://data.go.th/dataset/sample-dataset/resource/sample.csv",
		Description: "Sample resource created because no snapshot was available",
		Ranking:     0,
	}
	dataset := &schema.Dataset{
		PackageID:     SamplePackageID,
		Title:         "Sample Dataset",
		Organization:  "Sample Organization",
		URL:           "https://data.go.th/dataset/sample-dataset",
		ResourceCount: 1,
		FileTypes:     schema.DeriveFileTypes([]*schema.Resource{resource}),
		LastUpdated:   time.Now().UTC().Format("2006-01-02T15:04:05"),
	}
	return dataset, resource
}
