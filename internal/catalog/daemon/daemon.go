package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/opendatath/catalog/internal/catalog/migrate"
)

// Importer reloads the snapshot. *service.Catalog satisfies it.
type Importer interface {
	Import(ctx context.Context, force bool) migrate.Result
}

// Config holds daemon settings.
type Config struct {
	// Snapshot names the files to watch.
	Snapshot migrate.Options

	// DebounceInterval is how long the files must stay quiet before a
	// re-import. Crawlers rewrite both files back to back.
	DebounceInterval time.Duration

	// RescanInterval, when positive, re-runs the import on a timer to catch
	// changes the watcher missed. Unchanged snapshots are skipped by the
	// importer's fingerprint check, so this is cheap.
	RescanInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns the defaults for the standard snapshot paths.
func DefaultConfig() *Config {
	return &Config{
		Snapshot:         migrate.DefaultOptions(),
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon re-imports the snapshot whenever its files change.
type Daemon struct {
	importer Importer
	config   *Config
	watcher  *FileWatcher

	mu        sync.Mutex
	pending   bool
	lastEvent time.Time
	imports   int
	lastRes   migrate.Result

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon. Use Start to begin watching.
func New(importer Importer, config *Config) (*Daemon, error) {
	if importer == nil {
		return nil, fmt.Errorf("importer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		importer: importer,
		config:   config,
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start imports the snapshot once, then watches for changes until ctx is
// cancelled or Stop is called. It blocks.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	d.runImport("startup")

	if err := d.watcher.Start(d.config.Snapshot); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	d.config.Logger.Printf("Watching: %s, %s", d.config.Snapshot.DatasetsPath, d.config.Snapshot.ResourcesPath)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChanges()
	if d.config.RescanInterval > 0 {
		d.wg.Add(1)
		go d.rescan()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for background work to finish.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")
	d.cancel()

	if err := d.watcher.Stop(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// Imports returns how many imports have run, including the startup import.
func (d *Daemon) Imports() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.imports
}

// LastResult returns the outcome of the most recent import.
func (d *Daemon) LastResult() migrate.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRes
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.config.Logger.Printf("File event: %s %s", event.Op, event.Path)
			d.mu.Lock()
			d.pending = true
			d.lastEvent = time.Now()
			d.mu.Unlock()

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processChanges polls for a quiet period after the last event and then
// imports once.
func (d *Daemon) processChanges() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 4)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if d.due(time.Now()) {
				d.runImport("file change")
			}
		}
	}
}

func (d *Daemon) due(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending || now.Sub(d.lastEvent) < d.config.DebounceInterval {
		return false
	}
	d.pending = false
	return true
}

func (d *Daemon) rescan() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runImport("rescan")
		}
	}
}

func (d *Daemon) runImport(reason string) {
	result := d.importer.Import(d.ctx, false)
	switch {
	case !result.OK:
		d.config.Logger.Printf("Import (%s) failed: %s", reason, result.Message)
	case result.Skipped:
		d.config.Logger.Printf("Import (%s): snapshot unchanged", reason)
	default:
		d.config.Logger.Printf("Import (%s): %s", reason, result.Message)
	}

	d.mu.Lock()
	d.imports++
	d.lastRes = result
	d.mu.Unlock()
}
