package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/opendatath/catalog/internal/catalog/migrate"
)

// EventOp is the kind of change seen on a snapshot file.
type EventOp int

const (
	OpCreate EventOp = iota
	OpModify
	OpDelete
)

func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileKind identifies which snapshot file changed.
type FileKind int

const (
	KindDatasets FileKind = iota
	KindResources
	KindRankings
)

func (k FileKind) String() string {
	switch k {
	case KindDatasets:
		return "datasets"
	case KindResources:
		return "resources"
	case KindRankings:
		return "rankings"
	default:
		return "unknown"
	}
}

// FileEvent is a change to one snapshot file.
type FileEvent struct {
	Path string // absolute
	Kind FileKind
	Op   EventOp
}

// FileWatcher reports changes to the snapshot files.
//
// fsnotify watches directories rather than the files themselves, so atomic
// replace-by-rename writes are still seen. Events for other files in the same
// directories are dropped.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	files   map[string]FileKind // absolute path -> kind
}

// NewFileWatcher creates a FileWatcher. Call Start before reading Events.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start watches the files named by opts. RankingsPath is optional. The
// directories holding the files must exist; the files themselves need not.
func (fw *FileWatcher) Start(opts migrate.Options) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	files := make(map[string]FileKind)
	for kind, p := range map[FileKind]string{
		KindDatasets:  opts.DatasetsPath,
		KindResources: opts.ResourcesPath,
		KindRankings:  opts.RankingsPath,
	} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		files[abs] = kind
	}
	if len(files) == 0 {
		return fmt.Errorf("no snapshot files to watch")
	}

	added := make(map[string]bool)
	for abs := range files {
		dir := filepath.Dir(abs)
		if added[dir] {
			continue
		}
		if err := fw.watcher.Add(dir); err != nil {
			for d := range added {
				_ = fw.watcher.Remove(d)
			}
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
		added[dir] = true
	}

	fw.files = files
	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop closes the watcher and both channels. Safe to call more than once.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return fw.watcher.Close()
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)
	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)
	return nil
}

// Events is closed by Stop.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors is closed by Stop.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fileEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return FileEvent{}, false
	}
	kind, ok := fw.files[abs]
	if !ok {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return FileEvent{}, false
	}

	return FileEvent{Path: abs, Kind: kind, Op: op}, true
}

// IsRunning reports whether Start has been called without a matching Stop.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}
