// Package daemon keeps the store in step with the JSON snapshot files.
//
// # Architecture
//
//   - FileWatcher: fsnotify events filtered to the snapshot files
//   - Daemon: debounces those events and re-imports through an Importer
//
// The daemon does no writes of its own. It calls Importer.Import, normally
// a *service.Catalog, which purges the ranking cache and notifies listeners
// such as the dashboard event stream.
//
// # Usage
//
//	d, err := daemon.New(catalog, &daemon.Config{
//	    Snapshot:         migrate.DefaultOptions(),
//	    DebounceInterval: 500 * time.Millisecond,
//	})
//	if err != nil {
//	    return err
//	}
//	return d.Start(ctx) // blocks until ctx is cancelled
//
// # Debouncing
//
// Snapshot crawlers usually rewrite datasets.json and resources.json within
// a few milliseconds of each other. Every event resets the quiet timer; one
// import runs once DebounceInterval passes without further events. A
// half-written snapshot that fails to parse is reported and left for the
// next event, since the importer commits nothing on error.
//
// # Graceful Shutdown
//
// Cancelling the context passed to Start, or calling Stop, closes the
// watcher and waits for an in-progress import to finish.
package daemon
