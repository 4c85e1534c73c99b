// Package catalog holds the shared error taxonomy for the open-data catalog
// sync layer.
//
// # Architecture
//
// The catalog keeps a local SQLite cache of dataset and resource metadata
// that is fed from two sources:
//
//   - JSON snapshot files (datasets.json, resources.json) produced by an
//     offline crawl, loaded in bulk by the migrate package
//   - the remote CKAN catalog API, refreshed one dataset at a time by the
//     sync package
//
// Curators attach a 0-4 quality ranking to each dataset's resources. The
// ranking lives only in the local store and survives remote refreshes as
// long as a resource keeps its file name.
//
// Subpackages, leaf first:
//
//   - schema: Dataset and Resource records, validation, snapshot file IO
//   - db: the Record Store
//   - migrate: the Snapshot Importer, exporters and source comparison
//   - remote: the CKAN HTTP client
//   - sync: the Remote Sync Client (Refresher)
//   - ranking: the Ranking Cache
//   - bootstrap: the once-per-process Initialization Orchestrator
//   - browse, service, daemon, dashboard: read models and outer surfaces
//
// # Errors
//
// Failures are classified with the sentinel kinds in this package:
//
//	status := refresher.Refresh(ctx, "abc")
//	if !status.OK && catalog.IsRemote(status.Err) {
//	    // remote catalog unreachable or returned success=false
//	}
package catalog
