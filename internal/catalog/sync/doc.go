// Package sync refreshes individual datasets in the Record Store from the
// remote CKAN catalog.
//
// # Overview
//
// The snapshot importer loads the catalog in bulk; this package keeps single
// datasets current between snapshots. A refresh calls package_show, rebuilds
// the dataset row and its resources, and writes both in one transaction:
//
//	CKAN package_show
//	     ├── title, organization.title, url, metadata_modified
//	     └── resources[] (name, format, url, description)
//	                          ↓
//	                      Refresher ←── existing resources (file_name → ranking)
//	                          ↓
//	                      Record Store
//
// # Ranking Carry-Forward
//
// Rankings are local curation state. Before replacing the resource set the
// refresher reads the current resources inside the same transaction and maps
// file_name to ranking. Each incoming resource whose name matches keeps that
// ranking; every other resource starts at 0.
//
// # Usage
//
//	client, err := remote.New(remote.DefaultBaseURL, os.Getenv("DATA_GO_TH_API_KEY"))
//	if err != nil {
//	    return err // catalog.ErrUnavailable without a token
//	}
//	refresher := sync.New(store, client, nil)
//
//	status := refresher.Refresh(ctx, "air-quality-2024")
//	if !status.OK {
//	    log.Println(status)
//	}
//
// # Error Handling
//
// Refresh converts every failure into a Status with OK=false. Err keeps the
// classified cause (catalog.ErrNotFound for an id the catalog does not know,
// catalog.ErrRemote, catalog.ErrTimeout, catalog.ErrStorage,
// catalog.ErrUnavailable) for callers that need to branch on it.
package sync
