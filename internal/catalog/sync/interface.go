package sync

import (
	"context"

	"github.com/opendatath/catalog/internal/catalog/remote"
)

// Refresher pulls one dataset from the remote catalog and writes it to the
// store.
//
// A refresh replaces the dataset row and its entire resource set. Curator
// rankings survive the replacement: each incoming resource takes the ranking
// of the existing resource with exactly the same file name, and 0 when there
// is none. Renamed resources therefore lose their ranking.
//
// Refreshes of the same package id are serialized; refreshes of different
// ids run concurrently with no ordering guarantee.
type Refresher interface {
	// Refresh fetches packageID via package_show and replaces the local
	// copy inside one transaction.
	//
	// Refresh never panics and never returns a Go error; the outcome,
	// including remote and storage failures, is carried by Status.
	//
	// Example:
	//   status := refresher.Refresh(ctx, "air-quality-2024")
	//   fmt.Println(status) // "✅ Refreshed air-quality-2024: 3 resources (2 rankings kept)"
	Refresh(ctx context.Context, packageID string) Status

	// RefreshMany refreshes several packages using at most workers
	// concurrent requests. Statuses are returned in input order.
	RefreshMany(ctx context.Context, packageIDs []string, workers int) []Status

	// Stats reports counters since the Refresher was created.
	Stats() Stats
}

// PackageFetcher is the slice of the remote client the Refresher needs.
// *remote.Client satisfies it.
type PackageFetcher interface {
	PackageShow(ctx context.Context, id string) (*remote.Package, error)
}

// Status is the tagged result of a refresh.
type Status struct {
	OK        bool
	PackageID string
	Message   string
	Resources int // resources written
	Preserved int // resources whose ranking was carried forward
	Err       error
}

// String renders the status with a leading ✅ or ❌ marker.
func (s Status) String() string {
	if s.OK {
		return "✅ " + s.Message
	}
	return "❌ " + s.Message
}

// Stats counts refresh outcomes.
type Stats struct {
	Refreshed int64
	Failed    int64
}
