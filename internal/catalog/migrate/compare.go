package migrate

import (
	"context"

	"github.com/opendatath/catalog/internal/catalog/db"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// Comparison contrasts the snapshot files with the store.
type Comparison struct {
	DatasetsFilePresent  bool
	ResourcesFilePresent bool

	// -1 when the file is absent or unreadable
	SnapshotDatasets  int
	SnapshotResources int

	StoreDatasets  int
	StoreResources int

	// Fingerprint of the current files and of the last imported snapshot.
	Fingerprint         string
	ImportedFingerprint string
	LastImport          string
}

// Stale reports whether the snapshot on disk differs from what was last
// imported.
func (c *Comparison) Stale() bool {
	return c.Fingerprint != "" && c.Fingerprint != c.ImportedFingerprint
}

// InSync reports whether the store holds exactly as many records as the
// snapshot files.
func (c *Comparison) InSync() bool {
	return c.SnapshotDatasets == c.StoreDatasets && c.SnapshotResources == c.StoreResources
}

// Compare counts records in the snapshot files and the store. Store errors
// are returned; snapshot problems are reflected in the counts.
func Compare(ctx context.Context, store *db.DB, opts Options) (*Comparison, error) {
	c := &Comparison{
		DatasetsFilePresent:  schema.Exists(opts.DatasetsPath),
		ResourcesFilePresent: schema.Exists(opts.ResourcesPath),
		SnapshotDatasets:     -1,
		SnapshotResources:    -1,
	}

	if c.DatasetsFilePresent {
		if ds, err := schema.ReadDatasets(opts.DatasetsPath); err == nil {
			c.SnapshotDatasets = len(ds)
		}
	}
	if c.ResourcesFilePresent {
		if rs, err := schema.ReadResources(opts.ResourcesPath, nil); err == nil {
			c.SnapshotResources = len(rs)
		}
	}
	if c.DatasetsFilePresent && c.ResourcesFilePresent {
		if fp, err := schema.Fingerprint(opts.DatasetsPath, opts.ResourcesPath); err == nil {
			c.Fingerprint = fp
		}
	}

	var err error
	if c.StoreDatasets, err = store.CountDatasets(ctx); err != nil {
		return nil, err
	}
	if c.StoreResources, err = store.CountResources(ctx); err != nil {
		return nil, err
	}
	if c.ImportedFingerprint, _, err = store.GetMeta(ctx, db.MetaSnapshotFingerprint); err != nil {
		return nil, err
	}
	if c.LastImport, _, err = store.GetMeta(ctx, db.MetaLastImport); err != nil {
		return nil, err
	}

	return c, nil
}
