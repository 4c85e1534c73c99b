package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/opendatath/catalog/internal/catalog"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// querier is satisfied by both *sql.DB and *sql.Tx so record operations can
// run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const datasetColumns = `package_id, title, organization, url, resource_count, file_types, last_updated`

const resourceColumns = `dataset_id, file_name, format, url, description, ranking`

// UpsertDataset inserts a dataset or replaces every attribute of the
// existing row with the same package_id.
func (db *DB) UpsertDataset(ctx context.Context, d *schema.Dataset) error {
	conn, err := db.handle()
	if err != nil {
		return err
	}
	return upsertDataset(ctx, conn, d)
}

func upsertDataset(ctx context.Context, q querier, d *schema.Dataset) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: invalid dataset: %w", catalog.ErrStorage, err)
	}

	query := `
	INSERT INTO datasets (` + datasetColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(package_id) DO UPDATE SET
		title = excluded.title,
		organization = excluded.organization,
		url = excluded.url,
		resource_count = excluded.resource_count,
		file_types = excluded.file_types,
		last_updated = excluded.last_updated
	`

	_, err := q.ExecContext(ctx, query,
		d.PackageID,
		d.Title,
		d.Organization,
		d.URL,
		d.ResourceCount,
		d.FileTypes,
		d.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert dataset %s: %w", catalog.ErrStorage, d.PackageID, err)
	}
	return nil
}

// ReplaceResources deletes every resource of datasetID and inserts the given
// ones, atomically. Resources with an empty DatasetID are assigned datasetID;
// a resource naming a different dataset is rejected.
func (db *DB) ReplaceResources(ctx context.Context, datasetID string, resources []*schema.Resource) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		return tx.ReplaceResources(ctx, datasetID, resources)
	})
}

func replaceResources(ctx context.Context, q querier, datasetID string, resources []*schema.Resource) error {
	if strings.TrimSpace(datasetID) == "" {
		return fmt.Errorf("%w: dataset id is required", catalog.ErrStorage)
	}

	// Validate everything before touching the table. Records are copied so
	// filling in DatasetID leaves the caller's values alone.
	rows := make([]schema.Resource, 0, len(resources))
	for i, r := range resources {
		if r == nil {
			return fmt.Errorf("%w: resource %d of %s is nil", catalog.ErrStorage, i, datasetID)
		}
		row := *r
		if row.DatasetID == "" {
			row.DatasetID = datasetID
		}
		if row.DatasetID != datasetID {
			return fmt.Errorf("%w: resource %q belongs to %s, not %s", catalog.ErrStorage, row.FileName, row.DatasetID, datasetID)
		}
		if err := row.Validate(); err != nil {
			return fmt.Errorf("%w: invalid resource %q: %w", catalog.ErrStorage, row.FileName, err)
		}
		rows = append(rows, row)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM resources WHERE dataset_id = ?`, datasetID); err != nil {
		return fmt.Errorf("%w: failed to delete resources of %s: %w", catalog.ErrStorage, datasetID, err)
	}

	insert := `INSERT INTO resources (` + resourceColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	for _, r := range rows {
		_, err := q.ExecContext(ctx, insert,
			r.DatasetID,
			r.FileName,
			schema.NormalizeFormat(r.Format),
			r.URL,
			stringToNull(r.Description),
			r.Ranking,
		)
		if err != nil {
			return fmt.Errorf("%w: failed to insert resource %q of %s: %w", catalog.ErrStorage, r.FileName, datasetID, err)
		}
	}
	return nil
}

// GetDataset returns one dataset, or catalog.ErrNotFound.
func (db *DB) GetDataset(ctx context.Context, packageID string) (*schema.Dataset, error) {
	conn, err := db.handle()
	if err != nil {
		return nil, err
	}

	row := conn.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE package_id = ?`, packageID)

	var d schema.Dataset
	err = row.Scan(&d.PackageID, &d.Title, &d.Organization, &d.URL, &d.ResourceCount, &d.FileTypes, &d.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: dataset %s", catalog.ErrNotFound, packageID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get dataset %s: %w", catalog.ErrStorage, packageID, err)
	}
	return &d, nil
}

// GetAllDatasets returns every dataset. Order is unspecified.
func (db *DB) GetAllDatasets(ctx context.Context) ([]*schema.Dataset, error) {
	conn, err := db.handle()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `SELECT `+datasetColumns+` FROM datasets`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query datasets: %w", catalog.ErrStorage, err)
	}
	defer rows.Close()

	return scanDatasets(rows)
}

func scanDatasets(rows *sql.Rows) ([]*schema.Dataset, error) {
	datasets := []*schema.Dataset{}
	for rows.Next() {
		var d schema.Dataset
		if err := rows.Scan(&d.PackageID, &d.Title, &d.Organization, &d.URL, &d.ResourceCount, &d.FileTypes, &d.LastUpdated); err != nil {
			return nil, fmt.Errorf("%w: failed to scan dataset: %w", catalog.ErrStorage, err)
		}
		datasets = append(datasets, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating datasets: %w", catalog.ErrStorage, err)
	}
	return datasets, nil
}

// GetResourcesFor returns the resources of one dataset in insertion order.
// An unknown dataset yields an empty slice.
func (db *DB) GetResourcesFor(ctx context.Context, datasetID string) ([]*schema.Resource, error) {
	conn, err := db.handle()
	if err != nil {
		return nil, err
	}
	return getResourcesFor(ctx, conn, datasetID)
}

func getResourcesFor(ctx context.Context, q querier, datasetID string) ([]*schema.Resource, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE dataset_id = ? ORDER BY id`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query resources of %s: %w", catalog.ErrStorage, datasetID, err)
	}
	defer rows.Close()

	return scanResources(rows)
}

// GetAllResources returns every resource grouped by dataset in insertion
// order.
func (db *DB) GetAllResources(ctx context.Context) ([]*schema.Resource, error) {
	conn, err := db.handle()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY dataset_id, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query resources: %w", catalog.ErrStorage, err)
	}
	defer rows.Close()

	return scanResources(rows)
}

func scanResources(rows *sql.Rows) ([]*schema.Resource, error) {
	resources := []*schema.Resource{}
	for rows.Next() {
		var r schema.Resource
		var description sql.NullString
		if err := rows.Scan(&r.DatasetID, &r.FileName, &r.Format, &r.URL, &description, &r.Ranking); err != nil {
			return nil, fmt.Errorf("%w: failed to scan resource: %w", catalog.ErrStorage, err)
		}
		r.Description = description.String
		resources = append(resources, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating resources: %w", catalog.ErrStorage, err)
	}
	return resources, nil
}

// CountDatasets returns the number of datasets. It doubles as the store
// health check: any error means the store is unusable.
func (db *DB) CountDatasets(ctx context.Context) (int, error) {
	return db.count(ctx, "datasets")
}

// CountResources returns the number of resources.
func (db *DB) CountResources(ctx context.Context) (int, error) {
	return db.count(ctx, "resources")
}

func (db *DB) count(ctx context.Context, table string) (int, error) {
	conn, err := db.handle()
	if err != nil {
		return 0, err
	}

	var n int
	// table is one of a fixed set of identifiers
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count %s: %w", catalog.ErrStorage, table, err)
	}
	return n, nil
}

func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
