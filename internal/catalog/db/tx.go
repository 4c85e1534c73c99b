package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opendatath/catalog/internal/catalog"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// Tx is a write transaction pinned to one pooled connection. It must only be
// used by the goroutine that received it from WithTx.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, so a dataset upsert and its resource
// replacement either both land or neither does.
//
// Example:
//
//	err := store.WithTx(ctx, func(tx *db.Tx) error {
//	    if err := tx.UpsertDataset(ctx, dataset); err != nil {
//	        return err
//	    }
//	    return tx.ReplaceResources(ctx, dataset.PackageID, resources)
//	})
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	conn, err := db.handle()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", catalog.ErrStorage, err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", catalog.ErrStorage, err)
	}
	return nil
}

// UpsertDataset is DB.UpsertDataset inside the transaction.
func (t *Tx) UpsertDataset(ctx context.Context, d *schema.Dataset) error {
	return upsertDataset(ctx, t.tx, d)
}

// ReplaceResources is DB.ReplaceResources inside the transaction.
func (t *Tx) ReplaceResources(ctx context.Context, datasetID string, resources []*schema.Resource) error {
	return replaceResources(ctx, t.tx, datasetID, resources)
}

// GetResourcesFor is DB.GetResourcesFor inside the transaction.
func (t *Tx) GetResourcesFor(ctx context.Context, datasetID string) ([]*schema.Resource, error) {
	return getResourcesFor(ctx, t.tx, datasetID)
}

// SetMeta is DB.SetMeta inside the transaction.
func (t *Tx) SetMeta(ctx context.Context, key, value string) error {
	return setMeta(ctx, t.tx, key, value)
}

// Meta keys written by the importer.
const (
	MetaSnapshotFingerprint = "snapshot_fingerprint"
	MetaLastImport          = "last_import"
)

// GetMeta returns a sync_meta value. ok is false when the key is unset.
func (db *DB) GetMeta(ctx context.Context, key string) (value string, ok bool, err error) {
	conn, err := db.handle()
	if err != nil {
		return "", false, err
	}

	err = conn.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to read meta %s: %w", catalog.ErrStorage, key, err)
	}
	return value, true, nil
}

// SetMeta stores a sync_meta value.
func (db *DB) SetMeta(ctx context.Context, key, value string) error {
	conn, err := db.handle()
	if err != nil {
		return err
	}
	return setMeta(ctx, conn, key, value)
}

func setMeta(ctx context.Context, q querier, key, value string) error {
	query := `
	INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, key, value, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("%w: failed to write meta %s: %w", catalog.ErrStorage, key, err)
	}
	return nil
}
