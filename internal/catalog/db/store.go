// Package db provides the SQLite Record Store for the open-data catalog.
//
// The store is the local cache the dashboard reads from. It is fed in bulk by
// the snapshot importer and one dataset at a time by the remote sync client.
//
// Architecture:
//   - Database file: data/database.sqlite (configurable)
//   - WAL mode with a 5s busy timeout, applied to every pooled connection
//   - Schema: datasets, resources, sync_meta tables
//   - resources.dataset_id declares a foreign key to datasets.package_id but
//     foreign keys are not enforced, so orphaned resources are tolerated
//
// Concurrency:
//
// database/sql hands each goroutine its own pooled connection. A transaction
// is pinned to a single connection and must not be shared between
// goroutines. Write transactions begin IMMEDIATE so that concurrent writers
// queue on the busy timeout instead of failing on lock upgrade.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/opendatath/catalog/internal/catalog"
)

// DefaultPath is where the store lives unless configured otherwise.
const DefaultPath = "data/database.sqlite"

// ErrClosed is returned by operations on a store that has been closed or
// wiped. It matches catalog.ErrStorage.
var ErrClosed = fmt.Errorf("%w: database is closed", catalog.ErrStorage)

// DB wraps the SQLite connection pool.
type DB struct {
	mu     sync.RWMutex
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Open opens (creating if needed) the store at path and initializes the
// schema.
//
// The caller MUST call Close() when done to checkpoint the WAL.
//
// Example:
//
//	store, err := db.Open("data/database.sqlite")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext opens the store with context support.
func OpenContext(ctx context.Context, path string) (*DB, error) {
	conn, err := connect(ctx, path)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn, path: path, logger: defaultLogger()}
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

// OpenOrRecreate opens the store at path. If the existing file cannot be
// opened (for example because it is not a SQLite database) it is deleted and
// a fresh store is created in its place. A nil logger writes to stderr.
func OpenOrRecreate(ctx context.Context, path string, logger *log.Logger) (*DB, error) {
	if logger == nil {
		logger = defaultLogger()
	}

	db, err := OpenContext(ctx, path)
	if err != nil {
		logger.Printf("Warning: store %s unusable, recreating: %v", path, err)
		if rmErr := removeFiles(path); rmErr != nil {
			return nil, fmt.Errorf("%w: failed to remove unusable store: %w", catalog.ErrStorage, rmErr)
		}
		if db, err = OpenContext(ctx, path); err != nil {
			return nil, err
		}
	}
	db.logger = logger
	return db, nil
}

func defaultLogger() *log.Logger {
	return log.New(os.Stderr, "[db] ", log.LstdFlags)
}

func connect(ctx context.Context, path string) (*sql.DB, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: failed to create database directory: %w", catalog.ErrStorage, err)
		}
	}

	// Pragmas in the DSN apply to every connection the pool opens
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(0)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", catalog.ErrStorage, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", catalog.ErrStorage, err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return conn, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB, or nil once closed.
func (db *DB) RawDB() *sql.DB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn
}

func (db *DB) handle() (*sql.DB, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.conn == nil {
		return nil, ErrClosed
	}
	return db.conn, nil
}

// Close checkpoints the WAL and closes every pooled connection.
// Closing an already closed store is a no-op.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closeLocked()
}

func (db *DB) closeLocked() error {
	if db.conn == nil {
		return nil
	}

	// Checkpoint WAL before closing
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	err := db.conn.Close()
	db.conn = nil
	if err != nil {
		return fmt.Errorf("%w: failed to close database: %w", catalog.ErrStorage, err)
	}
	return nil
}

// Wipe closes all connections and deletes the database file together with
// its -wal and -shm companions. The store is unusable afterwards until
// Recreate is called.
//
// The caller must ensure no other operation is in flight.
func (db *DB) Wipe() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.closeLocked(); err != nil {
		return err
	}
	if err := removeFiles(db.path); err != nil {
		return fmt.Errorf("%w: failed to delete database: %w", catalog.ErrStorage, err)
	}
	return nil
}

// Recreate wipes the store and reopens an empty one with a fresh schema at
// the same path.
func (db *DB) Recreate(ctx context.Context) error {
	if err := db.Wipe(); err != nil {
		return err
	}

	conn, err := connect(ctx, db.path)
	if err != nil {
		return err
	}

	db.mu.Lock()
	db.conn = conn
	db.mu.Unlock()

	return db.InitSchemaContext(ctx)
}

func removeFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// InitSchema creates the tables if they don't exist. Safe to call repeatedly.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	conn, err := db.handle()
	if err != nil {
		return err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		package_id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		organization TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		resource_count INTEGER NOT NULL DEFAULT 0,
		file_types TEXT NOT NULL DEFAULT '',
		last_updated TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS resources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset_id TEXT NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		format TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		description TEXT,
		ranking INTEGER NOT NULL DEFAULT 0 CHECK (ranking BETWEEN 0 AND 4),
		FOREIGN KEY (dataset_id) REFERENCES datasets(package_id)
	);

	-- Bookkeeping for the snapshot importer (last imported fingerprint etc.)
	CREATE TABLE IF NOT EXISTS sync_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resources_dataset ON resources(dataset_id);
	CREATE INDEX IF NOT EXISTS idx_resources_dataset_ranking ON resources(dataset_id, ranking);
	CREATE INDEX IF NOT EXISTS idx_datasets_organization ON datasets(organization);
	`

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %w", catalog.ErrStorage, err)
	}
	return nil
}
