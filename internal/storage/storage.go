// Package storage provides the SQLite export ledger. It records every asset
// export attempt and every archive import in a single database file so past
// runs can be inspected without rescanning the export tree.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/leefowlercu/asset-snapshot/internal/metrics"
)

// Storage is an open ledger.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open opens or creates the ledger at dbPath and brings its schema up to
// date.
func Open(ctx context.Context, dbPath string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory; %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger; %w", err)
	}

	// One connection: the CLI and the listener never write concurrently
	// enough to need more, and SQLite rejects parallel writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure ledger (%s); %w", pragma, err)
		}
	}

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.upgrade(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

// CollectMetrics publishes per-table row counts.
func (s *Storage) CollectMetrics(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, table := range []string{"exports", "imports"} {
		var n int64
		// table names come from the fixed list above
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return fmt.Errorf("failed to count %s; %w", table, err)
		}
		metrics.LedgerRows.WithLabelValues(table).Set(float64(n))
	}
	return nil
}

// GetSchemaVersion returns the schema version stamped in the database.
func (s *Storage) GetSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version; %w", err)
	}
	return version, nil
}

// upgrade applies every schema step newer than the database's user_version.
// Each step and its version stamp commit together.
func (s *Storage) upgrade(ctx context.Context) error {
	current, err := s.GetSchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > len(schema) {
		return fmt.Errorf("ledger schema version %d is newer than this binary supports (%d)", current, len(schema))
	}

	for i := current; i < len(schema); i++ {
		version := i + 1
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin schema step %d; %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, schema[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply schema step %d; %w", version, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to stamp schema version %d; %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit schema step %d; %w", version, err)
		}
	}

	return nil
}

// schema holds the ledger DDL; entry i upgrades version i to i+1. Append
// only.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS exports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL DEFAULT 0,
		object_path TEXT NOT NULL,
		class TEXT,
		hash_main TEXT,
		hash_full TEXT,
		outcome TEXT NOT NULL,
		zip_path TEXT,
		uploaded INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exports_hash_main ON exports(hash_main);
	CREATE INDEX IF NOT EXISTS idx_exports_object_path ON exports(object_path);
	CREATE INDEX IF NOT EXISTS idx_exports_batch_id ON exports(batch_id);`,

	`CREATE TABLE IF NOT EXISTS imports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		zip_path TEXT NOT NULL,
		mode TEXT NOT NULL,
		imported INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_imports_created_at ON imports(created_at);`,
}
