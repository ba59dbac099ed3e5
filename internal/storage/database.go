package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentmem/agentmem/internal/logging"
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

var log = logging.GetLogger("storage")

var extensionsOnce sync.Once

// registerExtensions is the one-time, process-wide initializer required by
// the spec's extension-registration contract: the KNN vector extension, the
// fuzzy string scalars, and the statistical aggregates must all be visible
// to every connection opened after this call, and it is safe to call before
// any connection exists.
func registerExtensions() {
	extensionsOnce.Do(func() {
		sqlite_vec.Auto()
		registerFuzzyAndStatsFunctions()
	})
}

// DB wraps a single-writer SQLite connection holding the entity, vector,
// graph and audit tables. Every multi-table mutation runs inside one
// transaction; reads and writes are serialized by mu, matching the
// embedded-backend contract (one engine connection, WAL for readers).
type DB struct {
	sql  *sql.DB
	path string
	dims int
	mu   sync.RWMutex
}

// Open opens (creating if necessary) the database file at path, registers
// extensions exactly once process-wide, and initializes the schema at the
// given vector dimension.
func Open(path string, dims int) (*DB, error) {
	registerExtensions()

	log.Info("opening database", "path", path, "dims", dims)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path)
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{sql: sqlDB, path: path, dims: dims}
	if err := d.initSchema(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) initSchema() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var tableName string
	err := d.sql.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='memories' LIMIT 1`).Scan(&tableName)
	if err == nil && tableName != "" {
		log.Debug("schema already initialized")
		return d.ensureVecTable()
	}

	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(CoreSchema); err != nil {
		return fmt.Errorf("failed to create core schema: %w", err)
	}
	if _, err := tx.Exec(vecSchemaSQL(d.dims)); err != nil {
		return fmt.Errorf("failed to create vec index: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	log.Info("schema initialized", "version", SchemaVersion, "dims", d.dims)
	return nil
}

func (d *DB) ensureVecTable() error {
	var name string
	err := d.sql.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='vec_memories' LIMIT 1`).Scan(&name)
	if err == nil && name != "" {
		return nil
	}
	if _, err := d.sql.Exec(vecSchemaSQL(d.dims)); err != nil {
		return fmt.Errorf("failed to create vec index: %w", err)
	}
	return nil
}

// Dims reports the vector dimension the KNN index is currently fixed at.
func (d *DB) Dims() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dims
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sql.Close()
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Writes are serialized by mu.
func (d *DB) withTx(fn func(tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Checkpoint forces a WAL checkpoint.
func (d *DB) Checkpoint() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sql.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Vacuum runs VACUUM to reclaim space after large deletes or re-embeds.
func (d *DB) Vacuum() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sql.Exec("VACUUM")
	return err
}

// RebuildVecIndex drops and recreates the vector virtual table at a new
// dimension, then repopulates it from the authoritative embeddings table.
// Used by the bulk re-embed operation when the provider dimension changes.
func (d *DB) RebuildVecIndex(newDims int) error {
	return d.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DROP TABLE IF EXISTS vec_memories`); err != nil {
			return fmt.Errorf("failed to drop vec index: %w", err)
		}
		if _, err := tx.Exec(vecSchemaSQL(newDims)); err != nil {
			return fmt.Errorf("failed to recreate vec index: %w", err)
		}

		rows, err := tx.Query(`SELECT memory_id, vector, dimensions FROM embeddings`)
		if err != nil {
			return fmt.Errorf("failed to read embeddings: %w", err)
		}
		defer rows.Close()

		type row struct {
			id   string
			vec  []byte
			dims int
		}
		var pending []row
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.id, &r.vec, &r.dims); err != nil {
				return fmt.Errorf("failed to scan embedding row: %w", err)
			}
			pending = append(pending, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range pending {
			if r.dims != newDims {
				continue
			}
			if _, err := tx.Exec(`INSERT INTO vec_memories(memory_id, embedding) VALUES (?, ?)`, r.id, r.vec); err != nil {
				return fmt.Errorf("failed to repopulate vec index for %s: %w", r.id, err)
			}
		}

		d.dims = newDims
		return nil
	})
}

// Stats summarizes table sizes and file footprint for the status surface.
type Stats struct {
	Path          string
	SchemaVersion int
	MemoryCount   int
	EmbeddingCount int
	RelationCount int
	SessionCount  int
	FileSizeBytes int64
}

// GetStats returns database statistics.
func (d *DB) GetStats() (*Stats, error) {
	stats := &Stats{Path: d.path}

	d.mu.RLock()
	d.sql.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&stats.SchemaVersion)
	d.sql.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&stats.MemoryCount)
	d.sql.QueryRow(`SELECT COUNT(*) FROM embeddings`).Scan(&stats.EmbeddingCount)
	d.sql.QueryRow(`SELECT COUNT(*) FROM relations`).Scan(&stats.RelationCount)
	d.sql.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&stats.SessionCount)
	d.mu.RUnlock()

	if info, err := os.Stat(d.path); err == nil {
		stats.FileSizeBytes = info.Size()
	}
	return stats, nil
}
